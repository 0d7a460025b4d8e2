package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/hedgefund/internal/utils"
	"github.com/elys-network/hedgefund/internal/vault"
)

// Error definitions for zero-tolerance error handling
var (
	ErrMissingVariable = errors.New("environment variable is required but not set")
	ErrInvalidVariable = errors.New("environment variable is invalid")
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// VaultAddress is where the vault contract is deployed in the runtime.
	VaultAddress common.Address
	// DeployerAddress sends the one-time initialize transaction.
	DeployerAddress common.Address

	// FailurePolicy decides what a failed forward or payout does to the call.
	FailurePolicy vault.FailurePolicy
	// RebalanceSource decides which balance rebalance splits.
	RebalanceSource vault.RebalanceSource

	// KeeperSchedule is the cron spec of the autonomous rebalance keeper.
	KeeperSchedule string
	// KeeperAddress is the account the keeper submits rebalance transactions from.
	KeeperAddress common.Address
	// KeeperMinRebalance is the custody balance (wei) below which the keeper skips a cycle.
	KeeperMinRebalance sdkmath.Int

	// DevTxEnabled exposes POST /api/tx, which sends transactions from any account without a
	// signature. Development only.
	DevTxEnabled bool

	// FaucetEnabled exposes the dev faucet endpoint.
	FaucetEnabled bool
	// FaucetMaxWei caps a single faucet request.
	FaucetMaxWei sdkmath.Int

	// WebPort is the HTTP listen port.
	WebPort string
	// LogLevel is passed to logger.Initialize.
	LogLevel string

	// Database connection settings. An empty DBHost runs the node without persistence.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Addresses are required; everything else falls back to the defaults in Parameters.go.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	VaultAddress, err = getEnvAsAddress("VAULT_ADDRESS")
	if err != nil {
		return err
	}

	DeployerAddress, err = getEnvAsAddress("DEPLOYER_ADDRESS")
	if err != nil {
		return err
	}

	FailurePolicy, err = vault.ParseFailurePolicy(getEnvOrDefault("FAILURE_POLICY", string(DefaultFailurePolicy)))
	if err != nil {
		return fmt.Errorf("%w: FAILURE_POLICY: %w", ErrInvalidVariable, err)
	}

	RebalanceSource, err = vault.ParseRebalanceSource(getEnvOrDefault("REBALANCE_SOURCE", string(DefaultRebalanceSource)))
	if err != nil {
		return fmt.Errorf("%w: REBALANCE_SOURCE: %w", ErrInvalidVariable, err)
	}

	KeeperSchedule = getEnvOrDefault("AVM_SCHEDULE", DefaultKeeperSchedule)

	KeeperAddress = DeployerAddress
	if getEnvOrDefault("AVM_KEEPER_ADDRESS", "") != "" {
		KeeperAddress, err = getEnvAsAddress("AVM_KEEPER_ADDRESS")
		if err != nil {
			return err
		}
	}

	KeeperMinRebalance, err = getEnvAsAmount("AVM_MIN_REBALANCE_WEI", DefaultKeeperMinRebalance)
	if err != nil {
		return err
	}

	DevTxEnabled, err = getEnvAsBool("DEV_TX_ENABLED", false)
	if err != nil {
		return err
	}

	FaucetEnabled, err = getEnvAsBool("FAUCET_ENABLED", false)
	if err != nil {
		return err
	}

	FaucetMaxWei, err = getEnvAsAmount("FAUCET_MAX_WEI", DefaultFaucetMaxWei)
	if err != nil {
		return err
	}

	WebPort = getEnvOrDefault("WEB_PORT", DefaultWebPort)
	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	DBHost = getEnvOrDefault("DB_HOST", "")
	DBPort, err = getEnvAsInt("DB_PORT", DefaultDBPort)
	if err != nil {
		return err
	}
	DBUser = getEnvOrDefault("DB_USER", "")
	DBPassword = getEnvOrDefault("DB_PASSWORD", "")
	DBName = getEnvOrDefault("DB_NAME", "")
	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	// Load venue configuration
	if err := loadVenueConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("VaultAddress", VaultAddress.Hex()).
		Str("FailurePolicy", string(FailurePolicy)).
		Str("RebalanceSource", string(RebalanceSource)).
		Str("KeeperSchedule", KeeperSchedule).
		Bool("DevTxEnabled", DevTxEnabled).
		Bool("FaucetEnabled", FaucetEnabled).
		Msg("Configuration loaded successfully.")

	return nil
}

// VaultPolicy assembles the ledger policy from the loaded configuration.
func VaultPolicy() vault.Policy {
	return vault.Policy{
		Failure:         FailurePolicy,
		RebalanceSource: RebalanceSource,
		Allocation:      DefaultAllocationParameters,
	}
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrMissingVariable, key)
}

// getEnvOrDefault retrieves a string environment variable, or fallback when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

// getEnvAsAddress retrieves a required hex address.
func getEnvAsAddress(key string) (common.Address, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return common.Address{}, err
	}
	valueStr = strings.TrimSpace(valueStr)
	if !common.IsHexAddress(valueStr) {
		return common.Address{}, fmt.Errorf("%w: %s must be a hex address, got: %s", ErrInvalidVariable, key, valueStr)
	}
	return common.HexToAddress(valueStr), nil
}

// getEnvAsAmount retrieves an optional wei amount.
func getEnvAsAmount(key string, fallback sdkmath.Int) (sdkmath.Int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := utils.ParseAmount(valueStr)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s: %w", ErrInvalidVariable, key, err)
	}
	return value, nil
}

// getEnvAsBool retrieves an optional boolean.
func getEnvAsBool(key string, fallback bool) (bool, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got: %s", ErrInvalidVariable, key, valueStr)
	}
	return value, nil
}

// getEnvAsInt retrieves an optional integer.
func getEnvAsInt(key string, fallback int) (int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got: %s", ErrInvalidVariable, key, valueStr)
	}
	return value, nil
}
