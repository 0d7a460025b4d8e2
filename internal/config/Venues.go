package config

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// Venue configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// SwapPrimaryAddress is the swap venue receiving portion A.
	SwapPrimaryAddress common.Address
	// SwapSecondaryAddress is the swap venue receiving the swapped half of portion B.
	SwapSecondaryAddress common.Address
	// LendingAddress is the lending venue receiving portion C.
	LendingAddress common.Address
	// TokenAAddress and TokenBAddress identify the tokens bought on each swap venue.
	TokenAAddress common.Address
	TokenBAddress common.Address

	// SwapPrimaryRate and SwapSecondaryRate are the fixed token-per-wei rates of the in-process pools.
	SwapPrimaryRate   sdkmath.LegacyDec
	SwapSecondaryRate sdkmath.LegacyDec
)

// loadVenueConfig loads venue configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadVenueConfig() error {
	log.Info().Msg("Loading venue configuration from environment variables...")

	var err error

	SwapPrimaryAddress, err = getEnvAsAddress("SWAP_PRIMARY_ADDRESS")
	if err != nil {
		return err
	}

	SwapSecondaryAddress, err = getEnvAsAddress("SWAP_SECONDARY_ADDRESS")
	if err != nil {
		return err
	}

	LendingAddress, err = getEnvAsAddress("LENDING_ADDRESS")
	if err != nil {
		return err
	}

	TokenAAddress, err = getEnvAsAddress("TOKEN_A_ADDRESS")
	if err != nil {
		return err
	}

	TokenBAddress, err = getEnvAsAddress("TOKEN_B_ADDRESS")
	if err != nil {
		return err
	}

	SwapPrimaryRate, err = getEnvAsRate("SWAP_PRIMARY_RATE", DefaultSwapRate)
	if err != nil {
		return err
	}

	SwapSecondaryRate, err = getEnvAsRate("SWAP_SECONDARY_RATE", DefaultSwapRate)
	if err != nil {
		return err
	}

	seen := map[common.Address]string{VaultAddress: "VAULT_ADDRESS"}
	for name, addr := range map[string]common.Address{
		"SWAP_PRIMARY_ADDRESS":   SwapPrimaryAddress,
		"SWAP_SECONDARY_ADDRESS": SwapSecondaryAddress,
		"LENDING_ADDRESS":        LendingAddress,
	} {
		if addr == (common.Address{}) {
			return fmt.Errorf("%w: %s is the zero address", ErrInvalidVariable, name)
		}
		if other, dup := seen[addr]; dup {
			return fmt.Errorf("%w: %s and %s share address %s", ErrInvalidVariable, name, other, addr.Hex())
		}
		seen[addr] = name
	}

	log.Debug().
		Str("SwapPrimary", SwapPrimaryAddress.Hex()).
		Str("SwapSecondary", SwapSecondaryAddress.Hex()).
		Str("Lending", LendingAddress.Hex()).
		Msg("Venue configuration loaded successfully.")

	return nil
}

// getEnvAsRate retrieves an optional positive decimal rate.
func getEnvAsRate(key string, fallback sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	rate, err := sdkmath.LegacyNewDecFromStr(valueStr)
	if err != nil || !rate.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s must be a positive decimal, got: %s", ErrInvalidVariable, key, valueStr)
	}
	return rate, nil
}
