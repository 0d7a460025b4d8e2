package config

import (
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/hedgefund/internal/vault"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("VAULT_ADDRESS", "0x00000000000000000000000000000000000000aa")
	t.Setenv("DEPLOYER_ADDRESS", "0x00000000000000000000000000000000000000d0")
	t.Setenv("SWAP_PRIMARY_ADDRESS", "0x0000000000000000000000000000000000000a01")
	t.Setenv("SWAP_SECONDARY_ADDRESS", "0x0000000000000000000000000000000000000a02")
	t.Setenv("LENDING_ADDRESS", "0x0000000000000000000000000000000000000a03")
	t.Setenv("TOKEN_A_ADDRESS", "0x0000000000000000000000000000000000000b01")
	t.Setenv("TOKEN_B_ADDRESS", "0x0000000000000000000000000000000000000b02")
	for _, key := range []string{"FAILURE_POLICY", "REBALANCE_SOURCE", "AVM_SCHEDULE", "AVM_KEEPER_ADDRESS",
		"AVM_MIN_REBALANCE_WEI", "FAUCET_ENABLED", "FAUCET_MAX_WEI", "WEB_PORT", "DB_HOST", "DB_PORT",
		"SWAP_PRIMARY_RATE", "SWAP_SECONDARY_RATE"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)

	require.NoError(t, LoadConfig())
	assert.Equal(t, common.HexToAddress("0xaa"), VaultAddress)
	assert.Equal(t, common.HexToAddress("0xa03"), LendingAddress)
	assert.Equal(t, vault.BestEffort, FailurePolicy)
	assert.Equal(t, vault.SourceCustody, RebalanceSource)
	assert.Equal(t, DefaultKeeperSchedule, KeeperSchedule)
	assert.Equal(t, DeployerAddress, KeeperAddress)
	assert.True(t, KeeperMinRebalance.Equal(DefaultKeeperMinRebalance))
	assert.False(t, FaucetEnabled)
	assert.False(t, DevTxEnabled)
	assert.Equal(t, DefaultWebPort, WebPort)
	assert.Equal(t, DefaultDBPort, DBPort)
	assert.True(t, SwapPrimaryRate.Equal(DefaultSwapRate))

	policy := VaultPolicy()
	require.NoError(t, policy.Validate())
	assert.Equal(t, vault.DefaultPolicy(), policy)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("FAILURE_POLICY", "revert_all")
	t.Setenv("REBALANCE_SOURCE", "idle")
	t.Setenv("AVM_SCHEDULE", "*/5 * * * *")
	t.Setenv("AVM_KEEPER_ADDRESS", "0x00000000000000000000000000000000000000ee")
	t.Setenv("AVM_MIN_REBALANCE_WEI", "0")
	t.Setenv("FAUCET_ENABLED", "true")
	t.Setenv("DEV_TX_ENABLED", "1")
	t.Setenv("WEB_PORT", "9090")
	t.Setenv("SWAP_SECONDARY_RATE", "2.5")

	require.NoError(t, LoadConfig())
	assert.Equal(t, vault.RevertAll, FailurePolicy)
	assert.Equal(t, vault.SourceIdle, RebalanceSource)
	assert.Equal(t, "*/5 * * * *", KeeperSchedule)
	assert.Equal(t, common.HexToAddress("0xee"), KeeperAddress)
	assert.True(t, KeeperMinRebalance.IsZero())
	assert.True(t, FaucetEnabled)
	assert.True(t, DevTxEnabled)
	assert.Equal(t, "9090", WebPort)
	assert.Equal(t, "2.500000000000000000", SwapSecondaryRate.String())
}

func TestLoadConfigFailures(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
		err  error
	}{
		{name: "bad address", key: "LENDING_ADDRESS", val: "not-an-address", err: ErrInvalidVariable},
		{name: "zero venue", key: "SWAP_PRIMARY_ADDRESS", val: "0x0000000000000000000000000000000000000000", err: ErrInvalidVariable},
		{name: "venue is vault", key: "LENDING_ADDRESS", val: "0x00000000000000000000000000000000000000aa", err: ErrInvalidVariable},
		{name: "policy", key: "FAILURE_POLICY", val: "whatever", err: ErrInvalidVariable},
		{name: "source", key: "REBALANCE_SOURCE", val: "market", err: ErrInvalidVariable},
		{name: "amount", key: "AVM_MIN_REBALANCE_WEI", val: "-5", err: ErrInvalidVariable},
		{name: "bool", key: "FAUCET_ENABLED", val: "perhaps", err: ErrInvalidVariable},
		{name: "dev tx bool", key: "DEV_TX_ENABLED", val: "sometimes", err: ErrInvalidVariable},
		{name: "port", key: "DB_PORT", val: "five", err: ErrInvalidVariable},
		{name: "rate", key: "SWAP_PRIMARY_RATE", val: "0", err: ErrInvalidVariable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.key, tc.val)
			require.ErrorIs(t, LoadConfig(), tc.err)
		})
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	for _, key := range []string{"VAULT_ADDRESS", "DEPLOYER_ADDRESS", "SWAP_PRIMARY_ADDRESS", "SWAP_SECONDARY_ADDRESS",
		"LENDING_ADDRESS", "TOKEN_A_ADDRESS", "TOKEN_B_ADDRESS"} {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			unsetEnv(t, key)
			require.ErrorIs(t, LoadConfig(), ErrMissingVariable)
		})
	}
}

func TestDefaultAllocationParameters(t *testing.T) {
	require.NoError(t, DefaultAllocationParameters.Validate())
	assert.Equal(t, int64(30), DefaultAllocationParameters.PrimarySwapPercent)
	assert.Equal(t, int64(30), DefaultAllocationParameters.SecondarySwapPercent)
}

// unsetEnv removes key for the rest of the test; t.Setenv restores the original afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}
