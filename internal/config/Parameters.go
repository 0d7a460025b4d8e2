/*

This file contains the default parameters for the vault node.

The allocation split is the contract's defining behavior and must not drift between deployments;
the keeper and faucet defaults are tuned for a development node.

*/

package config

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/hedgefund/internal/types"
	"github.com/elys-network/hedgefund/internal/vault"
)

// DefaultAllocationParameters is the fixed 30/30/40 split of every contribution.
var DefaultAllocationParameters = types.AllocationParameters{
	PrimarySwapPercent: 30, // Portion A, forwarded whole to the primary swap venue.
	// Rationale: Token A exposure is one of the two directional legs of the fund.

	SecondarySwapPercent: 30, // Portion B, of which half (floored) stays idle in the vault.
	// Rationale: Only half of the token B leg is swapped, which keeps a liquid reserve in custody
	// that withdrawals are paid out of without unwinding any position.

	// Portion C is the remainder (40% plus rounding dust) and goes to the lending venue.
	// Rationale: Giving the rounding dust to the remainder guarantees the legs sum to the amount.
}

const (
	// DefaultFailurePolicy keeps failed forwards idle and lets the call succeed.
	DefaultFailurePolicy = vault.BestEffort
	// DefaultRebalanceSource re-splits the whole custody balance.
	DefaultRebalanceSource = vault.SourceCustody

	// DefaultKeeperSchedule runs the keeper every ten minutes.
	DefaultKeeperSchedule = "@every 10m"
	// Rationale: Matches the cycle length of the autonomous manager loop; rebalance is cheap
	// and idempotent on an empty vault, so a tighter schedule only adds noise to the receipts.

	// DefaultWebPort is the HTTP listen port.
	DefaultWebPort = "8080"

	// DefaultDBPort is the PostgreSQL port.
	DefaultDBPort = 5432
)

var (
	// DefaultKeeperMinRebalance skips keeper cycles below 0.01 ether in custody.
	// Rationale: Splitting dust produces zero-valued legs that are skipped anyway.
	DefaultKeeperMinRebalance = sdkmath.NewInt(10_000_000_000_000_000)

	// DefaultFaucetMaxWei caps a faucet request at 100 ether.
	DefaultFaucetMaxWei = sdkmath.NewIntWithDecimal(100, 18)

	// DefaultSwapRate is one token unit per wei.
	DefaultSwapRate = sdkmath.LegacyOneDec()
)
