/*

This file contains the types describing how a contribution is split across the three
sub-strategies and what happened to each forwarded leg.

*/

package types

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Leg identifies one of the three fixed allocations.
type Leg string

const (
	LegPrimarySwap   Leg = "swap_primary"   // Portion A, token A
	LegSecondarySwap Leg = "swap_secondary" // Swapped half of portion B, token B
	LegLending       Leg = "lending"        // Portion C, the remainder
)

// Legs lists the legs in forwarding order.
var Legs = []Leg{LegPrimarySwap, LegSecondarySwap, LegLending}

// AllocationParameters are the percentages of the split. Portion C is always the remainder.
type AllocationParameters struct {
	PrimarySwapPercent   int64 `json:"primary_swap_percent"`
	SecondarySwapPercent int64 `json:"secondary_swap_percent"` // Half of this portion stays idle
}

// ErrInvalidAllocation is returned for percentages that cannot describe a split.
var ErrInvalidAllocation = errors.New("allocation parameters are invalid")

// Validate checks that both swap percentages are non-negative and leave a non-negative remainder.
func (p AllocationParameters) Validate() error {
	if p.PrimarySwapPercent < 0 || p.SecondarySwapPercent < 0 {
		return fmt.Errorf("%w: negative percentage (%d, %d)", ErrInvalidAllocation, p.PrimarySwapPercent, p.SecondarySwapPercent)
	}
	if p.PrimarySwapPercent+p.SecondarySwapPercent > 100 {
		return fmt.Errorf("%w: swap percentages sum to %d", ErrInvalidAllocation, p.PrimarySwapPercent+p.SecondarySwapPercent)
	}
	return nil
}

// Allocation is the result of splitting one amount.
type Allocation struct {
	Amount   sdkmath.Int `json:"amount"`
	PortionA sdkmath.Int `json:"portion_a"`
	PortionB sdkmath.Int `json:"portion_b"`
	IdleB    sdkmath.Int `json:"idle_b"`    // floor(PortionB / 2), stays in the vault
	SwapB    sdkmath.Int `json:"to_swap_b"` // PortionB - IdleB
	PortionC sdkmath.Int `json:"portion_c"`
}

// Forwarded returns the amount sent out for a leg.
func (a Allocation) Forwarded(leg Leg) sdkmath.Int {
	switch leg {
	case LegPrimarySwap:
		return a.PortionA
	case LegSecondarySwap:
		return a.SwapB
	case LegLending:
		return a.PortionC
	default:
		return sdkmath.ZeroInt()
	}
}

// ForwardResult records a single value-bearing call to a venue.
type ForwardResult struct {
	Leg     Leg            `json:"leg"`
	Venue   common.Address `json:"venue"`
	Token   common.Address `json:"token,omitempty"`
	Amount  sdkmath.Int    `json:"amount"`
	Skipped bool           `json:"skipped,omitempty"` // Zero-valued legs are not sent
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
}

// AllocationKind tells deposits and rebalances apart in reports.
type AllocationKind string

const (
	AllocationDeposit   AllocationKind = "deposit"
	AllocationRebalance AllocationKind = "rebalance"
)

// AllocationReport accumulates the outcome of every forward made during one deposit or rebalance.
type AllocationReport struct {
	Kind         AllocationKind  `json:"kind"`
	Caller       common.Address  `json:"caller"`
	Base         sdkmath.Int     `json:"base"`          // The amount that was split
	SharesMinted sdkmath.Int     `json:"shares_minted"` // Always zero for rebalance
	Allocation   Allocation      `json:"allocation"`
	Forwards     []ForwardResult `json:"forwards"`
	Retained     sdkmath.Int     `json:"retained"` // IdleB plus every failed forward
}

// Failures returns the forwards that were attempted and failed.
func (r AllocationReport) Failures() []ForwardResult {
	var out []ForwardResult
	for _, f := range r.Forwards {
		if !f.Skipped && !f.Success {
			out = append(out, f)
		}
	}
	return out
}

// HasFailures reports whether any forward failed.
func (r AllocationReport) HasFailures() bool {
	return len(r.Failures()) > 0
}

// WithdrawalReport records one redemption.
type WithdrawalReport struct {
	Caller            common.Address `json:"caller"`
	SharesBurned      sdkmath.Int    `json:"shares_burned"`
	TotalSharesBefore sdkmath.Int    `json:"total_shares_before"`
	CustodyBefore     sdkmath.Int    `json:"custody_before"`
	Payout            sdkmath.Int    `json:"payout"`
	Transferred       bool           `json:"transferred"`
	TransferError     string         `json:"transfer_error,omitempty"`
}
