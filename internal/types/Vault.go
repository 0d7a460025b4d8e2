/*

This file contains the types for the vault ledger: its write-once configuration, the share ledger
state that is snapshotted and persisted, and the read-only query views.

*/

package types

import (
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// VaultConfig holds the collaborator addresses set once by initialize.
type VaultConfig struct {
	SwapVenuePrimary   common.Address `json:"swap_venue_primary"`   // Receives portion A (token A leg)
	SwapVenueSecondary common.Address `json:"swap_venue_secondary"` // Receives the swapped half of portion B (token B leg)
	LendingVenue       common.Address `json:"lending_venue"`        // Receives portion C
	TokenA             common.Address `json:"token_a_id"`           // Metadata only
	TokenB             common.Address `json:"token_b_id"`           // Metadata only
}

// VenueFor returns the configured venue for a leg.
func (c VaultConfig) VenueFor(leg Leg) common.Address {
	switch leg {
	case LegPrimarySwap:
		return c.SwapVenuePrimary
	case LegSecondarySwap:
		return c.SwapVenueSecondary
	case LegLending:
		return c.LendingVenue
	default:
		return common.Address{}
	}
}

// TokenFor returns the token identifier associated with a swap leg, zero for the lending leg.
func (c VaultConfig) TokenFor(leg Leg) common.Address {
	switch leg {
	case LegPrimarySwap:
		return c.TokenA
	case LegSecondarySwap:
		return c.TokenB
	default:
		return common.Address{}
	}
}

// LedgerState is the complete mutable state of a vault ledger.
type LedgerState struct {
	Initialized bool                           `json:"initialized"`
	Config      VaultConfig                    `json:"config"`
	TotalShares sdkmath.Int                    `json:"total_shares"`
	IdleBalance sdkmath.Int                    `json:"idle_balance"` // Currency deliberately kept by the vault
	Shares      map[common.Address]sdkmath.Int `json:"shares"`       // Zero balances are absent
}

// NewLedgerState returns an empty, uninitialized ledger.
func NewLedgerState() LedgerState {
	return LedgerState{
		TotalShares: sdkmath.ZeroInt(),
		IdleBalance: sdkmath.ZeroInt(),
		Shares:      make(map[common.Address]sdkmath.Int),
	}
}

// Clone returns a deep copy; the share map is not shared with the receiver.
func (s LedgerState) Clone() LedgerState {
	out := s
	out.Shares = make(map[common.Address]sdkmath.Int, len(s.Shares))
	for owner, bal := range s.Shares {
		out.Shares[owner] = bal
	}
	return out
}

// SumShares adds every owner balance.
func (s LedgerState) SumShares() sdkmath.Int {
	sum := sdkmath.ZeroInt()
	for _, bal := range s.Shares {
		sum = sum.Add(bal)
	}
	return sum
}

// UserInfo is the get_user_info view.
type UserInfo struct {
	Address     common.Address `json:"address"`
	Shares      sdkmath.Int    `json:"shares"`
	TotalShares sdkmath.Int    `json:"total_shares"`
}

func (u UserInfo) String() string {
	return fmt.Sprintf("User: %s, Shares: %s, totalSupply: %s", strings.ToLower(u.Address.Hex()), u.Shares, u.TotalShares)
}

// AgentInvests is the get_agent_invests view.
type AgentInvests struct {
	TotalShares    sdkmath.Int `json:"total_shares"`
	CustodyBalance sdkmath.Int `json:"custody_balance"`
	IdleBalance    sdkmath.Int `json:"idle_balance"`
}

func (a AgentInvests) String() string {
	return fmt.Sprintf("Total Shares: %s, Contract ETH: %s", a.TotalShares, a.CustodyBalance)
}
