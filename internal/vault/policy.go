package vault

import (
	"fmt"
	"strings"

	"github.com/elys-network/hedgefund/internal/types"
)

// FailurePolicy decides what a failed forward or payout does to the surrounding call.
type FailurePolicy string

const (
	// BestEffort keeps failed value in the vault, reports it and lets the call succeed.
	BestEffort FailurePolicy = "best_effort"
	// RevertAll aborts the whole call on the first failed forward or payout.
	RevertAll FailurePolicy = "revert_all"
)

// RebalanceSource decides which balance a rebalance splits.
type RebalanceSource string

const (
	// SourceCustody re-splits the whole custody balance.
	SourceCustody RebalanceSource = "custody"
	// SourceIdle re-splits only the tracked idle balance.
	SourceIdle RebalanceSource = "idle"
)

// Policy groups the tunable behavior of a vault.
type Policy struct {
	Failure         FailurePolicy              `json:"failure_policy"`
	RebalanceSource RebalanceSource            `json:"rebalance_source"`
	Allocation      types.AllocationParameters `json:"allocation"`
}

// DefaultPolicy is best-effort forwarding, custody rebalancing and a 30/30/40 split.
func DefaultPolicy() Policy {
	return Policy{
		Failure:         BestEffort,
		RebalanceSource: SourceCustody,
		Allocation:      types.AllocationParameters{PrimarySwapPercent: 30, SecondarySwapPercent: 30},
	}
}

// Validate checks every field.
func (p Policy) Validate() error {
	if _, err := ParseFailurePolicy(string(p.Failure)); err != nil {
		return err
	}
	if _, err := ParseRebalanceSource(string(p.RebalanceSource)); err != nil {
		return err
	}
	if err := p.Allocation.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	return nil
}

// ParseFailurePolicy accepts best_effort or revert_all, case-insensitively.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case BestEffort:
		return BestEffort, nil
	case RevertAll:
		return RevertAll, nil
	default:
		return "", fmt.Errorf("%w: unknown failure policy %q", ErrInvalidPolicy, s)
	}
}

// ParseRebalanceSource accepts custody or idle, case-insensitively.
func ParseRebalanceSource(s string) (RebalanceSource, error) {
	switch RebalanceSource(strings.ToLower(strings.TrimSpace(s))) {
	case SourceCustody:
		return SourceCustody, nil
	case SourceIdle:
		return SourceIdle, nil
	default:
		return "", fmt.Errorf("%w: unknown rebalance source %q", ErrInvalidPolicy, s)
	}
}
