// ./internal/state/policy_store.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/hedgefund/internal/types"
	"github.com/elys-network/hedgefund/internal/vault"
)

// ErrNoActivePolicy is returned when no policy has been saved yet.
var ErrNoActivePolicy = errors.New("no active vault policy")

// SavePolicy records a new policy version. With makeActive every earlier version is deactivated.
func SavePolicy(ctx context.Context, policy vault.Policy, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, ErrDatabaseNotInitialized
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback on error, no-op after commit

	if makeActive {
		if _, err = tx.ExecContext(ctx, `UPDATE vault_policy SET is_active = FALSE WHERE is_active = TRUE;`); err != nil {
			return 0, fmt.Errorf("failed to deactivate existing policy: %w", err)
		}
	}

	var policyID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO vault_policy (failure_policy, rebalance_source, primary_swap_percent, secondary_swap_percent, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING policy_id;`,
		string(policy.Failure), string(policy.RebalanceSource),
		policy.Allocation.PrimarySwapPercent, policy.Allocation.SecondarySwapPercent, makeActive,
	).Scan(&policyID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert vault policy: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int64("policy_id", policyID).
		Str("failure", string(policy.Failure)).
		Str("source", string(policy.RebalanceSource)).
		Bool("active", makeActive).
		Msg("Saved vault policy")
	return policyID, nil
}

// LoadActivePolicy returns the most recently activated policy.
func LoadActivePolicy(ctx context.Context) (*vault.Policy, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}

	var failure, source string
	var alloc types.AllocationParameters
	err := DB.QueryRowContext(ctx, `
		SELECT failure_policy, rebalance_source, primary_swap_percent, secondary_swap_percent
		FROM vault_policy
		WHERE is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`).Scan(&failure, &source, &alloc.PrimarySwapPercent, &alloc.SecondarySwapPercent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActivePolicy
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active vault policy: %w", err)
	}

	policy := vault.Policy{
		Failure:         vault.FailurePolicy(failure),
		RebalanceSource: vault.RebalanceSource(source),
		Allocation:      alloc,
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("stored policy is invalid: %w", err)
	}
	log.Info().Str("failure", failure).Str("source", source).Msg("Loaded active vault policy")
	return &policy, nil
}

// ReconcilePolicy activates configured if it differs from the stored active policy. The split
// percentages of a vault with holders must never change, so a stored allocation that differs from
// the configured one is an error.
func ReconcilePolicy(ctx context.Context, configured vault.Policy, hasHolders bool) error {
	stored, err := LoadActivePolicy(ctx)
	if errors.Is(err, ErrNoActivePolicy) {
		_, err = SavePolicy(ctx, configured, true)
		return err
	}
	if err != nil {
		return err
	}
	if *stored == configured {
		return nil
	}
	if hasHolders && stored.Allocation != configured.Allocation {
		return fmt.Errorf("%w: stored split %d/%d differs from configured %d/%d",
			vault.ErrInvalidPolicy,
			stored.Allocation.PrimarySwapPercent, stored.Allocation.SecondarySwapPercent,
			configured.Allocation.PrimarySwapPercent, configured.Allocation.SecondarySwapPercent)
	}
	log.Warn().
		Str("storedFailure", string(stored.Failure)).
		Str("configuredFailure", string(configured.Failure)).
		Str("storedSource", string(stored.RebalanceSource)).
		Str("configuredSource", string(configured.RebalanceSource)).
		Msg("Configured vault policy differs from stored policy, activating configured policy")
	_, err = SavePolicy(ctx, configured, true)
	return err
}
