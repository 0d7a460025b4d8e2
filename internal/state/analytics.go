package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/hedgefund/internal/types"
)

// ErrCycleNotFound is returned by GetCycleByID for an unknown snapshot.
var ErrCycleNotFound = errors.New("cycle snapshot not found")

// VaultSummary represents high-level vault statistics
type VaultSummary struct {
	TotalShares        string     `json:"total_shares"`
	IdleBalance        string     `json:"idle_balance"`
	HolderCount        int        `json:"holder_count"`
	TotalTransactions  int        `json:"total_transactions"`
	FailedTransactions int        `json:"failed_transactions"`
	TotalCycles        int        `json:"total_cycles"`
	LastCycleAt        *time.Time `json:"last_cycle_at,omitempty"`
}

// KeeperMetrics aggregates keeper cycle outcomes.
type KeeperMetrics struct {
	TotalCycles      int `json:"total_cycles"`
	RebalanceCycles  int `json:"rebalance_cycles"`
	SkippedCycles    int `json:"skipped_cycles"`
	SuccessfulCycles int `json:"successful_cycles"`
	FailedLegs       int `json:"failed_legs"`
}

const cycleColumns = `
	snapshot_id, cycle_id, cycle_number, snapshot_timestamp, action,
	total_shares, custody_before, custody_after, idle_before, idle_after,
	tx_hash, success, message, failed_legs`

func scanCycle(row rowScanner) (types.CycleSnapshot, error) {
	var (
		cycle                              types.CycleSnapshot
		action                             string
		total, custodyBefore, custodyAfter string
		idleBefore, idleAfter              string
		txHash, message                    sql.NullString
	)
	err := row.Scan(
		&cycle.SnapshotID, &cycle.CycleID, &cycle.CycleNumber, &cycle.Timestamp, &action,
		&total, &custodyBefore, &custodyAfter, &idleBefore, &idleAfter,
		&txHash, &cycle.Success, &message, &cycle.FailedLegs,
	)
	if err != nil {
		return cycle, err
	}
	cycle.Action = types.CycleAction(action)
	cycle.TxHash = txHash.String
	cycle.Message = message.String

	if cycle.TotalShares, err = parseStoredAmount("total_shares", total); err != nil {
		return cycle, err
	}
	if cycle.CustodyBefore, err = parseStoredAmount("custody_before", custodyBefore); err != nil {
		return cycle, err
	}
	if cycle.CustodyAfter, err = parseStoredAmount("custody_after", custodyAfter); err != nil {
		return cycle, err
	}
	if cycle.IdleBefore, err = parseStoredAmount("idle_before", idleBefore); err != nil {
		return cycle, err
	}
	if cycle.IdleAfter, err = parseStoredAmount("idle_after", idleAfter); err != nil {
		return cycle, err
	}
	return cycle, nil
}

// GetRecentCycles retrieves recent cycle snapshots with pagination
func GetRecentCycles(ctx context.Context, limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}

	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	rows, err := DB.QueryContext(ctx, `SELECT `+cycleColumns+` FROM cycle_snapshots ORDER BY snapshot_timestamp DESC LIMIT $1`, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent cycles")
		return nil, fmt.Errorf("failed to query recent cycles: %w", err)
	}
	defer rows.Close()

	cycles := make([]types.CycleSnapshot, 0, limit)
	for rows.Next() {
		cycle, err := scanCycle(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan cycle row")
			continue // Skip this row and continue with others
		}
		cycles = append(cycles, cycle)
	}

	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(cycles)).Int("limit", limit).Msg("Retrieved recent cycles")
	return cycles, nil
}

// GetCycleByID retrieves one cycle snapshot.
func GetCycleByID(ctx context.Context, snapshotID int64) (*types.CycleSnapshot, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}
	row := DB.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM cycle_snapshots WHERE snapshot_id = $1`, snapshotID)
	cycle, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrCycleNotFound, snapshotID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cycle %d: %w", snapshotID, err)
	}
	return &cycle, nil
}

// GetVaultSummary aggregates ledger, receipt and cycle tables.
func GetVaultSummary(ctx context.Context) (*VaultSummary, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}

	summary := &VaultSummary{TotalShares: "0", IdleBalance: "0"}
	err := DB.QueryRowContext(ctx, `SELECT total_shares::text, idle_balance::text FROM vault_totals WHERE id = 1`).
		Scan(&summary.TotalShares, &summary.IdleBalance)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query vault totals: %w", err)
	}

	if err := DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM vault_shares`).Scan(&summary.HolderCount); err != nil {
		return nil, fmt.Errorf("failed to count holders: %w", err)
	}

	err = DB.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT success)
		FROM transaction_receipts`).Scan(&summary.TotalTransactions, &summary.FailedTransactions)
	if err != nil {
		return nil, fmt.Errorf("failed to count receipts: %w", err)
	}

	var lastCycle sql.NullTime
	err = DB.QueryRowContext(ctx, `SELECT COUNT(*), MAX(snapshot_timestamp) FROM cycle_snapshots`).Scan(&summary.TotalCycles, &lastCycle)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	if lastCycle.Valid {
		summary.LastCycleAt = &lastCycle.Time
	}

	return summary, nil
}

// GetKeeperMetrics aggregates every recorded keeper cycle.
func GetKeeperMetrics(ctx context.Context) (*KeeperMetrics, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}

	m := &KeeperMetrics{}
	err := DB.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE action = 'REBALANCE'),
			COUNT(*) FILTER (WHERE action = 'SKIP'),
			COUNT(*) FILTER (WHERE success),
			COALESCE(SUM(failed_legs), 0)
		FROM cycle_snapshots`).
		Scan(&m.TotalCycles, &m.RebalanceCycles, &m.SkippedCycles, &m.SuccessfulCycles, &m.FailedLegs)
	if err != nil {
		return nil, fmt.Errorf("failed to query keeper metrics: %w", err)
	}
	return m, nil
}
