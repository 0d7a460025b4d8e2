// ./internal/state/snapshot_store.go
package state

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/hedgefund/internal/types"
)

// SaveCycleSnapshot saves a complete keeper cycle snapshot to the database.
func SaveCycleSnapshot(ctx context.Context, snapshot types.CycleSnapshot) (int64, error) {
	if DB == nil {
		return 0, ErrDatabaseNotInitialized
	}

	query := `
		INSERT INTO cycle_snapshots (
			cycle_id, cycle_number, snapshot_timestamp, action,
			total_shares, custody_before, custody_after, idle_before, idle_after,
			tx_hash, success, message, failed_legs
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err := DB.QueryRowContext(ctx,
		query,
		snapshot.CycleID, snapshot.CycleNumber, snapshot.Timestamp, string(snapshot.Action),
		amountOrZero(snapshot.TotalShares), amountOrZero(snapshot.CustodyBefore), amountOrZero(snapshot.CustodyAfter),
		amountOrZero(snapshot.IdleBefore), amountOrZero(snapshot.IdleAfter),
		snapshot.TxHash, snapshot.Success, snapshot.Message, snapshot.FailedLegs,
	).Scan(&snapshotID)

	if err != nil {
		return 0, fmt.Errorf("failed to save cycle snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", snapshot.CycleNumber).
		Str("action", string(snapshot.Action)).
		Str("custody_after", amountOrZero(snapshot.CustodyAfter)).
		Msg("Cycle snapshot saved to database")

	return snapshotID, nil
}

func amountOrZero(amount sdkmath.Int) string {
	if amount.IsNil() {
		return "0"
	}
	return amount.String()
}
