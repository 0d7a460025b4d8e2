/*

This file persists the vault ledger and the runtime's account balances. Both are written in a single
database transaction after every committed chain transaction, so a restarted node resumes from a
state where custody and shares agree.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/hedgefund/internal/types"
	"github.com/elys-network/hedgefund/internal/utils"
)

// ErrLedgerNotFound is returned by LoadLedger on an empty database.
var ErrLedgerNotFound = errors.New("no persisted ledger")

// SaveLedger replaces the persisted ledger and balances.
func SaveLedger(ctx context.Context, ledger types.LedgerState, balances map[common.Address]sdkmath.Int) error {
	if DB == nil {
		return ErrDatabaseNotInitialized
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback() // Rollback on error, no-op after commit

	cfg := ledger.Config
	_, err = tx.ExecContext(ctx, `
		INSERT INTO vault_config (id, initialized, swap_venue_primary, swap_venue_secondary, lending_venue, token_a, token_b, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			initialized = EXCLUDED.initialized,
			swap_venue_primary = EXCLUDED.swap_venue_primary,
			swap_venue_secondary = EXCLUDED.swap_venue_secondary,
			lending_venue = EXCLUDED.lending_venue,
			token_a = EXCLUDED.token_a,
			token_b = EXCLUDED.token_b,
			updated_at = CURRENT_TIMESTAMP;`,
		ledger.Initialized, cfg.SwapVenuePrimary.Hex(), cfg.SwapVenueSecondary.Hex(), cfg.LendingVenue.Hex(),
		cfg.TokenA.Hex(), cfg.TokenB.Hex())
	if err != nil {
		return fmt.Errorf("failed to save vault config: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vault_totals (id, total_shares, idle_balance, updated_at)
		VALUES (1, $1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			total_shares = EXCLUDED.total_shares,
			idle_balance = EXCLUDED.idle_balance,
			updated_at = CURRENT_TIMESTAMP;`,
		ledger.TotalShares.String(), ledger.IdleBalance.String())
	if err != nil {
		return fmt.Errorf("failed to save vault totals: %w", err)
	}

	if err := replaceAmounts(ctx, tx, "vault_shares", "owner", "shares", ledger.Shares); err != nil {
		return err
	}
	if err := replaceAmounts(ctx, tx, "account_balances", "address", "balance", balances); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger transaction: %w", err)
	}

	log.Debug().
		Str("totalShares", ledger.TotalShares.String()).
		Int("holders", len(ledger.Shares)).
		Int("accounts", len(balances)).
		Msg("Ledger persisted")
	return nil
}

// replaceAmounts rewrites an address -> amount table with one bulk insert.
func replaceAmounts(ctx context.Context, tx *sql.Tx, table, keyColumn, valueColumn string, amounts map[common.Address]sdkmath.Int) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s;", table)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if len(amounts) == 0 {
		return nil
	}

	keys := make([]string, 0, len(amounts))
	values := make([]string, 0, len(amounts))
	for addr, amount := range amounts {
		if amount.IsZero() {
			continue
		}
		keys = append(keys, addr.Hex())
		values = append(values, amount.String())
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s, %s) SELECT * FROM unnest($1::varchar[], $2::numeric[]);`, table, keyColumn, valueColumn)
	if _, err := tx.ExecContext(ctx, query, pq.Array(keys), pq.Array(values)); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// LoadLedger reads the persisted ledger and balances. It returns ErrLedgerNotFound when nothing
// has been saved yet.
func LoadLedger(ctx context.Context) (types.LedgerState, map[common.Address]sdkmath.Int, error) {
	ledger := types.NewLedgerState()
	if DB == nil {
		return ledger, nil, ErrDatabaseNotInitialized
	}

	var primary, secondary, lending, tokenA, tokenB string
	err := DB.QueryRowContext(ctx, `
		SELECT initialized, swap_venue_primary, swap_venue_secondary, lending_venue, token_a, token_b
		FROM vault_config WHERE id = 1;`).
		Scan(&ledger.Initialized, &primary, &secondary, &lending, &tokenA, &tokenB)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger, nil, ErrLedgerNotFound
	}
	if err != nil {
		return ledger, nil, fmt.Errorf("failed to load vault config: %w", err)
	}
	ledger.Config = types.VaultConfig{
		SwapVenuePrimary:   common.HexToAddress(primary),
		SwapVenueSecondary: common.HexToAddress(secondary),
		LendingVenue:       common.HexToAddress(lending),
		TokenA:             common.HexToAddress(tokenA),
		TokenB:             common.HexToAddress(tokenB),
	}

	var totalStr, idleStr string
	err = DB.QueryRowContext(ctx, `SELECT total_shares, idle_balance FROM vault_totals WHERE id = 1;`).Scan(&totalStr, &idleStr)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ledger, nil, fmt.Errorf("failed to load vault totals: %w", err)
	}
	if err == nil {
		if ledger.TotalShares, err = parseStoredAmount("total_shares", totalStr); err != nil {
			return ledger, nil, err
		}
		if ledger.IdleBalance, err = parseStoredAmount("idle_balance", idleStr); err != nil {
			return ledger, nil, err
		}
	}

	if ledger.Shares, err = loadAmounts(ctx, "vault_shares", "owner", "shares"); err != nil {
		return ledger, nil, err
	}
	balances, err := loadAmounts(ctx, "account_balances", "address", "balance")
	if err != nil {
		return ledger, nil, err
	}

	log.Info().
		Bool("initialized", ledger.Initialized).
		Str("totalShares", ledger.TotalShares.String()).
		Int("holders", len(ledger.Shares)).
		Int("accounts", len(balances)).
		Msg("Ledger loaded from database")
	return ledger, balances, nil
}

func loadAmounts(ctx context.Context, table, keyColumn, valueColumn string) (map[common.Address]sdkmath.Int, error) {
	rows, err := DB.QueryContext(ctx, fmt.Sprintf("SELECT %s, %s FROM %s;", keyColumn, valueColumn, table))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[common.Address]sdkmath.Int)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		amount, err := parseStoredAmount(table, value)
		if err != nil {
			return nil, err
		}
		out[common.HexToAddress(key)] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during %s iteration: %w", table, err)
	}
	return out, nil
}

func parseStoredAmount(column, value string) (sdkmath.Int, error) {
	amount, err := utils.ParseAmount(value)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("invalid stored %s %q: %w", column, value, err)
	}
	return amount, nil
}
