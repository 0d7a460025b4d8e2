// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// ErrDatabaseNotInitialized is returned by every store function called before InitDB.
var ErrDatabaseNotInitialized = errors.New("database not initialized")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// Tables lists every table owned by the node, in drop order.
var Tables = []string{
	"transaction_receipts",
	"cycle_snapshots",
	"cycle_counter",
	"vault_policy",
	"vault_shares",
	"account_balances",
	"vault_totals",
	"vault_config",
}

// schemaSQL creates every table. Amounts are uint256 values stored as NUMERIC(78, 0).
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS vault_config (
		id INTEGER PRIMARY KEY DEFAULT 1,
		initialized BOOLEAN NOT NULL DEFAULT FALSE,
		swap_venue_primary VARCHAR(42) NOT NULL,
		swap_venue_secondary VARCHAR(42) NOT NULL,
		lending_venue VARCHAR(42) NOT NULL,
		token_a VARCHAR(42) NOT NULL,
		token_b VARCHAR(42) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT vault_config_single_row CHECK (id = 1)
	);

	CREATE TABLE IF NOT EXISTS vault_totals (
		id INTEGER PRIMARY KEY DEFAULT 1,
		total_shares NUMERIC(78, 0) NOT NULL DEFAULT 0,
		idle_balance NUMERIC(78, 0) NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT vault_totals_single_row CHECK (id = 1)
	);

	CREATE TABLE IF NOT EXISTS vault_shares (
		owner VARCHAR(42) PRIMARY KEY,
		shares NUMERIC(78, 0) NOT NULL CHECK (shares > 0)
	);

	CREATE TABLE IF NOT EXISTS account_balances (
		address VARCHAR(42) PRIMARY KEY,
		balance NUMERIC(78, 0) NOT NULL CHECK (balance >= 0)
	);

	CREATE TABLE IF NOT EXISTS vault_policy (
		policy_id SERIAL PRIMARY KEY,
		failure_policy VARCHAR(32) NOT NULL,
		rebalance_source VARCHAR(32) NOT NULL,
		primary_swap_percent INTEGER NOT NULL,
		secondary_swap_percent INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_vault_policy_active ON vault_policy(is_active, activated_at DESC);

	CREATE TABLE IF NOT EXISTS transaction_receipts (
		tx_hash VARCHAR(66) PRIMARY KEY,
		nonce BIGINT NOT NULL,
		from_address VARCHAR(42) NOT NULL,
		to_address VARCHAR(42) NOT NULL,
		value NUMERIC(78, 0) NOT NULL,
		method VARCHAR(64) NOT NULL,
		success BOOLEAN NOT NULL,
		error_message TEXT,
		return_data BYTEA,
		events JSONB,
		executed_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transaction_receipts_executed ON transaction_receipts(executed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transaction_receipts_from ON transaction_receipts(from_address);

	CREATE TABLE IF NOT EXISTS cycle_snapshots (
		snapshot_id SERIAL PRIMARY KEY,
		cycle_id UUID NOT NULL,
		cycle_number INTEGER NOT NULL,
		snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		action VARCHAR(16) NOT NULL,
		total_shares NUMERIC(78, 0) NOT NULL,
		custody_before NUMERIC(78, 0) NOT NULL,
		custody_after NUMERIC(78, 0) NOT NULL,
		idle_before NUMERIC(78, 0) NOT NULL,
		idle_after NUMERIC(78, 0) NOT NULL,
		tx_hash VARCHAR(66),
		success BOOLEAN NOT NULL,
		message TEXT,
		failed_legs INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_timestamp ON cycle_snapshots(snapshot_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_cycle ON cycle_snapshots(cycle_number DESC);

	-- Cycle counter table for persistent global cycle tracking
	CREATE TABLE IF NOT EXISTS cycle_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	-- Insert initial row if it doesn't exist
	INSERT INTO cycle_counter (id, current_cycle)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrDatabaseNotInitialized
	}
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every table owned by the node.
func DropSchema() error {
	if DB == nil {
		return ErrDatabaseNotInitialized
	}
	for _, table := range Tables {
		if _, err := DB.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		log.Info().Str("table", table).Msg("Dropped table")
	}
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return ErrDatabaseNotInitialized
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
