package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/hedgefund/internal/types"
)

// ErrReceiptNotFound is returned by GetReceipt for an unknown hash.
var ErrReceiptNotFound = errors.New("transaction receipt not found")

// SaveReceipt stores one executed transaction.
func SaveReceipt(ctx context.Context, result types.TransactionResult) error {
	if DB == nil {
		return ErrDatabaseNotInitialized
	}

	eventsJSON, err := json.Marshal(result.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	value := "0"
	if !result.Value.IsNil() {
		value = result.Value.String()
	}

	_, err = DB.ExecContext(ctx, `
		INSERT INTO transaction_receipts (
			tx_hash, nonce, from_address, to_address, value, method,
			success, error_message, return_data, events, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tx_hash) DO NOTHING;`,
		result.TxHash, int64(result.Nonce), result.From.Hex(), result.To.Hex(), value, result.Method,
		result.Success, result.ErrorMessage, []byte(result.ReturnData), eventsJSON, result.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save receipt %s: %w", result.TxHash, err)
	}

	log.Debug().Str("txHash", result.TxHash).Bool("success", result.Success).Msg("Receipt saved")
	return nil
}

const receiptColumns = `tx_hash, nonce, from_address, to_address, value, method, success, error_message, return_data, events, executed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReceipt(row rowScanner) (types.TransactionResult, error) {
	var (
		r            types.TransactionResult
		nonce        int64
		from, to     string
		value        string
		errorMessage sql.NullString
		returnData   []byte
		eventsJSON   []byte
	)
	if err := row.Scan(&r.TxHash, &nonce, &from, &to, &value, &r.Method, &r.Success, &errorMessage, &returnData, &eventsJSON, &r.Timestamp); err != nil {
		return r, err
	}
	r.Nonce = uint64(nonce)
	r.From = common.HexToAddress(from)
	r.To = common.HexToAddress(to)
	r.ErrorMessage = errorMessage.String
	r.ReturnData = returnData

	amount, err := parseStoredAmount("value", value)
	if err != nil {
		return r, err
	}
	r.Value = amount

	if len(eventsJSON) > 0 {
		if err := json.Unmarshal(eventsJSON, &r.Events); err != nil {
			return r, fmt.Errorf("failed to unmarshal events of %s: %w", r.TxHash, err)
		}
	}
	return r, nil
}

// GetReceipt loads one receipt by hash.
func GetReceipt(ctx context.Context, txHash string) (*types.TransactionResult, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}
	row := DB.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM transaction_receipts WHERE tx_hash = $1;`, txHash)
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, txHash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load receipt %s: %w", txHash, err)
	}
	return &r, nil
}

// ListReceipts returns the most recent receipts, newest first.
func ListReceipts(ctx context.Context, limit int) ([]types.TransactionResult, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}
	if limit <= 0 || limit > 100 {
		limit = 20 // Default limit
	}

	rows, err := DB.QueryContext(ctx, `SELECT `+receiptColumns+` FROM transaction_receipts ORDER BY executed_at DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]types.TransactionResult, 0, limit)
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan receipt row")
			continue // Skip this row and continue with others
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during receipt iteration: %w", err)
	}
	return receipts, nil
}
