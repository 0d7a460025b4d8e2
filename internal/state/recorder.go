package state

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/hedgefund/internal/types"
)

// LedgerSource provides the ledger to persist.
type LedgerSource interface {
	State() types.LedgerState
}

// BalanceSource provides the account balances to persist. Exclusive runs fn while no
// transaction is executing.
type BalanceSource interface {
	Balances() map[common.Address]sdkmath.Int
	Exclusive(fn func() error) error
}

// Recorder persists every executed transaction and, after committed ones, the resulting
// ledger and balances.
type Recorder struct {
	ledger   LedgerSource
	balances BalanceSource
}

// NewRecorder creates a recorder over the given sources.
func NewRecorder(ledger LedgerSource, balances BalanceSource) *Recorder {
	return &Recorder{ledger: ledger, balances: balances}
}

// RecordTransaction saves the receipt, then the state if the transaction committed. The runtime
// calls it while still holding the transaction lock.
func (r *Recorder) RecordTransaction(ctx context.Context, result types.TransactionResult) error {
	if err := SaveReceipt(ctx, result); err != nil {
		return err
	}
	if !result.Success {
		return nil
	}
	return r.persist(ctx)
}

// Persist saves the current ledger and balances once no transaction is in flight.
func (r *Recorder) Persist(ctx context.Context) error {
	return r.balances.Exclusive(func() error { return r.persist(ctx) })
}

func (r *Recorder) persist(ctx context.Context) error {
	if err := SaveLedger(ctx, r.ledger.State(), r.balances.Balances()); err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}
	return nil
}
