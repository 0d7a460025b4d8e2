/*

This file implements the in-process execution environment the vault runs in. It owns every
account balance, routes value-bearing calls to deployed contracts, reverts a call's effects
(balances, contract storage, events) when the call fails, and serializes transactions so that
each one runs to completion before the next is accepted.

*/

package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/elys-network/hedgefund/internal/codec"
	"github.com/elys-network/hedgefund/internal/logger"
	"github.com/elys-network/hedgefund/internal/types"
	"github.com/elys-network/hedgefund/internal/utils"
)

// DefaultMaxCallDepth bounds nested sub-calls.
const DefaultMaxCallDepth = 64

// Error definitions for zero-tolerance error handling
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoContract          = errors.New("no contract deployed at address")
	ErrAlreadyDeployed     = errors.New("contract already deployed at address")
	ErrCallDepth           = errors.New("max call depth exceeded")
	ErrInvalidValue        = errors.New("transaction value is invalid")
)

// Contract is code deployed at an address.
type Contract interface {
	Execute(ctx context.Context, frame *Frame) ([]byte, error)
}

// Snapshotter is implemented by contracts with storage that must roll back with a failed call.
type Snapshotter interface {
	Snapshot() interface{}
	Restore(snapshot interface{})
}

// Recorder receives every executed transaction, committed or reverted.
type Recorder interface {
	RecordTransaction(ctx context.Context, result types.TransactionResult) error
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithRecorder attaches a transaction recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Runtime) { r.recorder = rec }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) { r.now = now }
}

// WithMaxCallDepth overrides DefaultMaxCallDepth.
func WithMaxCallDepth(depth int) Option {
	return func(r *Runtime) { r.maxDepth = depth }
}

// Runtime is the execution environment.
type Runtime struct {
	logger zerolog.Logger

	// txMu serializes transactions and read-only calls.
	txMu sync.Mutex

	mu        sync.RWMutex
	balances  map[common.Address]sdkmath.Int
	contracts map[common.Address]Contract
	nonces    map[common.Address]uint64

	recorder Recorder
	now      func() time.Time
	maxDepth int
}

// NewRuntime creates an empty environment.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		logger:    logger.GetForComponent("chain"),
		balances:  make(map[common.Address]sdkmath.Int),
		contracts: make(map[common.Address]Contract),
		nonces:    make(map[common.Address]uint64),
		now:       time.Now,
		maxDepth:  DefaultMaxCallDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Exclusive runs fn while no transaction or call is executing, so fn observes committed state only.
func (r *Runtime) Exclusive(fn func() error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return fn()
}

// SetRecorder attaches a recorder after construction, once its sources exist.
func (r *Runtime) SetRecorder(rec Recorder) {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.recorder = rec
}

// Deploy installs a contract at addr.
func (r *Runtime) Deploy(addr common.Address, c Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.contracts[addr]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyDeployed, addr.Hex())
	}
	r.contracts[addr] = c
	r.logger.Info().Str("address", addr.Hex()).Str("contract", fmt.Sprintf("%T", c)).Msg("Contract deployed")
	return nil
}

// ContractAt returns the contract deployed at addr.
func (r *Runtime) ContractAt(addr common.Address) (Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[addr]
	return c, ok
}

// Fund mints native currency into addr. It is the genesis allocation and dev faucet primitive.
func (r *Runtime) Fund(addr common.Address, amount sdkmath.Int) error {
	if err := utils.ValidateAmount(amount); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := utils.CheckedAdd(r.balanceLocked(addr), amount)
	if err != nil {
		return err
	}
	r.balances[addr] = next
	r.logger.Info().Str("address", addr.Hex()).Str("amount", amount.String()).Msg("Account funded")
	return nil
}

// Balance returns the native-currency balance of addr.
func (r *Runtime) Balance(addr common.Address) sdkmath.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.balanceLocked(addr)
}

// Balances returns a copy of every non-zero balance.
func (r *Runtime) Balances() map[common.Address]sdkmath.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[common.Address]sdkmath.Int, len(r.balances))
	for addr, bal := range r.balances {
		if !bal.IsZero() {
			out[addr] = bal
		}
	}
	return out
}

// RestoreBalances replaces every balance, used when loading persisted state at startup.
func (r *Runtime) RestoreBalances(balances map[common.Address]sdkmath.Int) error {
	for addr, bal := range balances {
		if err := utils.ValidateAmount(bal); err != nil {
			return fmt.Errorf("%w: balance of %s: %w", ErrInvalidValue, addr.Hex(), err)
		}
	}
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances = make(map[common.Address]sdkmath.Int, len(balances))
	for addr, bal := range balances {
		r.balances[addr] = bal
	}
	return nil
}

// Nonce returns the number of transactions sent from addr.
func (r *Runtime) Nonce(addr common.Address) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nonces[addr]
}

// SendTransaction executes tx atomically. The returned result is non-nil whenever the
// transaction was executed; a failed execution also returns the cause as an error.
func (r *Runtime) SendTransaction(ctx context.Context, tx types.Transaction) (*types.TransactionResult, error) {
	if tx.Value.IsNil() {
		tx.Value = sdkmath.ZeroInt()
	}
	if err := utils.ValidateAmount(tx.Value); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}

	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	nonce := r.nonces[tx.From]
	r.nonces[tx.From] = nonce + 1
	r.mu.Unlock()

	j := &txJournal{}
	out, err := r.execute(ctx, tx.From, tx.To, tx.Value, tx.Data, 0, false, j)

	result := &types.TransactionResult{
		TxHash:     transactionHash(tx, nonce).Hex(),
		Nonce:      nonce,
		From:       tx.From,
		To:         tx.To,
		Value:      tx.Value,
		Method:     methodName(tx.Data),
		Success:    err == nil,
		ReturnData: out,
		Events:     j.events,
		Timestamp:  r.now().UTC(),
	}
	if err != nil {
		result.ErrorMessage = err.Error()
		result.Events = nil
	} else {
		for _, fn := range j.onCommit {
			fn()
		}
	}

	logEvent := r.logger.Info()
	if err != nil {
		logEvent = r.logger.Warn().Err(err)
	}
	logEvent.
		Str("txHash", result.TxHash).
		Str("from", tx.From.Hex()).
		Str("to", tx.To.Hex()).
		Str("method", result.Method).
		Str("value", tx.Value.String()).
		Int("events", len(result.Events)).
		Msg("Transaction executed")

	if r.recorder != nil {
		if recErr := r.recorder.RecordTransaction(ctx, *result); recErr != nil {
			r.logger.Error().Err(recErr).Str("txHash", result.TxHash).Msg("Failed to record transaction")
		}
	}

	if err != nil {
		return result, err
	}
	return result, nil
}

// Call simulates a transaction the way eth_call does: it runs in full, value moves included,
// and every effect is discarded afterwards. Commit hooks never run and no nonce is consumed.
func (r *Runtime) Call(ctx context.Context, from, to common.Address, data []byte) ([]byte, error) {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	snap := r.snapshot(nil)
	defer r.revert(snap, nil)

	return r.execute(ctx, from, to, sdkmath.ZeroInt(), data, 0, true, &txJournal{})
}

// execute runs one call frame. On error every effect of the frame is reverted.
func (r *Runtime) execute(ctx context.Context, from, to common.Address, value sdkmath.Int, data []byte, depth int, simulated bool, journal *txJournal) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if depth > r.maxDepth {
		return nil, fmt.Errorf("%w: %d", ErrCallDepth, depth)
	}
	snap := r.snapshot(journal)
	if err := r.move(from, to, value); err != nil {
		return nil, err
	}

	contract, ok := r.ContractAt(to)
	if !ok {
		if len(data) > 0 {
			r.revert(snap, journal)
			return nil, fmt.Errorf("%w: %s", ErrNoContract, to.Hex())
		}
		return nil, nil
	}

	frame := &Frame{
		rt:       r,
		self:     to,
		caller:   from,
		value:    value,
		input:    data,
		depth:     depth,
		simulated: simulated,
		journal:   journal,
	}
	out, err := contract.Execute(ctx, frame)
	if err != nil {
		r.revert(snap, journal)
		return nil, err
	}
	return out, nil
}

// move transfers value between accounts.
func (r *Runtime) move(from, to common.Address, value sdkmath.Int) error {
	if value.IsNil() || value.IsZero() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	fromBal := r.balanceLocked(from)
	if fromBal.LT(value) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBal, value)
	}
	toBal, err := utils.CheckedAdd(r.balanceLocked(to), value)
	if err != nil {
		return err
	}
	r.balances[from] = fromBal.Sub(value)
	r.balances[to] = toBal
	return nil
}

func (r *Runtime) balanceLocked(addr common.Address) sdkmath.Int {
	if bal, ok := r.balances[addr]; ok {
		return bal
	}
	return sdkmath.ZeroInt()
}

// worldSnapshot is everything a failed call frame rolls back.
type worldSnapshot struct {
	balances  map[common.Address]sdkmath.Int
	contracts map[common.Address]interface{}
	events    int
	hooks     int
}

func (r *Runtime) snapshot(journal *txJournal) worldSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := worldSnapshot{
		balances:  make(map[common.Address]sdkmath.Int, len(r.balances)),
		contracts: make(map[common.Address]interface{}),
	}
	for addr, bal := range r.balances {
		snap.balances[addr] = bal
	}
	for addr, c := range r.contracts {
		if s, ok := c.(Snapshotter); ok {
			snap.contracts[addr] = s.Snapshot()
		}
	}
	if journal != nil {
		snap.events = len(journal.events)
		snap.hooks = len(journal.onCommit)
	}
	return snap
}

func (r *Runtime) revert(snap worldSnapshot, journal *txJournal) {
	r.mu.Lock()
	r.balances = snap.balances
	contracts := make(map[common.Address]Contract, len(r.contracts))
	for addr, c := range r.contracts {
		contracts[addr] = c
	}
	r.mu.Unlock()

	for addr, state := range snap.contracts {
		if s, ok := contracts[addr].(Snapshotter); ok {
			s.Restore(state)
		}
	}
	if journal != nil {
		journal.truncate(snap.events, snap.hooks)
	}
}

// transactionHash is keccak256(from | nonce | to | value | data).
func transactionHash(tx types.Transaction, nonce uint64) common.Hash {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	value := common.LeftPadBytes(tx.Value.BigInt().Bytes(), 32)
	return crypto.Keccak256Hash(tx.From.Bytes(), nonceBytes[:], tx.To.Bytes(), value, tx.Data)
}

func methodName(data []byte) string {
	if len(data) == 0 {
		return "transfer"
	}
	if name := codec.Vault.MethodName(data); name != "" {
		return name
	}
	if name := codec.Venue.MethodName(data); name != "" {
		return name
	}
	return "unknown"
}
