/*

This file implements the vault ledger: a pooled fund of native currency where every unit deposited
mints one share, each contribution is split across three fixed sub-strategies, and shares are
redeemed pro rata against whatever the vault currently holds in custody.

Every state-changing entry point follows checks-effects-interactions: the ledger is validated and
updated under the mutex, the mutex is released, and only then are external calls made. A guard flag
rejects any state-changing call that arrives while another one is still in flight.

*/

package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/elys-network/hedgefund/internal/logger"
	"github.com/elys-network/hedgefund/internal/types"
	"github.com/elys-network/hedgefund/internal/utils"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrAlreadyInitialized = errors.New("vault already initialized")
	ErrNotInitialized     = errors.New("vault not initialized")
	ErrZeroAmount         = errors.New("amount must be greater than zero")
	ErrReentrantCall      = errors.New("reentrant call")
	ErrAllocationFailed   = errors.New("allocation forward failed")
	ErrTransferFailed     = errors.New("payout transfer failed")
	ErrInvalidConfig      = errors.New("vault configuration is invalid")
	ErrInvalidPolicy      = errors.New("vault policy is invalid")
	ErrInvariantViolation = errors.New("ledger invariant violated")
)

// Environment is what the vault needs from the chain it runs on. The custody balance is
// Balance(Self()); the vault never tracks it itself.
type Environment interface {
	Self() common.Address
	Balance(addr common.Address) sdkmath.Int
	Call(ctx context.Context, to common.Address, value sdkmath.Int, data []byte) ([]byte, error)
	Transfer(ctx context.Context, to common.Address, value sdkmath.Int) error
	Emit(ev types.Event)
	// OnCommit defers fn until the enclosing transaction commits.
	OnCommit(fn func())
}

// Observer is notified of every committed allocation and withdrawal.
type Observer interface {
	ObserveAllocation(report types.AllocationReport)
	ObserveWithdrawal(report types.WithdrawalReport)
}

// Option configures a Vault.
type Option func(*Vault)

// WithObserver attaches an observer.
func WithObserver(o Observer) Option {
	return func(v *Vault) { v.observer = o }
}

// Vault is one ledger instance.
type Vault struct {
	logger   zerolog.Logger
	policy   Policy
	observer Observer

	entered atomic.Bool

	mu    sync.RWMutex
	state types.LedgerState
}

// New creates an uninitialized vault.
func New(policy Policy, opts ...Option) (*Vault, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	v := &Vault{
		logger: logger.GetForComponent("vault"),
		policy: policy,
		state:  types.NewLedgerState(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Policy returns the configured policy.
func (v *Vault) Policy() Policy { return v.policy }

func (v *Vault) enter() error {
	if !v.entered.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (v *Vault) exit() { v.entered.Store(false) }

// Initialize stores the collaborator configuration. It succeeds exactly once.
func (v *Vault) Initialize(ctx context.Context, env Environment, caller common.Address, cfg types.VaultConfig) error {
	if err := v.enter(); err != nil {
		return err
	}
	defer v.exit()

	v.mu.Lock()
	if v.state.Initialized {
		v.mu.Unlock()
		return ErrAlreadyInitialized
	}
	if err := validateConfig(cfg); err != nil {
		v.mu.Unlock()
		return err
	}
	v.state.Config = cfg
	v.state.Initialized = true
	v.mu.Unlock()

	env.Emit(types.Event{Kind: types.EventInitialized, Account: caller})
	env.OnCommit(func() {
		v.logger.Info().
			Str("caller", caller.Hex()).
			Str("swapPrimary", cfg.SwapVenuePrimary.Hex()).
			Str("swapSecondary", cfg.SwapVenueSecondary.Hex()).
			Str("lending", cfg.LendingVenue.Hex()).
			Msg("Vault initialized")
	})
	return nil
}

func validateConfig(cfg types.VaultConfig) error {
	for _, leg := range types.Legs {
		if cfg.VenueFor(leg) == (common.Address{}) {
			return fmt.Errorf("%w: %s venue is the zero address", ErrInvalidConfig, leg)
		}
	}
	return nil
}

// Deposit mints amount shares to caller and splits amount across the venues. The currency is
// expected to already be in custody when Deposit runs.
func (v *Vault) Deposit(ctx context.Context, env Environment, caller common.Address, amount sdkmath.Int) (*types.AllocationReport, error) {
	if err := v.enter(); err != nil {
		return nil, err
	}
	defer v.exit()

	if err := validatePositive(amount); err != nil {
		return nil, err
	}

	v.mu.Lock()
	if !v.state.Initialized {
		v.mu.Unlock()
		return nil, ErrNotInitialized
	}
	alloc, err := Split(amount, v.policy.Allocation)
	if err != nil {
		v.mu.Unlock()
		return nil, err
	}
	newBalance, err := utils.CheckedAdd(v.sharesOf(caller), amount)
	if err != nil {
		v.mu.Unlock()
		return nil, err
	}
	newTotal, err := utils.CheckedAdd(v.state.TotalShares, amount)
	if err != nil {
		v.mu.Unlock()
		return nil, err
	}
	newIdle, err := utils.CheckedAdd(v.state.IdleBalance, alloc.IdleB)
	if err != nil {
		v.mu.Unlock()
		return nil, err
	}
	before := v.state.Clone()
	v.state.Shares[caller] = newBalance
	v.state.TotalShares = newTotal
	v.state.IdleBalance = newIdle
	cfg := v.state.Config
	v.mu.Unlock()

	env.Emit(types.Event{Kind: types.EventDeposited, Account: caller, Amount: amount, Shares: amount})

	report := &types.AllocationReport{
		Kind:         types.AllocationDeposit,
		Caller:       caller,
		Base:         amount,
		SharesMinted: amount,
		Allocation:   alloc,
	}
	if err := v.allocate(ctx, env, cfg, report, before); err != nil {
		return report, err
	}

	env.OnCommit(func() {
		v.logger.Info().
			Str("caller", caller.Hex()).
			Str("amount", amount.String()).
			Str("shares", amount.String()).
			Str("retained", report.Retained.String()).
			Int("failedForwards", len(report.Failures())).
			Msg("Deposit processed")
	})
	return report, nil
}

// Withdraw burns shareAmount of caller's shares and pays out the pro-rata part of custody.
func (v *Vault) Withdraw(ctx context.Context, env Environment, caller common.Address, shareAmount sdkmath.Int) (*types.WithdrawalReport, error) {
	if err := v.enter(); err != nil {
		return nil, err
	}
	defer v.exit()

	if err := validatePositive(shareAmount); err != nil {
		return nil, err
	}

	v.mu.Lock()
	balance := v.sharesOf(caller)
	if balance.LT(shareAmount) {
		v.mu.Unlock()
		return nil, fmt.Errorf("%w: %s holds %s, requested %s", ErrInsufficientShares, caller.Hex(), balance, shareAmount)
	}
	totalBefore := v.state.TotalShares
	custody := env.Balance(env.Self())
	payout, err := Payout(custody, shareAmount, totalBefore)
	if err != nil {
		v.mu.Unlock()
		return nil, err
	}
	before := v.state.Clone()
	remaining := balance.Sub(shareAmount)
	if remaining.IsZero() {
		delete(v.state.Shares, caller)
	} else {
		v.state.Shares[caller] = remaining
	}
	v.state.TotalShares = totalBefore.Sub(shareAmount)
	v.state.IdleBalance = sdkmath.MinInt(v.state.IdleBalance, custody.Sub(payout))
	v.mu.Unlock()

	report := &types.WithdrawalReport{
		Caller:            caller,
		SharesBurned:      shareAmount,
		TotalSharesBefore: totalBefore,
		CustodyBefore:     custody,
		Payout:            payout,
	}
	env.Emit(types.Event{Kind: types.EventWithdrawn, Account: caller, Amount: payout, Shares: shareAmount})

	if payout.IsPositive() {
		if err := env.Transfer(ctx, caller, payout); err != nil {
			report.TransferError = err.Error()
			if v.policy.Failure == RevertAll {
				v.restore(before)
				return report, fmt.Errorf("%w: %s to %s: %w", ErrTransferFailed, payout, caller.Hex(), err)
			}
			env.Emit(types.Event{Kind: types.EventPayoutFailed, Account: caller, Amount: payout, Error: err.Error()})
		} else {
			report.Transferred = true
		}
	}

	committed := *report
	env.OnCommit(func() {
		if committed.TransferError != "" {
			v.logger.Warn().
				Str("error", committed.TransferError).
				Str("caller", caller.Hex()).
				Str("payout", payout.String()).
				Msg("Payout transfer failed, shares stay burned")
		}
		if v.observer != nil {
			v.observer.ObserveWithdrawal(committed)
		}
		v.logger.Info().
			Str("caller", caller.Hex()).
			Str("shares", shareAmount.String()).
			Str("payout", payout.String()).
			Str("totalShares", totalBefore.Sub(shareAmount).String()).
			Msg("Withdrawal processed")
	})
	return report, nil
}

// Rebalance re-applies the split to the rebalance base without minting. Anyone may call it.
// A zero base is a successful no-op.
func (v *Vault) Rebalance(ctx context.Context, env Environment, caller common.Address) (*types.AllocationReport, error) {
	if err := v.enter(); err != nil {
		return nil, err
	}
	defer v.exit()

	v.mu.Lock()
	if !v.state.Initialized {
		v.mu.Unlock()
		return nil, ErrNotInitialized
	}
	custody := env.Balance(env.Self())
	base := custody
	if v.policy.RebalanceSource == SourceIdle {
		base = sdkmath.MinInt(v.state.IdleBalance, custody)
	}
	report := &types.AllocationReport{
		Kind:         types.AllocationRebalance,
		Caller:       caller,
		Base:         base,
		SharesMinted: sdkmath.ZeroInt(),
		Retained:     sdkmath.ZeroInt(),
	}
	if base.IsZero() {
		v.mu.Unlock()
		v.logger.Debug().Str("caller", caller.Hex()).Msg("Rebalance skipped, nothing to allocate")
		return report, nil
	}
	alloc, err := Split(base, v.policy.Allocation)
	if err != nil {
		v.mu.Unlock()
		return nil, err
	}
	before := v.state.Clone()
	v.state.IdleBalance = sdkmath.MaxInt(v.state.IdleBalance.Sub(base), sdkmath.ZeroInt()).Add(alloc.IdleB)
	cfg := v.state.Config
	v.mu.Unlock()

	report.Allocation = alloc
	env.Emit(types.Event{Kind: types.EventRebalanced, Account: caller, Amount: base})

	if err := v.allocate(ctx, env, cfg, report, before); err != nil {
		return report, err
	}

	env.OnCommit(func() {
		v.logger.Info().
			Str("caller", caller.Hex()).
			Str("base", base.String()).
			Str("custody", custody.String()).
			Str("retained", report.Retained.String()).
			Int("failedForwards", len(report.Failures())).
			Msg("Rebalance processed")
	})
	return report, nil
}

// allocate forwards every leg of report.Allocation and settles the idle counter. Under RevertAll a
// failed forward restores the ledger to before and returns ErrAllocationFailed.
func (v *Vault) allocate(ctx context.Context, env Environment, cfg types.VaultConfig, report *types.AllocationReport, before types.LedgerState) error {
	report.Forwards = forwardAll(ctx, env, cfg, report.Allocation)

	failed := sdkmath.ZeroInt()
	for _, f := range report.Failures() {
		failed = failed.Add(f.Amount)
	}
	report.Retained = report.Allocation.IdleB.Add(failed)

	if failed.IsPositive() {
		if v.policy.Failure == RevertAll {
			v.restore(before)
			first := report.Failures()[0]
			return fmt.Errorf("%w: %s leg to %s: %s", ErrAllocationFailed, first.Leg, first.Venue.Hex(), first.Error)
		}
		v.mu.Lock()
		v.state.IdleBalance = v.state.IdleBalance.Add(failed)
		v.mu.Unlock()
	}

	committed := *report
	env.OnCommit(func() {
		for _, f := range committed.Failures() {
			v.logger.Warn().
				Str("leg", string(f.Leg)).
				Str("venue", f.Venue.Hex()).
				Str("amount", f.Amount.String()).
				Str("error", f.Error).
				Msg("Forward failed, value kept idle")
		}
		if v.observer != nil {
			v.observer.ObserveAllocation(committed)
		}
	})
	return nil
}

// UserInfo returns the get_user_info view of addr.
func (v *Vault) UserInfo(addr common.Address) types.UserInfo {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return types.UserInfo{Address: addr, Shares: v.sharesOf(addr), TotalShares: v.state.TotalShares}
}

// AgentInvests returns the get_agent_invests view.
func (v *Vault) AgentInvests(env Environment) types.AgentInvests {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return types.AgentInvests{
		TotalShares:    v.state.TotalShares,
		CustodyBalance: env.Balance(env.Self()),
		IdleBalance:    v.state.IdleBalance,
	}
}

// Config returns the stored configuration and whether initialize has run.
func (v *Vault) Config() (types.VaultConfig, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state.Config, v.state.Initialized
}

// State returns a deep copy of the ledger.
func (v *Vault) State() types.LedgerState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state.Clone()
}

// Load replaces the ledger with a persisted state after checking its invariants.
func (v *Vault) Load(state types.LedgerState) error {
	if state.Shares == nil {
		state.Shares = make(map[common.Address]sdkmath.Int)
	}
	if err := checkInvariants(state); err != nil {
		v.logger.Error().Err(err).Msg("Refusing to load ledger state")
		return err
	}
	v.restore(state.Clone())
	v.logger.Info().
		Str("totalShares", state.TotalShares.String()).
		Int("holders", len(state.Shares)).
		Bool("initialized", state.Initialized).
		Msg("Ledger state loaded")
	return nil
}

// CheckInvariants verifies that total shares equal the sum of balances and nothing is negative.
func (v *Vault) CheckInvariants() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if err := checkInvariants(v.state); err != nil {
		v.logger.Error().Err(err).Msg("Ledger invariant violated")
		return err
	}
	return nil
}

func checkInvariants(state types.LedgerState) error {
	if state.TotalShares.IsNil() || state.IdleBalance.IsNil() {
		return fmt.Errorf("%w: unset totals", ErrInvariantViolation)
	}
	for owner, bal := range state.Shares {
		if bal.IsNil() || !bal.IsPositive() {
			return fmt.Errorf("%w: non-positive balance stored for %s", ErrInvariantViolation, owner.Hex())
		}
	}
	if sum := state.SumShares(); !sum.Equal(state.TotalShares) {
		return fmt.Errorf("%w: total shares %s, sum of balances %s", ErrInvariantViolation, state.TotalShares, sum)
	}
	if state.IdleBalance.IsNegative() {
		return fmt.Errorf("%w: negative idle balance %s", ErrInvariantViolation, state.IdleBalance)
	}
	return nil
}

func (v *Vault) restore(state types.LedgerState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = state
}

// sharesOf must be called with mu held.
func (v *Vault) sharesOf(addr common.Address) sdkmath.Int {
	if bal, ok := v.state.Shares[addr]; ok {
		return bal
	}
	return sdkmath.ZeroInt()
}

func validatePositive(amount sdkmath.Int) error {
	if err := utils.ValidateAmount(amount); err != nil {
		return err
	}
	if amount.IsZero() {
		return ErrZeroAmount
	}
	return nil
}
