/*

This file implements the in-process collaborator venues the vault forwards value to: swap pools
that take native currency and credit a fixed-rate amount of a token, and a lending pool that keeps
per-depositor balances. Both can be halted so that every value-bearing call to them fails.

*/

package venues

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/elys-network/hedgefund/internal/chain"
	"github.com/elys-network/hedgefund/internal/codec"
	"github.com/elys-network/hedgefund/internal/logger"
	"github.com/elys-network/hedgefund/internal/types"
	"github.com/elys-network/hedgefund/internal/utils"
)

// Error definitions for zero-tolerance error handling
var (
	ErrVenueHalted         = errors.New("venue is halted")
	ErrUnsupportedMethod   = errors.New("method not supported by venue")
	ErrInvalidRate         = errors.New("swap rate is invalid")
	ErrInsufficientDeposit = errors.New("insufficient lending deposit")
	ErrZeroValue           = errors.New("call carries no value")
)

var precisionMultiplier = sdkmath.NewIntFromBigInt(sdkmath.LegacyOneDec().BigInt())

// SwapPool swaps native currency for a token at a fixed rate.
type SwapPool struct {
	logger zerolog.Logger
	token  common.Address
	rate   sdkmath.LegacyDec

	mu       sync.RWMutex
	halted   bool
	received sdkmath.Int
	credits  map[common.Address]sdkmath.Int
}

type swapPoolState struct {
	halted   bool
	received sdkmath.Int
	credits  map[common.Address]sdkmath.Int
}

// NewSwapPool creates a pool paying rate tokens per unit of native currency.
func NewSwapPool(token common.Address, rate sdkmath.LegacyDec) (*SwapPool, error) {
	if rate.IsNil() || !rate.IsPositive() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	return &SwapPool{
		logger:   logger.GetForComponent("swap_pool"),
		token:    token,
		rate:     rate,
		received: sdkmath.ZeroInt(),
		credits:  make(map[common.Address]sdkmath.Int),
	}, nil
}

// Execute implements chain.Contract.
func (p *SwapPool) Execute(_ context.Context, frame *chain.Frame) ([]byte, error) {
	call, err := codec.Venue.Decode(frame.Input())
	if err != nil {
		return nil, err
	}
	if call.Name() != codec.MethodSwapETHForToken {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, call.Method.Sig)
	}
	value := frame.Value()
	if value.IsZero() {
		return nil, ErrZeroValue
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.halted {
		return nil, ErrVenueHalted
	}
	out, err := p.Quote(value)
	if err != nil {
		return nil, err
	}
	received, err := utils.CheckedAdd(p.received, value)
	if err != nil {
		return nil, err
	}
	credit, err := utils.CheckedAdd(p.creditOf(frame.Caller()), out)
	if err != nil {
		return nil, err
	}
	p.received = received
	p.credits[frame.Caller()] = credit

	frame.Emit(types.Event{Kind: types.EventSwapped, Account: frame.Caller(), Amount: value, Shares: out})
	p.logger.Debug().
		Str("caller", frame.Caller().Hex()).
		Str("in", value.String()).
		Str("out", out.String()).
		Str("token", p.token.Hex()).
		Msg("Swap executed")
	return nil, nil
}

// Quote returns the token amount a swap of value would credit.
func (p *SwapPool) Quote(value sdkmath.Int) (sdkmath.Int, error) {
	scaled, err := utils.BigToInt(p.rate.BigInt())
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", ErrInvalidRate, err)
	}
	return utils.MulDivFloor(value, scaled, precisionMultiplier)
}

// Token returns the token this pool pays out.
func (p *SwapPool) Token() common.Address { return p.token }

// CreditOf returns the tokens credited to addr.
func (p *SwapPool) CreditOf(addr common.Address) sdkmath.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.creditOf(addr)
}

func (p *SwapPool) creditOf(addr common.Address) sdkmath.Int {
	if c, ok := p.credits[addr]; ok {
		return c
	}
	return sdkmath.ZeroInt()
}

// Received returns the total native currency swapped in.
func (p *SwapPool) Received() sdkmath.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.received
}

// SetHalted makes every subsequent swap fail, or resumes swapping.
func (p *SwapPool) SetHalted(halted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halted = halted
	p.logger.Info().Bool("halted", halted).Str("token", p.token.Hex()).Msg("Swap pool halt state changed")
}

// Snapshot implements chain.Snapshotter.
func (p *SwapPool) Snapshot() interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return swapPoolState{halted: p.halted, received: p.received, credits: copyBalances(p.credits)}
}

// Restore implements chain.Snapshotter.
func (p *SwapPool) Restore(snapshot interface{}) {
	s, ok := snapshot.(swapPoolState)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halted = s.halted
	p.received = s.received
	p.credits = s.credits
}

// LendingPool keeps per-depositor balances of native currency.
type LendingPool struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	halted   bool
	deposits map[common.Address]sdkmath.Int
}

type lendingPoolState struct {
	halted   bool
	deposits map[common.Address]sdkmath.Int
}

// NewLendingPool creates an empty pool.
func NewLendingPool() *LendingPool {
	return &LendingPool{
		logger:   logger.GetForComponent("lending_pool"),
		deposits: make(map[common.Address]sdkmath.Int),
	}
}

// Execute implements chain.Contract.
func (p *LendingPool) Execute(ctx context.Context, frame *chain.Frame) ([]byte, error) {
	call, err := codec.Venue.Decode(frame.Input())
	if err != nil {
		return nil, err
	}
	switch call.Name() {
	case codec.MethodDeposit:
		return nil, p.deposit(frame)
	case codec.MethodWithdraw:
		amount, err := call.Uint256(0)
		if err != nil {
			return nil, err
		}
		if frame.Value().IsPositive() {
			return nil, fmt.Errorf("%w: %s does not accept value", codec.ErrMalformedInput, call.Method.Sig)
		}
		return nil, p.withdraw(ctx, frame, amount)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, call.Method.Sig)
	}
}

func (p *LendingPool) deposit(frame *chain.Frame) error {
	value := frame.Value()
	if value.IsZero() {
		return ErrZeroValue
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.halted {
		return ErrVenueHalted
	}
	next, err := utils.CheckedAdd(p.depositOf(frame.Caller()), value)
	if err != nil {
		return err
	}
	p.deposits[frame.Caller()] = next

	frame.Emit(types.Event{Kind: types.EventLendingDeposit, Account: frame.Caller(), Amount: value})
	p.logger.Debug().Str("caller", frame.Caller().Hex()).Str("amount", value.String()).Msg("Lending deposit")
	return nil
}

func (p *LendingPool) withdraw(ctx context.Context, frame *chain.Frame, amount sdkmath.Int) error {
	p.mu.Lock()
	if p.halted {
		p.mu.Unlock()
		return ErrVenueHalted
	}
	held := p.depositOf(frame.Caller())
	if held.LT(amount) {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s holds %s, requested %s", ErrInsufficientDeposit, frame.Caller().Hex(), held, amount)
	}
	if rest := held.Sub(amount); rest.IsZero() {
		delete(p.deposits, frame.Caller())
	} else {
		p.deposits[frame.Caller()] = rest
	}
	p.mu.Unlock()

	frame.Emit(types.Event{Kind: types.EventLendingWithdraw, Account: frame.Caller(), Amount: amount})
	if amount.IsZero() {
		return nil
	}
	return frame.Transfer(ctx, frame.Caller(), amount)
}

// DepositOf returns what addr has lent.
func (p *LendingPool) DepositOf(addr common.Address) sdkmath.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.depositOf(addr)
}

func (p *LendingPool) depositOf(addr common.Address) sdkmath.Int {
	if d, ok := p.deposits[addr]; ok {
		return d
	}
	return sdkmath.ZeroInt()
}

// SetHalted makes every subsequent call fail, or resumes the pool.
func (p *LendingPool) SetHalted(halted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halted = halted
	p.logger.Info().Bool("halted", halted).Msg("Lending pool halt state changed")
}

// Snapshot implements chain.Snapshotter.
func (p *LendingPool) Snapshot() interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return lendingPoolState{halted: p.halted, deposits: copyBalances(p.deposits)}
}

// Restore implements chain.Snapshotter.
func (p *LendingPool) Restore(snapshot interface{}) {
	s, ok := snapshot.(lendingPoolState)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halted = s.halted
	p.deposits = s.deposits
}

func copyBalances(in map[common.Address]sdkmath.Int) map[common.Address]sdkmath.Int {
	out := make(map[common.Address]sdkmath.Int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var (
	_ chain.Contract    = (*SwapPool)(nil)
	_ chain.Snapshotter = (*SwapPool)(nil)
	_ chain.Contract    = (*LendingPool)(nil)
	_ chain.Snapshotter = (*LendingPool)(nil)
)
