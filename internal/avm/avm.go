package avm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/elys-network/hedgefund/internal/codec"
	"github.com/elys-network/hedgefund/internal/logger"
	"github.com/elys-network/hedgefund/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidKeeperConfig = errors.New("invalid keeper configuration")
	ErrAlreadyStarted      = errors.New("keeper already started")
)

// Chain is the part of the runtime the keeper drives.
type Chain interface {
	Balance(addr common.Address) sdkmath.Int
	SendTransaction(ctx context.Context, tx types.Transaction) (*types.TransactionResult, error)
}

// Ledger exposes the vault's committed state.
type Ledger interface {
	State() types.LedgerState
}

// AVM is the Autonomous Vault Manager: a keeper that periodically re-splits the vault's balance.
type AVM struct {
	logger zerolog.Logger

	chain        Chain
	ledger       Ledger
	vault        common.Address
	keeper       common.Address
	minRebalance sdkmath.Int
	schedule     string

	nextCycleNumber func(ctx context.Context) (int, error)
	saveSnapshot    func(ctx context.Context, snapshot types.CycleSnapshot) (int64, error)
	observe         func(snapshot types.CycleSnapshot)
	now             func() time.Time

	mu         sync.Mutex
	cron       *cron.Cron
	cycleCount int
}

// Config holds the configuration for creating a new AVM instance
type Config struct {
	Chain         Chain
	Ledger        Ledger
	VaultAddress  common.Address
	KeeperAddress common.Address
	MinRebalance  sdkmath.Int // Cycles below this custody balance are skipped
	Schedule      string      // robfig/cron spec, descriptors such as "@every 10m" included

	// NextCycleNumber returns a persistent cycle number. Without it cycles are numbered in memory.
	NextCycleNumber func(ctx context.Context) (int, error)
	// SaveSnapshot persists the outcome of a cycle. Optional.
	SaveSnapshot func(ctx context.Context, snapshot types.CycleSnapshot) (int64, error)
	// Observe is called with every finished cycle. Optional.
	Observe func(snapshot types.CycleSnapshot)
	Clock   func() time.Time
}

// NewAVM creates a new AVM instance with dependency injection
func NewAVM(cfg Config) (*AVM, error) {
	if err := validateAVMConfig(cfg); err != nil {
		return nil, fmt.Errorf("AVM configuration validation failed: %w", err)
	}

	minRebalance := cfg.MinRebalance
	if minRebalance.IsNil() {
		minRebalance = sdkmath.ZeroInt()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	a := &AVM{
		logger:          logger.GetForComponent("avm_core"),
		chain:           cfg.Chain,
		ledger:          cfg.Ledger,
		vault:           cfg.VaultAddress,
		keeper:          cfg.KeeperAddress,
		minRebalance:    minRebalance,
		schedule:        cfg.Schedule,
		nextCycleNumber: cfg.NextCycleNumber,
		saveSnapshot:    cfg.SaveSnapshot,
		observe:         cfg.Observe,
		now:             now,
	}

	a.logger.Info().
		Str("vault", a.vault.Hex()).
		Str("keeper", a.keeper.Hex()).
		Str("schedule", a.schedule).
		Str("minRebalance", a.minRebalance.String()).
		Msg("AVM instance created")

	return a, nil
}

func validateAVMConfig(cfg Config) error {
	if cfg.Chain == nil {
		return fmt.Errorf("%w: chain cannot be nil", ErrInvalidKeeperConfig)
	}
	if cfg.Ledger == nil {
		return fmt.Errorf("%w: ledger cannot be nil", ErrInvalidKeeperConfig)
	}
	if cfg.VaultAddress == (common.Address{}) {
		return fmt.Errorf("%w: vault address cannot be zero", ErrInvalidKeeperConfig)
	}
	if cfg.KeeperAddress == (common.Address{}) {
		return fmt.Errorf("%w: keeper address cannot be zero", ErrInvalidKeeperConfig)
	}
	if !cfg.MinRebalance.IsNil() && cfg.MinRebalance.IsNegative() {
		return fmt.Errorf("%w: minimum rebalance cannot be negative", ErrInvalidKeeperConfig)
	}
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return fmt.Errorf("%w: schedule %q: %v", ErrInvalidKeeperConfig, cfg.Schedule, err)
		}
	}
	return nil
}

// Start registers RunCycle on the cron schedule. Cycles run with ctx until Stop is called.
func (a *AVM) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cron != nil {
		return ErrAlreadyStarted
	}
	if a.schedule == "" {
		return fmt.Errorf("%w: no schedule configured", ErrInvalidKeeperConfig)
	}

	cl := cronLogger{logger: a.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(a.schedule, func() { a.RunCycle(ctx) }); err != nil {
		return fmt.Errorf("register keeper cycle: %w", err)
	}
	a.cron = c
	c.Start()

	a.logger.Info().Str("schedule", a.schedule).Msg("AVM scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running cycle to finish.
func (a *AVM) Stop() {
	a.mu.Lock()
	c := a.cron
	a.cron = nil
	a.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	a.logger.Info().Msg("AVM scheduler stopped")
}

// RunCycle executes one keeper cycle and returns its snapshot. A cycle either skips, when the
// vault's custody is below the threshold, or submits rebalance() from the keeper account.
func (a *AVM) RunCycle(ctx context.Context) types.CycleSnapshot {
	cycleStartTime := a.now()

	// Generate unique cycle ID for tracing logs across the entire cycle
	cycleID := uuid.New().String()
	cycleLogger := a.logger.With().Str("cycle_id", cycleID).Logger()

	cycleLogger.Info().Msg("--- Starting AVM Cycle ---")

	ledger := a.ledger.State()
	custody := a.chain.Balance(a.vault)
	snapshot := types.CycleSnapshot{
		CycleID:       cycleID,
		CycleNumber:   a.getCycleNumber(ctx),
		Timestamp:     cycleStartTime,
		TotalShares:   ledger.TotalShares,
		CustodyBefore: custody,
		CustodyAfter:  custody,
		IdleBefore:    ledger.IdleBalance,
		IdleAfter:     ledger.IdleBalance,
	}

	switch {
	case !ledger.Initialized:
		snapshot.Action = types.CycleActionSkip
		snapshot.Success = true
		snapshot.Message = "vault not initialized"
	case custody.IsZero() || custody.LT(a.minRebalance):
		snapshot.Action = types.CycleActionSkip
		snapshot.Success = true
		snapshot.Message = fmt.Sprintf("custody %s below threshold %s", custody, a.minRebalance)
	default:
		snapshot.Action = types.CycleActionRebalance
		a.rebalance(ctx, cycleLogger, &snapshot)
	}

	cycleLogger.Info().
		Int("cycleNumber", snapshot.CycleNumber).
		Str("action", string(snapshot.Action)).
		Bool("success", snapshot.Success).
		Str("custodyBefore", snapshot.CustodyBefore.String()).
		Str("custodyAfter", snapshot.CustodyAfter.String()).
		Int("failedLegs", snapshot.FailedLegs).
		Str("message", snapshot.Message).
		Dur("duration", a.now().Sub(cycleStartTime)).
		Msg("--- AVM Cycle Completed ---")

	if a.saveSnapshot != nil {
		if _, err := a.saveSnapshot(ctx, snapshot); err != nil {
			cycleLogger.Error().Err(err).Msg("Failed to save cycle snapshot")
		}
	}
	if a.observe != nil {
		a.observe(snapshot)
	}
	return snapshot
}

func (a *AVM) rebalance(ctx context.Context, cycleLogger zerolog.Logger, snapshot *types.CycleSnapshot) {
	data, err := codec.Vault.Pack(codec.MethodRebalance)
	if err != nil {
		snapshot.Message = err.Error()
		cycleLogger.Error().Err(err).Msg("Failed to encode rebalance call")
		return
	}

	result, err := a.chain.SendTransaction(ctx, types.Transaction{
		From:  a.keeper,
		To:    a.vault,
		Value: sdkmath.ZeroInt(),
		Data:  data,
	})
	if err != nil {
		snapshot.Message = err.Error()
		cycleLogger.Error().Err(err).Msg("Rebalance transaction rejected")
		return
	}

	snapshot.TxHash = result.TxHash
	snapshot.Success = result.Success
	if !result.Success {
		snapshot.Message = result.ErrorMessage
		cycleLogger.Warn().Str("txHash", result.TxHash).Str("error", result.ErrorMessage).Msg("Rebalance transaction reverted")
		return
	}

	for _, ev := range result.Events {
		if ev.Kind == types.EventForwardFailed {
			snapshot.FailedLegs++
		}
	}
	after := a.ledger.State()
	snapshot.CustodyAfter = a.chain.Balance(a.vault)
	snapshot.IdleAfter = after.IdleBalance
	cycleLogger.Info().Str("txHash", result.TxHash).Int("failedLegs", snapshot.FailedLegs).Msg("Rebalance transaction committed")
}

// getCycleNumber returns the next persistent cycle number, falling back to the in-memory counter.
func (a *AVM) getCycleNumber(ctx context.Context) int {
	a.mu.Lock()
	a.cycleCount++
	local := a.cycleCount
	a.mu.Unlock()

	if a.nextCycleNumber == nil {
		return local
	}
	n, err := a.nextCycleNumber(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Int("fallback", local).Msg("Failed to get persistent cycle number, using in-memory counter")
		return local
	}
	return n
}

// cronLogger routes scheduler messages to the keeper's zerolog logger. Routine scheduling chatter
// goes to Debug.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

var _ cron.Logger = cronLogger{}
