package vault

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/hedgefund/internal/types"
)

var (
	vaultAddr     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	swapPrimary   = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	swapSecondary = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	lendingVenue  = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	tokenA        = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	tokenB        = common.HexToAddress("0x0000000000000000000000000000000000000b02")

	alice = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
)

var testConfig = types.VaultConfig{
	SwapVenuePrimary:   swapPrimary,
	SwapVenueSecondary: swapSecondary,
	LendingVenue:       lendingVenue,
	TokenA:             tokenA,
	TokenB:             tokenB,
}

type fakeCall struct {
	to    common.Address
	value sdkmath.Int
	data  []byte
}

// fakeEnv is a minimal Environment: calls and transfers move balances unless configured to fail.
type fakeEnv struct {
	balances    map[common.Address]sdkmath.Int
	failing     map[common.Address]error
	transferErr error
	onCall      func(to common.Address) error
	calls       []fakeCall
	events      []types.Event
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		balances: make(map[common.Address]sdkmath.Int),
		failing:  make(map[common.Address]error),
	}
}

func (e *fakeEnv) Self() common.Address { return vaultAddr }

func (e *fakeEnv) Balance(addr common.Address) sdkmath.Int {
	if b, ok := e.balances[addr]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

func (e *fakeEnv) move(to common.Address, value sdkmath.Int) error {
	if e.Balance(vaultAddr).LT(value) {
		return errors.New("insufficient balance")
	}
	e.balances[vaultAddr] = e.Balance(vaultAddr).Sub(value)
	e.balances[to] = e.Balance(to).Add(value)
	return nil
}

func (e *fakeEnv) Call(_ context.Context, to common.Address, value sdkmath.Int, data []byte) ([]byte, error) {
	e.calls = append(e.calls, fakeCall{to: to, value: value, data: data})
	if e.onCall != nil {
		if err := e.onCall(to); err != nil {
			return nil, err
		}
	}
	if err := e.failing[to]; err != nil {
		return nil, err
	}
	return nil, e.move(to, value)
}

func (e *fakeEnv) Transfer(_ context.Context, to common.Address, value sdkmath.Int) error {
	if e.transferErr != nil {
		return e.transferErr
	}
	return e.move(to, value)
}

func (e *fakeEnv) Emit(ev types.Event) { e.events = append(e.events, ev) }

// OnCommit runs fn at once: every fakeEnv call commits.
func (e *fakeEnv) OnCommit(fn func()) { fn() }

func (e *fakeEnv) setCustody(v int64) { e.balances[vaultAddr] = sdkmath.NewInt(v) }

func (e *fakeEnv) eventKinds() []types.EventKind {
	out := make([]types.EventKind, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Kind)
	}
	return out
}

func newInitializedVault(t *testing.T, policy Policy) (*Vault, *fakeEnv) {
	t.Helper()
	v, err := New(policy)
	require.NoError(t, err)
	env := newFakeEnv()
	require.NoError(t, v.Initialize(context.Background(), env, alice, testConfig))
	env.events = nil
	return v, env
}

// deposit credits custody first, the way the runtime does before the vault executes.
func deposit(t *testing.T, v *Vault, env *fakeEnv, who common.Address, amount int64) *types.AllocationReport {
	t.Helper()
	env.balances[vaultAddr] = env.Balance(vaultAddr).Add(sdkmath.NewInt(amount))
	report, err := v.Deposit(context.Background(), env, who, sdkmath.NewInt(amount))
	require.NoError(t, err)
	return report
}

func TestSplitReferenceAmount(t *testing.T) {
	alloc, err := Split(sdkmath.NewInt(1000), DefaultPolicy().Allocation)
	require.NoError(t, err)
	assert.Equal(t, "300", alloc.PortionA.String())
	assert.Equal(t, "300", alloc.PortionB.String())
	assert.Equal(t, "150", alloc.IdleB.String())
	assert.Equal(t, "150", alloc.SwapB.String())
	assert.Equal(t, "400", alloc.PortionC.String())
}

func TestSplitSmallAmounts(t *testing.T) {
	cases := []struct {
		amount                     int64
		a, b, idle, swapB, portion int64
	}{
		{amount: 1, a: 0, b: 0, idle: 0, swapB: 0, portion: 1},
		{amount: 7, a: 2, b: 2, idle: 1, swapB: 1, portion: 3},
		{amount: 10, a: 3, b: 3, idle: 1, swapB: 2, portion: 4},
		{amount: 99, a: 29, b: 29, idle: 14, swapB: 15, portion: 41},
	}
	for _, tc := range cases {
		alloc, err := Split(sdkmath.NewInt(tc.amount), DefaultPolicy().Allocation)
		require.NoError(t, err)
		assert.Equal(t, tc.a, alloc.PortionA.Int64(), "amount %d", tc.amount)
		assert.Equal(t, tc.b, alloc.PortionB.Int64(), "amount %d", tc.amount)
		assert.Equal(t, tc.idle, alloc.IdleB.Int64(), "amount %d", tc.amount)
		assert.Equal(t, tc.swapB, alloc.SwapB.Int64(), "amount %d", tc.amount)
		assert.Equal(t, tc.portion, alloc.PortionC.Int64(), "amount %d", tc.amount)
	}
}

func TestSplitAlwaysSumsToAmount(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		amount := sdkmath.NewInt(rng.Int63n(1_000_000_000) + 1)
		alloc, err := Split(amount, DefaultPolicy().Allocation)
		require.NoError(t, err)
		sum := alloc.PortionA.Add(alloc.IdleB).Add(alloc.SwapB).Add(alloc.PortionC)
		require.True(t, sum.Equal(amount), "split of %s sums to %s", amount, sum)
		require.True(t, alloc.IdleB.Add(alloc.SwapB).Equal(alloc.PortionB))
	}
}

func TestSplitMaxUint256(t *testing.T) {
	maxUint := sdkmath.NewIntFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)))
	alloc, err := Split(maxUint, DefaultPolicy().Allocation)
	require.NoError(t, err)
	sum := alloc.PortionA.Add(alloc.PortionB).Add(alloc.PortionC)
	assert.True(t, sum.Equal(maxUint))
}

func TestSplitRejectsBadParameters(t *testing.T) {
	_, err := Split(sdkmath.NewInt(100), types.AllocationParameters{PrimarySwapPercent: 60, SecondarySwapPercent: 50})
	require.ErrorIs(t, err, types.ErrInvalidAllocation)
}

func TestInitializeOnce(t *testing.T) {
	v, env := newInitializedVault(t, DefaultPolicy())

	other := testConfig
	other.LendingVenue = bob
	err := v.Initialize(context.Background(), env, bob, other)
	require.ErrorIs(t, err, ErrAlreadyInitialized)
	require.ErrorIs(t, v.Initialize(context.Background(), env, bob, types.VaultConfig{}), ErrAlreadyInitialized)

	cfg, ok := v.Config()
	assert.True(t, ok)
	assert.Equal(t, lendingVenue, cfg.LendingVenue)
	assert.Empty(t, env.events)
}

func TestInitializeRejectsZeroVenue(t *testing.T) {
	v, err := New(DefaultPolicy())
	require.NoError(t, err)

	cfg := testConfig
	cfg.SwapVenueSecondary = common.Address{}
	require.ErrorIs(t, v.Initialize(context.Background(), newFakeEnv(), alice, cfg), ErrInvalidConfig)
	_, ok := v.Config()
	assert.False(t, ok)
}

func TestDepositBeforeInitialize(t *testing.T) {
	v, err := New(DefaultPolicy())
	require.NoError(t, err)
	env := newFakeEnv()
	env.setCustody(1000)

	_, err = v.Deposit(context.Background(), env, alice, sdkmath.NewInt(1000))
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = v.Rebalance(context.Background(), env, alice)
	require.ErrorIs(t, err, ErrNotInitialized)
	assert.Empty(t, env.calls)
}

func TestDepositZero(t *testing.T) {
	v, env := newInitializedVault(t, DefaultPolicy())

	_, err := v.Deposit(context.Background(), env, alice, sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrZeroAmount)
	assert.True(t, v.State().TotalShares.IsZero())
}

func TestDepositMintsAndForwards(t *testing.T) {
	v, env := newInitializedVault(t, DefaultPolicy())

	report := deposit(t, v, env, alice, 1000)

	info := v.UserInfo(alice)
	assert.Equal(t, "1000", info.Shares.String())
	assert.Equal(t, "1000", info.TotalShares.String())

	require.Len(t, env.calls, 3)
	assert.Equal(t, swapPrimary, env.calls[0].to)
	assert.Equal(t, "300", env.calls[0].value.String())
	assert.Equal(t, swapCalldata, env.calls[0].data)
	assert.Equal(t, swapSecondary, env.calls[1].to)
	assert.Equal(t, "150", env.calls[1].value.String())
	assert.Equal(t, lendingVenue, env.calls[2].to)
	assert.Equal(t, "400", env.calls[2].value.String())
	assert.Equal(t, lendingCalldata, env.calls[2].data)

	assert.Equal(t, "150", env.Balance(vaultAddr).String())
	assert.Equal(t, "150", v.State().IdleBalance.String())
	assert.Equal(t, "150", report.Retained.String())
	assert.False(t, report.HasFailures())
	assert.Equal(t, []types.EventKind{types.EventDeposited, types.EventForwarded, types.EventForwarded, types.EventForwarded}, env.eventKinds())
}

func TestDepositSkipsZeroLegs(t *testing.T) {
	v, env := newInitializedVault(t, DefaultPolicy())

	report := deposit(t, v, env, alice, 1)

	require.Len(t, env.calls, 1)
	assert.Equal(t, lendingVenue, env.calls[0].to)
	require.Len(t, report.Forwards, 3)
	assert.True(t, report.Forwards[0].Skipped)
	assert.True(t, report.Forwards[1].Skipped)
	assert.True(t, report.Forwards[2].Success)
	assert.Equal(t, "1", v.UserInfo(alice).Shares.String())
}

func TestWithdrawReferenceExample(t *testing.T) {
	v, env := newInitializedVault(t, DefaultPolicy())
	deposit(t, v, env, alice, 500)
	deposit(t, v, env, bob, 500)
	env.setCustody(200)

	report, err := v.Withdraw(context.Background(), env, alice, sdkmath.NewInt(500))
	require.NoError(t, err)
	assert.Equal(t, "100", report.Payout.String())
	assert.True(t, report.Transferred)
	assert.Equal(t, "500", v.State().TotalShares.String())
	assert.True(t, v.UserInfo(alice).Shares.IsZero())
	assert.Equal(t, "100", env.Balance(vaultAddr).String())
	_, stillListed := v.State().Shares[alice]
	assert.False(t, stillListed)
}

func TestOverWithdrawLeavesStateUntouched(t *testing.T) {
	v, env := newInitializedVault(t, DefaultPolicy())
	deposit(t, v, env, alice, 100)
	before := v.State()
	custody := env.Balance(vaultAddr)

	_, err := v.Withdraw(context.Background(), env, alice, sdkmath.NewInt(101))
	require.ErrorIs(t, err, ErrInsufficientShares)
	_, err = v.Withdraw(context.Background(), env, bob, sdkmath.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientShares)

	assert.Equal(t, before, v.State())
	assert.True(t, custody.Equal(env.Balance(vaultAddr)))
}

func TestWithdrawZero(t *testing.T) {
	v, env := newInitializedVault(t, DefaultPolicy())
	deposit(t, v, env, alice, 100)

	_, err := v.Withdraw(context.Background(), env, alice, sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrZeroAmount)
}

func TestLastHolderReceivesAllCustody(t *testing.T) {
	v, env := newInitializedVault(t, DefaultPolicy())
	deposit(t, v, env, alice, 1000)
	env.setCustody(777)

	report, err := v.Withdraw(context.Background(), env, alice, sdkmath.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, "777", report.Payout.String())
	assert.True(t, env.Balance(vaultAddr).IsZero())
	assert.True(t, v.State().TotalShares.IsZero())
	assert.True(t, v.State().IdleBalance.IsZero())
}

func TestPayoutWithZeroTotalSharesIsAllCustody(t *testing.T) {
	payout, err := Payout(sdkmath.NewInt(42), sdkmath.NewInt(5), sdkmath.ZeroInt())
	require.NoError(t, err)
	assert.Equal(t, "42", payout.String())
}

func TestWithdrawWithZeroCustodyPaysNothing(t *testing.T) {
	v, env := newInitializedVault(t, DefaultPolicy())
	deposit(t, v, env, alice, 100)
	env.setCustody(0)
	env.transferErr = errors.New("should not be called")

	report, err := v.Withdraw(context.Background(), env, alice, sdkmath.NewInt(40))
	require.NoError(t, err)
	assert.True(t, report.Payout.IsZero())
	assert.False(t, report.Transferred)
	assert.Equal(t, "60", v.UserInfo(alice).Shares.String())
}

func TestRebalanceZeroCustodyIsNoop(t *testing.T) {
	v, env := newInitializedVault(t, DefaultPolicy())
	before := v.State()

	report, err := v.Rebalance(context.Background(), env, bob)
	require.NoError(t, err)
	assert.True(t, report.Base.IsZero())
	assert.Empty(t, env.calls)
	assert.Empty(t, env.events)
	assert.Equal(t, before, v.State())
}

func TestRebalanceSplitsWholeCustody(t *testing.T) {
	v, env := newInitializedVault(t, DefaultPolicy())
	deposit(t, v, env, alice, 1000)
	env.calls = nil
	env.setCustody(1000)

	report, err := v.Rebalance(context.Background(), env, bob)
	require.NoError(t, err)
	assert.Equal(t, "1000", report.Base.String())
	assert.True(t, report.SharesMinted.IsZero())
	require.Len(t, env.calls, 3)
	assert.Equal(t, "300", env.calls[0].value.String())
	assert.Equal(t, "150", env.calls[1].value.String())
	assert.Equal(t, "400", env.calls[2].value.String())

	state := v.State()
	assert.Equal(t, "1000", state.TotalShares.String(), "rebalance never mints")
	assert.Equal(t, "150", state.IdleBalance.String())
	assert.Equal(t, "150", env.Balance(vaultAddr).String())
}

func TestRebalanceFromIdleOnly(t *testing.T) {
	policy := DefaultPolicy()
	policy.RebalanceSource = SourceIdle
	v, env := newInitializedVault(t, policy)
	deposit(t, v, env, alice, 1000)
	env.calls = nil
	// unattributed currency sent to the vault is not touched by idle rebalancing
	env.setCustody(5000)

	report, err := v.Rebalance(context.Background(), env, bob)
	require.NoError(t, err)
	assert.Equal(t, "150", report.Base.String())
	assert.Equal(t, "45", report.Allocation.PortionA.String())
	// 45 and 23 swapped, 60 lent, 22 kept
	assert.Equal(t, "22", v.State().IdleBalance.String())
}

func TestBestEffortKeepsFailedForwardIdle(t *testing.T) {
	v, env := newInitializedVault(t, DefaultPolicy())
	env.failing[swapPrimary] = errors.New("pool halted")

	report := deposit(t, v, env, alice, 1000)

	require.True(t, report.HasFailures())
	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, types.LegPrimarySwap, failures[0].Leg)
	assert.Contains(t, failures[0].Error, "pool halted")
	assert.Equal(t, "450", report.Retained.String())
	assert.Equal(t, "450", v.State().IdleBalance.String())
	assert.Equal(t, "450", env.Balance(vaultAddr).String())
	assert.Equal(t, "1000", v.UserInfo(alice).Shares.String())
	assert.Contains(t, env.eventKinds(), types.EventForwardFailed)
}

func TestRevertAllAbortsOnFailedForward(t *testing.T) {
	policy := DefaultPolicy()
	policy.Failure = RevertAll
	v, env := newInitializedVault(t, policy)
	env.failing[lendingVenue] = errors.New("lending paused")
	before := v.State()

	env.balances[vaultAddr] = sdkmath.NewInt(1000)
	_, err := v.Deposit(context.Background(), env, alice, sdkmath.NewInt(1000))
	require.ErrorIs(t, err, ErrAllocationFailed)
	assert.Contains(t, err.Error(), "lending paused")
	assert.Equal(t, before, v.State())
}

func TestPayoutFailureBestEffort(t *testing.T) {
	v, env := newInitializedVault(t, DefaultPolicy())
	deposit(t, v, env, alice, 1000)
	env.transferErr = errors.New("recipient rejects value")

	report, err := v.Withdraw(context.Background(), env, alice, sdkmath.NewInt(1000))
	require.NoError(t, err)
	assert.False(t, report.Transferred)
	assert.Contains(t, report.TransferError, "recipient rejects value")
	assert.True(t, v.State().TotalShares.IsZero(), "shares stay burned")
	assert.Contains(t, env.eventKinds(), types.EventPayoutFailed)
}

func TestPayoutFailureRevertAll(t *testing.T) {
	policy := DefaultPolicy()
	policy.Failure = RevertAll
	v, env := newInitializedVault(t, policy)
	deposit(t, v, env, alice, 1000)
	before := v.State()
	env.transferErr = errors.New("recipient rejects value")

	_, err := v.Withdraw(context.Background(), env, alice, sdkmath.NewInt(400))
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, before, v.State())
}

func TestReentrantCallIsRejected(t *testing.T) {
	v, env := newInitializedVault(t, DefaultPolicy())
	var reentryErr error
	env.onCall = func(to common.Address) error {
		if to != swapPrimary {
			return nil
		}
		_, reentryErr = v.Withdraw(context.Background(), env, alice, sdkmath.NewInt(1))
		return reentryErr
	}

	report := deposit(t, v, env, alice, 1000)

	require.ErrorIs(t, reentryErr, ErrReentrantCall)
	require.Len(t, report.Failures(), 1)
	assert.Equal(t, types.LegPrimarySwap, report.Failures()[0].Leg)
	assert.Equal(t, "1000", v.UserInfo(alice).Shares.String())

	// queries are allowed while a call is in flight
	env.onCall = func(common.Address) error {
		assert.Equal(t, "1000", v.UserInfo(alice).Shares.String())
		return nil
	}
	deposit(t, v, env, bob, 10)
}

func TestQueryStrings(t *testing.T) {
	v, env := newInitializedVault(t, DefaultPolicy())
	deposit(t, v, env, alice, 500)
	deposit(t, v, env, bob, 500)

	assert.Equal(t, "User: 0x00000000000000000000000000000000000a11ce, Shares: 500, totalSupply: 1000", v.UserInfo(alice).String())
	assert.Equal(t, "User: 0x000000000000000000000000000000000000dead, Shares: 0, totalSupply: 1000",
		v.UserInfo(common.HexToAddress("0xdead")).String())
	assert.Equal(t, "Total Shares: 1000, Contract ETH: 150", v.AgentInvests(env).String())
}

func TestRandomSequencesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	users := []common.Address{alice, bob, common.HexToAddress("0xc"), common.HexToAddress("0xd")}

	for _, policy := range []Policy{DefaultPolicy(), {Failure: BestEffort, RebalanceSource: SourceIdle, Allocation: DefaultPolicy().Allocation}} {
		v, env := newInitializedVault(t, policy)
		for step := 0; step < 500; step++ {
			user := users[rng.Intn(len(users))]
			switch rng.Intn(4) {
			case 0, 1:
				deposit(t, v, env, user, rng.Int63n(10_000)+1)
			case 2:
				held := v.UserInfo(user).Shares
				request := sdkmath.NewInt(rng.Int63n(held.Int64() + 5 + 1))
				before := v.State()
				_, err := v.Withdraw(context.Background(), env, user, request)
				switch {
				case request.IsZero():
					require.ErrorIs(t, err, ErrZeroAmount)
				case request.GT(held):
					require.ErrorIs(t, err, ErrInsufficientShares)
					require.Equal(t, before, v.State())
				default:
					require.NoError(t, err)
				}
			case 3:
				_, err := v.Rebalance(context.Background(), env, user)
				require.NoError(t, err)
			}

			require.NoError(t, v.CheckInvariants())
			state := v.State()
			require.True(t, state.IdleBalance.LTE(env.Balance(vaultAddr)), "idle %s exceeds custody %s", state.IdleBalance, env.Balance(vaultAddr))
		}
	}
}

func TestLoadChecksInvariants(t *testing.T) {
	v, err := New(DefaultPolicy())
	require.NoError(t, err)

	bad := types.NewLedgerState()
	bad.Shares[alice] = sdkmath.NewInt(10)
	bad.TotalShares = sdkmath.NewInt(11)
	require.ErrorIs(t, v.Load(bad), ErrInvariantViolation)

	good := types.NewLedgerState()
	good.Initialized = true
	good.Config = testConfig
	good.Shares[alice] = sdkmath.NewInt(10)
	good.TotalShares = sdkmath.NewInt(10)
	require.NoError(t, v.Load(good))
	assert.Equal(t, "10", v.UserInfo(alice).Shares.String())

	// the loaded map is not aliased
	good.Shares[alice] = sdkmath.NewInt(99)
	assert.Equal(t, "10", v.UserInfo(alice).Shares.String())
}

func TestPolicyParsing(t *testing.T) {
	p, err := ParseFailurePolicy(" Revert_All ")
	require.NoError(t, err)
	assert.Equal(t, RevertAll, p)
	_, err = ParseFailurePolicy("sometimes")
	require.ErrorIs(t, err, ErrInvalidPolicy)

	s, err := ParseRebalanceSource("IDLE")
	require.NoError(t, err)
	assert.Equal(t, SourceIdle, s)
	_, err = ParseRebalanceSource("market")
	require.ErrorIs(t, err, ErrInvalidPolicy)

	_, err = New(Policy{Failure: BestEffort, RebalanceSource: SourceCustody, Allocation: types.AllocationParameters{PrimarySwapPercent: -1}})
	require.ErrorIs(t, err, ErrInvalidPolicy)
}
