package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/hedgefund/internal/chain"
	"github.com/elys-network/hedgefund/internal/codec"
	"github.com/elys-network/hedgefund/internal/types"
	"github.com/elys-network/hedgefund/internal/vault"
	"github.com/elys-network/hedgefund/internal/venues"
)

var _ vault.Observer = (*Metrics)(nil)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserveAllocation(t *testing.T) {
	m := New()
	m.ObserveAllocation(types.AllocationReport{
		Kind: types.AllocationDeposit,
		Forwards: []types.ForwardResult{
			{Leg: types.LegPrimarySwap, Amount: sdkmath.NewInt(300), Success: true},
			{Leg: types.LegSecondarySwap, Amount: sdkmath.NewInt(150), Error: "halted"},
			{Leg: types.LegLending, Amount: sdkmath.ZeroInt(), Skipped: true},
		},
		Retained: sdkmath.NewInt(300),
	})

	out := scrape(t, m)
	assert.Contains(t, out, `hedgefund_vault_forwards_total{kind="deposit",leg="swap_primary",status="success"} 1`)
	assert.Contains(t, out, `hedgefund_vault_forwards_total{kind="deposit",leg="swap_secondary",status="failed"} 1`)
	assert.Contains(t, out, `hedgefund_vault_forwards_total{kind="deposit",leg="lending",status="skipped"} 1`)
	assert.Contains(t, out, `hedgefund_vault_forwarded_wei_total{leg="swap_primary"} 300`)
	assert.Contains(t, out, `hedgefund_vault_retained_wei_total 300`)
}

func TestObserveWithdrawal(t *testing.T) {
	m := New()
	m.ObserveWithdrawal(types.WithdrawalReport{Payout: sdkmath.NewInt(75), Transferred: true})
	m.ObserveWithdrawal(types.WithdrawalReport{Payout: sdkmath.NewInt(10)})
	m.ObserveWithdrawal(types.WithdrawalReport{Payout: sdkmath.ZeroInt()})

	out := scrape(t, m)
	assert.Contains(t, out, `hedgefund_vault_withdrawals_total{status="paid"} 1`)
	assert.Contains(t, out, `hedgefund_vault_withdrawals_total{status="failed"} 1`)
	assert.Contains(t, out, `hedgefund_vault_withdrawals_total{status="empty"} 1`)
	assert.Contains(t, out, `hedgefund_vault_payout_wei_total 75`)
}

type recorderFunc func(ctx context.Context, result types.TransactionResult) error

func (f recorderFunc) RecordTransaction(ctx context.Context, result types.TransactionResult) error {
	return f(ctx, result)
}

func TestRecorderChains(t *testing.T) {
	m := New()
	var seen []string
	boom := errors.New("db down")
	rec := m.Recorder(recorderFunc(func(_ context.Context, r types.TransactionResult) error {
		seen = append(seen, r.Method)
		if !r.Success {
			return boom
		}
		return nil
	}))

	require.NoError(t, rec.RecordTransaction(context.Background(), types.TransactionResult{Method: "deposit", Success: true}))
	require.ErrorIs(t, rec.RecordTransaction(context.Background(), types.TransactionResult{Method: "withdraw"}), boom)
	require.NoError(t, m.Recorder(nil).RecordTransaction(context.Background(), types.TransactionResult{}))

	assert.Equal(t, []string{"deposit", "withdraw"}, seen)
	out := scrape(t, m)
	assert.Contains(t, out, `hedgefund_chain_transactions_total{method="deposit",status="success"} 1`)
	assert.Contains(t, out, `hedgefund_chain_transactions_total{method="withdraw",status="failed"} 1`)
	assert.Contains(t, out, `hedgefund_chain_transactions_total{method="unknown",status="failed"} 1`)
}

func TestObserveCycle(t *testing.T) {
	m := New()
	m.ObserveCycle(types.CycleSnapshot{Action: types.CycleActionSkip, Success: true})
	assert.Contains(t, scrape(t, m), `hedgefund_keeper_cycles_total{action="SKIP",status="success"} 1`)
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	m := New()
	router := mux.NewRouter()
	router.Use(m.Middleware)
	router.HandleFunc("/api/users/{address}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users/0xabc", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)

	assert.Contains(t, scrape(t, m), `hedgefund_http_requests_total{method="GET",path="/api/users/{address}",status="418"} 1`)
}

func TestSimulatedCallsAreNotCounted(t *testing.T) {
	var (
		vaultAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
		primary   = common.HexToAddress("0x0000000000000000000000000000000000000a01")
		secondary = common.HexToAddress("0x0000000000000000000000000000000000000a02")
		lending   = common.HexToAddress("0x0000000000000000000000000000000000000a03")
		alice     = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	)
	m := New()
	v, err := vault.New(vault.DefaultPolicy(), vault.WithObserver(m))
	require.NoError(t, err)
	rt := chain.NewRuntime(chain.WithRecorder(m.Recorder(nil)))
	swapA, err := venues.NewSwapPool(common.HexToAddress("0xb01"), sdkmath.LegacyOneDec())
	require.NoError(t, err)
	swapB, err := venues.NewSwapPool(common.HexToAddress("0xb02"), sdkmath.LegacyOneDec())
	require.NoError(t, err)
	require.NoError(t, rt.Deploy(vaultAddr, vault.NewContract(v)))
	require.NoError(t, rt.Deploy(primary, swapA))
	require.NoError(t, rt.Deploy(secondary, swapB))
	require.NoError(t, rt.Deploy(lending, venues.NewLendingPool()))
	require.NoError(t, rt.Fund(alice, sdkmath.NewInt(1000)))

	send := func(value int64, data []byte) {
		_, err := rt.SendTransaction(context.Background(), types.Transaction{From: alice, To: vaultAddr, Value: sdkmath.NewInt(value), Data: data})
		require.NoError(t, err)
	}
	send(0, codec.Vault.MustPack(codec.MethodInitialize, primary, secondary, lending, common.HexToAddress("0xb01"), common.HexToAddress("0xb02")))
	send(1000, codec.Vault.MustPack(codec.MethodDeposit))
	before := scrape(t, m)

	_, err = rt.Call(context.Background(), alice, vaultAddr, codec.Vault.MustPack(codec.MethodRebalance))
	require.NoError(t, err)
	_, err = rt.Call(context.Background(), alice, vaultAddr, codec.Vault.MustPack(codec.MethodWithdraw, sdkmath.NewInt(500).BigInt()))
	require.NoError(t, err)

	after := scrape(t, m)
	assert.NotContains(t, after, `kind="rebalance"`)
	assert.NotContains(t, after, `status="failed"`)
	assert.NotContains(t, after, "hedgefund_vault_withdrawals_total")
	assert.Contains(t, after, `hedgefund_vault_retained_wei_total 150`)
	assert.Contains(t, before, `hedgefund_vault_retained_wei_total 150`)
}
