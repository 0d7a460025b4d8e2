// Package metrics exposes Prometheus collectors for the vault node.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elys-network/hedgefund/internal/types"
	"github.com/elys-network/hedgefund/internal/utils"
)

const namespace = "hedgefund"

// TransactionRecorder is the hook the runtime calls after every transaction.
type TransactionRecorder interface {
	RecordTransaction(ctx context.Context, result types.TransactionResult) error
}

// Metrics holds the node's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	transactions    *prometheus.CounterVec
	forwards        *prometheus.CounterVec
	forwardedAmount *prometheus.CounterVec
	retainedAmount  prometheus.Counter
	withdrawals     *prometheus.CounterVec
	payoutAmount    prometheus.Counter
	keeperCycles    *prometheus.CounterVec

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "transactions_total",
			Help:      "Executed transactions by method and outcome.",
		}, []string{"method", "status"}),
		forwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "forwards_total",
			Help:      "Forwards to venues by leg and outcome.",
		}, []string{"kind", "leg", "status"}),
		forwardedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "forwarded_wei_total",
			Help:      "Value successfully forwarded to venues, in wei.",
		}, []string{"leg"}),
		retainedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "retained_wei_total",
			Help:      "Value kept idle by deposits and rebalances, in wei.",
		}),
		withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "withdrawals_total",
			Help:      "Withdrawals by payout outcome.",
		}, []string{"status"}),
		payoutAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "payout_wei_total",
			Help:      "Value paid out to withdrawing holders, in wei.",
		}),
		keeperCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "cycles_total",
			Help:      "Keeper cycles by action and outcome.",
		}, []string{"action", "status"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		m.transactions,
		m.forwards,
		m.forwardedAmount,
		m.retainedAmount,
		m.withdrawals,
		m.payoutAmount,
		m.keeperCycles,
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAllocation counts the forwards of a deposit or rebalance.
func (m *Metrics) ObserveAllocation(report types.AllocationReport) {
	kind := string(report.Kind)
	for _, f := range report.Forwards {
		switch {
		case f.Skipped:
			m.forwards.WithLabelValues(kind, string(f.Leg), "skipped").Inc()
		case f.Success:
			m.forwards.WithLabelValues(kind, string(f.Leg), "success").Inc()
			m.forwardedAmount.WithLabelValues(string(f.Leg)).Add(utils.ToFloat64(f.Amount))
		default:
			m.forwards.WithLabelValues(kind, string(f.Leg), "failed").Inc()
		}
	}
	m.retainedAmount.Add(utils.ToFloat64(report.Retained))
}

// ObserveWithdrawal counts one redemption.
func (m *Metrics) ObserveWithdrawal(report types.WithdrawalReport) {
	status := "paid"
	switch {
	case report.Payout.IsNil() || report.Payout.IsZero():
		status = "empty"
	case !report.Transferred:
		status = "failed"
	default:
		m.payoutAmount.Add(utils.ToFloat64(report.Payout))
	}
	m.withdrawals.WithLabelValues(status).Inc()
}

// ObserveCycle counts one keeper cycle.
func (m *Metrics) ObserveCycle(snapshot types.CycleSnapshot) {
	m.keeperCycles.WithLabelValues(string(snapshot.Action), statusLabel(snapshot.Success)).Inc()
}

// Recorder counts every transaction before handing it to next, which may be nil.
func (m *Metrics) Recorder(next TransactionRecorder) TransactionRecorder {
	return &recorder{metrics: m, next: next}
}

type recorder struct {
	metrics *Metrics
	next    TransactionRecorder
}

func (r *recorder) RecordTransaction(ctx context.Context, result types.TransactionResult) error {
	method := result.Method
	if method == "" {
		method = "unknown"
	}
	r.metrics.transactions.WithLabelValues(method, statusLabel(result.Success)).Inc()
	if r.next == nil {
		return nil
	}
	return r.next.RecordTransaction(ctx, result)
}

// Middleware records request counts and latency, labelled by route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
