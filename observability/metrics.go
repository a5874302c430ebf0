package observability

import (
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type engineMetrics struct {
	operations *prometheus.CounterVec
	fees       *prometheus.CounterVec
	positions  prometheus.Gauge
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics

	engineMetricsOnce sync.Once
	engineRegistry    *engineMetrics
)

// RPCMetrics returns the lazily-initialised registry used to record JSON-RPC
// activity.
func RPCMetrics() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "findprotocol",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "findprotocol",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and status code.",
			}, []string{"method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "findprotocol",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "findprotocol",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by throttling policies.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records the outcome of an RPC request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *rpcMetrics) Observe(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards and alerts remain consistent.
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// EngineMetrics returns the lazily-initialised registry used to record
// mortgage engine activity.
func EngineMetrics() *engineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &engineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "findprotocol",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Total engine operations segmented by kind and outcome.",
			}, []string{"operation", "outcome"}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "findprotocol",
				Subsystem: "engine",
				Name:      "fees_wei_total",
				Help:      "Protocol fees accrued, in wei, segmented by operation.",
			}, []string{"operation"}),
			positions: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "findprotocol",
				Subsystem: "engine",
				Name:      "open_positions",
				Help:      "Number of currently open positions.",
			}),
		}
		prometheus.MustRegister(
			engineRegistry.operations,
			engineRegistry.fees,
			engineRegistry.positions,
		)
	})
	return engineRegistry
}

// RecordOperation tallies one engine operation and, on success, the fee it
// accrued. Fee amounts too large for a float64 are clamped.
func (m *engineMetrics) RecordOperation(operation string, err error, fee *big.Int) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	if err == nil && fee != nil && fee.Sign() > 0 {
		value, _ := new(big.Float).SetInt(fee).Float64()
		if math.IsInf(value, 0) {
			value = math.MaxFloat64
		}
		m.fees.WithLabelValues(operation).Add(value)
	}
}

// SetOpenPositions records the current number of live positions.
func (m *engineMetrics) SetOpenPositions(count int) {
	if m == nil {
		return
	}
	m.positions.Set(float64(count))
}
