// Package metrics provides Prometheus metrics for hsplines
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nainya/hsplines/pkg/hbasis"
)

// Metrics holds all Prometheus metrics for hsplines
type Metrics struct {
	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// Basis metrics
	RefinementsTotal *prometheus.CounterVec
	RebuildDuration  *prometheus.HistogramVec
	BasisSize        *prometheus.HistogramVec
	BasisLevels      *prometheus.HistogramVec
	TransferDuration *prometheus.HistogramVec
	TransferNonZeros *prometheus.HistogramVec
	SessionsActive   prometheus.Gauge

	// Journal metrics
	JournalEntriesTotal *prometheus.CounterVec
	JournalErrorsTotal  prometheus.Counter

	// Server metrics
	ServerUptimeSeconds prometheus.GaugeFunc
	ServerStartTime     time.Time
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
	}
	factory := promauto.With(reg)

	// gRPC request metrics
	m.GrpcRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsplines_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	m.GrpcRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hsplines_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.GrpcRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "hsplines_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	// Basis metrics
	m.RefinementsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsplines_refinements_total",
			Help: "Total number of refinement operations",
		},
		[]string{"operation", "mode"},
	)

	m.RebuildDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hsplines_rebuild_duration_seconds",
			Help:    "Duration of active-set rebuilds in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"mode"},
	)

	m.BasisSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hsplines_basis_size_functions",
			Help:    "Number of active functions after a rebuild",
			Buckets: prometheus.ExponentialBuckets(16, 4, 10),
		},
		[]string{"mode"},
	)

	m.BasisLevels = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hsplines_basis_levels",
			Help:    "Number of levels after a rebuild",
			Buckets: prometheus.LinearBuckets(1, 1, 12),
		},
		[]string{"mode"},
	)

	m.TransferDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hsplines_transfer_duration_seconds",
			Help:    "Duration of transfer-matrix computations in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"mode"},
	)

	m.TransferNonZeros = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hsplines_transfer_nonzeros",
			Help:    "Stored entries of computed transfer matrices",
			Buckets: prometheus.ExponentialBuckets(16, 4, 10),
		},
		[]string{"mode"},
	)

	m.SessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "hsplines_sessions_active",
			Help: "Number of live basis sessions",
		},
	)

	// Journal metrics
	m.JournalEntriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsplines_journal_entries_total",
			Help: "Total number of journal entries written",
		},
		[]string{"op"},
	)

	m.JournalErrorsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "hsplines_journal_errors_total",
			Help: "Total number of failed journal writes",
		},
	)

	// Server metrics
	m.ServerUptimeSeconds = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "hsplines_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.ServerStartTime).Seconds() },
	)

	return m
}

// RecordGrpcRequest records a gRPC request with its status
func (m *Metrics) RecordGrpcRequest(method string, status string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRefinement counts a refinement operation
func (m *Metrics) RecordRefinement(operation string, mode hbasis.Mode) {
	m.RefinementsTotal.WithLabelValues(operation, mode.String()).Inc()
}

// RecordJournalEntry counts a journal write
func (m *Metrics) RecordJournalEntry(op string, err error) {
	if err != nil {
		m.JournalErrorsTotal.Inc()
		return
	}
	m.JournalEntriesTotal.WithLabelValues(op).Inc()
}

// ObserveRebuild implements hbasis.Observer
func (m *Metrics) ObserveRebuild(mode hbasis.Mode, d time.Duration, size, levels int) {
	m.RebuildDuration.WithLabelValues(mode.String()).Observe(d.Seconds())
	m.BasisSize.WithLabelValues(mode.String()).Observe(float64(size))
	m.BasisLevels.WithLabelValues(mode.String()).Observe(float64(levels))
}

// ObserveTransfer implements hbasis.Observer
func (m *Metrics) ObserveTransfer(mode hbasis.Mode, d time.Duration, nnz int) {
	m.TransferDuration.WithLabelValues(mode.String()).Observe(d.Seconds())
	m.TransferNonZeros.WithLabelValues(mode.String()).Observe(float64(nnz))
}

var _ hbasis.Observer = (*Metrics)(nil)
