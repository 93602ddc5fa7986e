// Package metrics holds the Prometheus collectors for OTP and session flows.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "identity"

// Metrics is safe to use as a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	otpIssued         *prometheus.CounterVec
	otpVerifications  *prometheus.CounterVec
	otpRateLimited    prometheus.Counter
	dispatchFailures  *prometheus.CounterVec
	dispatchDuration  *prometheus.HistogramVec
	sessionsIssued    *prometheus.CounterVec
	cleanupRowsPruned *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers all collectors on reg
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		otpIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "otp_issued_total",
				Help:      "Total number of OTP codes issued",
			},
			[]string{"channel"},
		),
		otpVerifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "otp_verifications_total",
				Help:      "Total number of OTP verification outcomes",
			},
			[]string{"channel", "result"},
		),
		otpRateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "otp_rate_limited_total",
				Help:      "Total number of OTP requests rejected by the abuse limiter",
			},
		),
		dispatchFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "otp_dispatch_failures_total",
				Help:      "Total number of failed OTP deliveries",
			},
			[]string{"provider"},
		),
		dispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "otp_dispatch_duration_seconds",
				Help:      "Duration of OTP delivery attempts",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10},
			},
			[]string{"provider"},
		),
		sessionsIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_issued_total",
				Help:      "Total number of sessions issued",
			},
			[]string{"flow"},
		),
		cleanupRowsPruned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_rows_pruned_total",
				Help:      "Total number of rows removed by the background sweep",
			},
			[]string{"table"},
		),
		gatherer: reg,
	}
}

func (m *Metrics) OTPIssued(channel string) {
	if m == nil {
		return
	}
	m.otpIssued.WithLabelValues(channel).Inc()
}

func (m *Metrics) OTPVerified(channel, result string) {
	if m == nil {
		return
	}
	m.otpVerifications.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) OTPRateLimited() {
	if m == nil {
		return
	}
	m.otpRateLimited.Inc()
}

// DispatchObserved records one delivery attempt
func (m *Metrics) DispatchObserved(provider string, took time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(provider).Observe(took.Seconds())
	if !ok {
		m.dispatchFailures.WithLabelValues(provider).Inc()
	}
}

func (m *Metrics) SessionIssued(flow string) {
	if m == nil {
		return
	}
	m.sessionsIssued.WithLabelValues(flow).Inc()
}

func (m *Metrics) RowsPruned(table string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.cleanupRowsPruned.WithLabelValues(table).Add(float64(n))
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
