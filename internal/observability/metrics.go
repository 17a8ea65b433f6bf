// Package observability records control-surface request metrics.
package observability

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshd_http_requests_total",
			Help: "Total number of control-plane HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refreshd_http_request_duration_seconds",
			Help:    "Duration of control-plane HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100us to ~0.8s
		},
		[]string{"method", "route", "status"},
	)

	controlChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshd_control_changes_total",
			Help: "Effective policy changes by origin.",
		},
		[]string{"source"},
	)

	persistErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refreshd_persist_errors_total",
			Help: "Policy persistence failures by operation.",
		},
		[]string{"op"},
	)
)

// Init registers the collectors on reg. Calling it again with the same
// registry is harmless; a nil registry disables recording.
func Init(reg prometheus.Registerer) {
	if reg == nil {
		enabled.Store(false)
		return
	}
	for _, c := range []prometheus.Collector{httpRequestsTotal, httpRequestDurationSeconds, controlChanges, persistErrors} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
	enabled.Store(true)
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func IncControlChange(source string) {
	if !enabled.Load() {
		return
	}
	if source == "" {
		source = "unknown"
	}
	controlChanges.WithLabelValues(source).Inc()
}

func IncPersistError(op string) {
	if !enabled.Load() {
		return
	}
	persistErrors.WithLabelValues(op).Inc()
}
