// Package tagmetrics exposes Prometheus counters for the cache wrapper,
// following the naming convention of the teacher repo's
// pkg/history/cache.Metrics (Namespace/Subsystem + promauto constructors).
package tagmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every counter the cache wrapper touches.
type Metrics struct {
	Hits          *prometheus.CounterVec
	Misses        *prometheus.CounterVec
	Locked        *prometheus.CounterVec
	Invalidations *prometheus.CounterVec
	Sets          *prometheus.CounterVec
}

// New registers and returns a Metrics set under the given registerer. Pass
// prometheus.DefaultRegisterer for process-wide metrics, or a fresh
// prometheus.NewRegistry() in tests to avoid duplicate-registration panics
// across parallel test runs.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Hits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tagcache",
			Subsystem: "wrapper",
			Name:      "hits_total",
			Help:      "Cache wrapper reads that returned a validated value.",
		}, []string{"backend"}),
		Misses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tagcache",
			Subsystem: "wrapper",
			Name:      "misses_total",
			Help:      "Cache wrapper reads that found nothing, found a stale value, or hit a backend error.",
		}, []string{"backend", "reason"}),
		Locked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tagcache",
			Subsystem: "wrapper",
			Name:      "locked_writes_total",
			Help:      "Cache writes silently dropped because their dependency was locked.",
		}, []string{"backend"}),
		Invalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tagcache",
			Subsystem: "wrapper",
			Name:      "invalidations_total",
			Help:      "Explicit InvalidateDependency calls.",
		}, []string{"backend"}),
		Sets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tagcache",
			Subsystem: "wrapper",
			Name:      "sets_total",
			Help:      "Cache writes that were actually stored.",
		}, []string{"backend"}),
	}
}
