package cachefs

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters for one store
type Metrics struct {
	Hits          prometheus.Counter
	Misses        *prometheus.CounterVec // labels: reason=absent|expired|disabled|corrupt
	Writes        *prometheus.CounterVec // labels: format
	WriteErrors   prometheus.Counter
	Invalidations prometheus.Counter
	Computes      *prometheus.CounterVec // labels: result=ok|error|shared
}

// NewMetrics creates the store metrics and registers them when reg is non-nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stock_cache_hits_total",
			Help: "Cache reads served from a valid entry",
		}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_cache_misses_total",
			Help: "Cache reads that returned a miss (by reason)",
		}, []string{"reason"}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_cache_writes_total",
			Help: "Cache entries written (by payload format)",
		}, []string{"format"}),
		WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stock_cache_write_errors_total",
			Help: "Cache writes that failed and left no entry",
		}),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stock_cache_invalidations_total",
			Help: "Cache entries removed by invalidate, prune or corruption",
		}),
		Computes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_cache_computes_total",
			Help: "GetOrCompute executions on a miss (by result)",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.Hits, m.Misses, m.Writes, m.WriteErrors, m.Invalidations, m.Computes)
	}
	return m
}

// Stats is a point-in-time snapshot of store activity
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Writes        int64 `json:"writes"`
	FormatErrors  int64 `json:"format_errors"`
	Invalidations int64 `json:"invalidations"`
}

type counters struct {
	hits, misses, writes, formatErrors, invalidations atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Writes:        c.writes.Load(),
		FormatErrors:  c.formatErrors.Load(),
		Invalidations: c.invalidations.Load(),
	}
}
