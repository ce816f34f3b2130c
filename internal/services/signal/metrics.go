package signal

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors for the analysis pipeline
type Metrics struct {
	Analyses   *prometheus.CounterVec // labels: result=ok|degraded|error
	Duration   prometheus.Histogram
	SinkErrors prometheus.Counter
}

// NewMetrics creates the pipeline metrics and registers them when reg is non-nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_analyses_total",
			Help: "Ticker analyses by result",
		}, []string{"result"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stock_analysis_duration_seconds",
			Help:    "Wall time of one ticker analysis including cache and collaborator calls",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stock_record_sink_errors_total",
			Help: "Analysis records the sink failed to store",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Analyses, m.Duration, m.SinkErrors)
	}
	return m
}
