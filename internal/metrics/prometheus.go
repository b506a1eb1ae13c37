package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus exports tracer events as Prometheus metrics.
type Prometheus struct {
	traces      *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	found       prometheus.Histogram
	rounds      prometheus.Counter
	batch       prometheus.Histogram
	queries     prometheus.Counter
	queryHits   prometheus.Counter
	evaluations prometheus.Counter
	evalLatency prometheus.Histogram
}

// NewPrometheus creates the metrics and registers them with reg. A nil reg
// uses the default registerer.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		traces: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "layout_tracer_traces_total",
			Help: "Traces run, by mode and outcome",
		}, []string{"mode", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "layout_tracer_trace_duration_seconds",
			Help:    "Duration of traces",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		found: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "layout_tracer_shapes_found",
			Help:    "Shapes found per trace",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "layout_tracer_rounds_total",
			Help: "Expansion rounds",
		}),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "layout_tracer_batch_size",
			Help:    "Shapes per expansion round",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "layout_tracer_queries_total",
			Help: "Hierarchical shape queries",
		}),
		queryHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "layout_tracer_query_hits_total",
			Help: "Shapes returned by hierarchical shape queries",
		}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "layout_tracer_evaluations_total",
			Help: "Logical layer evaluations",
		}),
		evalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "layout_tracer_evaluation_duration_seconds",
			Help:    "Duration of logical layer evaluations",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		p.traces, p.latency, p.found, p.rounds, p.batch,
		p.queries, p.queryHits, p.evaluations, p.evalLatency,
	)
	return p
}

// RecordTrace implements Collector.
func (p *Prometheus) RecordTrace(mode string, found int, incomplete bool, duration time.Duration, err error) {
	status := "complete"
	switch {
	case err != nil:
		status = "error"
	case incomplete:
		status = "incomplete"
	}
	p.traces.WithLabelValues(mode, status).Inc()
	p.latency.WithLabelValues(mode).Observe(duration.Seconds())
	p.found.Observe(float64(found))
}

// RecordRound implements Collector.
func (p *Prometheus) RecordRound(batch int) {
	p.rounds.Inc()
	p.batch.Observe(float64(batch))
}

// RecordQuery implements Collector.
func (p *Prometheus) RecordQuery(hits int) {
	p.queries.Inc()
	p.queryHits.Add(float64(hits))
}

// RecordEvaluation implements Collector.
func (p *Prometheus) RecordEvaluation(outputs int, duration time.Duration) {
	p.evaluations.Inc()
	p.evalLatency.Observe(duration.Seconds())
}
