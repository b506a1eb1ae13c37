// Package metrics collects operational metrics of traces.
package metrics

import (
	"sync/atomic"
	"time"
)

// Collector receives tracer events. Implementations must be safe for
// concurrent use since several tracers may share one collector.
type Collector interface {
	// RecordTrace is called once per Trace or TracePath call.
	// mode is "net" or "path", found the size of the found set.
	RecordTrace(mode string, found int, incomplete bool, duration time.Duration, err error)

	// RecordRound is called after each expansion round with the batch size.
	RecordRound(batch int)

	// RecordQuery is called after each hierarchical shape query.
	RecordQuery(hits int)

	// RecordEvaluation is called after each logical layer evaluation.
	RecordEvaluation(outputs int, duration time.Duration)
}

// Noop discards all events.
type Noop struct{}

func (Noop) RecordTrace(string, int, bool, time.Duration, error) {}
func (Noop) RecordRound(int)                                     {}
func (Noop) RecordQuery(int)                                     {}
func (Noop) RecordEvaluation(int, time.Duration)                 {}

// Basic keeps counters in memory.
type Basic struct {
	Traces          atomic.Int64
	TraceErrors     atomic.Int64
	Incomplete      atomic.Int64
	TraceTotalNanos atomic.Int64
	ShapesFound     atomic.Int64
	Rounds          atomic.Int64
	BatchedShapes   atomic.Int64
	Queries         atomic.Int64
	QueryHits       atomic.Int64
	Evaluations     atomic.Int64
	EvaluatedShapes atomic.Int64
	EvalTotalNanos  atomic.Int64
}

// RecordTrace implements Collector.
func (b *Basic) RecordTrace(mode string, found int, incomplete bool, duration time.Duration, err error) {
	b.Traces.Add(1)
	b.TraceTotalNanos.Add(duration.Nanoseconds())
	b.ShapesFound.Add(int64(found))
	if incomplete {
		b.Incomplete.Add(1)
	}
	if err != nil {
		b.TraceErrors.Add(1)
	}
}

// RecordRound implements Collector.
func (b *Basic) RecordRound(batch int) {
	b.Rounds.Add(1)
	b.BatchedShapes.Add(int64(batch))
}

// RecordQuery implements Collector.
func (b *Basic) RecordQuery(hits int) {
	b.Queries.Add(1)
	b.QueryHits.Add(int64(hits))
}

// RecordEvaluation implements Collector.
func (b *Basic) RecordEvaluation(outputs int, duration time.Duration) {
	b.Evaluations.Add(1)
	b.EvaluatedShapes.Add(int64(outputs))
	b.EvalTotalNanos.Add(duration.Nanoseconds())
}

// Stats returns a snapshot of the counters.
func (b *Basic) Stats() Stats {
	s := Stats{
		Traces:          b.Traces.Load(),
		TraceErrors:     b.TraceErrors.Load(),
		Incomplete:      b.Incomplete.Load(),
		ShapesFound:     b.ShapesFound.Load(),
		Rounds:          b.Rounds.Load(),
		BatchedShapes:   b.BatchedShapes.Load(),
		Queries:         b.Queries.Load(),
		QueryHits:       b.QueryHits.Load(),
		Evaluations:     b.Evaluations.Load(),
		EvaluatedShapes: b.EvaluatedShapes.Load(),
	}
	if s.Traces > 0 {
		s.TraceAvg = time.Duration(b.TraceTotalNanos.Load() / s.Traces)
	}
	if s.Evaluations > 0 {
		s.EvalAvg = time.Duration(b.EvalTotalNanos.Load() / s.Evaluations)
	}
	return s
}

// Stats is a snapshot of Basic.
type Stats struct {
	Traces          int64
	TraceErrors     int64
	Incomplete      int64
	TraceAvg        time.Duration
	ShapesFound     int64
	Rounds          int64
	BatchedShapes   int64
	Queries         int64
	QueryHits       int64
	Evaluations     int64
	EvaluatedShapes int64
	EvalAvg         time.Duration
}
