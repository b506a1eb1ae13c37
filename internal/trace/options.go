package trace

import (
	"log/slog"

	"layout-tracer/internal/logging"
	"layout-tracer/internal/metrics"
)

// DefaultAreaRatio is the default batching threshold: a batch grows while
// its bounding box stays within this multiple of the summed shape boxes.
const DefaultAreaRatio = 20.0

type options struct {
	maxShapes int
	areaRatio float64
	progress  func(found int) bool
	logger    *logging.Logger
	metrics   metrics.Collector
}

// Option configures a Tracer.
type Option func(*options)

// WithMaxShapes stops the search once more than n shapes were found. The
// result is then marked incomplete. Zero means no limit.
func WithMaxShapes(n int) Option {
	return func(o *options) {
		o.maxShapes = max(n, 0)
	}
}

// WithAreaRatio sets the batching threshold. Values below 1 keep the default.
func WithAreaRatio(r float64) Option {
	return func(o *options) {
		if r >= 1 {
			o.areaRatio = r
		}
	}
}

// WithProgress installs a callback invoked once per newly found shape with
// the current found count. Returning false stops the search like an
// exhausted budget.
func WithProgress(fn func(found int) bool) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// WithLogger configures structured logging of rounds and traces.
// Pass nil to disable logging.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = logging.NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = logging.NewTextLogger(level)
	}
}

// WithMetrics configures the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(o *options) {
		if c == nil {
			c = metrics.Noop{}
		}
		o.metrics = c
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		areaRatio: DefaultAreaRatio,
		logger:    logging.NoopLogger(),
		metrics:   metrics.Noop{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
