package incoming

import (
	"github.com/case-management-suite/consumer/api"
	"github.com/case-management-suite/consumer/internal/metrics"
	"github.com/rs/zerolog"
)

// Option configures a Channel.
type Option func(*options)

type options struct {
	logger  zerolog.Logger
	metrics api.MetricsCollector
}

func defaultOptions() options {
	return options{
		logger:  zerolog.Nop(),
		metrics: metrics.NewNop(),
	}
}

// WithLogger sets the logger. Channels log nothing by default.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector. A nil collector is ignored.
func WithMetrics(m api.MetricsCollector) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}
