package service

import (
	"log/slog"
	"time"
)

// Recorder receives service-level measurements. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveRun(scenario, outcome string, d time.Duration, domains int)
	IncrementCacheHits()
	IncrementWarnings(kind string)
	IncrementSurveysImported()
}

type nopRecorder struct{}

func (nopRecorder) ObserveRun(string, string, time.Duration, int) {}
func (nopRecorder) IncrementCacheHits()                            {}
func (nopRecorder) IncrementWarnings(string)                       {}
func (nopRecorder) IncrementSurveysImported()                      {}

type options struct {
	logger  *slog.Logger
	metrics Recorder
	now     func() time.Time
}

// Option configures a service
type Option func(*options)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m Recorder) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:  slog.Default(),
		metrics: nopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = nopRecorder{}
	}
	return o
}
