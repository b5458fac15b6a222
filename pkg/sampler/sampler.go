// Package sampler fetches a single scalar statistic for a metric over a
// trailing time window. When the newest window is empty it can fall back to
// older windows, one minute at a time, up to a fixed limit.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// MaxFallbackOffset is the highest window offset, in FallbackStep units,
	// that is queried before a sample is reported as absent.
	MaxFallbackOffset = 20
	// FallbackStep is how far each fallback attempt shifts the window into the past.
	FallbackStep = time.Minute

	DefaultWindow = 5 * time.Minute
	DefaultPeriod = 300 * time.Second
)

// ErrTransport marks failures of the metric source itself (network, auth,
// throttling). They are fatal for the whole check and are never retried here.
var ErrTransport = errors.New("metric source failure")

// Source is a time-series backend, e.g. CloudWatch or Prometheus.
type Source interface {
	// GetStatistics returns the datapoints of q.Ref in [q.Start, q.End]
	// aggregated per q.Period. An empty slice means "no data", not an error.
	GetStatistics(ctx context.Context, q Query) ([]Datapoint, error)
}

// Sampler queries a Source with the bounded fallback policy.
type Sampler struct {
	src      Source
	window   time.Duration
	period   time.Duration
	fallback bool
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures the Sampler.
type Option func(*Sampler)

// WithWindow sets the width of the queried window.
func WithWindow(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithPeriod sets the aggregation period requested from the source.
func WithPeriod(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.period = d
		}
	}
}

// WithFallback enables retrying older windows when the newest one is empty.
func WithFallback(enabled bool) Option {
	return func(s *Sampler) {
		s.fallback = enabled
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) {
		s.now = now
	}
}

// WithLogger sets the logger used for per-attempt diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sampler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Sampler reading from src.
func New(src Source, opts ...Option) *Sampler {
	s := &Sampler{
		src:    src,
		window: DefaultWindow,
		period: DefaultPeriod,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample returns the requested statistic of the most recent datapoint of ref.
// An absent Sample (Value == nil) means no window within the fallback budget
// had data. The returned error, if any, wraps ErrTransport.
func (s *Sampler) Sample(ctx context.Context, ref MetricRef) (Sample, error) {
	log := s.logger.With(zap.String("metric", ref.Name), zap.String("statistic", string(ref.Statistic)))
	now := s.now()

	for offset := 0; offset <= MaxFallbackOffset; offset++ {
		if err := ctx.Err(); err != nil {
			return Sample{Attempts: offset}, fmt.Errorf("%w: %s: %w", ErrTransport, ref.Name, err)
		}

		end := now.Add(-time.Duration(offset) * FallbackStep)
		q := Query{
			Ref:    ref,
			Start:  end.Add(-s.window),
			End:    end,
			Period: s.period,
		}
		points, err := s.src.GetStatistics(ctx, q)
		if err != nil {
			return Sample{Attempts: offset + 1}, fmt.Errorf("%w: %s: %w", ErrTransport, ref.Name, err)
		}

		if latest, ok := Latest(points); ok {
			log.Debug("metric sampled",
				zap.Int("attempts", offset+1),
				zap.Time("timestamp", latest.Timestamp),
				zap.Float64("value", latest.Value))
			v := latest.Value
			return Sample{Value: &v, Timestamp: latest.Timestamp, Attempts: offset + 1}, nil
		}

		log.Debug("no datapoints in window",
			zap.Int("offset_minutes", offset),
			zap.Time("start", q.Start),
			zap.Time("end", q.End))
		if !s.fallback {
			return Sample{Attempts: 1}, nil
		}
	}

	log.Info("metric unavailable within fallback budget", zap.Int("attempts", MaxFallbackOffset+1))
	return Sample{Attempts: MaxFallbackOffset + 1}, nil
}

// Latest returns the datapoint with the newest timestamp.
func Latest(points []Datapoint) (Datapoint, bool) {
	if len(points) == 0 {
		return Datapoint{}, false
	}
	latest := points[0]
	for _, p := range points[1:] {
		if !p.Timestamp.Before(latest.Timestamp) {
			latest = p
		}
	}
	return latest, true
}
