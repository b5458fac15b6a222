// Package check runs the RDS health check: it samples free connections,
// free storage and CPU utilization of one instance and reduces them to a
// single plugin result.
package check

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kekexiaoai/check-rds/pkg/inspection"
	"github.com/kekexiaoai/check-rds/pkg/rds"
	"github.com/kekexiaoai/check-rds/pkg/sampler"
	"github.com/kekexiaoai/check-rds/pkg/threshold"
)

const (
	Name      = "check_rds"
	Namespace = "AWS/RDS"
	Dimension = "DBInstanceIdentifier"

	MetricFreeConnections = "free_connections"
	MetricFreeStorage     = "free_storage"
	MetricCPUUsed         = "cpu_used"

	bytesPerMiB = 1024 * 1024
)

// Thresholds holds the raw warning/critical range strings. Disk thresholds
// may carry byte units (K, Ki, M, Mi, G, Gi).
type Thresholds struct {
	WarnConns string
	CritConns string
	WarnDisk  string
	CritDisk  string
	WarnCPU   string
	CritCPU   string
}

// Options describes one check invocation.
type Options struct {
	Instance   string
	Thresholds Thresholds
	// Percent compares free connections and free storage as a percentage
	// of the instance limits instead of absolute numbers.
	Percent bool
	// LastState falls back to older windows when the newest one is empty.
	LastState bool
	Window    time.Duration
	Source    string
}

// MetadataProvider describes database instances.
type MetadataProvider interface {
	Describe(ctx context.Context, id string) (rds.Instance, error)
}

// Preflighter is implemented by sources that can verify their own health
// before the first query.
type Preflighter interface {
	Preflight(ctx context.Context) error
}

// Levels is the compiled warning/critical pair of one metric.
type Levels struct {
	Warn, Crit threshold.Range
}

// Check is one configured RDS check.
type Check struct {
	opts       Options
	src        sampler.Source
	sampler    *sampler.Sampler
	meta       MetadataProvider
	logger     *zap.Logger
	thresholds map[string]Levels

	instance *rds.Instance
}

// Option configures the Check.
type Option func(*checkConfig)

type checkConfig struct {
	logger      *zap.Logger
	samplerOpts []sampler.Option
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *checkConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSamplerOptions passes extra options to the metric sampler.
func WithSamplerOptions(opts ...sampler.Option) Option {
	return func(c *checkConfig) {
		c.samplerOpts = append(c.samplerOpts, opts...)
	}
}

// New validates every threshold and builds the check. No network call is
// made; an invalid threshold returns an error wrapping
// threshold.ErrInvalidRangeFormat.
func New(opts Options, src sampler.Source, meta MetadataProvider, options ...Option) (*Check, error) {
	cfg := checkConfig{logger: zap.NewNop()}
	for _, o := range options {
		o(&cfg)
	}

	thresholds, err := CompileThresholds(opts.Thresholds)
	if err != nil {
		return nil, err
	}

	samplerOpts := []sampler.Option{
		sampler.WithFallback(opts.LastState),
		sampler.WithWindow(opts.Window),
		sampler.WithLogger(cfg.logger),
	}
	samplerOpts = append(samplerOpts, cfg.samplerOpts...)

	return &Check{
		opts:       opts,
		src:        src,
		sampler:    sampler.New(src, samplerOpts...),
		meta:       meta,
		logger:     cfg.logger.With(zap.String("instance", opts.Instance)),
		thresholds: thresholds,
	}, nil
}

// CompileThresholds parses all six thresholds, keyed by metric name. Errors
// wrap threshold.ErrInvalidRangeFormat and name the offending flag.
func CompileThresholds(t Thresholds) (map[string]Levels, error) {
	specs := []struct {
		metric, kind, warn, crit string
		units                    bool
	}{
		{MetricFreeConnections, "conns", t.WarnConns, t.CritConns, false},
		{MetricFreeStorage, "disk", t.WarnDisk, t.CritDisk, true},
		{MetricCPUUsed, "cpu", t.WarnCPU, t.CritCPU, false},
	}

	out := make(map[string]Levels, len(specs))
	for _, s := range specs {
		warnSpec, critSpec := s.warn, s.crit
		if s.units {
			warnSpec = threshold.ExpandUnits(warnSpec)
			critSpec = threshold.ExpandUnits(critSpec)
		}
		warn, err := threshold.ParseRange(warnSpec)
		if err != nil {
			return nil, fmt.Errorf("--warn-%s: %w", s.kind, err)
		}
		crit, err := threshold.ParseRange(critSpec)
		if err != nil {
			return nil, fmt.Errorf("--crit-%s: %w", s.kind, err)
		}
		out[s.metric] = Levels{Warn: warn, Crit: crit}
	}
	return out, nil
}

// Run samples and evaluates the three metrics in order. A returned error
// means the check could not run at all (transport or metadata failure).
func (c *Check) Run(ctx context.Context) (inspection.OverallResult, error) {
	if p, ok := c.src.(Preflighter); ok {
		if err := p.Preflight(ctx); err != nil {
			return inspection.OverallResult{}, fmt.Errorf("%w: %w", sampler.ErrTransport, err)
		}
	}

	steps := []func(context.Context) (inspection.MetricState, error){
		c.freeConnections,
		c.freeStorage,
		c.cpuUsed,
	}
	states := make([]inspection.MetricState, 0, len(steps))
	for _, step := range steps {
		ms, err := step(ctx)
		if err != nil {
			return inspection.OverallResult{}, err
		}
		c.logger.Debug("metric evaluated",
			zap.String("metric", ms.Name),
			zap.String("state", ms.State.String()),
			zap.String("value", inspection.FormatValue(ms.Value)))
		states = append(states, ms)
	}

	result := inspection.Aggregate(states)
	c.logger.Info("check finished", zap.String("state", result.State.String()))
	return result, nil
}

// Report builds the machine readable report for result.
func (c *Check) Report(result inspection.OverallResult, executedAt time.Time) *inspection.Report {
	h := inspection.NewJSONResultHandler(Name, c.opts.Instance, c.opts.Source)
	for _, ms := range result.Metrics {
		t := c.thresholds[ms.Name]
		h.Add(ms, t.Warn, t.Crit)
	}
	report, _ := h.Finalize(executedAt)
	return report
}

func (c *Check) ref(metric string, stat sampler.Statistic) sampler.MetricRef {
	return sampler.MetricRef{
		Namespace:  Namespace,
		Name:       metric,
		Dimensions: []sampler.Dimension{{Name: Dimension, Value: c.opts.Instance}},
		Statistic:  stat,
	}
}

// describe fetches the instance metadata once per check.
func (c *Check) describe(ctx context.Context) (rds.Instance, error) {
	if c.instance != nil {
		return *c.instance, nil
	}
	inst, err := c.meta.Describe(ctx, c.opts.Instance)
	if err != nil {
		return rds.Instance{}, fmt.Errorf("instance metadata: %w", err)
	}
	c.instance = &inst
	return inst, nil
}

func (c *Check) evaluate(name string, value *float64, unit string) inspection.MetricState {
	t := c.thresholds[name]
	return inspection.MetricState{
		Name:  name,
		State: inspection.Evaluate(value, t.Warn, t.Crit),
		Value: value,
		Unit:  unit,
	}
}

func (c *Check) percentUnit() string {
	if c.opts.Percent {
		return "%"
	}
	return ""
}

func (c *Check) freeConnections(ctx context.Context) (inspection.MetricState, error) {
	inst, err := c.describe(ctx)
	if err != nil {
		return inspection.MetricState{}, err
	}
	maxConn, err := inst.MaxConnections()
	if err != nil {
		return inspection.MetricState{}, fmt.Errorf("instance %s: %w", c.opts.Instance, err)
	}

	sample, err := c.sampler.Sample(ctx, c.ref("DatabaseConnections", sampler.StatisticMinimum))
	if err != nil {
		return inspection.MetricState{}, err
	}
	unit := c.percentUnit()
	if sample.Absent() {
		return c.evaluate(MetricFreeConnections, nil, unit), nil
	}

	free := maxConn - *sample.Value
	if c.opts.Percent {
		if maxConn == 0 {
			c.logger.Warn("max_connections is 0, free connections percentage is undefined")
			return c.evaluate(MetricFreeConnections, nil, unit), nil
		}
		free = free / maxConn * 100
	}
	return c.evaluate(MetricFreeConnections, &free, unit), nil
}

func (c *Check) freeStorage(ctx context.Context) (inspection.MetricState, error) {
	sample, err := c.sampler.Sample(ctx, c.ref("FreeStorageSpace", sampler.StatisticMinimum))
	if err != nil {
		return inspection.MetricState{}, err
	}

	if !c.opts.Percent {
		if sample.Absent() {
			return c.evaluate(MetricFreeStorage, nil, " MiB"), nil
		}
		// compared in bytes, shown in MiB
		ms := c.evaluate(MetricFreeStorage, sample.Value, " MiB")
		mib := *sample.Value / bytesPerMiB
		ms.Value = &mib
		return ms, nil
	}

	if sample.Absent() {
		return c.evaluate(MetricFreeStorage, nil, "%"), nil
	}
	inst, err := c.describe(ctx)
	if err != nil {
		return inspection.MetricState{}, err
	}
	if inst.AllocatedStorageBytes == 0 {
		c.logger.Warn("allocated storage is 0, free storage percentage is undefined")
		return c.evaluate(MetricFreeStorage, nil, "%"), nil
	}
	pct := *sample.Value / inst.AllocatedStorageBytes * 100
	return c.evaluate(MetricFreeStorage, &pct, "%"), nil
}

func (c *Check) cpuUsed(ctx context.Context) (inspection.MetricState, error) {
	sample, err := c.sampler.Sample(ctx, c.ref("CPUUtilization", sampler.StatisticMaximum))
	if err != nil {
		return inspection.MetricState{}, err
	}
	return c.evaluate(MetricCPUUsed, sample.Value, "%"), nil
}
