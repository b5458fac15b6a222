package prom

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/prometheus/common/model"
	"go.uber.org/zap"

	"github.com/kekexiaoai/check-rds/pkg/inspection"
	"github.com/kekexiaoai/check-rds/pkg/sampler"
)

// overTimeFuncs maps a statistic to the PromQL *_over_time function that
// aggregates it per period.
var overTimeFuncs = map[sampler.Statistic]string{
	sampler.StatisticMinimum:     "min",
	sampler.StatisticMaximum:     "max",
	sampler.StatisticAverage:     "avg",
	sampler.StatisticSum:         "sum",
	sampler.StatisticSampleCount: "count",
}

// labelValueEscaper quotes dimension values for a double quoted PromQL
// label matcher.
var labelValueEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// Source reads metrics from Prometheus through the queries of a profile.
// It implements sampler.Source.
type Source struct {
	client  *Client
	profile *inspection.Profile
	vars    map[string]string
	region  string
	logger  *zap.Logger
}

// SourceOption configures the Source.
type SourceOption func(*Source)

// WithVars overrides profile variables, e.g. job=rds-exporter.
func WithVars(vars map[string]string) SourceOption {
	return func(s *Source) {
		for k, v := range vars {
			s.vars[k] = v
		}
	}
}

// WithRegion exposes the region to query templates.
func WithRegion(region string) SourceOption {
	return func(s *Source) {
		s.region = region
	}
}

// WithSourceLogger sets the logger.
func WithSourceLogger(l *zap.Logger) SourceOption {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSource creates a Prometheus backed metric source.
func NewSource(client *Client, profile *inspection.Profile, opts ...SourceOption) *Source {
	s := &Source{
		client:  client,
		profile: profile,
		vars:    make(map[string]string),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildQuery renders the PromQL for q: the profile query wrapped in a
// <stat>_over_time subquery whose range and resolution equal the period.
func (s *Source) BuildQuery(q sampler.Query) (string, error) {
	fn, ok := overTimeFuncs[q.Ref.Statistic]
	if !ok {
		return "", fmt.Errorf("statistic %q is not supported by prometheus", q.Ref.Statistic)
	}

	reserved := map[string]string{
		inspection.ReservedNamespace: q.Ref.Namespace,
		inspection.ReservedStatistic: strings.ToLower(string(q.Ref.Statistic)),
		inspection.ReservedRegion:    s.region,
	}
	for _, d := range q.Ref.Dimensions {
		reserved[d.Name] = labelValueEscaper.Replace(d.Value)
	}
	if v, ok := q.Ref.Dimension("DBInstanceIdentifier"); ok {
		reserved[inspection.ReservedInstance] = labelValueEscaper.Replace(v)
	}

	inner, err := s.profile.RenderQuery(q.Ref.Name, reserved, s.vars)
	if err != nil {
		return "", err
	}

	period := model.Duration(q.Period)
	return fmt.Sprintf("%s_over_time((%s)[%s:])", fn, inner, period), nil
}

// GetStatistics runs the range query for q and flattens all returned series.
func (s *Source) GetStatistics(ctx context.Context, q sampler.Query) ([]sampler.Datapoint, error) {
	query, err := s.BuildQuery(q)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("prometheus query", zap.String("metric", q.Ref.Name), zap.String("query", query))

	var points []sampler.Datapoint
	handler := func(t any) error {
		switch v := t.(type) {
		case *model.SampleStream:
			for _, sp := range v.Values {
				if math.IsNaN(float64(sp.Value)) {
					continue
				}
				points = append(points, sampler.Datapoint{
					Timestamp: sp.Timestamp.Time(),
					Value:     float64(sp.Value),
				})
			}
		case *model.Sample:
			if !math.IsNaN(float64(v.Value)) {
				points = append(points, sampler.Datapoint{
					Timestamp: v.Timestamp.Time(),
					Value:     float64(v.Value),
				})
			}
		}
		return nil
	}

	if err := ExecuteQueryRange(ctx, s.client, query, q.Start, q.End, q.Period, handler); err != nil {
		return nil, err
	}
	return points, nil
}

// Preflight fails when the exporter job of the profile has no healthy
// target, so that "no data" is not mistaken for a quiet instance.
func (s *Source) Preflight(ctx context.Context) error {
	job := s.job()
	if job == "" {
		return nil
	}
	stats, err := s.client.JobTargetStats(ctx, job)
	if err != nil {
		return err
	}
	s.logger.Debug("exporter targets",
		zap.String("job", job),
		zap.Int("total", stats.TotalCount),
		zap.Int("online", stats.OnlineCount))
	if stats.TotalCount == 0 {
		return fmt.Errorf("prometheus has no targets for job %q", job)
	}
	if !stats.Healthy() {
		return fmt.Errorf("all %d targets of job %q are down: %s", stats.TotalCount, job, stats.LastError)
	}
	return nil
}

func (s *Source) job() string {
	if v, ok := s.vars["job"]; ok {
		return v
	}
	for _, v := range s.profile.Vars {
		if v.Name == "job" {
			if v.Value != "" {
				return v.Value
			}
			return v.DefaultValue
		}
	}
	return ""
}
