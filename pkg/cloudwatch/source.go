// Package cloudwatch reads RDS metrics from Amazon CloudWatch.
package cloudwatch

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/kekexiaoai/check-rds/pkg/sampler"
)

// API is the part of the CloudWatch client used by Source.
type API interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// Source implements sampler.Source on top of GetMetricStatistics.
type Source struct {
	api    API
	logger *zap.Logger
}

// NewSource creates a CloudWatch metric source.
func NewSource(api API, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{api: api, logger: logger}
}

// NewFromConfig creates a Source from an AWS configuration.
func NewFromConfig(cfg aws.Config, logger *zap.Logger) *Source {
	return NewSource(cloudwatch.NewFromConfig(cfg), logger)
}

// GetStatistics implements sampler.Source.
func (s *Source) GetStatistics(ctx context.Context, q sampler.Query) ([]sampler.Datapoint, error) {
	if !q.Ref.Statistic.Valid() {
		return nil, fmt.Errorf("unknown statistic %q", q.Ref.Statistic)
	}

	dims := make([]types.Dimension, 0, len(q.Ref.Dimensions))
	for _, d := range q.Ref.Dimensions {
		dims = append(dims, types.Dimension{Name: aws.String(d.Name), Value: aws.String(d.Value)})
	}

	out, err := s.api.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(q.Ref.Namespace),
		MetricName: aws.String(q.Ref.Name),
		Dimensions: dims,
		StartTime:  aws.Time(q.Start),
		EndTime:    aws.Time(q.End),
		Period:     aws.Int32(int32(math.Ceil(q.Period.Seconds()))),
		Statistics: []types.Statistic{types.Statistic(q.Ref.Statistic)},
	})
	if err != nil {
		return nil, describe(err)
	}

	points := make([]sampler.Datapoint, 0, len(out.Datapoints))
	for _, dp := range out.Datapoints {
		v := statisticValue(dp, q.Ref.Statistic)
		if v == nil || dp.Timestamp == nil {
			continue
		}
		points = append(points, sampler.Datapoint{Timestamp: *dp.Timestamp, Value: *v})
	}
	s.logger.Debug("cloudwatch statistics",
		zap.String("metric", q.Ref.Name),
		zap.Time("start", q.Start),
		zap.Time("end", q.End),
		zap.Int("datapoints", len(points)))
	return points, nil
}

func statisticValue(dp types.Datapoint, stat sampler.Statistic) *float64 {
	switch stat {
	case sampler.StatisticMinimum:
		return dp.Minimum
	case sampler.StatisticMaximum:
		return dp.Maximum
	case sampler.StatisticAverage:
		return dp.Average
	case sampler.StatisticSum:
		return dp.Sum
	case sampler.StatisticSampleCount:
		return dp.SampleCount
	}
	return nil
}

// describe keeps the AWS error code in the message, e.g. "ExpiredToken: ...".
func describe(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("cloudwatch %s: %s: %w", apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
	}
	return fmt.Errorf("cloudwatch: %w", err)
}
