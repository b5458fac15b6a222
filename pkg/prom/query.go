package prom

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/common/model"
	"go.uber.org/zap"
)

// ResultHandler 处理单个查询结果（*model.Sample 或 *model.SampleStream）
type ResultHandler func(t any) error

// ExecuteQuery 执行 Prometheus 即时查询并解析结果
func ExecuteQuery(ctx context.Context, client *Client, query string, ts time.Time, handler ResultHandler) error {
	result, warnings, err := client.Query(ctx, query, ts)
	if err != nil {
		return fmt.Errorf("query execution failed: %w", err)
	}

	for _, warning := range warnings {
		client.logger.Warn("query warning", zap.String("query", query), zap.String("warning", warning))
	}

	return processResult(client.logger, result, query, handler)
}

// ExecuteQueryRange 执行 Prometheus 范围查询并解析结果
func ExecuteQueryRange(ctx context.Context, client *Client, query string, rangeStart, rangeEnd time.Time, step time.Duration, handler ResultHandler) error {
	rangeObj := NewRange(rangeStart, rangeEnd, step)

	result, warnings, err := client.QueryRange(ctx, query, rangeObj)
	if err != nil {
		return fmt.Errorf("query range execution failed: %w", err)
	}

	for _, warning := range warnings {
		client.logger.Warn("query range warning", zap.String("query", query), zap.String("warning", warning))
	}

	return processResult(client.logger, result, query, handler)
}

// processResult 处理查询结果的公共逻辑；空结果不是错误
func processResult(logger *zap.Logger, result model.Value, query string, handler ResultHandler) error {
	switch v := result.(type) {
	case model.Vector:
		if len(v) == 0 {
			logger.Debug("no data found", zap.String("query", query))
			return nil
		}
		for _, sample := range v {
			if err := handler(sample); err != nil {
				return err
			}
		}
	case model.Matrix:
		if len(v) == 0 {
			logger.Debug("no data found", zap.String("query", query))
			return nil
		}
		for _, stream := range v {
			if err := handler(stream); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unexpected result type: %T", result)
	}
	return nil
}
