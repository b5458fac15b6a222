package prom

import (
	"context"
	"fmt"

	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// TargetHealthStatus 定义目标健康状态的常量
const (
	TargetHealthGood    = "up"      // 健康状态
	TargetHealthBad     = "down"    // 不健康状态
	TargetHealthUnknown = "unknown" // 未知状态
)

// TargetPoolStats 表示一个 job 的 target 统计信息
type TargetPoolStats struct {
	Job          string `json:"job"`
	TotalCount   int    `json:"totalCount"`
	OnlineCount  int    `json:"onlineCount"`
	OfflineCount int    `json:"offlineCount"`
	UnknownCount int    `json:"unknownCount"`
	LastError    string `json:"lastError,omitempty"`
}

// Healthy reports whether at least one target of the job is up.
func (s TargetPoolStats) Healthy() bool {
	return s.OnlineCount > 0
}

// Targets returns the active targets known to Prometheus.
func (c *Client) Targets(ctx context.Context) ([]v1.ActiveTarget, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.api.Targets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get targets: %w", err)
	}
	return res.Active, nil
}

// JobTargetStats 统计 job 标签等于 job 的活跃 targets
func (c *Client) JobTargetStats(ctx context.Context, job string) (TargetPoolStats, error) {
	targets, err := c.Targets(ctx)
	if err != nil {
		return TargetPoolStats{}, err
	}
	return jobStats(targets, job), nil
}

func jobStats(targets []v1.ActiveTarget, job string) TargetPoolStats {
	stats := TargetPoolStats{Job: job}
	for _, target := range targets {
		if string(target.Labels[model.JobLabel]) != job {
			continue
		}
		stats.TotalCount++
		switch string(target.Health) {
		case TargetHealthGood:
			stats.OnlineCount++
		case TargetHealthBad:
			stats.OfflineCount++
			if stats.LastError == "" {
				stats.LastError = target.LastError
			}
		default:
			stats.UnknownCount++
		}
	}
	return stats
}
