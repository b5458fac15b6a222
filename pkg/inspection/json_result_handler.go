package inspection

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/kekexiaoai/check-rds/pkg/threshold"
)

// JSONResultHandler 累积各指标的评估结果，最终生成 JSON 报告
type JSONResultHandler struct {
	report *Report
	// 按评估顺序保存，Finalize 时统一聚合
	states []MetricState
}

// NewJSONResultHandler 创建报告处理器
//   - name：检查名称（如 check_rds）
//   - instance：数据库实例标识
//   - source：指标数据源（cloudwatch / prometheus）
func NewJSONResultHandler(name, instance, source string) *JSONResultHandler {
	report := &Report{Values: []ValueItem{}}
	report.Check.Name = name
	report.Check.Instance = instance
	report.Check.Source = source
	return &JSONResultHandler{report: report}
}

// Add records one evaluated metric together with the thresholds it was
// evaluated against.
func (h *JSONResultHandler) Add(ms MetricState, warn, crit threshold.Range) {
	h.states = append(h.states, ms)

	item := ValueItem{
		Metric:   ms.Name,
		Value:    ms.Value,
		Unit:     ms.Unit,
		State:    ms.State,
		Warning:  warn.String(),
		Critical: crit.String(),
		Missing:  ms.Value == nil,
	}
	h.report.Values = append(h.report.Values, item)
	h.updateSummary(item)
}

// updateSummary 根据 ValueItem 更新统计信息
func (h *JSONResultHandler) updateSummary(item ValueItem) {
	h.report.Counts.Total++

	if item.Missing {
		h.report.Counts.Missing++
	}

	switch item.State {
	case StateCritical:
		h.report.Counts.Critical++
	case StateWarning:
		h.report.Counts.Warning++
	case StateOK:
		h.report.Counts.Ok++
	default:
		h.report.Counts.Unknown++
	}
}

// Finalize 聚合所有指标状态并返回最终报告（需在全部指标评估后调用）
func (h *JSONResultHandler) Finalize(executedAt time.Time) (*Report, OverallResult) {
	result := Aggregate(h.states)

	h.report.Check.ExecutedAt = executedAt
	h.report.State = result.State
	h.report.ExitCode = result.ExitCode()
	h.report.Summary = result.Summary
	return h.report, result
}

// WriteReport writes the report as indented JSON.
func WriteReport(w io.Writer, report *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return nil
}
