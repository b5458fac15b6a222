package inspection

import (
	"math"
	"strconv"
	"strings"

	"github.com/kekexiaoai/check-rds/pkg/threshold"
)

const absentValue = "unknown"

// Evaluate 根据 warning/critical 阈值判断单个指标的状态。
// critical 优先判断；无数据时恒为 UNKNOWN。
func Evaluate(value *float64, warn, crit threshold.Range) State {
	if value == nil {
		return StateUnknown
	}
	if !crit.Contains(*value) {
		return StateCritical
	}
	if !warn.Contains(*value) {
		return StateWarning
	}
	return StateOK
}

// Aggregate reduces metric states to the most severe one and renders the
// summary line. The order of states is kept in the summary.
func Aggregate(states []MetricState) OverallResult {
	overall := StateOK
	parts := make([]string, 0, len(states))
	for _, ms := range states {
		if ms.State.Severity() > overall.Severity() {
			overall = ms.State
		}
		parts = append(parts, ms.Name+":"+FormatValue(ms.Value)+ms.Unit)
	}

	metrics := make([]MetricState, len(states))
	copy(metrics, states)
	return OverallResult{
		State:   overall,
		Summary: strings.TrimSpace(overall.String() + ": " + strings.Join(parts, ", ")),
		Metrics: metrics,
	}
}

// FormatValue renders a metric value rounded to two decimals.
func FormatValue(v *float64) string {
	if v == nil {
		return absentValue
	}
	return strconv.FormatFloat(math.Round(*v*100)/100, 'f', -1, 64)
}
