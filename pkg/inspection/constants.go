package inspection

import (
	"fmt"
	"strings"
)

// State 检查结果状态，数值即插件退出码
type State int

const (
	StateOK       State = 0
	StateWarning  State = 1
	StateCritical State = 2
	StateUnknown  State = 3
)

var stateLabels = map[State]string{
	StateOK:       "OK",
	StateWarning:  "WARNING",
	StateCritical: "CRITICAL",
	StateUnknown:  "UNKNOWN",
}

// StateSeverities 状态严重度（数值越大越严重）：CRITICAL > WARNING > UNKNOWN > OK
var StateSeverities = map[State]int{
	StateCritical: 4,
	StateWarning:  3,
	StateUnknown:  2,
	StateOK:       1,
}

// String returns the plugin label, e.g. "WARNING".
func (s State) String() string {
	if l, ok := stateLabels[s]; ok {
		return l
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ExitCode returns the monitoring-plugin exit code for s.
func (s State) ExitCode() int {
	if _, ok := stateLabels[s]; !ok {
		return int(StateUnknown)
	}
	return int(s)
}

// Severity ranks s for aggregation; unknown values rank as UNKNOWN.
func (s State) Severity() int {
	if sev, ok := StateSeverities[s]; ok {
		return sev
	}
	return StateSeverities[StateUnknown]
}

// MarshalText 输出 "OK"/"WARNING" 等标签，供 JSON 报告使用
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a label case-insensitively.
func (s *State) UnmarshalText(text []byte) error {
	want := strings.ToUpper(strings.TrimSpace(string(text)))
	for st, label := range stateLabels {
		if label == want {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", string(text))
}

// 数据源类型常量
const (
	SourceCloudWatch = "cloudwatch"
	SourcePrometheus = "prometheus"
)

// 输出格式常量
const (
	OutputText = "text"
	OutputJSON = "json"
)

// 变量类型常量
const (
	VarTypeString  = "string"
	VarTypeNumber  = "number"
	VarTypeBoolean = "boolean"
	VarTypeEnum    = "enum"
)
