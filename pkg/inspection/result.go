package inspection

import "time"

// MetricState is the evaluated state of one monitored metric.
type MetricState struct {
	Name  string   `json:"name"`
	State State    `json:"state"`
	Value *float64 `json:"value"` // nil 表示无数据
	Unit  string   `json:"unit,omitempty"`
}

// OverallResult is the reduction of all metric states of one check.
type OverallResult struct {
	State   State         `json:"state"`
	Summary string        `json:"summary"`
	Metrics []MetricState `json:"metrics"`
}

// ExitCode returns the process exit code for the result.
func (r OverallResult) ExitCode() int {
	return r.State.ExitCode()
}

type Report struct {
	Check struct {
		Name       string    `json:"name"`
		Instance   string    `json:"instance"`
		Source     string    `json:"source"`
		ExecutedAt time.Time `json:"executed_at"`
	} `json:"check"`
	State    State       `json:"state"`
	ExitCode int         `json:"exit_code"`
	Summary  string      `json:"summary"`
	Counts   Summary     `json:"counts"`
	Values   []ValueItem `json:"values"`
}

type Summary struct {
	Total    int `json:"total"`
	Ok       int `json:"ok"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
	Unknown  int `json:"unknown"`
	Missing  int `json:"missing"`
}

type ValueItem struct {
	Metric   string   `json:"metric"`
	Value    *float64 `json:"value"`
	Unit     string   `json:"unit,omitempty"`
	State    State    `json:"state"`
	Warning  string   `json:"warning,omitempty"`
	Critical string   `json:"critical,omitempty"`
	Missing  bool     `json:"missing,omitempty"`
}
