package inspection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kekexiaoai/check-rds/pkg/threshold"
)

func f64(v float64) *float64 { return &v }

func TestEvaluate(t *testing.T) {
	warn := threshold.MustParseRange("20:")
	crit := threshold.MustParseRange("10:")

	testCases := []struct {
		name  string
		value *float64
		want  State
	}{
		{"Ok", f64(50), StateOK},
		{"WarningBoundaryIsOk", f64(20), StateOK},
		{"Warning", f64(15), StateWarning},
		{"CriticalBoundaryIsWarning", f64(10), StateWarning},
		{"OutsideBothIsCritical", f64(5), StateCritical},
		{"Absent", nil, StateUnknown},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Evaluate(tc.value, warn, crit))
		})
	}
}

func TestEvaluate_AbsentIgnoresThresholds(t *testing.T) {
	open := threshold.MustParseRange("~:~")
	assert.Equal(t, StateUnknown, Evaluate(nil, open, open))
}

func TestEvaluate_CriticalCheckedFirst(t *testing.T) {
	// warning range is stricter than critical; a value outside both is critical
	warn := threshold.MustParseRange("0:50")
	crit := threshold.MustParseRange("0:90")
	assert.Equal(t, StateCritical, Evaluate(f64(95), warn, crit))
	assert.Equal(t, StateWarning, Evaluate(f64(60), warn, crit))
}

func TestAggregate(t *testing.T) {
	states := []MetricState{
		{Name: "free_connections", State: StateOK, Value: f64(120), Unit: ""},
		{Name: "free_storage", State: StateWarning, Value: f64(1024.456), Unit: " MiB"},
		{Name: "cpu_used", State: StateUnknown, Value: nil, Unit: "%"},
	}

	res := Aggregate(states)
	assert.Equal(t, StateWarning, res.State)
	assert.Equal(t, 1, res.ExitCode())
	assert.Equal(t, "WARNING: free_connections:120, free_storage:1024.46 MiB, cpu_used:unknown%", res.Summary)
	assert.Equal(t, states, res.Metrics)

	withCrit := append([]MetricState{{Name: "replica_lag", State: StateCritical, Value: f64(3)}}, states...)
	res = Aggregate(withCrit)
	assert.Equal(t, StateCritical, res.State)
	assert.Equal(t, 2, res.ExitCode())
}

func TestAggregate_OrderDoesNotChangeSeverity(t *testing.T) {
	perms := [][]State{
		{StateOK, StateWarning, StateUnknown, StateCritical},
		{StateCritical, StateOK, StateWarning, StateUnknown},
		{StateUnknown, StateCritical, StateOK, StateWarning},
		{StateWarning, StateUnknown, StateCritical, StateOK},
	}
	for _, p := range perms {
		var states []MetricState
		for i, s := range p {
			states = append(states, MetricState{Name: string(rune('a' + i)), State: s, Value: f64(1)})
		}
		assert.Equal(t, StateCritical, Aggregate(states).State, "%v", p)
	}
}

func TestAggregate_Precedence(t *testing.T) {
	testCases := []struct {
		states []State
		want   State
	}{
		{nil, StateOK},
		{[]State{StateOK, StateOK}, StateOK},
		{[]State{StateOK, StateUnknown}, StateUnknown},
		{[]State{StateUnknown, StateWarning}, StateWarning},
		{[]State{StateOK, StateWarning, StateUnknown}, StateWarning},
		{[]State{StateWarning, StateCritical, StateUnknown}, StateCritical},
	}
	for _, tc := range testCases {
		var states []MetricState
		for _, s := range tc.states {
			states = append(states, MetricState{Name: "m", State: s})
		}
		assert.Equal(t, tc.want, Aggregate(states).State, "%v", tc.states)
	}
}

func TestAggregate_Empty(t *testing.T) {
	res := Aggregate(nil)
	require.Equal(t, StateOK, res.State)
	assert.Equal(t, "OK:", res.Summary)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "unknown", FormatValue(nil))
	assert.Equal(t, "42", FormatValue(f64(42)))
	assert.Equal(t, "3.14", FormatValue(f64(3.14159)))
	assert.Equal(t, "-0.5", FormatValue(f64(-0.5)))
	assert.Equal(t, "15258.79", FormatValue(f64(16000000000.0/1024/1024)))
}
