package sampler

import (
	"fmt"
	"strings"
	"time"
)

// Statistic is the aggregation requested from the source for each period.
type Statistic string

const (
	StatisticMinimum     Statistic = "Minimum"
	StatisticMaximum     Statistic = "Maximum"
	StatisticAverage     Statistic = "Average"
	StatisticSum         Statistic = "Sum"
	StatisticSampleCount Statistic = "SampleCount"
)

// Valid reports whether s is a known statistic.
func (s Statistic) Valid() bool {
	switch s {
	case StatisticMinimum, StatisticMaximum, StatisticAverage, StatisticSum, StatisticSampleCount:
		return true
	}
	return false
}

// Dimension narrows a metric to one resource, e.g. DBInstanceIdentifier=prod-db.
type Dimension struct {
	Name  string
	Value string
}

// MetricRef identifies a single measurement.
type MetricRef struct {
	Namespace  string // e.g. AWS/RDS
	Name       string // e.g. CPUUtilization
	Dimensions []Dimension
	Statistic  Statistic
}

// Dimension returns the value of the named dimension.
func (r MetricRef) Dimension(name string) (string, bool) {
	for _, d := range r.Dimensions {
		if d.Name == name {
			return d.Value, true
		}
	}
	return "", false
}

// Query is one request to a Source.
type Query struct {
	Ref    MetricRef
	Start  time.Time
	End    time.Time
	Period time.Duration
}

// Datapoint is one aggregated value of the requested statistic.
type Datapoint struct {
	Timestamp time.Time
	Value     float64
}

// Sample is the outcome of Sampler.Sample.
type Sample struct {
	Value     *float64 // nil when no data was found
	Timestamp time.Time
	Attempts  int
}

// Absent reports whether no datapoint was found.
func (s Sample) Absent() bool {
	return s.Value == nil
}

// ParseDimensions parses "Name:Value,Name2:Value2".
func ParseDimensions(s string) ([]Dimension, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var dims []Dimension
	for _, pair := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(pair, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid dimension %q, expected Name:Value", pair)
		}
		dims = append(dims, Dimension{Name: name, Value: strings.TrimSpace(value)})
	}
	return dims, nil
}
