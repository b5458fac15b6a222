// Package threshold implements the monitoring-plugin range format used for
// warning and critical thresholds, e.g. "10:20", "@~:5" or "8Gi:".
//
// A Range describes the set of values that are acceptable (not alerting).
// See https://nagios-plugins.org/doc/guidelines.html#THRESHOLDFORMAT.
package threshold

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidRangeFormat is returned when a threshold string does not match
// the range grammar.
var ErrInvalidRangeFormat = errors.New("invalid range format")

const (
	invertPrefix   = "@"
	boundSeparator = ":"
	infinity       = "~"
)

// Range is a parsed threshold. Missing bounds are stored as -Inf / +Inf.
type Range struct {
	Inverted bool
	Lower    float64
	Upper    float64
}

// ParseRange parses a threshold string into a Range.
//
//	"10"     -> 0:10
//	"10:"    -> 10 .. +inf
//	"~:10"   -> -inf .. 10
//	"@10:20" -> inverted, boundaries become exclusive
func ParseRange(spec string) (Range, error) {
	var r Range
	s := strings.TrimSpace(spec)
	if strings.HasPrefix(s, invertPrefix) {
		r.Inverted = true
		s = strings.TrimPrefix(s, invertPrefix)
	}
	if s == "" {
		return Range{}, fmt.Errorf("%w: %q is empty", ErrInvalidRangeFormat, spec)
	}

	lowerRaw, upperRaw := "0", s
	if strings.Contains(s, boundSeparator) {
		parts := strings.Split(s, boundSeparator)
		if len(parts) != 2 {
			return Range{}, fmt.Errorf("%w: %q has more than one %q", ErrInvalidRangeFormat, spec, boundSeparator)
		}
		lowerRaw, upperRaw = parts[0], parts[1]
		if upperRaw == "" {
			upperRaw = infinity
		}
	}

	var err error
	if r.Lower, err = parseBound(lowerRaw, math.Inf(-1)); err != nil {
		return Range{}, fmt.Errorf("%w: %q lower bound: %v", ErrInvalidRangeFormat, spec, err)
	}
	if r.Upper, err = parseBound(upperRaw, math.Inf(1)); err != nil {
		return Range{}, fmt.Errorf("%w: %q upper bound: %v", ErrInvalidRangeFormat, spec, err)
	}
	return r, nil
}

// MustParseRange is like ParseRange but panics on error. Intended for tests
// and package-level literals.
func MustParseRange(spec string) Range {
	r, err := ParseRange(spec)
	if err != nil {
		panic(err)
	}
	return r
}

func parseBound(raw string, unbounded float64) (float64, error) {
	if raw == infinity {
		return unbounded, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	// infinity is spelled "~"; "inf" and "nan" are not accepted as bounds
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a finite number", raw)
	}
	return v, nil
}

// Contains reports whether v lies inside the acceptable region, i.e. whether
// v is OK for this threshold level.
func (r Range) Contains(v float64) bool {
	if r.Inverted {
		if !math.IsInf(r.Lower, 0) && v <= r.Lower {
			return false
		}
		if !math.IsInf(r.Upper, 0) && v >= r.Upper {
			return false
		}
		return true
	}
	if !math.IsInf(r.Lower, 0) && v < r.Lower {
		return false
	}
	if !math.IsInf(r.Upper, 0) && v > r.Upper {
		return false
	}
	return true
}

// String renders the range back into its textual form.
func (r Range) String() string {
	var b strings.Builder
	if r.Inverted {
		b.WriteString(invertPrefix)
	}
	if math.IsInf(r.Lower, -1) {
		b.WriteString(infinity)
	} else {
		b.WriteString(strconv.FormatFloat(r.Lower, 'f', -1, 64))
	}
	b.WriteString(boundSeparator)
	if !math.IsInf(r.Upper, 1) {
		b.WriteString(strconv.FormatFloat(r.Upper, 'f', -1, 64))
	}
	return b.String()
}
