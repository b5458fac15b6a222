package threshold

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	cases := []struct {
		spec string
		want Range
	}{
		{"10", Range{Lower: 0, Upper: 10}},
		{"0:10", Range{Lower: 0, Upper: 10}},
		{"10:20", Range{Lower: 10, Upper: 20}},
		{"-5.5:2", Range{Lower: -5.5, Upper: 2}},
		{"~:5", Range{Lower: math.Inf(-1), Upper: 5}},
		{"5:", Range{Lower: 5, Upper: math.Inf(1)}},
		{"5:~", Range{Lower: 5, Upper: math.Inf(1)}},
		{"~:~", Range{Lower: math.Inf(-1), Upper: math.Inf(1)}},
		{"~", Range{Lower: 0, Upper: math.Inf(1)}},
		{"@10:20", Range{Inverted: true, Lower: 10, Upper: 20}},
		{"@5", Range{Inverted: true, Lower: 0, Upper: 5}},
		{"20:10", Range{Lower: 20, Upper: 10}},
	}
	for _, c := range cases {
		t.Run(c.spec, func(t *testing.T) {
			got, err := ParseRange(c.spec)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestParseRange_Invalid(t *testing.T) {
	for _, spec := range []string{"", "@", "abc", "1:2:3", ":5", "1x:", "5:y", "nan", "inf:", "5Gi", "1,5"} {
		t.Run(spec, func(t *testing.T) {
			_, err := ParseRange(spec)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRangeFormat)
		})
	}
}

func TestRangeContains(t *testing.T) {
	cases := []struct {
		spec   string
		value  float64
		accept bool
	}{
		// bounds are inclusive
		{"10:20", 10, true},
		{"10:20", 20, true},
		{"10:20", 15, true},
		{"10:20", 9.999, false},
		{"10:20", 20.001, false},

		// inversion makes both bounds exclusive
		{"@10:20", 10, false},
		{"@10:20", 20, false},
		{"@10:20", 10.5, true},
		{"@10:20", 5, false},
		{"@10:20", 25, false},

		{"~:5", -1e12, true},
		{"~:5", 5, true},
		{"~:5", 5.1, false},
		{"5:", 5, true},
		{"5:", 1e15, true},
		{"5:", 4.9, false},
		{"~:~", -1e300, true},
		{"~:~", 1e300, true},

		// empty interval always alerts
		{"20:10", 15, false},
		{"20:10", 10, false},
	}
	for _, c := range cases {
		r := MustParseRange(c.spec)
		assert.Equalf(t, c.accept, r.Contains(c.value), "%s contains %v", c.spec, c.value)
	}
}

func TestParseRange_ShorthandEquivalence(t *testing.T) {
	short := MustParseRange("5")
	long := MustParseRange("0:5")
	require.Equal(t, long, short)
	for _, v := range []float64{-1, 0, 2.5, 5, 5.01} {
		assert.Equal(t, long.Contains(v), short.Contains(v), "value %v", v)
	}
}

func TestRangeString(t *testing.T) {
	for spec, want := range map[string]string{
		"10":     "0:10",
		"10:20":  "10:20",
		"@~:5.5": "@~:5.5",
		"5:":     "5:",
		"5:~":    "5:",
	} {
		assert.Equal(t, want, MustParseRange(spec).String(), spec)
	}
}

func TestMustParseRange_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParseRange("x") })
}
