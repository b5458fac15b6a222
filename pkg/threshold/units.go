package threshold

import (
	"math"
	"strconv"
	"strings"
)

// unitSuffixes is checked in order, so two-letter binary suffixes must come
// before their one-letter decimal counterparts ("2Ki" is 2048, not 2000).
var unitSuffixes = []struct {
	suffix     string
	multiplier int64
}{
	{"Ki", 1 << 10},
	{"Mi", 1 << 20},
	{"Gi", 1 << 30},
	{"K", 1000},
	{"M", 1000 * 1000},
	{"G", 1000 * 1000 * 1000},
}

// ExpandUnits replaces byte-size shorthand (K, Ki, M, Mi, G, Gi) in a range
// string with plain integers, e.g. "1000Mi:" becomes "1048576000:".
//
// Tokens without a known suffix, or whose prefix is not an integer, or whose
// value does not fit in an int64, are returned unchanged; ParseRange reports
// them later. A leading "@" is kept as is.
func ExpandUnits(spec string) string {
	if rest, ok := strings.CutPrefix(spec, invertPrefix); ok {
		return invertPrefix + ExpandUnits(rest)
	}
	if strings.Contains(spec, boundSeparator) {
		parts := strings.Split(spec, boundSeparator)
		for i, p := range parts {
			parts[i] = ExpandUnits(p)
		}
		return strings.Join(parts, boundSeparator)
	}

	for _, u := range unitSuffixes {
		if !strings.HasSuffix(spec, u.suffix) {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSuffix(spec, u.suffix), 10, 64)
		if err != nil || n > math.MaxInt64/u.multiplier || n < math.MinInt64/u.multiplier {
			return spec
		}
		return strconv.FormatInt(n*u.multiplier, 10)
	}
	return spec
}
