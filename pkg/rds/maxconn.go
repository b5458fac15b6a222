package rds

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrUnsupportedExpression is returned for max_connections formulas other
	// than a literal or {DBInstanceClassMemory/N}.
	ErrUnsupportedExpression = errors.New("unsupported max_connections expression")
	// ErrMissingParameter is returned when the parameter group has no
	// max_connections value.
	ErrMissingParameter = errors.New("max_connections parameter not found")
)

const memoryVariable = "DBInstanceClassMemory"

// MaxConnections is the value of the max_connections parameter.
// It is either a Literal or a MemoryDivisor.
type MaxConnections interface {
	// Resolve returns the connection limit for an instance with memoryBytes of RAM.
	Resolve(memoryBytes float64) float64
	String() string
}

// Literal is a fixed connection limit.
type Literal float64

func (l Literal) Resolve(float64) float64 { return float64(l) }

func (l Literal) String() string { return strconv.FormatFloat(float64(l), 'f', -1, 64) }

// MemoryDivisor is {DBInstanceClassMemory/N}.
type MemoryDivisor struct {
	N int64
}

func (d MemoryDivisor) Resolve(memoryBytes float64) float64 {
	return math.Floor(memoryBytes / float64(d.N))
}

func (d MemoryDivisor) String() string {
	return fmt.Sprintf("{%s/%d}", memoryVariable, d.N)
}

// ParseMaxConnections parses the raw parameter value.
func ParseMaxConnections(raw string) (MaxConnections, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, ErrMissingParameter
	}

	if !strings.HasPrefix(s, "{") {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedExpression, raw)
		}
		return Literal(n), nil
	}

	body, ok := strings.CutSuffix(strings.TrimPrefix(s, "{"), "}")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExpression, raw)
	}
	name, divisor, ok := strings.Cut(body, "/")
	if !ok || strings.TrimSpace(name) != memoryVariable {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExpression, raw)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(divisor), 10, 64)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExpression, raw)
	}
	return MemoryDivisor{N: n}, nil
}
