package state

import (
	"fmt"
	"math/bits"
	"strconv"
)

// Metric is a path cost. The zero value is Inf, so an unset metric is never
// mistaken for a reachable one.
type Metric struct {
	cost   uint64
	finite bool
}

// Inf marks a destination as unreachable.
var Inf = Metric{}

func Finite(cost uint64) Metric {
	return Metric{cost: cost, finite: true}
}

func (m Metric) IsInf() bool {
	return !m.finite
}

// Value returns the cost and whether the metric is finite.
func (m Metric) Value() (uint64, bool) {
	return m.cost, m.finite
}

// Add sums two metrics. Inf absorbs, and a sum that overflows uint64 is Inf.
func (m Metric) Add(o Metric) Metric {
	if !m.finite || !o.finite {
		return Inf
	}
	sum, carry := bits.Add64(m.cost, o.cost, 0)
	if carry != 0 {
		return Inf
	}
	return Finite(sum)
}

// Less orders metrics with Inf greater than every finite value.
func (m Metric) Less(o Metric) bool {
	if !m.finite {
		return false
	}
	if !o.finite {
		return true
	}
	return m.cost < o.cost
}

func (m Metric) String() string {
	if !m.finite {
		return "inf"
	}
	return strconv.FormatUint(m.cost, 10)
}

func (m Metric) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Metric) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "inf" {
		*m = Inf
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid metric %q: %w", s, err)
	}
	*m = Finite(v)
	return nil
}
