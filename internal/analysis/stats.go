package analysis

import (
	"math"

	"github.com/KaramelBytes/cplog-cli/internal/units"
)

// GroupStat summarizes the valid readings of one group. Valid is false when
// the group has no valid reading, in which case the numeric fields are zero.
type GroupStat struct {
	Key     string
	Count   int
	Missing int
	Mean    float64
	Std     float64
	Min     float64
	Max     float64
	Valid   bool
}

// accumulator is a running mean/variance (Welford) with min and max.
type accumulator struct {
	n        int
	mean, m2 float64
	min, max float64
}

func (a *accumulator) add(x float64) {
	a.n++
	if a.n == 1 {
		a.min, a.max = x, x
	} else {
		a.min = math.Min(a.min, x)
		a.max = math.Max(a.max, x)
	}
	delta := x - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (x - a.mean)
}

// std is the sample standard deviation; zero for fewer than two values.
func (a *accumulator) std() float64 {
	if a.n < 2 {
		return 0
	}
	return math.Sqrt(a.m2 / float64(a.n-1))
}

func summarize(vals []units.Value) (acc accumulator, missing int) {
	for _, v := range vals {
		if x, ok := v.Float(); ok {
			acc.add(x)
		} else {
			missing++
		}
	}
	return
}

// GroupStats returns count, mean, sample standard deviation, min and max of
// param per group, in natural key order.
func GroupStats(src Source, param string, by GroupBy) []GroupStat {
	groups := groupValues(src, param, by)
	out := make([]GroupStat, 0, len(groups))
	for _, g := range groups {
		acc, missing := summarize(g.vals)
		s := GroupStat{Key: g.key, Count: acc.n, Missing: missing}
		if acc.n > 0 {
			s.Valid = true
			s.Mean, s.Std = acc.mean, acc.std()
			s.Min, s.Max = acc.min, acc.max
		}
		out = append(out, s)
	}
	return out
}
