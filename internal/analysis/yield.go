package analysis

import "github.com/KaramelBytes/cplog-cli/internal/cplog"

// YieldResult counts passing devices in one group.
type YieldResult struct {
	Key      string
	Total    int
	Passed   int
	Failed   int
	YieldPct float64
}

// Yield counts, per group, the devices whose reading lies within limits.
// A missing reading always fails. An absent bound does not constrain.
func Yield(src Source, param string, limits cplog.Limits, by GroupBy) []YieldResult {
	groups := groupValues(src, param, by)
	out := make([]YieldResult, 0, len(groups))
	for _, g := range groups {
		y := YieldResult{Key: g.key, Total: len(g.vals)}
		for _, v := range g.vals {
			if x, ok := v.Float(); ok && limits.Contains(x) {
				y.Passed++
			}
		}
		y.Failed = y.Total - y.Passed
		if y.Total > 0 {
			y.YieldPct = float64(y.Passed) / float64(y.Total) * 100
		}
		out = append(out, y)
	}
	return out
}
