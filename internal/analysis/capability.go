package analysis

import (
	"math"

	"github.com/KaramelBytes/cplog-cli/internal/cplog"
)

// CapabilityResult holds process capability indices for one group. Cp is
// nil unless both limits are declared.
type CapabilityResult struct {
	Key   string
	Count int
	Mean  float64
	Std   float64
	Cp    *float64
	Cpk   *float64
}

// Capability computes Cp and Cpk per group. Groups with fewer than two
// valid readings or zero spread are left out, as is every group when
// neither limit is declared.
func Capability(src Source, param string, limits cplog.Limits, by GroupBy) []CapabilityResult {
	if !limits.Defined() {
		return nil
	}
	var out []CapabilityResult
	for _, g := range groupValues(src, param, by) {
		acc, _ := summarize(g.vals)
		if acc.n < 2 {
			continue
		}
		sigma := acc.std()
		if sigma == 0 || math.IsNaN(sigma) {
			continue
		}
		r := CapabilityResult{Key: g.key, Count: acc.n, Mean: acc.mean, Std: sigma}
		r.Cp, r.Cpk = indices(acc.mean, sigma, limits)
		out = append(out, r)
	}
	return out
}

func indices(mean, sigma float64, l cplog.Limits) (cp, cpk *float64) {
	if l.Upper != nil && l.Lower != nil {
		v := (*l.Upper - *l.Lower) / (6 * sigma)
		cp = &v
	}
	k := math.Inf(1)
	if l.Upper != nil {
		k = math.Min(k, (*l.Upper-mean)/(3*sigma))
	}
	if l.Lower != nil {
		k = math.Min(k, (mean-*l.Lower)/(3*sigma))
	}
	if !math.IsInf(k, 1) {
		cpk = &k
	}
	return
}
