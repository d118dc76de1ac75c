package analysis

import (
	"math"
	"sort"

	"github.com/KaramelBytes/cplog-cli/internal/cplog"
)

// DefaultOutlierThreshold is the robust |z| above which a reading is an outlier.
const DefaultOutlierThreshold = 3.5

// minRobustSample is the smallest group for which MAD outliers are counted.
const minRobustSample = 8

// DistributionResult describes the spread of one group: quartiles, MAD,
// robust outliers and readings far outside the declared limits.
type DistributionResult struct {
	Key            string
	Count          int
	Q1             float64
	Median         float64
	Q3             float64
	MAD            float64
	RobustOutliers int
	MaxAbsZ        float64
	// HighFlags counts readings above 1.5x the upper limit, LowFlags those
	// below 0.5x the lower limit.
	HighFlags int
	LowFlags  int
}

// Distribution computes box-plot figures per group. threshold <= 0 uses
// DefaultOutlierThreshold. Groups without valid readings are left out.
func Distribution(src Source, param string, limits cplog.Limits, by GroupBy, threshold float64) []DistributionResult {
	if threshold <= 0 {
		threshold = DefaultOutlierThreshold
	}
	var out []DistributionResult
	for _, g := range groupValues(src, param, by) {
		vals := make([]float64, 0, len(g.vals))
		for _, v := range g.vals {
			if x, ok := v.Float(); ok {
				vals = append(vals, x)
			}
		}
		if len(vals) == 0 {
			continue
		}
		sort.Float64s(vals)
		d := DistributionResult{
			Key:    g.key,
			Count:  len(vals),
			Q1:     quantile(vals, 0.25),
			Median: quantile(vals, 0.5),
			Q3:     quantile(vals, 0.75),
		}
		_, d.MAD = medianMAD(vals)
		if len(vals) >= minRobustSample && d.MAD > 0 {
			for _, x := range vals {
				az := math.Abs(0.6745 * (x - d.Median) / d.MAD)
				if az > threshold {
					d.RobustOutliers++
				}
				d.MaxAbsZ = math.Max(d.MaxAbsZ, az)
			}
		}
		for _, x := range vals {
			if limits.Upper != nil && x > 1.5**limits.Upper {
				d.HighFlags++
			}
			if limits.Lower != nil && x < 0.5**limits.Lower {
				d.LowFlags++
			}
		}
		out = append(out, d)
	}
	return out
}

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

// quantile interpolates linearly between closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
