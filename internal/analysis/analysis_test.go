package analysis

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/cplog-cli/internal/cplog"
	"github.com/KaramelBytes/cplog-cli/internal/dataset"
	"github.com/KaramelBytes/cplog-cli/internal/units"
)

type records []cplog.Record

func (r records) Records() []cplog.Record { return r }

func ptr(f float64) *float64 { return &f }

func rec(lot, wafer string, vals map[string]units.Value) cplog.Record {
	return cplog.Record{File: lot + "_" + wafer + ".txt", Lot: lot, Wafer: wafer, Values: vals}
}

func bv(v units.Value) map[string]units.Value { return map[string]units.Value{"BV": v} }

var bvLimits = cplog.Limits{Parameter: "BV", Upper: ptr(900), Lower: ptr(660)}

func threeDevices() records {
	return records{
		rec("L1", "W1", bv(units.Number(700))),
		rec("L1", "W1", bv(units.Number(680))),
		rec("L1", "W1", bv(units.Number(750))),
	}
}

func TestGroupStatsSampleStd(t *testing.T) {
	stats := GroupStats(threeDevices(), "BV", ByLot)
	require.Len(t, stats, 1)
	s := stats[0]
	assert.Equal(t, "L1", s.Key)
	assert.Equal(t, 3, s.Count)
	assert.True(t, s.Valid)
	assert.InDelta(t, 710.0, s.Mean, 1e-9)
	assert.InDelta(t, 36.0555, s.Std, 1e-3)
	assert.Equal(t, 680.0, s.Min)
	assert.Equal(t, 750.0, s.Max)
}

func TestYieldAllPass(t *testing.T) {
	y := Yield(threeDevices(), "BV", bvLimits, ByLot)
	require.Len(t, y, 1)
	assert.Equal(t, YieldResult{Key: "L1", Total: 3, Passed: 3, Failed: 0, YieldPct: 100}, y[0])
}

func TestSingleValueGroup(t *testing.T) {
	src := records{rec("L1", "W1", bv(units.Number(700)))}
	stats := GroupStats(src, "BV", ByLot)
	require.Len(t, stats, 1)
	assert.Equal(t, 0.0, stats[0].Std)
	assert.Empty(t, Capability(src, "BV", bvLimits, ByLot), "one reading has no spread")
}

func TestMissingAlwaysFails(t *testing.T) {
	src := records{
		rec("L1", "W1", bv(units.Number(700))),
		rec("L1", "W1", bv(units.Missing)),
	}
	for _, lim := range []cplog.Limits{bvLimits, {Parameter: "BV"}, {Parameter: "BV", Upper: ptr(1e9)}} {
		y := Yield(src, "BV", lim, ByLot)
		require.Len(t, y, 1)
		assert.Equal(t, 2, y[0].Total)
		assert.Equal(t, 1, y[0].Passed)
		assert.Equal(t, 1, y[0].Failed)
		assert.InDelta(t, 50.0, y[0].YieldPct, 1e-9)
	}
	stats := GroupStats(src, "BV", ByLot)
	assert.Equal(t, 1, stats[0].Count)
	assert.Equal(t, 1, stats[0].Missing)
}

func TestAllMissingGroupIsInvalid(t *testing.T) {
	src := records{rec("L1", "W1", bv(units.Missing)), rec("L2", "W1", bv(units.Number(1)))}
	stats := GroupStats(src, "BV", ByLot)
	require.Len(t, stats, 2)
	assert.False(t, stats[0].Valid)
	assert.Equal(t, 0, stats[0].Count)
	assert.True(t, stats[1].Valid)
	assert.Len(t, Distribution(src, "BV", bvLimits, ByLot, 0), 1)
}

func TestRecordsWithoutParameterAreNotMembers(t *testing.T) {
	src := records{
		rec("L1", "W1", bv(units.Number(700))),
		rec("L2", "W1", map[string]units.Value{"IDSS": units.Number(1e-7)}),
	}
	y := Yield(src, "BV", bvLimits, ByLot)
	require.Len(t, y, 1)
	assert.Equal(t, "L1", y[0].Key)
	assert.Empty(t, GroupStats(src, "RDSON", ByLot))
}

func TestYieldInclusiveAndOneSided(t *testing.T) {
	src := records{
		rec("L1", "", bv(units.Number(660))),
		rec("L1", "", bv(units.Number(900))),
		rec("L1", "", bv(units.Number(900.0001))),
	}
	y := Yield(src, "BV", bvLimits, ByLot)
	assert.Equal(t, 2, y[0].Passed)

	y = Yield(src, "BV", cplog.Limits{Lower: ptr(660)}, ByLot)
	assert.Equal(t, 3, y[0].Passed)

	inverted := cplog.Limits{Upper: ptr(600), Lower: ptr(660)}
	y = Yield(src, "BV", inverted, ByLot)
	assert.Equal(t, 0, y[0].Passed)
}

func TestCapability(t *testing.T) {
	caps := Capability(threeDevices(), "BV", bvLimits, ByLot)
	require.Len(t, caps, 1)
	c := caps[0]
	sigma := 36.05551275463989
	require.NotNil(t, c.Cp)
	require.NotNil(t, c.Cpk)
	assert.InDelta(t, 240/(6*sigma), *c.Cp, 1e-9)
	assert.InDelta(t, math.Min((900-710)/(3*sigma), (710-660)/(3*sigma)), *c.Cpk, 1e-9)
	assert.LessOrEqual(t, *c.Cpk, *c.Cp)

	upperOnly := Capability(threeDevices(), "BV", cplog.Limits{Upper: ptr(900)}, ByLot)
	require.Len(t, upperOnly, 1)
	assert.Nil(t, upperOnly[0].Cp)
	assert.InDelta(t, (900-710)/(3*sigma), *upperOnly[0].Cpk, 1e-9)

	assert.Nil(t, Capability(threeDevices(), "BV", cplog.Limits{}, ByLot))

	flat := records{rec("L1", "", bv(units.Number(5))), rec("L1", "", bv(units.Number(5)))}
	assert.Empty(t, Capability(flat, "BV", bvLimits, ByLot))
}

func TestGroupingModesAndOrder(t *testing.T) {
	src := records{
		rec("L10", "W2", bv(units.Number(1))),
		rec("L2", "W10", bv(units.Number(2))),
		rec("L2", "W2", bv(units.Number(3))),
		rec("", "W1", bv(units.Number(4))),
	}
	keys := func(by GroupBy) []string {
		var out []string
		for _, s := range GroupStats(src, "BV", by) {
			out = append(out, s.Key)
		}
		return out
	}
	assert.Equal(t, []string{NoKey, "L2", "L10"}, keys(ByLot))
	assert.Equal(t, []string{"W1", "W2", "W10"}, keys(ByWafer))
	assert.Equal(t, []string{NoKey + "/W1", "L2/W2", "L2/W10", "L10/W2"}, keys(ByLotWafer))
	assert.Equal(t, []string{"all"}, keys(ByAll))
	assert.Len(t, keys(ByFile), 4)
}

func TestParseGroupBy(t *testing.T) {
	g, err := ParseGroupBy(" Wafer ")
	require.NoError(t, err)
	assert.Equal(t, ByWafer, g)
	_, err = ParseGroupBy("die")
	assert.Error(t, err)
}

func TestNaturalLess(t *testing.T) {
	assert.True(t, NaturalLess("W2", "W10"))
	assert.False(t, NaturalLess("W10", "W2"))
	assert.True(t, NaturalLess("LOT001", "LOT2"))
	assert.True(t, NaturalLess("A", "B"))
	assert.True(t, NaturalLess("W1", "W1a"))
	assert.False(t, NaturalLess("W1", "W1"))
}

func TestDistribution(t *testing.T) {
	var src records
	for _, v := range []float64{700, 701, 702, 703, 704, 705, 706, 707, 2000} {
		src = append(src, rec("L1", "", bv(units.Number(v))))
	}
	src = append(src, rec("L1", "", bv(units.Number(100))))
	d := Distribution(src, "BV", bvLimits, ByLot, 0)
	require.Len(t, d, 1)
	assert.Equal(t, 10, d[0].Count)
	assert.Equal(t, 1, d[0].HighFlags, "2000 > 1.5*900")
	assert.Equal(t, 1, d[0].LowFlags, "100 < 0.5*660")
	assert.Equal(t, 2, d[0].RobustOutliers)
	assert.InDelta(t, 703.5, d[0].Median, 1e-9)
	assert.LessOrEqual(t, d[0].Q1, d[0].Median)
	assert.LessOrEqual(t, d[0].Median, d[0].Q3)
}

func TestQuantileAndMAD(t *testing.T) {
	assert.Equal(t, 0.0, quantile(nil, 0.5))
	assert.Equal(t, 2.0, quantile([]float64{1, 2, 3}, 0.5))
	assert.Equal(t, 2.5, quantile([]float64{1, 2, 3, 4}, 0.5))
	m, mad := medianMAD([]float64{1, 2, 3, 4, 100})
	assert.Equal(t, 3.0, m)
	assert.Equal(t, 1.0, mad)
}

func TestBuildSummaryMarkdown(t *testing.T) {
	a := &cplog.Result{
		File:    "a.txt",
		Params:  []string{"BV"},
		Records: []cplog.Record(threeDevices()),
		Limits:  map[string]cplog.Limits{"BV": bvLimits},
	}
	b := &cplog.Result{
		File:    "b.txt",
		Params:  []string{"BV"},
		Records: []cplog.Record{rec("L2", "W1", bv(units.Number(720)))},
		Limits:  map[string]cplog.Limits{"BV": {Parameter: "BV", Upper: ptr(850), Lower: ptr(660)}},
	}
	ds, conflicts := dataset.Merge([]*cplog.Result{a, b})
	batch := &dataset.Batch{Dataset: ds, Parsed: []string{"a.txt", "b.txt"}, Conflicts: conflicts,
		Skipped: []dataset.Skipped{{File: "junk.txt", Err: cplog.ErrNoHeader}}}

	s := BuildSummary(batch, nil, SummaryOptions{GroupBy: ByLot})
	require.Len(t, s.Params, 1)
	p, ok := s.Param("BV")
	require.True(t, ok)
	assert.Len(t, p.Yield, 2)
	assert.Len(t, p.Capability, 1, "L2 has a single reading")

	md := s.Markdown()
	for _, want := range []string{"[BATCH]", "[LIMITS]", "[CONFLICTS]", "[SKIPPED]", "[STATS] BV", "[YIELD] BV", "[CAPABILITY] BV", "[DISTRIBUTION] BV", "junk.txt", "| L1 | 3 | 3 | 0 | 100.00 |"} {
		assert.True(t, strings.Contains(md, want), "markdown missing %q:\n%s", want, md)
	}
}
