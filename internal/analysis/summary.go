package analysis

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/cplog-cli/internal/cplog"
	"github.com/KaramelBytes/cplog-cli/internal/dataset"
)

// SummaryOptions control BuildSummary.
type SummaryOptions struct {
	GroupBy          GroupBy
	OutlierThreshold float64
}

// ParamSummary gathers every table computed for one parameter.
type ParamSummary struct {
	Parameter    string
	Limits       cplog.Limits
	Stats        []GroupStat
	Yield        []YieldResult
	Capability   []CapabilityResult
	Distribution []DistributionResult
}

// Summary is a markdown-friendly report over one batch.
type Summary struct {
	BatchID   string
	GroupBy   GroupBy
	Parsed    []string
	Skipped   []dataset.Skipped
	Records   int
	RowErrors int
	Conflicts []*dataset.ConflictError
	Inverted  []cplog.Limits
	Params    []ParamSummary
}

// BuildSummary runs every query for each parameter. An empty params list
// means every parameter in the dataset.
func BuildSummary(b *dataset.Batch, params []string, opt SummaryOptions) *Summary {
	by := opt.GroupBy
	if by == "" {
		by = ByLot
	}
	ds := b.Dataset
	s := &Summary{
		BatchID:   b.ID.String(),
		GroupBy:   by,
		Parsed:    b.Parsed,
		Skipped:   b.Skipped,
		RowErrors: b.RowErrors,
		Conflicts: b.Conflicts,
	}
	if ds == nil {
		return s
	}
	s.Records = ds.Len()
	s.Inverted = ds.InvertedLimits()
	if len(params) == 0 {
		params = ds.Params()
	}
	for _, p := range params {
		lim, _ := ds.Limits(p)
		lim.Parameter = p
		s.Params = append(s.Params, ParamSummary{
			Parameter:    p,
			Limits:       lim,
			Stats:        GroupStats(ds, p, by),
			Yield:        Yield(ds, p, lim, by),
			Capability:   Capability(ds, p, lim, by),
			Distribution: Distribution(ds, p, lim, by, opt.OutlierThreshold),
		})
	}
	return s
}

// Param returns the summary for one parameter.
func (s *Summary) Param(name string) (ParamSummary, bool) {
	for _, p := range s.Params {
		if p.Parameter == name {
			return p, true
		}
	}
	return ParamSummary{}, false
}

// FormatBound renders an optional limit.
func FormatBound(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.6g", *f)
}

func formatIndex(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *f)
}

// Markdown renders the summary as sectioned plain text with markdown tables.
func (s *Summary) Markdown() string {
	var b strings.Builder
	b.WriteString("[BATCH]\n")
	if s.BatchID != "" {
		b.WriteString(fmt.Sprintf("Run: %s\n", s.BatchID))
	}
	b.WriteString(fmt.Sprintf("Files: %d parsed, %d skipped\n", len(s.Parsed), len(s.Skipped)))
	b.WriteString(fmt.Sprintf("Records: %d\n", s.Records))
	if s.RowErrors > 0 {
		b.WriteString(fmt.Sprintf("Short rows skipped: %d\n", s.RowErrors))
	}
	b.WriteString(fmt.Sprintf("Grouping: %s\n", s.GroupBy))

	if len(s.Params) > 0 {
		b.WriteString("\n[LIMITS]\n")
		b.WriteString("| Parameter | Lower | Upper |\n| --- | --- | --- |\n")
		for _, p := range s.Params {
			b.WriteString(fmt.Sprintf("| %s | %s | %s |\n", cell(p.Parameter), FormatBound(p.Limits.Lower), FormatBound(p.Limits.Upper)))
		}
		for _, l := range s.Inverted {
			b.WriteString(fmt.Sprintf("⚠ %s: lower limit %s exceeds upper limit %s; no reading can pass\n",
				l.Parameter, FormatBound(l.Lower), FormatBound(l.Upper)))
		}
	}
	if len(s.Conflicts) > 0 {
		b.WriteString("\n[CONFLICTS]\n")
		for _, c := range s.Conflicts {
			b.WriteString(fmt.Sprintf("- %s %s: kept %s (%s), ignored %.6g (%s)\n",
				c.Parameter, c.Bound, FormatBound(c.Kept), c.KeptFile, c.Rejected, c.File))
		}
	}
	if len(s.Skipped) > 0 {
		b.WriteString("\n[SKIPPED]\n")
		for _, sk := range s.Skipped {
			b.WriteString(fmt.Sprintf("- %s: %v\n", sk.File, sk.Err))
		}
	}

	for _, p := range s.Params {
		b.WriteString(fmt.Sprintf("\n[STATS] %s\n", p.Parameter))
		b.WriteString("| Group | Count | Missing | Mean | Std | Min | Max |\n| --- | --- | --- | --- | --- | --- | --- |\n")
		for _, g := range p.Stats {
			if !g.Valid {
				b.WriteString(fmt.Sprintf("| %s | 0 | %d | - | - | - | - |\n", cell(g.Key), g.Missing))
				continue
			}
			b.WriteString(fmt.Sprintf("| %s | %d | %d | %.4g | %.4g | %.4g | %.4g |\n",
				cell(g.Key), g.Count, g.Missing, g.Mean, g.Std, g.Min, g.Max))
		}

		b.WriteString(fmt.Sprintf("\n[YIELD] %s\n", p.Parameter))
		b.WriteString("| Group | Total | Passed | Failed | Yield % |\n| --- | --- | --- | --- | --- |\n")
		for _, y := range p.Yield {
			b.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %.2f |\n", cell(y.Key), y.Total, y.Passed, y.Failed, y.YieldPct))
		}

		b.WriteString(fmt.Sprintf("\n[CAPABILITY] %s\n", p.Parameter))
		if len(p.Capability) == 0 {
			b.WriteString("No group has enough spread and limits for Cp/Cpk.\n")
		} else {
			b.WriteString("| Group | Count | Mean | Std | Cp | Cpk |\n| --- | --- | --- | --- | --- | --- |\n")
			for _, c := range p.Capability {
				b.WriteString(fmt.Sprintf("| %s | %d | %.4g | %.4g | %s | %s |\n",
					cell(c.Key), c.Count, c.Mean, c.Std, formatIndex(c.Cp), formatIndex(c.Cpk)))
			}
		}

		if len(p.Distribution) > 0 {
			b.WriteString(fmt.Sprintf("\n[DISTRIBUTION] %s\n", p.Parameter))
			b.WriteString("| Group | Q1 | Median | Q3 | MAD | Outliers | >1.5×U | <0.5×L |\n| --- | --- | --- | --- | --- | --- | --- | --- |\n")
			for _, d := range p.Distribution {
				b.WriteString(fmt.Sprintf("| %s | %.4g | %.4g | %.4g | %.4g | %d | %d | %d |\n",
					cell(d.Key), d.Q1, d.Median, d.Q3, d.MAD, d.RobustOutliers, d.HighFlags, d.LowFlags))
			}
		}
	}
	return b.String()
}

func cell(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
