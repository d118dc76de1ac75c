package cplog

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/KaramelBytes/cplog-cli/internal/units"
)

const (
	// HeaderToken starts the parameter-name row.
	HeaderToken = "No.U"
	// UpperToken and LowerToken start the two limit rows.
	UpperToken = "LimitU"
	LowerToken = "LimitL"

	metadataScanLines = 20
)

var metaLabels = []string{"Program name", "Lot number", "Wafer number", "Date", "Time"}

var metaRe = regexp.MustCompile(`(?i)^\s*(Program name|Lot number|Wafer number|Date|Time)(?:\s*[:=]\s*|\s+)(\S.*?)\s*$`)

// Parse extracts records and limits from the lines of one log. targets
// selects the parameter columns to keep; an empty set keeps every column.
//
// The file must contain a No.U header, a LimitU and a LimitL row, and at
// least one data row. A numeric-led row with
// fewer fields than the header is skipped and reported in RowErrors.
func Parse(name string, lines []string, targets []string) (*Result, error) {
	hdr := findHeader(lines)
	if hdr < 0 {
		return nil, formatErr(name, ErrNoHeader, "no line starts with %q", HeaderToken)
	}
	res := &Result{File: name, Meta: extractMetadata(lines[:min(hdr, metadataScanLines)])}

	header := splitFields(lines[hdr])
	for len(header) > 1 && header[len(header)-1] == "" {
		header = header[:len(header)-1]
	}
	width := len(header)

	want := targetSet(targets)
	col := map[string]int{}
	for i := 1; i < width; i++ {
		p := header[i]
		if p == "" {
			continue
		}
		if _, dup := col[p]; dup {
			continue
		}
		if want != nil {
			if _, ok := want[p]; !ok {
				continue
			}
		}
		col[p] = i
		res.Params = append(res.Params, p)
	}
	if len(res.Params) == 0 {
		return nil, formatErr(name, ErrNoTargets, "header has %d columns, none selected", width-1)
	}

	// Limit rows sit between the header and the first data row.
	var upper, lower []string
	start := -1
	for i := hdr + 1; i < len(lines) && start < 0; i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		f := splitFields(lines[i])
		switch first := f[0]; {
		case first == UpperToken:
			if upper == nil {
				upper = f
			}
		case first == LowerToken:
			if lower == nil {
				lower = f
			}
		default:
			if _, ok := parseIndex(first); ok {
				start = i
			}
		}
	}

	if upper == nil {
		return nil, formatErr(name, ErrNoLimits, "no %s row", UpperToken)
	}
	if lower == nil {
		return nil, formatErr(name, ErrNoLimits, "no %s row", LowerToken)
	}
	// Testers drop trailing empty cells, so a short limit row leaves the
	// uncovered parameters without that bound.
	res.Limits = make(map[string]Limits, len(res.Params))
	for _, p := range res.Params {
		res.Limits[p] = Limits{
			Parameter: p,
			Upper:     limitCell(upper, col[p]),
			Lower:     limitCell(lower, col[p]),
		}
	}
	if start < 0 {
		return nil, formatErr(name, ErrNoData, "no data row after line %d", hdr+1)
	}

	for i := start; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		f := splitFields(lines[i])
		dev, ok := parseIndex(f[0])
		if !ok {
			break
		}
		if len(f) < width {
			res.RowErrors = append(res.RowErrors, RowError{Line: i + 1, Fields: len(f), Want: width})
			continue
		}
		rec := Record{
			File:   name,
			Lot:    res.Meta.Lot,
			Wafer:  res.Meta.Wafer,
			Device: dev,
			Values: make(map[string]units.Value, len(res.Params)),
		}
		for _, p := range res.Params {
			rec.Values[p] = units.Parse(f[col[p]])
		}
		res.Records = append(res.Records, rec)
	}
	if len(res.Records) == 0 {
		return nil, formatErr(name, ErrNoData, "%d data rows, all shorter than the header", len(res.RowErrors))
	}
	return res, nil
}

func limitCell(row []string, c int) *float64 {
	if c >= len(row) {
		return nil
	}
	return units.ParsePtr(row[c])
}

func findHeader(lines []string) int {
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), HeaderToken) && splitFields(l)[0] == HeaderToken {
			return i
		}
	}
	return -1
}

// extractMetadata reads "Key<TAB>Value" pairs, falling back to a
// whitespace-delimited pattern. The first occurrence of a label wins.
func extractMetadata(lines []string) Metadata {
	found := map[string]string{}
	for _, l := range lines {
		f := splitFields(l)
		key := strings.TrimSpace(strings.TrimSuffix(f[0], ":"))
		matched := false
		for _, label := range metaLabels {
			if !strings.EqualFold(key, label) {
				continue
			}
			matched = true
			if _, seen := found[label]; seen {
				break
			}
			for _, v := range f[1:] {
				if v != "" {
					found[label] = v
					break
				}
			}
			break
		}
		if matched {
			continue
		}
		if m := metaRe.FindStringSubmatch(l); m != nil {
			for _, label := range metaLabels {
				if strings.EqualFold(m[1], label) {
					if _, seen := found[label]; !seen {
						found[label] = strings.TrimSpace(m[2])
					}
				}
			}
		}
	}
	return Metadata{
		Program: found["Program name"],
		Lot:     found["Lot number"],
		Wafer:   found["Wafer number"],
		Date:    found["Date"],
		Time:    found["Time"],
	}
}

// splitFields splits a line on tabs and trims each cell. Trailing empty
// cells are kept so positional alignment with the header survives.
func splitFields(line string) []string {
	f := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	for i := range f {
		f[i] = strings.TrimSpace(f[i])
	}
	return f
}

// parseIndex accepts a non-negative decimal device index.
func parseIndex(s string) (uint32, bool) {
	if s == "" || s[0] < '0' || s[0] > '9' {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

func targetSet(targets []string) map[string]struct{} {
	var set map[string]struct{}
	for _, t := range targets {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if set == nil {
			set = map[string]struct{}{}
		}
		set[t] = struct{}{}
	}
	return set
}
