// Package analysis computes per-group statistics, yield and process
// capability over a merged dataset. All functions are read-only on their
// input and safe for concurrent use.
package analysis

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/KaramelBytes/cplog-cli/internal/cplog"
	"github.com/KaramelBytes/cplog-cli/internal/units"
)

// GroupBy selects the record attribute that partitions results.
type GroupBy string

const (
	ByLot      GroupBy = "lot"
	ByWafer    GroupBy = "wafer"
	ByLotWafer GroupBy = "lot_wafer"
	ByFile     GroupBy = "file"
	ByAll      GroupBy = "all"
)

// GroupByValues lists the accepted GroupBy names.
var GroupByValues = []GroupBy{ByLot, ByWafer, ByLotWafer, ByFile, ByAll}

// NoKey labels records whose grouping attribute is empty.
const NoKey = "(none)"

// ParseGroupBy accepts a GroupBy name, case-insensitively.
func ParseGroupBy(s string) (GroupBy, error) {
	g := GroupBy(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range GroupByValues {
		if g == v {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown grouping %q (want lot, wafer, lot_wafer, file or all)", s)
}

// Source is anything that can list records; *dataset.Dataset satisfies it.
type Source interface {
	Records() []cplog.Record
}

// Key returns the group key of r.
func (g GroupBy) Key(r cplog.Record) string {
	var k string
	switch g {
	case ByLot:
		k = r.Lot
	case ByWafer:
		k = r.Wafer
	case ByLotWafer:
		if r.Lot == "" && r.Wafer == "" {
			return NoKey
		}
		return orNone(r.Lot) + "/" + orNone(r.Wafer)
	case ByFile:
		k = r.File
	default:
		return string(ByAll)
	}
	return orNone(k)
}

func orNone(s string) string {
	if s == "" {
		return NoKey
	}
	return s
}

type group struct {
	key  string
	vals []units.Value
}

// groupValues partitions the readings of param. Records without the
// parameter column are not members of any group.
func groupValues(src Source, param string, by GroupBy) []group {
	idx := map[string]int{}
	var out []group
	for _, r := range src.Records() {
		v, ok := r.Value(param)
		if !ok {
			continue
		}
		k := by.Key(r)
		i, seen := idx[k]
		if !seen {
			i = len(out)
			idx[k] = i
			out = append(out, group{key: k})
		}
		out[i].vals = append(out[i].vals, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return NaturalLess(out[i].key, out[j].key) })
	return out
}

// NaturalLess orders strings with embedded numbers by numeric value, so
// "W2" sorts before "W10".
func NaturalLess(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ra) && j < len(rb) {
		ca, cb := ra[i], rb[j]
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			si := i
			for i < len(ra) && unicode.IsDigit(ra[i]) {
				i++
			}
			sj := j
			for j < len(rb) && unicode.IsDigit(rb[j]) {
				j++
			}
			na := strings.TrimLeft(string(ra[si:i]), "0")
			nb := strings.TrimLeft(string(rb[sj:j]), "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	if len(ra)-i != len(rb)-j {
		return len(ra)-i < len(rb)-j
	}
	return a < b
}
