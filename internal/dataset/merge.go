package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/KaramelBytes/cplog-cli/internal/cplog"
)

// Bound names used in conflict reports.
const (
	BoundUpper = "upper"
	BoundLower = "lower"
)

// limitTolerance is the relative difference under which two declared bounds
// are considered the same value.
const limitTolerance = 1e-9

// ConflictError reports a later file declaring a bound that differs from the
// limits adopted for the parameter. Kept is nil when the adopted limits leave
// that bound absent. The adopted limits are never changed.
type ConflictError struct {
	Parameter string
	Bound     string
	Kept      *float64
	KeptFile  string
	Rejected  float64
	File      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("limit conflict: %s %s %s from %s kept, %g from %s ignored",
		e.Parameter, e.Bound, e.KeptText(), e.KeptFile, e.Rejected, e.File)
}

// KeptText renders the kept bound, "absent" when there is none.
func (e *ConflictError) KeptText() string {
	if e.Kept == nil {
		return "absent"
	}
	return strconv.FormatFloat(*e.Kept, 'g', -1, 64)
}

// Dataset is the merged, read-only view over every parsed file.
type Dataset struct {
	records []cplog.Record
	limits  map[string]cplog.Limits
	params  []string
	files   []string
}

// Records returns every record in file order, then row order. Callers must
// not modify the returned records.
func (d *Dataset) Records() []cplog.Record { return d.records }

func (d *Dataset) Len() int { return len(d.records) }

// Limits returns the merged limits for param.
func (d *Dataset) Limits(param string) (cplog.Limits, bool) {
	l, ok := d.limits[param]
	return l, ok
}

// LimitsMap returns a copy of the merged limit table.
func (d *Dataset) LimitsMap() map[string]cplog.Limits {
	out := make(map[string]cplog.Limits, len(d.limits))
	for k, v := range d.limits {
		out[k] = v
	}
	return out
}

// Params returns every parameter seen in any file, sorted.
func (d *Dataset) Params() []string { return append([]string(nil), d.params...) }

// Files returns the names of the merged files in merge order.
func (d *Dataset) Files() []string { return append([]string(nil), d.files...) }

// Merge folds parse results, in order, into one dataset. Records are
// concatenated. The first file declaring any bound for a parameter fixes that
// parameter's limits as a whole. A later file declaring a bound that differs
// from the fixed one, or that the fixed limits leave absent, is returned as a
// conflict. Later absent bounds change nothing.
func Merge(results []*cplog.Result) (*Dataset, []*ConflictError) {
	d := &Dataset{limits: map[string]cplog.Limits{}}
	owner := map[string]string{} // param -> file whose limits were adopted
	var conflicts []*ConflictError

	n := 0
	for _, r := range results {
		if r != nil {
			n += len(r.Records)
		}
	}
	d.records = make([]cplog.Record, 0, n)

	seen := map[string]struct{}{}
	for _, r := range results {
		if r == nil {
			continue
		}
		d.files = append(d.files, r.File)
		d.records = append(d.records, r.Records...)
		for _, p := range r.Params {
			seen[p] = struct{}{}
			next, ok := r.Limits[p]
			if !ok {
				continue
			}
			kept, fixed := owner[p]
			if !fixed {
				if next.Defined() {
					owner[p] = r.File
					d.limits[p] = cplog.Limits{Parameter: p, Upper: clone(next.Upper), Lower: clone(next.Lower)}
				} else if _, ok := d.limits[p]; !ok {
					d.limits[p] = cplog.Limits{Parameter: p}
				}
				continue
			}
			cur := d.limits[p]
			if c := checkBound(p, BoundUpper, cur.Upper, next.Upper, kept, r.File); c != nil {
				conflicts = append(conflicts, c)
			}
			if c := checkBound(p, BoundLower, cur.Lower, next.Lower, kept, r.File); c != nil {
				conflicts = append(conflicts, c)
			}
		}
	}
	for p := range seen {
		d.params = append(d.params, p)
	}
	sort.Strings(d.params)
	return d, conflicts
}

func clone(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// checkBound compares a later declaration against the adopted bound.
func checkBound(param, bound string, cur, next *float64, keptFile, file string) *ConflictError {
	if next == nil {
		return nil
	}
	if cur != nil && sameBound(*cur, *next) {
		return nil
	}
	return &ConflictError{
		Parameter: param,
		Bound:     bound,
		Kept:      clone(cur),
		KeptFile:  keptFile,
		Rejected:  *next,
		File:      file,
	}
}

func sameBound(a, b float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) <= limitTolerance*scale
}

// WithOverrides returns a dataset sharing d's records with the given bounds
// replaced. A nil bound in an override keeps the merged value.
func (d *Dataset) WithOverrides(over map[string]cplog.Limits) *Dataset {
	if len(over) == 0 {
		return d
	}
	nd := &Dataset{records: d.records, params: d.params, files: d.files, limits: d.LimitsMap()}
	for p, o := range over {
		l := nd.limits[p]
		l.Parameter = p
		if o.Upper != nil {
			l.Upper = clone(o.Upper)
		}
		if o.Lower != nil {
			l.Lower = clone(o.Lower)
		}
		nd.limits[p] = l
	}
	return nd
}

// InvertedLimits lists parameters whose lower bound exceeds the upper bound.
// Such limits are kept as declared; no value can pass them.
func (d *Dataset) InvertedLimits() []cplog.Limits {
	var out []cplog.Limits
	for _, p := range d.params {
		if l, ok := d.limits[p]; ok && l.Inverted() {
			out = append(out, l)
		}
	}
	return out
}
