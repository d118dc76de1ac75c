package cplog

import "github.com/KaramelBytes/cplog-cli/internal/units"

// Limits holds the declared specification bounds for one parameter. Either
// bound may be absent. An inverted pair (lower > upper) is kept as declared.
type Limits struct {
	Parameter string
	Upper     *float64
	Lower     *float64
}

func (l Limits) HasUpper() bool { return l.Upper != nil }
func (l Limits) HasLower() bool { return l.Lower != nil }

// Defined reports whether at least one bound is present.
func (l Limits) Defined() bool { return l.Upper != nil || l.Lower != nil }

// Inverted reports whether both bounds are present and lower exceeds upper.
func (l Limits) Inverted() bool {
	return l.Upper != nil && l.Lower != nil && *l.Lower > *l.Upper
}

// Contains reports whether x lies within the declared bounds.
func (l Limits) Contains(x float64) bool {
	if l.Lower != nil && x < *l.Lower {
		return false
	}
	if l.Upper != nil && x > *l.Upper {
		return false
	}
	return true
}

// Metadata is the key/value block at the top of a log.
type Metadata struct {
	Program string `json:"program,omitempty"`
	Lot     string `json:"lot,omitempty"`
	Wafer   string `json:"wafer,omitempty"`
	Date    string `json:"date,omitempty"`
	Time    string `json:"time,omitempty"`
}

// Record is one probed die. Values holds a reading for every target
// parameter present in the originating file.
type Record struct {
	File   string
	Lot    string
	Wafer  string
	Device uint32
	Values map[string]units.Value
}

// Value returns the reading for param. ok is false when the originating
// file has no such column.
func (r Record) Value(param string) (v units.Value, ok bool) {
	v, ok = r.Values[param]
	return
}

// RowError describes a data row that was skipped.
type RowError struct {
	Line   int // 1-based
	Fields int
	Want   int
}

// Result is the outcome of parsing one log file.
type Result struct {
	File      string
	Meta      Metadata
	Params    []string // target parameters found in the header, header order
	Records   []Record
	Limits    map[string]Limits
	RowErrors []RowError
}
