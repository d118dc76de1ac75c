package units

import (
	"regexp"
	"strconv"
	"strings"
)

// Value is a single tester reading. OK is false for a missing reading.
type Value struct {
	Num float64
	OK  bool
}

// Missing is the "no valid measurement" value.
var Missing = Value{}

// Sentinel is the tester's fixed out-of-range code.
const Sentinel = "999.9"

// Number wraps a real reading.
func Number(f float64) Value { return Value{Num: f, OK: true} }

// Float returns the reading and whether it is present.
func (v Value) Float() (float64, bool) { return v.Num, v.OK }

// IsMissing reports whether v carries no reading.
func (v Value) IsMissing() bool { return !v.OK }

func (v Value) String() string {
	if !v.OK {
		return "NA"
	}
	return strconv.FormatFloat(v.Num, 'g', -1, 64)
}

var multipliers = map[rune]float64{
	'n': 1e-9,
	'u': 1e-6,
	'µ': 1e-6,
	'm': 1e-3,
	'k': 1e3,
	'M': 1e6,
	'G': 1e9,
}

// Multiplier returns the SI scale for a unit suffix. Only the first
// character is a prefix; "mOHM" and "mV" both scale by 1e-3. An empty or
// unrecognized suffix scales by 1.
func Multiplier(suffix string) float64 {
	for _, r := range suffix {
		if m, ok := multipliers[r]; ok {
			return m
		}
		return 1
	}
	return 1
}

// leading numeric literal, optional exponent, optional alphabetic unit
var tokenRe = regexp.MustCompile(`^([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)\s*([\p{L}]*)`)

// Parse converts a raw tester token into a Value.
//
//	""        -> Missing
//	"-"       -> 0 (tester default for "no reading")
//	"999.9"   -> Missing, with or without a unit suffix
//	"50.00-"  -> 50 (trailing dash is a suffix, not a sign)
//	"900.0V"  -> 900
//	"4.000uA" -> 4e-6
//	"1.20E-08"-> 1.2e-8
//
// Anything without a leading numeric literal is Missing.
func Parse(token string) Value {
	s := strings.TrimSpace(token)
	if s == "" {
		return Missing
	}
	if s == "-" {
		return Number(0)
	}
	if len(s) > 1 && strings.HasSuffix(s, "-") {
		s = strings.TrimSpace(s[:len(s)-1])
	}
	m := tokenRe.FindStringSubmatch(s)
	if m == nil {
		return Missing
	}
	if m[1] == Sentinel {
		return Missing
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Missing
	}
	return Number(f * Multiplier(m[2]))
}

// ParsePtr parses a limit cell: a present reading becomes a pointer, Missing
// becomes nil.
func ParsePtr(token string) *float64 {
	v := Parse(token)
	if !v.OK {
		return nil
	}
	f := v.Num
	return &f
}
