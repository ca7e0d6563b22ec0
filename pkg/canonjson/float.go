package canonjson

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Float is a float64 that encodes the way the record format expects: the
// shortest round-trip digits, always with a decimal point or exponent, and
// exponent notation only below 1e-4 or from 1e16.
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("unsupported float value %v", v)
	}

	return []byte(FormatFloat(v)), nil
}

// FormatFloat renders v as it appears in record lines, e.g. 2.0, 0.25,
// 1e-05 or 1.5e+16.
func FormatFloat(v float64) string {
	if v == 0 {
		if math.Signbit(v) {
			return "-0.0"
		}

		return "0.0"
	}

	e := strconv.FormatFloat(v, 'e', -1, 64)

	exp, err := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	if err != nil || exp < -4 || exp >= 16 {
		return e
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}

	return s
}
