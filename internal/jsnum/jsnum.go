// Package jsnum formats and recognises numbers the way a JavaScript engine
// does. Extracted values cross the signing boundary as strings, so the exact
// text of a number is part of the signed message and must not depend on Go's
// default float formatting.
package jsnum

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numericPattern matches an optionally signed integer or decimal literal.
var numericPattern = regexp.MustCompile(`^[-+]?\d+(\.\d+)?$`)

// decimalPattern matches a JavaScript decimal literal with optional exponent.
// Hex floats, underscores and the words Inf/NaN that strconv accepts are
// excluded.
var decimalPattern = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)

// ErrNotFinite is returned by Parse for values that are not finite numbers.
var ErrNotFinite = errors.New("not a finite number")

// Parse reads a trimmed decimal literal and rejects anything that does not
// evaluate to a finite float64.
func Parse(s string) (float64, error) {
	t := strings.TrimSpace(s)
	if !decimalPattern.MatchString(t) {
		return 0, fmt.Errorf("%q: %w", s, ErrNotFinite)
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%q: %w", s, ErrNotFinite)
	}
	return f, nil
}

// IsNumeric reports whether s is entirely a plain decimal literal
// (optional sign, digits, optional fraction).
func IsNumeric(s string) bool {
	return numericPattern.MatchString(s)
}

// Format returns the JavaScript Number#toString rendering of f.
func Format(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		// Covers -0 as well; JS prints both as "0".
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// Go pads the exponent to two digits ("e-07"); JS does not.
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		if digits == "" {
			digits = "0"
		}
		return mant + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ToNumber applies JavaScript's Number(v) to a value decoded by
// encoding/json. Anything that does not coerce yields NaN.
func ToNumber(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 1
		}
		return 0
	case float64:
		return t
	case json.Number:
		return StringToNumber(t.String())
	case string:
		return StringToNumber(t)
	case []any:
		return StringToNumber(joinArray(t))
	default:
		return math.NaN()
	}
}

// StringToNumber is Number(s) for a string operand: surrounding whitespace
// is ignored, the empty string is 0, and Infinity plus the 0x/0o/0b integer
// forms are recognised.
func StringToNumber(s string) float64 {
	t := strings.TrimSpace(s)
	switch t {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(t) > 2 && t[0] == '0' {
		base := 0
		switch t[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(t[2:], base, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
	}
	if !decimalPattern.MatchString(t) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil && !math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}

// joinArray is String(arr): elements joined with commas, null as empty.
func joinArray(arr []any) string {
	parts := make([]string, len(arr))
	for i, el := range arr {
		switch t := el.(type) {
		case nil:
		case string:
			parts[i] = t
		case bool:
			parts[i] = strconv.FormatBool(t)
		case float64:
			parts[i] = Format(t)
		case json.Number:
			parts[i] = t.String()
		case []any:
			parts[i] = joinArray(t)
		default:
			parts[i] = "[object Object]"
		}
	}
	return strings.Join(parts, ",")
}
