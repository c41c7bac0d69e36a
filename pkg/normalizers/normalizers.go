// Package normalizers maps raw field values to canonical identity tokens.
package normalizers

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// nanLiteral is how an empty spreadsheet cell shows up after a round trip
// through tools that render missing floats as text.
const nanLiteral = "nan"

// Stringify renders a JSON-compatible scalar canonically. The second return
// value is false for null and NaN. Numbers render as their shortest
// round-trip decimal, so 1, 1.0 and json.Number("1.00") all become "1".
// Strings are trimmed and stripped of control characters but never coerced.
func Stringify(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(StripControl(val)), true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case int:
		return strconv.FormatInt(int64(val), 10), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint:
		return strconv.FormatUint(uint64(val), 10), true
	case uint32:
		return strconv.FormatUint(uint64(val), 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		literal := strings.TrimSpace(val.String())
		if !strings.ContainsAny(literal, ".eE") {
			// integers past int64 keep every digit
			return literal, true
		}
		if f, err := val.Float64(); err == nil {
			return formatFloat(f)
		}
		return strings.TrimSpace(val.String()), true
	case fmt.Stringer:
		return strings.TrimSpace(StripControl(val.String())), true
	default:
		return strings.TrimSpace(StripControl(fmt.Sprint(val))), true
	}
}

func formatFloat(f float64) (string, bool) {
	if math.IsNaN(f) {
		return "", false
	}
	if math.IsInf(f, 0) {
		if f > 0 {
			return "inf", true
		}
		return "-inf", true
	}
	if f == 0 {
		// -0 and 0 are the same value
		return "0", true
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// NormalizeEmail lower-cases and trims an email. It reports false when the
// result is empty or the literal "nan".
func NormalizeEmail(s string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(StripControl(s)))
	if email == "" || email == nanLiteral {
		return "", false
	}
	return email, true
}

// NormalizePhone keeps ASCII digits only. It reports false when no digit
// survives.
func NormalizePhone(s string) (string, bool) {
	phone := DigitsOnly(s)
	if phone == "" {
		return "", false
	}
	return phone, true
}

// Email extracts a canonical email from any scalar field value.
func Email(v any) (string, bool) {
	s, ok := Stringify(v)
	if !ok {
		return "", false
	}
	return NormalizeEmail(s)
}

// Phone extracts a canonical phone from any scalar field value.
func Phone(v any) (string, bool) {
	s, ok := Stringify(v)
	if !ok {
		return "", false
	}
	return NormalizePhone(s)
}

// DigitsOnly keeps only ASCII digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			result.WriteByte(s[i])
		}
	}
	return result.String()
}

// StripControl removes C0 control characters (except tab, LF and CR) and DEL.
func StripControl(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		if isControl(s[i]) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var result strings.Builder
	result.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if !isControl(s[i]) {
			result.WriteByte(s[i])
		}
	}
	return result.String()
}

func isControl(b byte) bool {
	switch {
	case b == '\t', b == '\n', b == '\r':
		return false
	case b < 0x20, b == 0x7f:
		return true
	}
	return false
}

// NormalizeColumnName lower-cases a header and folds separators to single
// underscores: "E-mail" -> "e_mail", "Full.Name" -> "full_name".
func NormalizeColumnName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(StripControl(name)))
	if normalized == "" {
		return ""
	}

	var result strings.Builder
	lastUnderscore := false
	for _, r := range normalized {
		switch r {
		case '-', '.', ' ', '\t', '_':
			if !lastUnderscore {
				result.WriteRune('_')
				lastUnderscore = true
			}
		default:
			result.WriteRune(r)
			lastUnderscore = false
		}
	}

	return strings.Trim(result.String(), "_")
}

// RemoveSeparators drops the separators users put between words in a header.
func RemoveSeparators(s string) string {
	return strings.NewReplacer("-", "", "_", "", " ", "", ".", "").Replace(strings.ToLower(s))
}
