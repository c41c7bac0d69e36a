// Package headers inspects the header row of an uploaded table: it names
// columns, flags header rows that look like data, and picks the columns that
// carry identity signals.
package headers

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// Role is the semantic role a column plays in identity matching.
type Role string

const (
	RoleNone  Role = ""
	RoleEmail Role = "email"
	RolePhone Role = "phone"
	RoleName  Role = "name"
)

// Case classifies a header row.
type Case string

const (
	CaseValid      Case = "valid"
	CaseMissing    Case = "missing"
	CaseSuspicious Case = "suspicious"
)

// suspicionThreshold is the share of header cells whose combined score marks
// the header row as data.
const suspicionThreshold = 0.3

var (
	unnamedPattern = regexp.MustCompile(`(?i)^unnamed[_:]?\s*\d+$`)
	numericPattern = regexp.MustCompile(`^\d+$`)
	emailPattern   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern   = regexp.MustCompile(`^[\d\s()\-+]{7,}$`)
	decimalPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// Analysis is the outcome of DetectCase.
type Analysis struct {
	Case           Case     `json:"case"`
	UnnamedIndices []int    `json:"unnamed_indices,omitempty"`
	SuspicionScore int      `json:"suspicion_score,omitempty"`
	Reasons        []string `json:"reasons,omitempty"`
}

// DetectCase reports whether a raw header row is usable. Headers that are
// blank, "nan", "Unnamed: n" or bare integers are missing. Otherwise the row is
// suspicious when cells that look like numbers, emails or phone numbers score
// at least 30% of the column count.
func DetectCase(raw []string) Analysis {
	var unnamed []int
	for i, h := range raw {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" || h == "nan" || unnamedPattern.MatchString(h) || numericPattern.MatchString(h) {
			unnamed = append(unnamed, i)
		}
	}
	if len(unnamed) > 0 {
		return Analysis{Case: CaseMissing, UnnamedIndices: unnamed}
	}

	score, reasons := suspicion(raw)
	if len(raw) > 0 && score > 0 && float64(score) >= float64(len(raw))*suspicionThreshold {
		if len(reasons) > 10 {
			reasons = reasons[:10]
		}
		return Analysis{Case: CaseSuspicious, SuspicionScore: score, Reasons: reasons}
	}

	return Analysis{Case: CaseValid}
}

// LooksLikeData scores a row the way DetectCase scores a suspicious header,
// whatever case DetectCase settled on. A row with a bare integer cell is
// missing for DetectCase but can still be a data row.
func LooksLikeData(raw []string) bool {
	score, _ := suspicion(raw)
	return len(raw) > 0 && score > 0 && float64(score) >= float64(len(raw))*suspicionThreshold
}

func suspicion(raw []string) (int, []string) {
	score := 0
	var reasons []string
	for _, h := range raw {
		h = strings.TrimSpace(h)
		if decimalPattern.MatchString(h) {
			score += 2
			reasons = append(reasons, fmt.Sprintf("numeric value: %s", h))
		}
		if emailPattern.MatchString(h) {
			score += 3
			reasons = append(reasons, fmt.Sprintf("email-like: %s", h))
		}
		if phonePattern.MatchString(h) {
			score += 3
			reasons = append(reasons, fmt.Sprintf("phone-like: %s", h))
		}
	}
	return score, reasons
}

// Normalize turns a raw header row into unique storage column names. Names
// are NFC-composed so visually equal headers collide. Blank names become
// unnamed_<index>, and repeats get _2, _3 suffixes.
func Normalize(raw []string) []string {
	out := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	for i, h := range raw {
		name := normalizers.NormalizeColumnName(norm.NFC.String(strings.TrimPrefix(h, "\ufeff")))
		if name == "" || unnamedPattern.MatchString(strings.ToLower(strings.TrimSpace(h))) {
			name = fmt.Sprintf("unnamed_%d", i)
		}
		unique := name
		for n := 2; used[unique]; n++ {
			unique = fmt.Sprintf("%s_%d", name, n)
		}
		used[unique] = true
		out[i] = unique
	}
	return out
}

// Synthetic names columns when the file has no header row.
func Synthetic(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("column_%d", i+1)
	}
	return out
}

// Apply overrides column names by index, the way a user fixes a bad header
// row. Blank overrides keep the existing name.
func Apply(names []string, overrides map[int]string) []string {
	out := make([]string, len(names))
	copy(out, names)
	for idx, name := range overrides {
		if idx < 0 || idx >= len(out) {
			continue
		}
		if n := normalizers.NormalizeColumnName(name); n != "" {
			out[idx] = n
		}
	}
	return Normalize(out)
}
