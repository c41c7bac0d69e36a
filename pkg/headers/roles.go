package headers

import (
	"strings"

	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// exactCandidates lists, per role, the normalized column names that win
// outright, most preferred first.
var exactCandidates = map[Role][]string{
	RoleEmail: {
		"email", "email_address", "e_mail", "emailaddress", "email_id", "mail", "primary_email",
	},
	RolePhone: {
		"phone", "phone_number", "mobile", "mobile_number", "phone_no", "mobile_no",
		"contact_number", "contact_no", "cell", "cell_number", "telephone", "tel",
	},
	RoleName: {
		"name", "full_name", "customer_name", "client_name",
	},
}

// substringPatterns are matched against a header with separators removed,
// most specific first. Order across roles matters: "emailcontact" is an email
// column, not a phone column.
var substringPatterns = []struct {
	role     Role
	patterns []string
}{
	{RoleEmail, []string{"emailaddress", "emailid", "email", "mail"}},
	{RolePhone, []string{
		"phonenumber", "phoneno", "mobilenumber", "mobileno", "contactnumber", "contactno",
		"cellnumber", "cellno", "telephone", "phone", "mobile", "contact", "cell",
	}},
	{RoleName, []string{"fullname", "firstname", "lastname", "customername", "clientname", "username", "name"}},
}

// InferRole guesses the role of a single column from its name.
func InferRole(column string) Role {
	cleaned := normalizers.RemoveSeparators(strings.TrimSpace(column))
	if cleaned == "" {
		return RoleNone
	}
	for _, group := range substringPatterns {
		for _, p := range group.patterns {
			if strings.Contains(cleaned, p) {
				return group.role
			}
		}
	}
	return RoleNone
}

// ResolveColumn picks the column that carries role. Exact candidates are
// tried in priority order first; otherwise the first column whose inferred
// role matches wins. Column names are compared in normalized form and the
// original name is returned.
func ResolveColumn(columns []string, role Role) (string, bool) {
	if role == RoleNone || len(columns) == 0 {
		return "", false
	}

	byName := make(map[string]string, len(columns))
	for _, c := range columns {
		key := normalizers.NormalizeColumnName(c)
		if _, ok := byName[key]; !ok {
			byName[key] = c
		}
	}
	for _, candidate := range exactCandidates[role] {
		if c, ok := byName[candidate]; ok {
			return c, true
		}
	}

	for _, c := range columns {
		if InferRole(c) == role {
			return c, true
		}
	}
	return "", false
}

// Roles resolves the identity columns of a table. Explicit overrides win when
// they name an existing column.
func Roles(columns []string, emailOverride, phoneOverride string) (email, phone string) {
	email = pick(columns, emailOverride, RoleEmail)
	phone = pick(columns, phoneOverride, RolePhone)
	if email != "" && email == phone {
		phone = ""
	}
	return email, phone
}

func pick(columns []string, override string, role Role) string {
	if override != "" {
		want := normalizers.NormalizeColumnName(override)
		for _, c := range columns {
			if c == override || normalizers.NormalizeColumnName(c) == want {
				return c
			}
		}
	}
	c, _ := ResolveColumn(columns, role)
	return c
}
