package normalizers

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "lowercases and trims", input: "  A@X.COM ", want: "a@x.com", wantOK: true},
		{name: "already canonical", input: "a@x.com", want: "a@x.com", wantOK: true},
		{name: "empty", input: "", wantOK: false},
		{name: "whitespace only", input: "   ", wantOK: false},
		{name: "nan literal", input: "nan", wantOK: false},
		{name: "nan literal any case", input: " NaN ", wantOK: false},
		{name: "control characters dropped", input: "a@x.com\x00", want: "a@x.com", wantOK: true},
		{name: "not validated", input: "not-an-email", want: "not-an-email", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeEmail(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "strips punctuation", input: "555-1234", want: "5551234", wantOK: true},
		{name: "strips formatting", input: "+1 (555) 123-4567", want: "15551234567", wantOK: true},
		{name: "digits only", input: "5551234", want: "5551234", wantOK: true},
		{name: "no digits", input: "n/a", wantOK: false},
		{name: "empty", input: "", wantOK: false},
		{name: "non-ascii digits ignored", input: "٥٥٥", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizePhone(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   string
		wantOK bool
	}{
		{name: "nil", input: nil, wantOK: false},
		{name: "NaN is null", input: math.NaN(), wantOK: false},
		{name: "integral float", input: 1.0, want: "1", wantOK: true},
		{name: "int", input: 1, want: "1", wantOK: true},
		{name: "int64", input: int64(1), want: "1", wantOK: true},
		{name: "json number with fraction zeros", input: json.Number("1.00"), want: "1", wantOK: true},
		{name: "json number past int64", input: json.Number("123456789012345678901"), want: "123456789012345678901", wantOK: true},
		{name: "fractional float", input: 2.5, want: "2.5", wantOK: true},
		{name: "large integral float", input: 5551234567.0, want: "5551234567", wantOK: true},
		{name: "negative zero", input: math.Copysign(0, -1), want: "0", wantOK: true},
		{name: "bool", input: true, want: "true", wantOK: true},
		{name: "string trimmed", input: "  hi ", want: "hi", wantOK: true},
		{name: "numeric string not coerced", input: "1.0", want: "1.0", wantOK: true},
		{name: "leading zeros kept", input: "007", want: "007", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Stringify(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmailAndPhoneFromScalars(t *testing.T) {
	email, ok := Email(" Bob@Example.COM")
	assert.True(t, ok)
	assert.Equal(t, "bob@example.com", email)

	_, ok = Email(nil)
	assert.False(t, ok)

	phone, ok := Phone(5551234.0)
	assert.True(t, ok)
	assert.Equal(t, "5551234", phone)

	_, ok = Phone(math.NaN())
	assert.False(t, ok)
}

func TestNormalizeColumnName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"E-mail", "e_mail"},
		{"Phone No", "phone_no"},
		{"Full.Name", "full_name"},
		{"  __Email  Address__ ", "email_address"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeColumnName(tt.input))
		})
	}
}

func TestRemoveSeparators(t *testing.T) {
	assert.Equal(t, "emailaddress", RemoveSeparators("Email_Address"))
	assert.Equal(t, "phoneno", RemoveSeparators("Phone.No"))
}

func TestStripControl(t *testing.T) {
	assert.Equal(t, "ab", StripControl("a\x01b"))
	assert.Equal(t, "a\tb", StripControl("a\tb"))
	assert.Equal(t, "ab", StripControl("a\x7fb"))
}
