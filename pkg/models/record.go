package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Field is one column of a record.
type Field struct {
	Name  string
	Value any
}

// Fields is an ordered column -> scalar mapping. Values are JSON scalars:
// string, json.Number/float64, bool or nil. It marshals to a JSON object in
// column order.
type Fields []Field

// Get returns the value of the named column.
func (f Fields) Get(name string) (any, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}
	return nil, false
}

// Names returns the column names in order.
func (f Fields) Names() []string {
	names := make([]string, len(f))
	for i, field := range f {
		names[i] = field.Name
	}
	return names
}

// Values returns the column values in order.
func (f Fields) Values() []any {
	values := make([]any, len(f))
	for i, field := range f {
		values[i] = field.Value
	}
	return values
}

// Map returns an unordered copy.
func (f Fields) Map() map[string]any {
	m := make(map[string]any, len(f))
	for _, field := range f {
		m[field.Name] = field.Value
	}
	return m
}

// IsEmpty reports whether every value is null or a blank string.
func (f Fields) IsEmpty() bool {
	for _, field := range f {
		switch v := field.Value.(type) {
		case nil:
		case string:
			if strings.TrimSpace(v) != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(field.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON keeps the object's key order. Numbers decode as json.Number so
// integers survive the round trip unchanged.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*f = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("fields: expected object, got %v", tok)
	}

	out := Fields{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("fields: expected key, got %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		out = append(out, Field{Name: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*f = out
	return nil
}

// Record is one ingested row. Email and Phone are derived from Fields at
// ingestion and never change afterwards.
type Record struct {
	ID          int64   `json:"id"`
	BatchID     string  `json:"batch_id"`
	Fields      Fields  `json:"fields"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Fingerprint string  `json:"fingerprint"`
}

// RecordIdentifiers is the slice of a record the resolver reads.
type RecordIdentifiers struct {
	ID    int64
	Email *string
	Phone *string
}

// RecordPage is one page of a batch preview.
type RecordPage struct {
	Items      []Record `json:"items"`
	TotalCount int64    `json:"total_count"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
}
