// Package decoder turns CSV and XLSX byte streams into rows of scalar cells.
package decoder

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	apperrors "github.com/Ramsey-B/clover/pkg/errors"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
	// EncodingMixed is reported when the stream was UTF-8 but some cells had
	// to be decoded as Windows-1252.
	EncodingMixed = "utf-8+windows-1252"
	EncodingXLSX  = "xlsx"
)

// Source yields the rows of one table. The first row returned is the header
// row as it appears in the file.
type Source interface {
	// Next returns the cells of the next row. Empty cells are nil. It returns
	// io.EOF after the last row and a *RowError for a malformed row that was
	// skipped; reading may continue after a RowError.
	Next() ([]any, error)
	// Encoding is the text encoding in use. It can change from utf-8 to mixed
	// while reading, so callers read it after the last row.
	Encoding() string
	Close() error
}

type Options struct {
	Format Format
	// Sheet selects an XLSX worksheet; the first sheet is used when empty.
	Sheet string
	// Comma is the CSV delimiter; ',' when zero.
	Comma rune
	// InferNumbers turns cells written as plain decimal numbers into
	// json.Number so 1 and 1.0 compare equal after normalization.
	InferNumbers bool
}

// RowError reports a row that could not be parsed. It is not fatal.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("malformed row at line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// DetectFormat picks the format from a file name, defaulting to CSV.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// Open starts decoding r. Structural failures are returned as
// *apperrors.DecodeError.
func Open(r io.Reader, opts Options) (Source, error) {
	switch opts.Format {
	case FormatXLSX:
		return newXLSXSource(r, opts)
	case FormatCSV, "":
		return newCSVSource(r, opts)
	default:
		return nil, apperrors.NewDecodeError(string(opts.Format), fmt.Errorf("unsupported format"))
	}
}

// plain decimals only: no sign prefix other than '-', no leading zeros, so
// zip codes and phone extensions such as "007" stay text
var numberPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][-+]?[0-9]+)?$`)

func cell(s string, inferNumbers bool) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if inferNumbers && numberPattern.MatchString(s) {
		return json.Number(s)
	}
	return s
}
