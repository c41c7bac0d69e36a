package decoder

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	apperrors "github.com/Ramsey-B/clover/pkg/errors"
)

type xlsxSource struct {
	file         *excelize.File
	rows         *excelize.Rows
	inferNumbers bool
}

func newXLSXSource(r io.Reader, opts Options) (*xlsxSource, error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperrors.NewDecodeError(string(FormatXLSX), err)
	}

	sheet := opts.Sheet
	if sheet == "" {
		sheets := file.GetSheetList()
		if len(sheets) == 0 {
			_ = file.Close()
			return nil, apperrors.NewDecodeError(string(FormatXLSX), fmt.Errorf("workbook has no sheets"))
		}
		sheet = sheets[0]
	}

	rows, err := file.Rows(sheet)
	if err != nil {
		_ = file.Close()
		return nil, apperrors.NewDecodeError(string(FormatXLSX), fmt.Errorf("sheet %q: %w", sheet, err))
	}

	return &xlsxSource{
		file:         file,
		rows:         rows,
		inferNumbers: opts.InferNumbers,
	}, nil
}

func (s *xlsxSource) Next() ([]any, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, apperrors.NewDecodeError(string(FormatXLSX), err)
		}
		return nil, io.EOF
	}

	raw, err := s.rows.Columns()
	if err != nil {
		return nil, apperrors.NewDecodeError(string(FormatXLSX), err)
	}

	cells := make([]any, len(raw))
	for i, value := range raw {
		cells[i] = cell(value, s.inferNumbers)
	}
	return cells, nil
}

func (s *xlsxSource) Encoding() string {
	return EncodingXLSX
}

func (s *xlsxSource) Close() error {
	rowsErr := s.rows.Close()
	if err := s.file.Close(); err != nil {
		return err
	}
	return rowsErr
}
