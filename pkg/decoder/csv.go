package decoder

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// sniffSize is how much of the stream decides between UTF-8 and the
// single-byte fallback.
const sniffSize = 64 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type csvSource struct {
	reader       *csv.Reader
	encoding     string
	inferNumbers bool
	fallback     *charmap.Charmap
}

func newCSVSource(r io.Reader, opts Options) (*csvSource, error) {
	br := bufio.NewReaderSize(r, sniffSize)
	head, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	atEOF := len(head) < sniffSize

	var text io.Reader = br
	encoding := EncodingUTF8
	if bytes.HasPrefix(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	} else if !validUTF8Window(head, atEOF) {
		text = transform.NewReader(br, charmap.Windows1252.NewDecoder())
		encoding = EncodingWindows1252
	}

	reader := csv.NewReader(text)
	reader.FieldsPerRecord = -1
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}

	return &csvSource{
		reader:       reader,
		encoding:     encoding,
		inferNumbers: opts.InferNumbers,
		fallback:     charmap.Windows1252,
	}, nil
}

// validUTF8Window tolerates a rune cut in half by the end of the window.
func validUTF8Window(b []byte, atEOF bool) bool {
	if !atEOF && len(b) > 0 {
		start := len(b) - 1
		for start > 0 && len(b)-start < utf8.UTFMax && !utf8.RuneStart(b[start]) {
			start--
		}
		if !utf8.FullRune(b[start:]) {
			b = b[:start]
		}
	}
	return utf8.Valid(b)
}

func (s *csvSource) Next() ([]any, error) {
	raw, err := s.reader.Read()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, &RowError{Line: parseErr.StartLine, Err: parseErr.Err}
		}
		return nil, err
	}

	cells := make([]any, len(raw))
	for i, value := range raw {
		if !utf8.ValidString(value) {
			value = s.decodeFallback(value)
		}
		cells[i] = cell(value, s.inferNumbers)
	}
	return cells, nil
}

func (s *csvSource) decodeFallback(value string) string {
	decoded, err := s.fallback.NewDecoder().String(value)
	if err != nil {
		return string(bytes.ToValidUTF8([]byte(value), []byte("\uFFFD")))
	}
	if s.encoding == EncodingUTF8 {
		s.encoding = EncodingMixed
	}
	return decoded
}

func (s *csvSource) Encoding() string {
	return s.encoding
}

func (s *csvSource) Close() error {
	return nil
}
