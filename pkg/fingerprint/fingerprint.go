package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/Ramsey-B/clover/pkg/normalizers"
)

const (
	keySeparator   = '\x1f'
	fieldSeparator = '\x1e'
	nullMarker     = '\x00'
)

// Generate creates a deterministic fingerprint for a row.
// The fingerprint is a SHA256 hash over every field, keys sorted, values
// stringified canonically. Two rows are exact duplicates iff their
// fingerprints match.
func Generate(data map[string]any) string {
	keys := make([]string, 0, len(data))
	values := make([]any, 0, len(data))
	for k, v := range data {
		keys = append(keys, k)
		values = append(values, v)
	}
	return GeneratePairs(keys, values)
}

// GeneratePairs fingerprints parallel key/value slices without building a
// map. Pair order does not affect the result.
func GeneratePairs(keys []string, values []any) string {
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return keys[order[a]] < keys[order[b]]
	})

	h := sha256.New()
	buf := make([]byte, 0, 256)
	for _, i := range order {
		buf = buf[:0]
		buf = append(buf, normalizers.StripControl(keys[i])...)
		buf = append(buf, keySeparator)
		buf = appendValue(buf, valueAt(values, i))
		buf = append(buf, fieldSeparator)
		h.Write(buf)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func valueAt(values []any, i int) any {
	if i < len(values) {
		return values[i]
	}
	return nil
}

// appendValue writes the canonical form of v. Null gets a marker byte so it
// never collides with the empty string.
func appendValue(buf []byte, v any) []byte {
	s, ok := normalizers.Stringify(v)
	if !ok {
		return append(buf, nullMarker)
	}
	return append(buf, s...)
}

