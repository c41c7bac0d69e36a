package ingest

import (
	"crypto/sha256"
	"encoding/hex"
)

// SeenSet holds the fingerprints admitted so far in one batch. It lives for
// a single ingestion and is owned by one goroutine.
type SeenSet struct {
	fingerprints map[[32]byte]struct{}
}

func NewSeenSet(sizeHint int) *SeenSet {
	return &SeenSet{fingerprints: make(map[[32]byte]struct{}, sizeHint)}
}

// Admit records fingerprint and reports whether it was new. Fingerprints are
// hex SHA-256 digests; anything else is hashed first.
func (s *SeenSet) Admit(fingerprint string) bool {
	key := digest(fingerprint)
	if _, ok := s.fingerprints[key]; ok {
		return false
	}
	s.fingerprints[key] = struct{}{}
	return true
}

func (s *SeenSet) Len() int {
	return len(s.fingerprints)
}

func digest(fingerprint string) [32]byte {
	var key [32]byte
	if len(fingerprint) == hex.EncodedLen(len(key)) {
		if _, err := hex.Decode(key[:], []byte(fingerprint)); err == nil {
			return key
		}
	}
	return sha256.Sum256([]byte(fingerprint))
}
