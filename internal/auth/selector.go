package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// SelectorPair is a freshly generated ephemeral credential.  Selector is
// the public lookup key stored in clear; Verifier is handed to the
// account holder once and only its SHA-256 is persisted.
type SelectorPair struct {
	Selector string
	Verifier string
	Expires  time.Time
}

// NewSelectorPair returns a random selector/verifier pair valid for ttl.
// selectorBytes controls the selector length (hex doubles it) so each
// token table can keep its own column width.
func NewSelectorPair(selectorBytes int, ttl time.Duration) (SelectorPair, error) {
	sel, err := randomHex(selectorBytes)
	if err != nil {
		return SelectorPair{}, err
	}
	// 32 bytes -> 64 hex chars
	ver, err := randomHex(32)
	if err != nil {
		return SelectorPair{}, err
	}
	return SelectorPair{
		Selector: sel,
		Verifier: ver,
		Expires:  time.Now().UTC().Add(ttl),
	}, nil
}

// HashVerifier returns the hex SHA-256 of a raw verifier.  Storing only
// the hash means a leaked token table cannot be replayed.
func HashVerifier(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// VerifierMatches compares a raw verifier against a stored hash in
// constant time.
func VerifierMatches(raw, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashVerifier(raw)), []byte(storedHash)) == 1
}

// randomHex returns n bytes of crypto/rand output, hex encoded.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
