package model

import "time"

// TokenKind names one of the selector/verifier tables.
type TokenKind string

const (
	TokenConfirmation TokenKind = "confirmation" // users_confirmations
	TokenRemember     TokenKind = "remember"     // users_remembered
	TokenReset        TokenKind = "reset"        // users_resets
)

// EphemeralToken is a short-lived credential split into a public
// Selector used for lookup and a secret Verifier.  Only the SHA-256 of
// the verifier is persisted (VerifierHash).
type EphemeralToken struct {
	ID           uint64
	Kind         TokenKind
	UserID       uint64
	Email        string // confirmation tokens only
	Selector     string
	VerifierHash string
	Expires      time.Time
}

// Expired reports whether the record is logically dead at now.
func (t EphemeralToken) Expired(now time.Time) bool { return !now.Before(t.Expires) }

// PurgeResult counts the rows removed from each ephemeral table by one
// purge run.
type PurgeResult struct {
	Confirmations int64
	Remembered    int64
	Resets        int64
	Throttling    int64
}

// Total is the sum over all tables.
func (p PurgeResult) Total() int64 {
	return p.Confirmations + p.Remembered + p.Resets + p.Throttling
}
