package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/webshop-accounts/internal/model"
)

// EphemeralRepo persists selector/verifier tokens (confirmation,
// remember-me, password reset) and purges every expired ephemeral row,
// throttling buckets included.
type EphemeralRepo struct{ DB *sql.DB }

func NewEphemeralRepo(db *sql.DB) *EphemeralRepo { return &EphemeralRepo{DB: db} }

var tokenTables = map[model.TokenKind]string{
	model.TokenConfirmation: "users_confirmations",
	model.TokenRemember:     "users_remembered",
	model.TokenReset:        "users_resets",
}

func tableFor(kind model.TokenKind) (string, error) {
	t, ok := tokenTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}
	return t, nil
}

// Create stores a token row.  Only the verifier hash is written.
func (r *EphemeralRepo) Create(ctx context.Context, t model.EphemeralToken) error {
	table, err := tableFor(t.Kind)
	if err != nil {
		return err
	}
	if t.Kind == model.TokenConfirmation {
		_, err = r.DB.ExecContext(ctx,
			"INSERT INTO users_confirmations (user_id, email, selector, token, expires) VALUES (?,?,?,?,?)",
			t.UserID, NormalizeEmail(t.Email), t.Selector, t.VerifierHash, t.Expires.UTC())
	} else {
		_, err = r.DB.ExecContext(ctx,
			"INSERT INTO "+table+" (user_id, selector, token, expires) VALUES (?,?,?,?)",
			t.UserID, t.Selector, t.VerifierHash, t.Expires.UTC())
	}
	if isDuplicate(err) {
		return ErrDuplicateSelector
	}
	return err
}

// FindBySelector returns the token row with the given selector, expired
// or not; callers decide what an expired row means.
func (r *EphemeralRepo) FindBySelector(ctx context.Context, kind model.TokenKind, selector string) (*model.EphemeralToken, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	t := model.EphemeralToken{Kind: kind}
	if kind == model.TokenConfirmation {
		err = r.DB.QueryRowContext(ctx,
			"SELECT id, user_id, email, selector, token, expires FROM users_confirmations WHERE selector = ? LIMIT 1",
			selector).Scan(&t.ID, &t.UserID, &t.Email, &t.Selector, &t.VerifierHash, &t.Expires)
	} else {
		err = r.DB.QueryRowContext(ctx,
			"SELECT id, user_id, selector, token, expires FROM "+table+" WHERE selector = ? LIMIT 1",
			selector).Scan(&t.ID, &t.UserID, &t.Selector, &t.VerifierHash, &t.Expires)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteBySelector removes a consumed token.  Deleting a missing row is
// not an error.
func (r *EphemeralRepo) DeleteBySelector(ctx context.Context, kind model.TokenKind, selector string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, "DELETE FROM "+table+" WHERE selector = ?", selector)
	return err
}

// PurgeExpired deletes every ephemeral row whose expiry is before now.
// Each table is an independent DELETE ... WHERE expires < ?, so
// concurrent or repeated runs are harmless: a row is removed at most once
// and a later run only ever finds fewer candidates.
func (r *EphemeralRepo) PurgeExpired(ctx context.Context, now time.Time) (model.PurgeResult, error) {
	now = now.UTC()
	var res model.PurgeResult
	steps := []struct {
		query string
		dst   *int64
	}{
		{"DELETE FROM users_confirmations WHERE expires < ?", &res.Confirmations},
		{"DELETE FROM users_resets WHERE expires < ?", &res.Resets},
		{"DELETE FROM users_remembered WHERE expires < ?", &res.Remembered},
		{"DELETE FROM users_throttling WHERE expires_at < ?", &res.Throttling},
	}
	for _, s := range steps {
		out, err := r.DB.ExecContext(ctx, s.query, now)
		if err != nil {
			return res, fmt.Errorf("purge: %w", err)
		}
		n, err := out.RowsAffected()
		if err != nil {
			return res, fmt.Errorf("purge: %w", err)
		}
		*s.dst = n
	}
	return res, nil
}
