package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/webshop-accounts/internal/dbx"
	"github.com/iliyamo/webshop-accounts/internal/model"
)

// AccountRepo persists accounts (`users`) and their profiles
// (`user_details`).  Profile and ephemeral token rows are removed by
// ON DELETE CASCADE when the account row goes.
type AccountRepo struct{ DB *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

const accountSelect = `SELECT u.id, u.email, u.status, u.verified, u.resettable, u.registered,
	u.last_login, u.force_logout, u.role,
	ud.first_name, ud.last_name, ud.address, ud.city, ud.state, ud.country, ud.postal_code, ud.phone
FROM users u
LEFT JOIN user_details ud ON ud.user_id = u.id`

// NormalizeEmail lower-cases and trims an address.  All lookups and
// inserts go through it so the unique index sees one spelling.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// CreateWithProfile inserts the account and its profile in one
// transaction and returns the stored account.  Either both rows exist
// afterwards or neither does.
func (r *AccountRepo) CreateWithProfile(ctx context.Context, a model.NewAccount, p model.Profile) (*model.Account, error) {
	role := a.Role
	if role == "" {
		role = model.RoleUser
	}
	var id uint64
	err := dbx.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO users (email, password, registered, role) VALUES (?,?,?,?)",
			NormalizeEmail(a.Email), a.PasswordHash, time.Now().UTC(), string(role))
		if err != nil {
			if isDuplicate(err) {
				return ErrEmailExists
			}
			return fmt.Errorf("insert user: %w", err)
		}
		lastID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		id = uint64(lastID)

		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_details (user_id, first_name, last_name, address, city, state, country, postal_code, phone)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			id, p.FirstName, p.LastName,
			nullable(p.Address), nullable(p.City), nullable(p.State),
			nullable(p.Country), nullable(p.PostalCode), nullable(p.Phone))
		if err != nil {
			return fmt.Errorf("insert user details: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// GetByID returns the account with its profile.  PasswordHash is left empty.
func (r *AccountRepo) GetByID(ctx context.Context, id uint64) (*model.Account, error) {
	row := r.DB.QueryRowContext(ctx, accountSelect+" WHERE u.id = ? LIMIT 1", id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// GetByEmail returns the account for a normalized email, including its
// password hash.  The profile is not loaded.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	var (
		a         model.Account
		lastLogin sql.NullTime
		role      string
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, email, password, status, verified, resettable, registered, last_login, force_logout, role
		FROM users WHERE email = ? LIMIT 1`,
		NormalizeEmail(email)).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Status, &a.Verified,
		&a.Resettable, &a.Registered, &lastLogin, &a.ForceLogout, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Role = model.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLogin = &t
	}
	return &a, nil
}

// GetPasswordHash returns only the stored digest for id.
func (r *AccountRepo) GetPasswordHash(ctx context.Context, id uint64) (string, error) {
	var hash string
	err := r.DB.QueryRowContext(ctx, "SELECT password FROM users WHERE id = ? LIMIT 1", id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return hash, err
}

// UpdateProfile overwrites every profile column of account id and returns
// the refreshed account.  ErrNotFound means there was no profile row.
func (r *AccountRepo) UpdateProfile(ctx context.Context, id uint64, p model.Profile) (*model.Account, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE user_details SET first_name = ?, last_name = ?, address = ?, city = ?, state = ?,
		country = ?, postal_code = ?, phone = ? WHERE user_id = ?`,
		p.FirstName, p.LastName, nullable(p.Address), nullable(p.City), nullable(p.State),
		nullable(p.Country), nullable(p.PostalCode), nullable(p.Phone), id)
	if err := expectRow(res, err); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// SetStatus changes the lifecycle state of an account.
func (r *AccountRepo) SetStatus(ctx context.Context, id uint64, s model.Status) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET status = ? WHERE id = ?", uint8(s), id)
	return expectRow(res, err)
}

// SetVerified changes the verified flag of an account.
func (r *AccountRepo) SetVerified(ctx context.Context, id uint64, verified bool) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET verified = ? WHERE id = ?", verified, id)
	return expectRow(res, err)
}

// SetPassword replaces the stored digest.
func (r *AccountRepo) SetPassword(ctx context.Context, id uint64, hash string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET password = ? WHERE id = ?", hash, id)
	return expectRow(res, err)
}

// TouchLastLogin records a successful login at the given time.
func (r *AccountRepo) TouchLastLogin(ctx context.Context, id uint64, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET last_login = ? WHERE id = ?", at.UTC(), id)
	return expectRow(res, err)
}

// BumpForceLogout atomically increments the force-logout counter and
// returns the new value.  LAST_INSERT_ID(expr) hands the incremented
// value back on the same connection, so no second read can observe a
// concurrent bump.
func (r *AccountRepo) BumpForceLogout(ctx context.Context, id uint64) (uint32, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET force_logout = LAST_INSERT_ID(force_logout + 1) WHERE id = ?", id)
	if err := expectRow(res, err); err != nil {
		return 0, err
	}
	n, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// Delete removes the account.  Cascades take the profile and every
// ephemeral token row with it.
func (r *AccountRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	return expectRow(res, err)
}

// List returns one page of accounts ordered by id plus the total count.
func (r *AccountRepo) List(ctx context.Context, limit, offset int) ([]model.Account, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.QueryContext(ctx, accountSelect+" ORDER BY u.id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Account, 0, limit)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanAccount(s scanner) (*model.Account, error) {
	var (
		a                                                  model.Account
		lastLogin                                          sql.NullTime
		role                                               string
		first, last                                        sql.NullString
		address, city, state, country, postalCode, phone sql.NullString
	)
	err := s.Scan(&a.ID, &a.Email, &a.Status, &a.Verified, &a.Resettable, &a.Registered,
		&lastLogin, &a.ForceLogout, &role,
		&first, &last, &address, &city, &state, &country, &postalCode, &phone)
	if err != nil {
		return nil, err
	}
	a.Role = model.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLogin = &t
	}
	if first.Valid {
		a.Profile = &model.Profile{
			FirstName:  first.String,
			LastName:   last.String,
			Address:    ptr(address),
			City:       ptr(city),
			State:      ptr(state),
			Country:    ptr(country),
			PostalCode: ptr(postalCode),
			Phone:      ptr(phone),
		}
	}
	return &a, nil
}

// expectRow turns "no row matched" into ErrNotFound.  The DSN sets
// clientFoundRows so unchanged rows still count as matched.
func expectRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func ptr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
