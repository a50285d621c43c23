package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/webshop-accounts/internal/model"
)

func newEphemeralRepoWithMock(t *testing.T) (*EphemeralRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewEphemeralRepo(db), mock
}

func TestEphemeralCreate_Confirmation(t *testing.T) {
	repo, mock := newEphemeralRepoWithMock(t)
	exp := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO users_confirmations \(user_id, email, selector, token, expires\)`).
		WithArgs(uint64(1), "a@b.com", "sel", "hash", exp).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), model.EphemeralToken{
		Kind: model.TokenConfirmation, UserID: 1, Email: "A@b.com", Selector: "sel", VerifierHash: "hash", Expires: exp,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEphemeralCreate_ResetAndDuplicate(t *testing.T) {
	repo, mock := newEphemeralRepoWithMock(t)

	mock.ExpectExec(`INSERT INTO users_resets \(user_id, selector, token, expires\)`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO users_remembered`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	require.NoError(t, repo.Create(context.Background(), model.EphemeralToken{Kind: model.TokenReset, UserID: 1, Selector: "s1"}))
	err := repo.Create(context.Background(), model.EphemeralToken{Kind: model.TokenRemember, UserID: 1, Selector: "s1"})
	require.ErrorIs(t, err, ErrDuplicateSelector)
}

func TestEphemeralCreate_UnknownKind(t *testing.T) {
	repo, _ := newEphemeralRepoWithMock(t)
	err := repo.Create(context.Background(), model.EphemeralToken{Kind: "magic"})
	require.Error(t, err)
}

func TestEphemeralFindBySelector(t *testing.T) {
	repo, mock := newEphemeralRepoWithMock(t)
	exp := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, user_id, email, selector, token, expires FROM users_confirmations WHERE selector = \?`).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "email", "selector", "token", "expires"}).
			AddRow(int64(3), int64(9), "a@b.com", "abc", "hash", exp))

	got, err := repo.FindBySelector(context.Background(), model.TokenConfirmation, "abc")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), got.UserID)
	assert.Equal(t, "hash", got.VerifierHash)
	assert.True(t, got.Expired(exp))
	assert.False(t, got.Expired(exp.Add(-time.Second)))

	mock.ExpectQuery(`FROM users_resets WHERE selector = \?`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = repo.FindBySelector(context.Background(), model.TokenReset, "zzz")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEphemeralDeleteBySelector(t *testing.T) {
	repo, mock := newEphemeralRepoWithMock(t)
	mock.ExpectExec(`DELETE FROM users_confirmations WHERE selector = \?`).
		WithArgs("abc").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.DeleteBySelector(context.Background(), model.TokenConfirmation, "abc"))
}

func expectPurge(mock sqlmock.Sqlmock, now time.Time, counts [4]int64) {
	mock.ExpectExec(`DELETE FROM users_confirmations WHERE expires < \?`).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, counts[0]))
	mock.ExpectExec(`DELETE FROM users_resets WHERE expires < \?`).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, counts[1]))
	mock.ExpectExec(`DELETE FROM users_remembered WHERE expires < \?`).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, counts[2]))
	mock.ExpectExec(`DELETE FROM users_throttling WHERE expires_at < \?`).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, counts[3]))
}

func TestPurgeExpired_CountsAndIsIdempotent(t *testing.T) {
	repo, mock := newEphemeralRepoWithMock(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	expectPurge(mock, now, [4]int64{2, 1, 3, 5})
	expectPurge(mock, now, [4]int64{0, 0, 0, 0})

	first, err := repo.PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, model.PurgeResult{Confirmations: 2, Resets: 1, Remembered: 3, Throttling: 5}, first)
	assert.Equal(t, int64(11), first.Total())

	second, err := repo.PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, second.Total())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeExpired_StopsOnError(t *testing.T) {
	repo, mock := newEphemeralRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectExec(`DELETE FROM users_confirmations`).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM users_resets`).WillReturnError(errors.New("lock wait timeout"))

	res, err := repo.PurgeExpired(context.Background(), now)
	require.Error(t, err)
	assert.Equal(t, int64(4), res.Confirmations)
	require.NoError(t, mock.ExpectationsWereMet())
}
