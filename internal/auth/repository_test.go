package auth

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepository(db), mock
}

func TestRepositoryCreateUser(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, err := repo.CreateUser(context.Background(), "a@b.com", "hash", ProviderLocal)
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "a@b.com", user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateUserDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	_, err := repo.CreateUser(context.Background(), "a@b.com", "hash", ProviderLocal)
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUserByEmail(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, email, password_hash, provider, created_at, updated_at").
		WithArgs("a@b.com").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "email", "password_hash", "provider", "created_at", "updated_at"}).
			AddRow("user-1", "a@b.com", "hash", ProviderLocal, now, now))

	user, err := repo.UserByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, ProviderLocal, user.Provider)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUserByEmailNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT id, email, password_hash, provider, created_at, updated_at").
		WithArgs("nobody@b.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "provider", "created_at", "updated_at"}))

	_, err := repo.UserByEmail(context.Background(), "nobody@b.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositorySaveToken(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO token_infos").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveToken(context.Background(), "user-1", "raw-token", time.Now().Add(time.Hour))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func rotateRow(userID string, expiresAt time.Time, revokedAt any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "expires_at", "revoked_at"}).
		AddRow("tok-1", userID, expiresAt, revokedAt)
}

func TestRepositoryRotateToken(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, user_id, expires_at, revoked_at").
		WillReturnRows(rotateRow("user-1", time.Now().Add(time.Hour), nil))
	mock.ExpectExec("UPDATE token_infos").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO token_infos").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.RotateToken(context.Background(), "user-1", "old-token", "new-token", time.Now().Add(time.Hour))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryRotateTokenUnknown(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, user_id, expires_at, revoked_at").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "expires_at", "revoked_at"}))
	mock.ExpectRollback()

	err := repo.RotateToken(context.Background(), "user-1", "unknown", "new-token", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryRotateTokenTerminalStates(t *testing.T) {
	tests := []struct {
		name string
		row  *sqlmock.Rows
	}{
		{"already revoked", rotateRow("user-1", time.Now().Add(time.Hour), time.Now())},
		{"expired", rotateRow("user-1", time.Now().Add(-time.Minute), nil)},
		{"foreign owner", rotateRow("user-2", time.Now().Add(time.Hour), nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)

			mock.ExpectBegin()
			mock.ExpectQuery("SELECT id, user_id, expires_at, revoked_at").
				WillReturnRows(tt.row)
			mock.ExpectRollback()

			err := repo.RotateToken(context.Background(), "user-1", "old-token", "new-token", time.Now().Add(time.Hour))
			assert.ErrorIs(t, err, ErrInvalidRefreshToken)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepositoryRotateTokenLosesCompareAndSwap(t *testing.T) {
	repo, mock := newMockRepo(t)

	// The row read as active, but another transaction revoked it before our
	// conditional update ran: zero rows affected means we lost the race.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, user_id, expires_at, revoked_at").
		WillReturnRows(rotateRow("user-1", time.Now().Add(time.Hour), nil))
	mock.ExpectExec("UPDATE token_infos").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.RotateToken(context.Background(), "user-1", "old-token", "new-token", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryRevokeUserTokens(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE token_infos").
		WillReturnResult(sqlmock.NewResult(0, 3))

	assert.NoError(t, repo.RevokeUserTokens(context.Background(), "user-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetLoginAttemptMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT failed_attempts, locked_until").
		WithArgs("a@b.com").
		WillReturnRows(sqlmock.NewRows([]string{"failed_attempts", "locked_until"}))

	attempt, err := repo.GetLoginAttempt(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, 0, attempt.FailedAttempts)
	assert.Nil(t, attempt.LockedUntil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryRegisterFailedAttemptLocks(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT failed_attempts, locked_until").
		WillReturnRows(sqlmock.NewRows([]string{"failed_attempts", "locked_until"}).
			AddRow(4, nil))
	mock.ExpectExec("INSERT INTO login_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	lockedUntil, err := repo.RegisterFailedAttempt(context.Background(), "a@b.com", 5, 15*time.Minute, now)
	require.NoError(t, err)
	require.NotNil(t, lockedUntil)
	assert.Equal(t, now.Add(15*time.Minute), *lockedUntil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCleanupStaleAuthData(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM token_infos").
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectExec("DELETE FROM login_attempts").
		WillReturnResult(sqlmock.NewResult(0, 2))

	result, err := repo.CleanupStaleAuthData(context.Background(), 14*24*time.Hour, 30*24*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.DeletedRefreshTokens)
	assert.Equal(t, int64(2), result.DeletedLoginAttempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
