package userkeys

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/keyrelay/internal/common"
	"github.com/dmitrijs2005/keyrelay/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

var columns = []string{
	"user_id", "registration_id", "identity_public_key",
	"signed_pre_key_id", "signed_pre_key_public", "signed_pre_key_signature",
	"keys_updated_at", "created_at",
}

func TestUpsert(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+user_keys.*ON CONFLICT \(user_id\)\s+DO UPDATE SET`).
		WithArgs("alice", int64(42), "IK", int64(7), "SPK", "SIG", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &models.UserKeyRecord{
		UserID:         "alice",
		RegistrationID: 42,
		IdentityKey:    "IK",
		SignedPreKey:   models.SignedPreKey{KeyID: 7, PublicKey: "SPK", Signature: "SIG"},
		KeysUpdatedAt:  now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_ConnectionLost(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`INSERT INTO user_keys`).
		WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})

	err := repo.Upsert(context.Background(), &models.UserKeyRecord{UserID: "alice", RegistrationID: 1})
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestGet(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	updated := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	created := updated.Add(-time.Hour)

	mock.ExpectQuery(`(?s)SELECT .* FROM user_keys WHERE user_id = \$1$`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("alice", int64(42), "IK", int64(7), "SPK", "SIG", updated, created))

	rec, err := repo.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, &models.UserKeyRecord{
		UserID:         "alice",
		RegistrationID: 42,
		IdentityKey:    "IK",
		SignedPreKey:   models.SignedPreKey{KeyID: 7, PublicKey: "SPK", Signature: "SIG"},
		KeysUpdatedAt:  updated,
		CreatedAt:      created,
	}, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM user_keys`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}

func TestGet_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	boom := errors.New("boom")

	mock.ExpectQuery(`FROM user_keys`).WillReturnError(boom)

	_, err := repo.Get(context.Background(), "alice")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, common.ErrUserNotFound)
	assert.NotErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestGetForShare_Locks(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)SELECT .* FROM user_keys WHERE user_id = \$1 FOR SHARE$`).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("bob", int64(1), "IK", int64(0), "SPK", "SIG", now, now))

	rec, err := repo.GetForShare(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", rec.UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSignedPreKey(t *testing.T) {
	now := time.Now().UTC()
	spk := models.SignedPreKey{KeyID: 9, PublicKey: "SPK2", Signature: "SIG2"}

	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{"updated", 1, nil},
		{"no user", 0, common.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			mock.ExpectExec(`(?s)UPDATE user_keys\s+SET signed_pre_key_id = \$2.*keys_updated_at = \$5`).
				WithArgs("alice", int64(9), "SPK2", "SIG2", now).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := repo.UpdateSignedPreKey(context.Background(), "alice", spk, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestTouch(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE user_keys SET keys_updated_at = \$2 WHERE user_id = \$1`).
		WithArgs("alice", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE user_keys SET keys_updated_at`).
		WithArgs("ghost", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Touch(context.Background(), "alice", now))
	assert.ErrorIs(t, repo.Touch(context.Background(), "ghost", now), common.ErrUserNotFound)
}
