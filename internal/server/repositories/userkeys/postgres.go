// Package userkeys provides PostgreSQL-backed storage for per-user identity
// and signed pre-key material.
package userkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/common"
	"github.com/dmitrijs2005/keyrelay/internal/dbx"
	"github.com/dmitrijs2005/keyrelay/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `user_id, registration_id, identity_public_key,
		signed_pre_key_id, signed_pre_key_public, signed_pre_key_signature,
		keys_updated_at, created_at`

// Upsert inserts the record or replaces the registration id, identity key
// and signed pre-key of an existing one. keys_updated_at is set from rec.
func (r *PostgresRepository) Upsert(ctx context.Context, rec *models.UserKeyRecord) error {
	query := `
		INSERT INTO user_keys (user_id, registration_id, identity_public_key,
			signed_pre_key_id, signed_pre_key_public, signed_pre_key_signature, keys_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id)
		DO UPDATE SET
			registration_id = EXCLUDED.registration_id,
			identity_public_key = EXCLUDED.identity_public_key,
			signed_pre_key_id = EXCLUDED.signed_pre_key_id,
			signed_pre_key_public = EXCLUDED.signed_pre_key_public,
			signed_pre_key_signature = EXCLUDED.signed_pre_key_signature,
			keys_updated_at = EXCLUDED.keys_updated_at`

	_, err := r.db.ExecContext(ctx, query,
		rec.UserID, rec.RegistrationID, rec.IdentityKey,
		rec.SignedPreKey.KeyID, rec.SignedPreKey.PublicKey, rec.SignedPreKey.Signature,
		rec.KeysUpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return nil
}

// Get returns the record for userID or common.ErrUserNotFound.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.UserKeyRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM user_keys WHERE user_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID))
}

// GetForShare is Get with a FOR SHARE lock, so the record cannot be replaced
// while a bundle is being assembled in the same transaction.
func (r *PostgresRepository) GetForShare(ctx context.Context, userID string) (*models.UserKeyRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM user_keys WHERE user_id = $1 FOR SHARE`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.UserKeyRecord, error) {
	var rec models.UserKeyRecord
	err := row.Scan(
		&rec.UserID, &rec.RegistrationID, &rec.IdentityKey,
		&rec.SignedPreKey.KeyID, &rec.SignedPreKey.PublicKey, &rec.SignedPreKey.Signature,
		&rec.KeysUpdatedAt, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return &rec, nil
}

// UpdateSignedPreKey replaces the signed pre-key and bumps keys_updated_at.
func (r *PostgresRepository) UpdateSignedPreKey(ctx context.Context, userID string, spk models.SignedPreKey, at time.Time) error {
	query := `
		UPDATE user_keys
		SET signed_pre_key_id = $2, signed_pre_key_public = $3, signed_pre_key_signature = $4,
			keys_updated_at = $5
		WHERE user_id = $1`
	res, err := r.db.ExecContext(ctx, query, userID, spk.KeyID, spk.PublicKey, spk.Signature, at)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return expectOne(res)
}

// Touch bumps keys_updated_at.
func (r *PostgresRepository) Touch(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE user_keys SET keys_updated_at = $2 WHERE user_id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrUserNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
