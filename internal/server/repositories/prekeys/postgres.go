// Package prekeys provides PostgreSQL-backed storage of one-time pre-keys
// and their exactly-once allocation.
package prekeys

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

// Insert stores a one-time pre-key. It reports false, with no error, when
// the user already has a key with the same key id; the existing row is left
// untouched.
func (r *PostgresRepository) Insert(ctx context.Context, userID string, key models.OneTimePreKey) (bool, error) {
	query := `
		INSERT INTO pre_keys (user_id, key_id, public_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, key_id) DO NOTHING
		RETURNING id`

	var id int64
	err := r.db.QueryRowContext(ctx, query, userID, key.KeyID, key.PublicKey).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return true, nil
}

// Exists reports whether userID already owns keyID, consumed or not.
func (r *PostgresRepository) Exists(ctx context.Context, userID string, keyID uint32) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pre_keys WHERE user_id = $1 AND key_id = $2)`,
		userID, keyID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return exists, nil
}

// ClaimOldest marks the oldest unconsumed pre-key of userID as consumed and
// returns it. It must run inside a transaction: the row lock taken by the
// select is what keeps two concurrent claims from returning the same key.
// Rows locked by another claim are skipped, so concurrent callers each get a
// different key or common.ErrNoAvailablePreKeys.
func (r *PostgresRepository) ClaimOldest(ctx context.Context, userID string, at time.Time) (*models.PreKeyRecord, error) {
	query := `
		SELECT id, key_id, public_key, created_at
		FROM pre_keys
		WHERE user_id = $1 AND consumed = FALSE
		ORDER BY created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	rec := models.PreKeyRecord{UserID: userID}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&rec.ID, &rec.KeyID, &rec.PublicKey, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNoAvailablePreKeys
		}
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE pre_keys SET consumed = TRUE, consumed_at = $2 WHERE id = $1 AND consumed = FALSE`,
		rec.ID, at)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return nil, fmt.Errorf("pre-key %d already consumed: %w", rec.ID, common.ErrNoAvailablePreKeys)
	}

	rec.Consumed = true
	rec.ConsumedAt = &at
	return &rec, nil
}

// CountAvailable returns the number of unconsumed pre-keys of userID.
// Unknown users have zero.
func (r *PostgresRepository) CountAvailable(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pre_keys WHERE user_id = $1 AND consumed = FALSE`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return n, nil
}

// Counts returns total, available and consumed pre-keys of userID in one pass.
func (r *PostgresRepository) Counts(ctx context.Context, userID string) (models.PreKeyCounts, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE consumed = FALSE),
			COUNT(*) FILTER (WHERE consumed = TRUE)
		FROM pre_keys
		WHERE user_id = $1`

	var c models.PreKeyCounts
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&c.Total, &c.Available, &c.Consumed); err != nil {
		return models.PreKeyCounts{}, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	return c, nil
}

// DeleteConsumedBefore removes consumed pre-keys whose consumption time is
// before cutoff. Unconsumed keys are never removed.
func (r *PostgresRepository) DeleteConsumedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM pre_keys WHERE consumed = TRUE AND consumed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", dbx.Classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
