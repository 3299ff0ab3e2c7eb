package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/common"
	"github.com/dmitrijs2005/keyrelay/internal/dbx"
	"github.com/dmitrijs2005/keyrelay/internal/logging"
	"github.com/dmitrijs2005/keyrelay/internal/server/config"
	"github.com/dmitrijs2005/keyrelay/internal/server/models"
	"github.com/dmitrijs2005/keyrelay/internal/server/repositories/prekeys"
	"github.com/dmitrijs2005/keyrelay/internal/server/repositories/repomanager"
)

const (
	// DefaultPreKeyThreshold is the replenish threshold used when a caller
	// does not supply one.
	DefaultPreKeyThreshold = 10

	// DefaultRetentionDays is how long consumed pre-keys are kept.
	DefaultRetentionDays = 30

	// MaxKeyIDAttempts bounds how many fresh key ids are tried for a single
	// colliding pre-key before the whole upload fails.
	MaxKeyIDAttempts = 100

	// claimLockTimeout bounds the wait on the user_keys row lock while a
	// bundle is assembled. Pre-key rows themselves are never waited on.
	claimLockTimeout = 3 * time.Second
)

// KeyIDGenerator returns a candidate one-time pre-key id in [1, common.MaxKeyID].
type KeyIDGenerator func() (uint32, error)

// RandomKeyID draws a uniformly random 24-bit key id from crypto/rand,
// never returning zero.
func RandomKeyID() (uint32, error) {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, fmt.Errorf("random key id: %w", err)
		}
		id := binary.BigEndian.Uint32(b[:]) & common.MaxKeyID
		if id != 0 {
			return id, nil
		}
	}
}

// KeyService stores key bundles and hands out one-time pre-keys, each to
// at most one requester.
type KeyService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	metrics     *KeyMetrics
	threshold   int
	newKeyID    KeyIDGenerator
	now         func() time.Time
}

// KeyServiceOption customizes a KeyService.
type KeyServiceOption func(*KeyService)

// WithKeyIDGenerator replaces the random key id source.
func WithKeyIDGenerator(g KeyIDGenerator) KeyServiceOption {
	return func(s *KeyService) { s.newKeyID = g }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) KeyServiceOption {
	return func(s *KeyService) { s.now = now }
}

// WithKeyMetrics attaches prometheus instrumentation.
func WithKeyMetrics(m *KeyMetrics) KeyServiceOption {
	return func(s *KeyService) { s.metrics = m }
}

func NewKeyService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger, opts ...KeyServiceOption) *KeyService {
	threshold := DefaultPreKeyThreshold
	if cfg != nil && cfg.PreKeyThreshold > 0 {
		threshold = cfg.PreKeyThreshold
	}
	s := &KeyService{
		db:          db,
		repomanager: m,
		log:         log.With("module", "keys"),
		threshold:   threshold,
		newKeyID:    RandomKeyID,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold is the configured default replenish threshold.
func (s *KeyService) Threshold() int {
	return s.threshold
}

// UploadKeyBundle stores or replaces the user's identity and signed
// pre-key and adds the bundle's one-time pre-keys, all in one transaction.
// Colliding key ids are reassigned; existing keys are never overwritten.
func (s *KeyService) UploadKeyBundle(ctx context.Context, userID string, bundle *models.UploadBundle) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := validateUploadBundle(bundle); err != nil {
		return err
	}

	now := s.now().UTC()
	rec := &models.UserKeyRecord{
		UserID:         userID,
		RegistrationID: bundle.RegistrationID,
		IdentityKey:    bundle.IdentityKey,
		SignedPreKey:   bundle.SignedPreKey,
		KeysUpdatedAt:  now,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.UserKeys(tx).Upsert(ctx, rec); err != nil {
			return fmt.Errorf("store user keys: %w", err)
		}
		return s.insertPreKeys(ctx, s.repomanager.PreKeys(tx), userID, bundle.OneTimePreKeys)
	})
	if err != nil {
		return err
	}

	s.metrics.recordUploaded(len(bundle.OneTimePreKeys))
	s.log.Info(ctx, "key bundle uploaded", "user_id", userID, "prekeys", len(bundle.OneTimePreKeys))
	return nil
}

// GetKeyBundle returns the user's identity key, signed pre-key and exactly
// one one-time pre-key, which is consumed in the same transaction. It fails
// with common.ErrNoAvailablePreKeys when the user has none left; no bundle
// is ever returned without a one-time pre-key.
func (s *KeyService) GetKeyBundle(ctx context.Context, userID string) (*models.KeyBundle, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	var bundle *models.KeyBundle
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := dbx.SetLockTimeout(ctx, tx, claimLockTimeout); err != nil {
			return fmt.Errorf("set lock timeout: %w", dbx.Classify(err))
		}

		rec, err := s.repomanager.UserKeys(tx).GetForShare(ctx, userID)
		if err != nil {
			return err
		}

		pk, err := s.repomanager.PreKeys(tx).ClaimOldest(ctx, userID, s.now().UTC())
		if err != nil {
			return err
		}

		bundle = &models.KeyBundle{
			RegistrationID: rec.RegistrationID,
			IdentityKey:    rec.IdentityKey,
			SignedPreKey:   rec.SignedPreKey,
			OneTimePreKeys: []models.OneTimePreKey{{KeyID: pk.KeyID, PublicKey: pk.PublicKey}},
		}
		return nil
	})
	if err != nil {
		s.metrics.recordAllocFailure(common.KindOf(err))
		if errors.Is(err, common.ErrNoAvailablePreKeys) {
			s.log.Warn(ctx, "no one-time pre-keys left", "user_id", userID)
		}
		return nil, err
	}

	s.metrics.recordAllocated()
	return bundle, nil
}

// GetAvailablePreKeyCount returns the number of unconsumed one-time
// pre-keys. Users without keys have zero.
func (s *KeyService) GetAvailablePreKeyCount(ctx context.Context, userID string) (int, error) {
	if err := validateUserID(userID); err != nil {
		return 0, err
	}
	return s.repomanager.PreKeys(s.db).CountAvailable(ctx, userID)
}

// NeedsMorePreKeys reports whether the available count is strictly below
// threshold, along with the count itself. A zero threshold selects the
// configured default.
func (s *KeyService) NeedsMorePreKeys(ctx context.Context, userID string, threshold int) (bool, int, error) {
	if threshold < 0 {
		return false, 0, common.Invalid("threshold must not be negative")
	}
	if threshold == 0 {
		threshold = s.threshold
	}
	n, err := s.GetAvailablePreKeyCount(ctx, userID)
	if err != nil {
		return false, 0, err
	}
	return n < threshold, n, nil
}

// AddOneTimePreKeys stores more one-time pre-keys for a user that has
// already uploaded a bundle.
func (s *KeyService) AddOneTimePreKeys(ctx context.Context, userID string, keys []models.OneTimePreKey) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := validateOneTimePreKeys(keys, false); err != nil {
		return err
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.UserKeys(tx)
		if _, err := users.GetForShare(ctx, userID); err != nil {
			return err
		}
		if err := s.insertPreKeys(ctx, s.repomanager.PreKeys(tx), userID, keys); err != nil {
			return err
		}
		return users.Touch(ctx, userID, s.now().UTC())
	})
	if err != nil {
		return err
	}

	s.metrics.recordUploaded(len(keys))
	s.log.Info(ctx, "one-time pre-keys added", "user_id", userID, "prekeys", len(keys))
	return nil
}

// RotateSignedPreKey replaces the user's signed pre-key. One-time pre-keys
// are not touched.
func (s *KeyService) RotateSignedPreKey(ctx context.Context, userID string, spk models.SignedPreKey) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if err := validateSignedPreKey(spk); err != nil {
		return err
	}

	if err := s.repomanager.UserKeys(s.db).UpdateSignedPreKey(ctx, userID, spk, s.now().UTC()); err != nil {
		return err
	}
	s.log.Info(ctx, "signed pre-key rotated", "user_id", userID, "key_id", spk.KeyID)
	return nil
}

// CleanupOldPreKeys deletes consumed pre-keys consumed more than
// olderThanDays days ago and returns how many were removed.
func (s *KeyService) CleanupOldPreKeys(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays < 0 {
		return 0, common.Invalid("olderThanDays must not be negative")
	}
	cutoff := s.now().UTC().Add(-time.Duration(olderThanDays) * 24 * time.Hour)

	n, err := s.repomanager.PreKeys(s.db).DeleteConsumedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.metrics.recordCleanup(n)
	return n, nil
}

// GetKeyStats reports the user's pre-key inventory and when their keys
// last changed.
func (s *KeyService) GetKeyStats(ctx context.Context, userID string) (*models.KeyStats, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	rec, err := s.repomanager.UserKeys(s.db).Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	c, err := s.repomanager.PreKeys(s.db).Counts(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &models.KeyStats{
		TotalPreKeys:     c.Total,
		AvailablePreKeys: c.Available,
		ConsumedPreKeys:  c.Consumed,
		LastUpdated:      rec.KeysUpdatedAt,
	}, nil
}

func (s *KeyService) insertPreKeys(ctx context.Context, repo prekeys.Repository, userID string, keys []models.OneTimePreKey) error {
	for _, k := range keys {
		ok, err := repo.Insert(ctx, userID, k)
		if err != nil {
			return fmt.Errorf("store pre-key %d: %w", k.KeyID, err)
		}
		if ok {
			continue
		}
		if err := s.insertWithFreshID(ctx, repo, userID, k); err != nil {
			return err
		}
	}
	return nil
}

// insertWithFreshID stores k under a newly generated key id after its
// requested id collided with an existing key of the same user.
func (s *KeyService) insertWithFreshID(ctx context.Context, repo prekeys.Repository, userID string, k models.OneTimePreKey) error {
	for attempt := 1; attempt <= MaxKeyIDAttempts; attempt++ {
		id, err := s.newKeyID()
		if err != nil {
			return err
		}

		exists, err := repo.Exists(ctx, userID, id)
		if err != nil {
			return fmt.Errorf("check pre-key %d: %w", id, err)
		}
		if exists {
			continue
		}

		ok, err := repo.Insert(ctx, userID, models.OneTimePreKey{KeyID: id, PublicKey: k.PublicKey})
		if err != nil {
			return fmt.Errorf("store pre-key %d: %w", id, err)
		}
		if ok {
			s.metrics.recordRegenerated()
			s.log.Debug(ctx, "pre-key id collision resolved",
				"user_id", userID, "requested_key_id", k.KeyID, "key_id", id, "attempt", attempt)
			return nil
		}
	}

	s.log.Error(ctx, "pre-key id generation exhausted", "user_id", userID, "requested_key_id", k.KeyID)
	return fmt.Errorf("pre-key %d after %d attempts: %w", k.KeyID, MaxKeyIDAttempts, common.ErrKeyIDGenerationExhausted)
}
