package prekeys

import (
	"context"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, userID string, key models.OneTimePreKey) (bool, error)
	Exists(ctx context.Context, userID string, keyID uint32) (bool, error)
	ClaimOldest(ctx context.Context, userID string, at time.Time) (*models.PreKeyRecord, error)
	CountAvailable(ctx context.Context, userID string) (int, error)
	Counts(ctx context.Context, userID string) (models.PreKeyCounts, error)
	DeleteConsumedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
