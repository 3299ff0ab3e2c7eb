package userkeys

import (
	"context"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, rec *models.UserKeyRecord) error
	Get(ctx context.Context, userID string) (*models.UserKeyRecord, error)
	GetForShare(ctx context.Context, userID string) (*models.UserKeyRecord, error)
	UpdateSignedPreKey(ctx context.Context, userID string, spk models.SignedPreKey, at time.Time) error
	Touch(ctx context.Context, userID string, at time.Time) error
}
