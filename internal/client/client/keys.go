package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dmitrijs2005/keyrelay/internal/server/models"
)

// CheckResult is the reply of the replenishment check.
type CheckResult struct {
	NeedsMorePreKeys bool `json:"needsMorePreKeys"`
	AvailableCount   int  `json:"availableCount"`
	Threshold        int  `json:"threshold"`
}

// UploadBundle publishes the caller's key bundle.
func (c *Client) UploadBundle(ctx context.Context, b *models.UploadBundle) error {
	return c.do(ctx, http.MethodPost, "/keys/bundle", map[string]any{"keyBundle": b}, nil)
}

// FetchBundle retrieves userID's bundle, consuming one of their one-time
// pre-keys.
func (c *Client) FetchBundle(ctx context.Context, userID string) (*models.KeyBundle, error) {
	var out struct {
		KeyBundle *models.KeyBundle `json:"keyBundle"`
	}
	if err := c.do(ctx, http.MethodGet, "/keys/bundle/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return out.KeyBundle, nil
}

func (c *Client) Stats(ctx context.Context) (*models.KeyStats, error) {
	var out models.KeyStats
	if err := c.do(ctx, http.MethodGet, "/keys/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Check asks whether the caller should upload more one-time pre-keys. A zero
// threshold uses the server default.
func (c *Client) Check(ctx context.Context, threshold int) (*CheckResult, error) {
	path := "/keys/check"
	if threshold > 0 {
		path += "?threshold=" + strconv.Itoa(threshold)
	}
	var out CheckResult
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddPreKeys(ctx context.Context, keys []models.OneTimePreKey) error {
	return c.do(ctx, http.MethodPost, "/keys/prekeys", map[string]any{"oneTimePreKeys": keys}, nil)
}

func (c *Client) RotateSignedPreKey(ctx context.Context, spk models.SignedPreKey) error {
	return c.do(ctx, http.MethodPut, "/keys/signed-prekey", map[string]any{"signedPreKey": spk}, nil)
}
