// Package models defines the key-distribution records persisted by the
// server and the shapes exchanged with clients.
package models

import "time"

// SignedPreKey is a medium-term public key signed by the owner's identity key.
type SignedPreKey struct {
	KeyID     uint32 `json:"keyId"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

// OneTimePreKey is a single-use public key handed to at most one requester.
type OneTimePreKey struct {
	KeyID     uint32 `json:"keyId"`
	PublicKey string `json:"publicKey"`
}

// UserKeyRecord is the per-user key material. Keys are stored as received
// (base64 text); the server never inspects them beyond size checks.
type UserKeyRecord struct {
	UserID         string
	RegistrationID uint32
	IdentityKey    string
	SignedPreKey   SignedPreKey
	KeysUpdatedAt  time.Time
	CreatedAt      time.Time
}

// PreKeyRecord is a stored one-time pre-key. Once Consumed is true it never
// reverts and the key is never returned again.
type PreKeyRecord struct {
	ID         int64
	UserID     string
	KeyID      uint32
	PublicKey  string
	Consumed   bool
	CreatedAt  time.Time
	ConsumedAt *time.Time
}

// UploadBundle is what a client publishes: identity, signed pre-key and a
// batch of one-time pre-keys.
type UploadBundle struct {
	RegistrationID uint32          `json:"registrationId"`
	IdentityKey    string          `json:"identityPubKey"`
	SignedPreKey   SignedPreKey    `json:"signedPreKey"`
	OneTimePreKeys []OneTimePreKey `json:"oneTimePreKeys"`
}

// KeyBundle is what a requester receives. OneTimePreKeys always holds
// exactly one key; a bundle is never returned without one.
type KeyBundle struct {
	RegistrationID uint32          `json:"registrationId"`
	IdentityKey    string          `json:"identityPubKey"`
	SignedPreKey   SignedPreKey    `json:"signedPreKey"`
	OneTimePreKeys []OneTimePreKey `json:"oneTimePreKeys"`
}

// PreKeyCounts is the raw tally of a user's one-time pre-keys.
type PreKeyCounts struct {
	Total     int
	Available int
	Consumed  int
}

// KeyStats reports pre-key inventory for a user.
type KeyStats struct {
	TotalPreKeys     int       `json:"totalPreKeys"`
	AvailablePreKeys int       `json:"availablePreKeys"`
	ConsumedPreKeys  int       `json:"consumedPreKeys"`
	LastUpdated      time.Time `json:"lastUpdated"`
}
