package services

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/keyrelay/internal/common"
	"github.com/dmitrijs2005/keyrelay/internal/server/models"
	"golang.org/x/crypto/curve25519"
)

const (
	// djbKeyType is the leading type byte some clients put in front of a
	// serialized Curve25519 public key.
	djbKeyType = 0x05

	signatureSize = 64
)

func decodeBase64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return common.Invalid("userId is required")
	}
	return nil
}

func validatePublicKey(field, key string) error {
	if key == "" {
		return common.Invalid("%s is required", field)
	}
	raw, err := decodeBase64(key)
	if err != nil {
		return common.Invalid("%s is not valid base64", field)
	}
	switch {
	case len(raw) == curve25519.PointSize:
		return nil
	case len(raw) == curve25519.PointSize+1 && raw[0] == djbKeyType:
		return nil
	default:
		return common.Invalid("%s must be a %d-byte Curve25519 key, got %d bytes", field, curve25519.PointSize, len(raw))
	}
}

func validateSignature(field, sig string) error {
	if sig == "" {
		return common.Invalid("%s is required", field)
	}
	raw, err := decodeBase64(sig)
	if err != nil {
		return common.Invalid("%s is not valid base64", field)
	}
	if len(raw) != signatureSize {
		return common.Invalid("%s must be %d bytes, got %d", field, signatureSize, len(raw))
	}
	return nil
}

func validateKeyID(field string, id uint32) error {
	if id > common.MaxKeyID {
		return common.Invalid("%s %d exceeds %d", field, id, common.MaxKeyID)
	}
	return nil
}

func validateSignedPreKey(spk models.SignedPreKey) error {
	if err := validateKeyID("signedPreKey.keyId", spk.KeyID); err != nil {
		return err
	}
	if err := validatePublicKey("signedPreKey.publicKey", spk.PublicKey); err != nil {
		return err
	}
	return validateSignature("signedPreKey.signature", spk.Signature)
}

func validateOneTimePreKeys(keys []models.OneTimePreKey, allowEmpty bool) error {
	if len(keys) == 0 && !allowEmpty {
		return common.Invalid("oneTimePreKeys must not be empty")
	}
	if len(keys) > common.MaxPreKeysPerUpload {
		return common.Invalid("at most %d oneTimePreKeys per request, got %d", common.MaxPreKeysPerUpload, len(keys))
	}
	for i, k := range keys {
		if err := validateKeyID(fmt.Sprintf("oneTimePreKeys[%d].keyId", i), k.KeyID); err != nil {
			return err
		}
		if err := validatePublicKey(fmt.Sprintf("oneTimePreKeys[%d].publicKey", i), k.PublicKey); err != nil {
			return err
		}
	}
	return nil
}

func validateUploadBundle(b *models.UploadBundle) error {
	if b == nil {
		return common.Invalid("keyBundle is required")
	}
	if b.RegistrationID == 0 {
		return common.Invalid("registrationId must be positive")
	}
	if err := validatePublicKey("identityPubKey", b.IdentityKey); err != nil {
		return err
	}
	if err := validateSignedPreKey(b.SignedPreKey); err != nil {
		return err
	}
	return validateOneTimePreKeys(b.OneTimePreKeys, true)
}
