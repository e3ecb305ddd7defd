// Package secrets is the read side of private key material. It decrypts rows
// from the key_secrets table on demand and never caches plaintext.
package secrets

import (
	"context"
	"fmt"

	"github.com/keymend/keymend/internal/crypto"
	"github.com/keymend/keymend/internal/database"
	"gorm.io/gorm"
)

// Store implements the reconciler's SecretSource over the database.
type Store struct {
	DB *gorm.DB
}

func NewStore() *Store {
	return &Store{DB: database.DB}
}

// PrivateKey returns the decrypted private key bytes for a record. A missing
// row surfaces as an error and an empty stored value as empty bytes; the
// reconciler treats both as "no secret".
func (s *Store) PrivateKey(ctx context.Context, keyID uint) ([]byte, error) {
	var sec database.KeySecret
	if err := s.DB.WithContext(ctx).Where("key_id = ?", keyID).First(&sec).Error; err != nil {
		return nil, fmt.Errorf("load secret for key %d: %w", keyID, err)
	}
	if sec.PrivateKey == "" {
		return nil, nil
	}

	pem, err := crypto.Decrypt(sec.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt private key for key %d: %w", keyID, err)
	}
	return []byte(pem), nil
}

// Passphrase returns the decrypted passphrase for a record, or empty when none
// is stored. Lookup and decryption errors also surface as errors; the
// reconciler maps them to "no passphrase".
func (s *Store) Passphrase(ctx context.Context, keyID uint) (string, error) {
	var sec database.KeySecret
	if err := s.DB.WithContext(ctx).Where("key_id = ?", keyID).First(&sec).Error; err != nil {
		return "", fmt.Errorf("load secret for key %d: %w", keyID, err)
	}
	if sec.Passphrase == "" {
		return "", nil
	}

	pass, err := crypto.Decrypt(sec.Passphrase)
	if err != nil {
		return "", fmt.Errorf("decrypt passphrase for key %d: %w", keyID, err)
	}
	return pass, nil
}
