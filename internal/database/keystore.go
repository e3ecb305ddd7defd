package database

import (
	"context"
	"fmt"

	"github.com/keymend/keymend/internal/reconcile"
	"github.com/keymend/keymend/internal/sshkeys"
	"gorm.io/gorm"
)

// KeyStore adapts the gorm-backed ssh_keys table to the reconciler's
// RecordStore contract.
type KeyStore struct {
	DB *gorm.DB
}

func NewKeyStore() *KeyStore {
	return &KeyStore{DB: DB}
}

// FetchAll returns every key record in ID order.
func (s *KeyStore) FetchAll(ctx context.Context) ([]reconcile.KeyRecord, error) {
	var keys []SSHKey
	if err := s.DB.WithContext(ctx).Order("id").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("list ssh keys: %w", err)
	}

	records := make([]reconcile.KeyRecord, len(keys))
	for i, k := range keys {
		records[i] = reconcile.KeyRecord{
			ID:        k.ID,
			Name:      k.Name,
			KeyType:   k.KeyType,
			PublicKey: k.PublicKey,
		}
	}
	return records, nil
}

// CommitBatch applies all repaired records in one transaction so readers never
// observe a partially applied run. The stored fingerprint is refreshed from
// the new public key.
func (s *KeyStore) CommitBatch(ctx context.Context, mutated []reconcile.KeyRecord) error {
	if len(mutated) == 0 {
		return nil
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range mutated {
			updates := map[string]interface{}{"public_key": rec.PublicKey}
			if fp, err := sshkeys.Fingerprint(rec.PublicKey); err == nil {
				updates["fingerprint"] = fp
			}
			res := tx.Model(&SSHKey{}).Where("id = ?", rec.ID).Updates(updates)
			if res.Error != nil {
				return fmt.Errorf("update key %d: %w", rec.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("update key %d: record vanished", rec.ID)
			}
		}
		return nil
	})
}
