package secrets

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/keymend/keymend/internal/crypto"
	"github.com/keymend/keymend/internal/database"
	"github.com/keymend/keymend/internal/logutil"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// SeedFile is the YAML manifest consumed by `keymend --seed`. It bootstraps
// key records and their private key material for a fresh deployment.
type SeedFile struct {
	Keys []SeedKey `yaml:"keys"`
}

type SeedKey struct {
	Name           string `yaml:"name"`
	KeyType        string `yaml:"key_type"`
	PublicKey      string `yaml:"public_key"`
	PrivateKey     string `yaml:"private_key"`      // inline PEM
	PrivateKeyFile string `yaml:"private_key_file"` // or path, relative to the manifest
	Passphrase     string `yaml:"passphrase"`
}

// LoadSeedFile creates key records and encrypted secrets from a YAML manifest.
// Records whose name already exists are left untouched, so re-running a seed
// is safe. Returns the number of records created.
func LoadSeedFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	created := 0
	for i, sk := range seed.Keys {
		if sk.Name == "" {
			return created, fmt.Errorf("seed key %d: name is required", i)
		}

		var existing database.SSHKey
		err := database.DB.Where("name = ?", sk.Name).First(&existing).Error
		if err == nil {
			log.Printf("seed: key %q already exists, skipping", logutil.SanitizeForLog(sk.Name))
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return created, fmt.Errorf("seed key %q: lookup: %w", sk.Name, err)
		}

		privPEM := sk.PrivateKey
		if privPEM == "" && sk.PrivateKeyFile != "" {
			keyPath := sk.PrivateKeyFile
			if !filepath.IsAbs(keyPath) {
				keyPath = filepath.Join(filepath.Dir(path), keyPath)
			}
			raw, err := os.ReadFile(keyPath)
			if err != nil {
				return created, fmt.Errorf("seed key %q: read private key file: %w", sk.Name, err)
			}
			privPEM = string(raw)
		}

		rec := database.SSHKey{
			Name:      sk.Name,
			KeyType:   sk.KeyType,
			PublicKey: sk.PublicKey,
		}
		if err := database.DB.Create(&rec).Error; err != nil {
			return created, fmt.Errorf("seed key %q: create record: %w", sk.Name, err)
		}

		if privPEM != "" {
			encKey, err := crypto.Encrypt(privPEM)
			if err != nil {
				return created, fmt.Errorf("seed key %q: encrypt private key: %w", sk.Name, err)
			}
			sec := database.KeySecret{KeyID: rec.ID, PrivateKey: encKey}
			if sk.Passphrase != "" {
				encPass, err := crypto.Encrypt(sk.Passphrase)
				if err != nil {
					return created, fmt.Errorf("seed key %q: encrypt passphrase: %w", sk.Name, err)
				}
				sec.Passphrase = encPass
			}
			if err := database.DB.Create(&sec).Error; err != nil {
				return created, fmt.Errorf("seed key %q: create secret: %w", sk.Name, err)
			}
		}

		created++
	}

	return created, nil
}
