package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/keymend/keymend/internal/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Init() error {
	dbPath := config.Cfg.DatabasePath
	dbDir := filepath.Dir(dbPath)
	if dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	if err := DB.AutoMigrate(&SSHKey{}, &KeySecret{}, &Setting{}, &ReconcileRun{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func GetSetting(key string) (string, error) {
	var s Setting
	if err := DB.Where("key = ?", key).First(&s).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	return DB.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error
}

// Key record helpers

func ListKeys() ([]SSHKey, error) {
	var keys []SSHKey
	if err := DB.Order("id").Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func GetKey(id uint) (*SSHKey, error) {
	var k SSHKey
	if err := DB.First(&k, id).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

// HasSecret reports whether a key record has private key material stored.
func HasSecret(keyID uint) bool {
	var count int64
	DB.Model(&KeySecret{}).Where("key_id = ? AND private_key != ''", keyID).Count(&count)
	return count > 0
}

// Reconcile run helpers

func SaveReconcileRun(run *ReconcileRun) error {
	return DB.Create(run).Error
}

func ListReconcileRuns(limit int) ([]ReconcileRun, error) {
	var runs []ReconcileRun
	q := DB.Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// PruneReconcileRuns deletes all but the most recent keep run reports.
func PruneReconcileRuns(keep int) error {
	if keep <= 0 {
		return nil
	}
	var ids []string
	if err := DB.Model(&ReconcileRun{}).Order("started_at DESC").Limit(keep).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return DB.Where("id NOT IN ?", ids).Delete(&ReconcileRun{}).Error
}
