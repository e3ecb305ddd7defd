package database

import "time"

// SSHKey is one managed key record. PublicKey is empty or contains the
// placeholder marker until the reconciler derives the real value from the
// private key held in the key_secrets table.
type SSHKey struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	KeyType     string    `gorm:"not null;default:''" json:"key_type"`
	PublicKey   string    `gorm:"type:text" json:"public_key"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// KeySecret holds the private key material for one SSHKey. Both fields are
// Fernet-encrypted at rest. The reconciler only ever reads this table; rows
// are written by the seed loader or earlier import flows.
type KeySecret struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	KeyID      uint   `gorm:"uniqueIndex;not null" json:"key_id"`
	PrivateKey string `gorm:"type:text" json:"-"`
	Passphrase string `json:"-"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ReconcileRun is the persisted summary of one reconciliation run. Report
// holds the per-key outcomes as JSON.
type ReconcileRun struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	AlreadyValid int       `json:"already_valid"`
	Succeeded    int       `json:"succeeded"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
	Committed    bool      `json:"committed"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Report       string    `gorm:"type:text" json:"report,omitempty"`
}
