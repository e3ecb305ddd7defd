package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/keymend/keymend/internal/config"
	"github.com/keymend/keymend/internal/crypto"
	"github.com/keymend/keymend/internal/database"
	"golang.org/x/crypto/ssh"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDBMain(t *testing.T) {
	t.Helper()
	var err error
	database.DB, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test DB: %v", err)
	}
	if err := database.DB.AutoMigrate(&database.SSHKey{}, &database.KeySecret{}, &database.Setting{}, &database.ReconcileRun{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	config.Cfg = config.Settings{ReconcileRunHistory: 50}
	t.Cleanup(func() {
		sqlDB, _ := database.DB.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		database.DB = nil
	})
}

// createKeyWithSecret stores a record with an empty public key plus a real
// encrypted ed25519 private key, and returns the expected authorized_keys
// value.
func createKeyWithSecret(t *testing.T, name string) (uint, string) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("ssh public key: %v", err)
	}
	wantPub := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))

	rec := database.SSHKey{Name: name, KeyType: "ed25519", PublicKey: ""}
	if err := database.DB.Create(&rec).Error; err != nil {
		t.Fatalf("create record: %v", err)
	}

	enc, err := crypto.Encrypt(string(privPEM))
	if err != nil {
		t.Fatalf("encrypt private key: %v", err)
	}
	if err := database.DB.Create(&database.KeySecret{KeyID: rec.ID, PrivateKey: enc}).Error; err != nil {
		t.Fatalf("create secret: %v", err)
	}

	return rec.ID, wantPub
}

func TestRunReconcileJob_EmptyDatabase(t *testing.T) {
	setupTestDBMain(t)

	result, err := runReconcileJob(context.Background())
	if err != nil {
		t.Fatalf("runReconcileJob: %v", err)
	}
	if result.AlreadyValid != 0 || result.Succeeded != 0 || result.Skipped != 0 || result.Failed != 0 {
		t.Errorf("expected all-zero counts, got %+v", result)
	}
	if result.Committed {
		t.Error("expected no commit for empty database")
	}
}

func TestRunReconcileJob_RepairsAndPersistsReport(t *testing.T) {
	setupTestDBMain(t)

	id, wantPub := createKeyWithSecret(t, "deploy@build01")
	database.DB.Create(&database.SSHKey{
		Name:      "healthy",
		KeyType:   "ed25519",
		PublicKey: "ssh-ed25519 AAAAC3Fake healthy",
	})

	result, err := runReconcileJob(context.Background())
	if err != nil {
		t.Fatalf("runReconcileJob: %v", err)
	}
	if result.Succeeded != 1 || result.AlreadyValid != 1 {
		t.Errorf("counts = {ok:%d, valid:%d}, want {1,1}", result.Succeeded, result.AlreadyValid)
	}
	if !result.Committed {
		t.Error("expected commit")
	}

	var repaired database.SSHKey
	database.DB.First(&repaired, id)
	if repaired.PublicKey != wantPub {
		t.Errorf("public key = %q, want %q", repaired.PublicKey, wantPub)
	}
	if !strings.HasPrefix(repaired.Fingerprint, "SHA256:") {
		t.Errorf("fingerprint = %q", repaired.Fingerprint)
	}

	runs, err := database.ListReconcileRuns(10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("run count = %d, want 1", len(runs))
	}
	if runs[0].ID != result.RunID || runs[0].Succeeded != 1 || !runs[0].Committed {
		t.Errorf("persisted run = %+v", runs[0])
	}
	if !strings.Contains(runs[0].Report, "succeeded") {
		t.Errorf("report = %q, want outcome JSON", runs[0].Report)
	}
}

func TestRunReconcileJob_SecondRunIsNoop(t *testing.T) {
	setupTestDBMain(t)

	createKeyWithSecret(t, "deploy@build01")

	if _, err := runReconcileJob(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := runReconcileJob(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Succeeded != 0 || second.AlreadyValid != 1 {
		t.Errorf("second run = {ok:%d, valid:%d}, want {0,1}", second.Succeeded, second.AlreadyValid)
	}
	if second.Committed {
		t.Error("second run must not commit")
	}
}

func TestRunReconcileJob_MissingSecretSkipped(t *testing.T) {
	setupTestDBMain(t)

	database.DB.Create(&database.SSHKey{Name: "orphan", KeyType: "ed25519", PublicKey: ""})

	result, err := runReconcileJob(context.Background())
	if err != nil {
		t.Fatalf("runReconcileJob: %v", err)
	}
	if result.Skipped != 1 || result.Succeeded != 0 {
		t.Errorf("counts = {skip:%d, ok:%d}, want {1,0}", result.Skipped, result.Succeeded)
	}

	var rec database.SSHKey
	database.DB.Where("name = ?", "orphan").First(&rec)
	if rec.PublicKey != "" {
		t.Errorf("public key = %q, want unchanged empty", rec.PublicKey)
	}
}

func TestRunReconcileJob_UndecodableKeyFails(t *testing.T) {
	setupTestDBMain(t)

	rec := database.SSHKey{Name: "corrupt", KeyType: "ed25519", PublicKey: "PLACEHOLDER"}
	database.DB.Create(&rec)
	enc, err := crypto.Encrypt("this is not a private key")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	database.DB.Create(&database.KeySecret{KeyID: rec.ID, PrivateKey: enc})

	result, err := runReconcileJob(context.Background())
	if err != nil {
		t.Fatalf("runReconcileJob: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("failed = %d, want 1", result.Failed)
	}

	var loaded database.SSHKey
	database.DB.First(&loaded, rec.ID)
	if loaded.PublicKey != "PLACEHOLDER" {
		t.Errorf("public key = %q, want placeholder retained", loaded.PublicKey)
	}
}
