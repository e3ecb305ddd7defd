package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/keymend/keymend/internal/database"
	"github.com/keymend/keymend/internal/reconcile"
	"gorm.io/gorm"
)

type keyResponse struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	KeyType     string    `json:"key_type"`
	PublicKey   string    `json:"public_key"`
	Fingerprint string    `json:"fingerprint"`
	NeedsRepair bool      `json:"needs_repair"`
	HasSecret   bool      `json:"has_secret"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toKeyResponse(k database.SSHKey) keyResponse {
	return keyResponse{
		ID:          k.ID,
		Name:        k.Name,
		KeyType:     k.KeyType,
		PublicKey:   k.PublicKey,
		Fingerprint: k.Fingerprint,
		NeedsRepair: reconcile.NeedsRepair(k.PublicKey),
		HasSecret:   database.HasSecret(k.ID),
		CreatedAt:   k.CreatedAt,
		UpdatedAt:   k.UpdatedAt,
	}
}

// ListKeys handles GET /api/v1/keys. Public keys and fingerprints only; secret
// material is never exposed.
func ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := database.ListKeys()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list keys")
		return
	}

	resp := make([]keyResponse, len(keys))
	for i, k := range keys {
		resp[i] = toKeyResponse(k)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetKey handles GET /api/v1/keys/{id}.
func GetKey(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key ID")
		return
	}

	key, err := database.GetKey(uint(id))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			writeError(w, http.StatusNotFound, "Key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load key")
		return
	}

	writeJSON(w, http.StatusOK, toKeyResponse(*key))
}
