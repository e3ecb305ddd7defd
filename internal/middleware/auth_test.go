package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keymend/keymend/internal/config"
)

func authedHandler() http.Handler {
	return RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	config.Cfg = config.Settings{AdminToken: "s3cret"}

	rec := httptest.NewRecorder()
	authedHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/keys", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	config.Cfg = config.Settings{AdminToken: "s3cret"}

	req := httptest.NewRequest("GET", "/api/v1/keys", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	authedHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestRequireAuthAcceptsQueryToken(t *testing.T) {
	config.Cfg = config.Settings{AdminToken: "s3cret"}

	req := httptest.NewRequest("GET", "/api/v1/reconcile/watch?token=s3cret", nil)
	rec := httptest.NewRecorder()
	authedHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestRequireAuthRejectsWrongToken(t *testing.T) {
	config.Cfg = config.Settings{AdminToken: "s3cret"}

	req := httptest.NewRequest("GET", "/api/v1/keys", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	authedHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthRejectsEverythingWithEmptyConfiguredToken(t *testing.T) {
	config.Cfg = config.Settings{AdminToken: ""}

	req := httptest.NewRequest("GET", "/api/v1/keys", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	authedHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthBypassWhenDisabled(t *testing.T) {
	config.Cfg = config.Settings{AuthDisabled: true}

	rec := httptest.NewRecorder()
	authedHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/keys", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}
