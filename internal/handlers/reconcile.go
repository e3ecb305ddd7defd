package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/keymend/keymend/internal/database"
	"github.com/keymend/keymend/internal/reconcile"
)

// RunReconcile executes one reconciliation run. It is injected by main so the
// trigger endpoint, the startup run, and the cron schedule all share the same
// serialized job.
var RunReconcile func(ctx context.Context) (*reconcile.Result, error)

// TriggerReconcile handles POST /api/v1/reconcile.
func TriggerReconcile(w http.ResponseWriter, r *http.Request) {
	if RunReconcile == nil {
		writeError(w, http.StatusServiceUnavailable, "Reconciler not initialized")
		return
	}

	result, err := RunReconcile(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, reconcile.ErrStoreUnavailable):
			status = http.StatusServiceUnavailable
		case errors.Is(err, reconcile.ErrCommitFailed):
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]interface{}{
			"detail": err.Error(),
			"result": result,
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListReconcileRuns handles GET /api/v1/reconcile/runs.
func ListReconcileRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := database.ListReconcileRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
