package handlers

import (
	"net/http"
	"strconv"

	"github.com/keymend/keymend/internal/logging"
)

// GetServerLogs handles GET /api/v1/logs?lines=N.
func GetServerLogs(w http.ResponseWriter, r *http.Request) {
	lines := 200
	if s := r.URL.Query().Get("lines"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 5000 {
			lines = n
		}
	}

	tail, err := logging.ReadTail(lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"logs": tail})
}
