package handler

import (
	"net/http"
	"time"

	"userservice/internal/httputil"
)

// HealthCheck reports that the API listener is serving
// GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}
