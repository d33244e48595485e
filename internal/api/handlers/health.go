package handlers

import (
	"context"
	"net/http"
	"time"

	"crm/internal/pkg/errors"
)

type HealthChecker interface {
	Health(ctx context.Context) error
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	backend HealthChecker
	db      Pinger
	timeout time.Duration
}

// NewHealthHandler builds the health endpoints. db may be nil when no
// direct database connection is configured.
func NewHealthHandler(backend HealthChecker, db Pinger) *HealthHandler {
	return &HealthHandler{backend: backend, db: db, timeout: 3 * time.Second}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	errors.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := make(map[string]string)

	if err := h.backend.Health(ctx); err != nil {
		checks["supabase"] = "unhealthy: " + err.Error()
	} else {
		checks["supabase"] = "healthy"
	}

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
		} else {
			checks["database"] = "healthy"
		}
	}

	status := "healthy"
	for _, check := range checks {
		if check != "healthy" {
			status = "degraded"
			break
		}
	}

	response := struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Checks    map[string]string `json:"checks"`
	}{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	errors.WriteJSON(w, statusCode, response)
}
