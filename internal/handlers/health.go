package handlers

import (
	"context"
	"net/http"
	"time"
)

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response structure.
type HealthResponse struct {
	Status    string           `json:"status"` // "ok" or "degraded"
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Clients   int              `json:"clients"`
	Timestamp string           `json:"timestamp"`
}

// HealthCheck handles GET /health
// Returns the server's health status for monitoring and load balancer checks.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	healthy := true

	start := time.Now()
	if err := h.store.Ping(ctx); err != nil {
		checks["store"] = Check{Status: "fail", Message: "connection failed"}
		healthy = false
	} else {
		checks["store"] = Check{Status: "pass", Latency: time.Since(start).String()}
	}

	if h.hub.Connected() {
		checks["feed"] = Check{Status: "pass"}
	} else {
		checks["feed"] = Check{Status: "fail", Message: "not connected"}
		healthy = false
	}

	response := HealthResponse{
		Status:    "ok",
		Version:   h.version,
		Checks:    checks,
		Clients:   h.hub.ClientCount(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if !healthy {
		response.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}
