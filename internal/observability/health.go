package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const (
	serviceName    = "live-voice"
	serviceVersion = "1.0.0"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status       string                      `json:"status"`
	Service      string                      `json:"service"`
	Version      string                      `json:"version"`
	Timestamp    string                      `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// HealthCheckFunc reports whether one dependency is usable. Checks are passed
// in as functions to avoid import cycles.
type HealthCheckFunc func(ctx context.Context) (bool, error)

// HealthCheckHandler handles liveness requests
func HealthCheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthStatus{
			Status:    "healthy",
			Service:   serviceName,
			Version:   serviceVersion,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadinessHandler runs every named check and reports 503 if any fails.
func ReadinessHandler(checks map[string]HealthCheckFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		dependencies := make(map[string]DependencyStatus, len(checks))
		allHealthy := true
		for name, check := range checks {
			if check == nil {
				continue
			}
			dep := runCheck(ctx, check)
			if dep.Status != "healthy" {
				allHealthy = false
			}
			dependencies[name] = dep
		}

		status := HealthStatus{
			Status:       "ready",
			Service:      serviceName,
			Version:      serviceVersion,
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			Dependencies: dependencies,
		}

		code := http.StatusOK
		if !allHealthy {
			status.Status = "not_ready"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}

func runCheck(ctx context.Context, check HealthCheckFunc) DependencyStatus {
	start := time.Now()
	healthy, err := check(ctx)
	dep := DependencyStatus{
		Status:    "healthy",
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil || !healthy {
		dep.Status = "unhealthy"
		if err != nil {
			dep.Message = err.Error()
		}
	}
	return dep
}

// WriteJSON encodes v as the response body with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v interface{}) {
	writeJSON(w, code, v)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
