// Package api exposes the session controller and service health over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/live-voice/internal/observability"
	"github.com/lexiqai/live-voice/internal/session"
)

const correlationHeader = "X-Correlation-ID"

// Sessions is the part of the session controller the HTTP surface drives.
type Sessions interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Snapshot() session.Snapshot
}

// Options configures the router.
type Options struct {
	Checks         map[string]observability.HealthCheckFunc
	MetricsEnabled bool
	Logger         zerolog.Logger
}

type errorResponse struct {
	Error   string           `json:"error"`
	Session session.Snapshot `json:"session"`
}

// NewRouter registers health, readiness, metrics, and session routes.
func NewRouter(s Sessions, opts Options) http.Handler {
	log := observability.WithComponent(opts.Logger, "api")
	mux := http.NewServeMux()

	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(opts.Checks))
	if opts.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		observability.WriteJSON(w, http.StatusOK, s.Snapshot())
	})

	mux.HandleFunc("POST /session/start", func(w http.ResponseWriter, r *http.Request) {
		reqLog := requestLogger(w, r, log)
		if err := s.Start(r.Context()); err != nil {
			reqLog.Warn().Err(err).Msg("start request failed")
			observability.WriteJSON(w, startStatus(err), errorResponse{Error: err.Error(), Session: s.Snapshot()})
			return
		}
		reqLog.Info().Msg("session started")
		observability.WriteJSON(w, http.StatusOK, s.Snapshot())
	})

	mux.HandleFunc("POST /session/stop", func(w http.ResponseWriter, r *http.Request) {
		reqLog := requestLogger(w, r, log)
		if err := s.Stop(r.Context()); err != nil {
			reqLog.Error().Err(err).Msg("stop request failed")
			observability.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Session: s.Snapshot()})
			return
		}
		observability.WriteJSON(w, http.StatusOK, s.Snapshot())
	})

	return mux
}

// requestLogger tags a request with the caller's X-Correlation-ID, or a new
// one, and echoes it on the response.
func requestLogger(w http.ResponseWriter, r *http.Request, base zerolog.Logger) zerolog.Logger {
	id := r.Header.Get(correlationHeader)
	if id == "" {
		id = observability.NewCorrelationID()
	}
	w.Header().Set(correlationHeader, id)
	return observability.WithCorrelationID(base, id)
}

func startStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionActive), errors.Is(err, session.ErrStartAborted):
		return http.StatusConflict
	case errors.Is(err, session.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, session.ErrUnsupportedEnvironment):
		return http.StatusNotImplemented
	default:
		return http.StatusBadGateway
	}
}
