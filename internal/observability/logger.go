package observability

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	globalLogger zerolog.Logger
	initOnce     sync.Once
)

// InitLogger initializes the global structured logger. Only the first call
// takes effect.
func InitLogger(level string, pretty bool) {
	initOnce.Do(func() {
		zerolog.SetGlobalLevel(ParseLevel(level))
		globalLogger = NewLogger(os.Stdout, pretty)
		log.Logger = globalLogger
	})
}

// NewLogger builds a timestamped logger writing to w: JSON by default, the
// zerolog console format when pretty is set.
func NewLogger(w io.Writer, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// ParseLevel maps a LOG_LEVEL value to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// GetLogger returns the global logger
func GetLogger() zerolog.Logger {
	InitLogger("info", false)
	return globalLogger
}

// WithComponent derives a logger tagged with the emitting component.
func WithComponent(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// WithCorrelationID derives a logger with a correlation ID, generating one
// when correlationID is empty.
func WithCorrelationID(base zerolog.Logger, correlationID string) zerolog.Logger {
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	return base.With().Str("correlation_id", correlationID).Logger()
}

// WithSessionID derives a logger tagged with a live session's id.
func WithSessionID(base zerolog.Logger, sessionID string) zerolog.Logger {
	return base.With().Str("session_id", sessionID).Logger()
}

// NewCorrelationID generates a new correlation ID
func NewCorrelationID() string {
	return uuid.New().String()
}
