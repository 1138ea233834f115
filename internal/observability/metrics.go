package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_voice_active_sessions",
		Help: "Number of sessions currently connecting or connected",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_voice_sessions_total",
		Help: "Total number of sessions by outcome",
	}, []string{"outcome"}) // outcome: "closed", "stopped", "error"

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "live_voice_session_duration_seconds",
		Help:    "Duration of sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_voice_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" (from the endpoint) or "out" (captured)

	chunksScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_voice_playback_chunks_total",
		Help: "Total number of remote audio chunks scheduled for playback",
	})

	playbackQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_voice_playback_queue_depth",
		Help: "Playback units currently scheduled or playing",
	})

	interruptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_voice_interruptions_total",
		Help: "Total number of barge-in interruptions",
	})

	decodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_voice_decode_errors_total",
		Help: "Total number of inbound audio chunks dropped as malformed",
	})

	// Transcript metrics
	turnsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_voice_transcript_entries_total",
		Help: "Total number of committed transcript entries",
	}, []string{"speaker"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_voice_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "live_voice_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_voice_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Metrics tracks metrics for a single session
type Metrics struct {
	startTime time.Time
	endOnce   sync.Once
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
}

// RecordSessionEnd records the end of a session. Only the first call counts.
func (m *Metrics) RecordSessionEnd(outcome string) {
	m.endOnce.Do(func() {
		activeSessions.Dec()
		sessionsTotal.WithLabelValues(outcome).Inc()
		sessionDuration.Observe(time.Since(m.startTime).Seconds())
	})
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordChunkScheduled records a chunk handed to the playback scheduler
func (m *Metrics) RecordChunkScheduled() {
	chunksScheduled.Inc()
}

// SetPlaybackQueueDepth reports how many playback units are outstanding
func (m *Metrics) SetPlaybackQueueDepth(n int) {
	playbackQueueDepth.Set(float64(n))
}

// RecordInterruption records a barge-in
func (m *Metrics) RecordInterruption() {
	interruptionsTotal.Inc()
}

// RecordDecodeError records a dropped inbound chunk
func (m *Metrics) RecordDecodeError() {
	decodeErrorsTotal.Inc()
}

// RecordTurnCommitted records a committed transcript entry
func (m *Metrics) RecordTurnCommitted(speaker string) {
	turnsCommitted.WithLabelValues(speaker).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
