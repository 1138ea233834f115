package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DefaultModel       = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice       = "Charon"
	DefaultPersonaName = "God"
	DefaultInstruction = "You are God, but you're speaking like a modern, fun but firm father. " +
		"Use everyday language. Be approachable, wise, and have a good sense of humor - feel free to laugh once in a while. " +
		"Guide the user with warmth and clarity, like a caring dad."
)

// Config holds all configuration for the live voice host
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Live endpoint configuration
	GeminiAPIKey    string        `envconfig:"GEMINI_API_KEY" required:"true"`
	LiveEndpoint    string        `envconfig:"LIVE_ENDPOINT" default:"wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"`
	LiveModel       string        `envconfig:"LIVE_MODEL" default:"gemini-2.5-flash-native-audio-preview-09-2025"`
	LiveVoice       string        `envconfig:"LIVE_VOICE" default:"Charon"`
	LiveInstruction string        `envconfig:"LIVE_INSTRUCTION" default:""` // empty means DefaultInstruction
	LiveDialTimeout time.Duration `envconfig:"LIVE_DIAL_TIMEOUT" default:"15s"`
	PersonaFile     string        `envconfig:"PERSONA_FILE" default:""` // optional YAML persona overriding voice/model/instruction

	// Microphone capture (ffmpeg subprocess)
	MicCommand         string `envconfig:"MIC_COMMAND" default:"ffmpeg"`
	MicInputFormat     string `envconfig:"MIC_INPUT_FORMAT" default:"pulse"` // pulse, alsa, avfoundation, dshow
	MicDevice          string `envconfig:"MIC_DEVICE" default:"default"`
	CaptureSampleRate  int    `envconfig:"CAPTURE_SAMPLE_RATE" default:"16000"`
	CaptureBlockFrames int    `envconfig:"CAPTURE_BLOCK_FRAMES" default:"4096"`

	// Speaker playback (ffplay subprocess)
	PlayerCommand       string `envconfig:"PLAYER_COMMAND" default:"ffplay"`
	PlaybackSampleRate  int    `envconfig:"PLAYBACK_SAMPLE_RATE" default:"24000"`
	PlaybackBufferBytes int    `envconfig:"PLAYBACK_BUFFER_BYTES" default:"960000"` // 20s of 24kHz mono PCM16

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"3"`   // Failed opens before rejecting
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before probing again

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics

	// Persona resolved from PERSONA_FILE and the LIVE_* values
	Persona Persona `ignored:"true"`
}

// Load reads configuration from environment variables.
// It first attempts to load from .env file if it exists, then from environment.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFile loads the named env file, which must exist, and then reads the
// environment. Variables already set in the environment win.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	persona, err := ResolvePersona(&cfg)
	if err != nil {
		return nil, err
	}
	cfg.Persona = persona

	return &cfg, nil
}

// Validate checks values envconfig cannot express as tags.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	if c.CaptureSampleRate <= 0 {
		return fmt.Errorf("CAPTURE_SAMPLE_RATE must be positive, got %d", c.CaptureSampleRate)
	}
	if c.CaptureBlockFrames <= 0 {
		return fmt.Errorf("CAPTURE_BLOCK_FRAMES must be positive, got %d", c.CaptureBlockFrames)
	}
	if c.PlaybackSampleRate <= 0 {
		return fmt.Errorf("PLAYBACK_SAMPLE_RATE must be positive, got %d", c.PlaybackSampleRate)
	}
	return nil
}

// CircuitBreakerReset returns the breaker reset timeout as a duration.
func (c *Config) CircuitBreakerReset() time.Duration {
	return time.Duration(c.CircuitBreakerResetTimeout) * time.Second
}
