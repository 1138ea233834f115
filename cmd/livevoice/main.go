package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexiqai/live-voice/internal/api"
	"github.com/lexiqai/live-voice/internal/capture"
	"github.com/lexiqai/live-voice/internal/config"
	"github.com/lexiqai/live-voice/internal/live"
	"github.com/lexiqai/live-voice/internal/observability"
	"github.com/lexiqai/live-voice/internal/playback"
	"github.com/lexiqai/live-voice/internal/resilience"
	"github.com/lexiqai/live-voice/internal/session"
	"github.com/lexiqai/live-voice/internal/transcript"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFile   string
		autostart bool
	)

	cmd := &cobra.Command{
		Use:           "livevoice",
		Short:         "Hold a realtime voice conversation with a live model endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg *config.Config
				err error
			)
			if envFile != "" {
				cfg, err = config.LoadFile(envFile)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				// logger is not initialized yet
				fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
				return err
			}
			return run(cfg, autostart)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "env file to load instead of ./.env")
	cmd.Flags().BoolVar(&autostart, "autostart", false, "start a conversation as soon as the server is up")
	return cmd
}

func run(cfg *config.Config, autostart bool) error {
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("model", cfg.Persona.Model).
		Str("voice", cfg.Persona.Voice).
		Str("persona", cfg.Persona.Name).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Live voice host starting")

	breaker := resilience.NewCircuitBreaker("live", cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerReset())
	breaker.OnStateChange(func(name string, from, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		if to == resilience.StateOpen {
			observability.IncrementCircuitBreakerFailures(name)
		}
		logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
	})

	dialer := live.NewGuardedDialer(live.NewWSDialer(live.WSConfig{
		Endpoint:         cfg.LiveEndpoint,
		APIKey:           cfg.GeminiAPIKey,
		HandshakeTimeout: cfg.LiveDialTimeout,
		Logger:           logger,
	}), breaker)

	controller := session.NewController(session.Deps{
		Microphone: capture.NewFFmpegMicrophone(cfg.MicCommand),
		Dialer:     dialer,
		Speakers: playback.NewFFplayOpener(playback.FFplayConfig{
			Command:     cfg.PlayerCommand,
			BufferBytes: cfg.PlaybackBufferBytes,
			Logger:      logger,
		}),
		Presenter: newConsolePresenter(logger),
	}, session.Config{
		Setup: live.Setup{
			Model:               cfg.Persona.Model,
			ResponseModality:    "AUDIO",
			Voice:               cfg.Persona.Voice,
			Instruction:         cfg.Persona.Instruction,
			InputTranscription:  true,
			OutputTranscription: true,
		},
		Capture: capture.Config{
			SampleRate:  cfg.CaptureSampleRate,
			Channels:    1,
			InputFormat: cfg.MicInputFormat,
			Device:      cfg.MicDevice,
		},
		BlockFrames:  cfg.CaptureBlockFrames,
		PlaybackRate: cfg.PlaybackSampleRate,
		Labels:       transcript.Labels{User: config.UserLabel, Model: cfg.Persona.Name},
		Logger:       logger,
	})

	checks := map[string]observability.HealthCheckFunc{
		"api_key": func(ctx context.Context) (bool, error) {
			if cfg.GeminiAPIKey == "" {
				return false, errors.New("GEMINI_API_KEY is not configured")
			}
			return true, nil
		},
		breaker.Name() + "_breaker": func(ctx context.Context) (bool, error) {
			state, requests, failures, failureRate := breaker.GetStats()
			logger.Debug().
				Str("breaker", breaker.Name()).
				Str("state", state.String()).
				Int64("requests", requests).
				Int64("failures", failures).
				Float64("failure_rate", failureRate).
				Msg("breaker readiness")
			if state == resilience.StateOpen {
				return false, fmt.Errorf("circuit %s after %d of %d opens failed", state, failures, requests)
			}
			return true, nil
		},
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.Port),
		Handler: api.NewRouter(controller, api.Options{
			Checks:         checks,
			MetricsEnabled: cfg.MetricsEnabled,
			Logger:         logger,
		}),
		ReadTimeout: 15 * time.Second,
		// start waits for the setup acknowledgement
		WriteTimeout: cfg.LiveDialTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if autostart {
		go func() {
			if err := controller.Start(context.Background()); err != nil {
				logger.Error().Err(err).Msg("autostart failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
	case runErr = <-serverErr:
		logger.Error().Err(runErr).Msg("Server failed")
	}

	logger.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// releases the microphone and speaker even when no session is active
	if err := controller.Stop(ctx); err != nil {
		logger.Error().Err(err).Msg("Session stop failed")
	}
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
		return err
	}

	logger.Info().Msg("Exited gracefully")
	return runErr
}
