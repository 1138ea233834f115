package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	startupWindow = 250 * time.Millisecond
	stopGrace     = 1200 * time.Millisecond
)

// FFmpegMicrophone captures from the host audio system through an ffmpeg
// subprocess writing raw f32le frames to stdout.
type FFmpegMicrophone struct {
	command string
}

func NewFFmpegMicrophone(command string) *FFmpegMicrophone {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFmpegMicrophone{command: command}
}

func (m *FFmpegMicrophone) Available() error {
	if _, err := exec.LookPath(m.command); err != nil {
		return fmt.Errorf("%w: %s not found", ErrUnsupportedEnvironment, m.command)
	}
	return nil
}

// Open starts the capture process. The process is not bound to ctx: ctx only
// bounds the startup window, and the stream lives until Stop.
func (m *FFmpegMicrophone) Open(ctx context.Context, cfg Config) (Stream, error) {
	if err := m.Available(); err != nil {
		return nil, err
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.Device == "" {
		cfg.Device = "default"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.Device,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "f32le",
		"-",
	}

	cmd := exec.Command(m.command, args...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr
	// bound Wait when a grandchild keeps the stderr pipe open
	cmd.WaitDelay = stopGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	s := &ffmpegStream{
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}

	select {
	case err := <-waitErr:
		return nil, classifyStartError(err, stderr.String())
	case <-ctx.Done():
		_ = s.Stop()
		return nil, ctx.Err()
	case <-time.After(startupWindow):
	}

	return s, nil
}

func classifyStartError(err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	lower := strings.ToLower(detail)
	if strings.Contains(lower, "permission denied") || strings.Contains(lower, "operation not permitted") {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, detail)
	}
	if err != nil {
		return fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, detail)
	}
	return errors.New("ffmpeg exited before capture started")
}

type ffmpegStream struct {
	stdout io.ReadCloser
	stderr *lockedBuffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.waitErr; ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = closeErr
		}

		if s.stopErr != nil {
			if detail := strings.TrimSpace(s.stderr.String()); detail != "" {
				s.stopErr = fmt.Errorf("%w: %s", s.stopErr, detail)
			}
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}
	return err
}

// lockedBuffer collects subprocess stderr while other goroutines read it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
