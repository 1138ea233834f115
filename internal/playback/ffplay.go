package playback

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/live-voice/internal/audio"
)

const playerStopGrace = 1200 * time.Millisecond

// FFplayConfig configures the player subprocess.
type FFplayConfig struct {
	Command     string
	BufferBytes int
	Logger      zerolog.Logger
}

// NewFFplayOpener returns an Opener that starts one player process per sink.
func NewFFplayOpener(cfg FFplayConfig) Opener {
	return func(clock audio.Clock) (Sink, error) {
		return OpenFFplay(cfg, clock)
	}
}

// Device is a Speaker bound to the player process consuming its output.
type Device struct {
	*Speaker

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	waitErr <-chan error

	closeOnce sync.Once
	closeErr  error
}

// OpenFFplay starts a headless player reading mono PCM16 at the clock's rate
// from stdin.
func OpenFFplay(cfg FFplayConfig, clock audio.Clock) (*Device, error) {
	command := cfg.Command
	if command == "" {
		command = "ffplay"
	}
	if _, err := exec.LookPath(command); err != nil {
		return nil, fmt.Errorf("audio player %s not found: %w", command, err)
	}

	args := []string{
		"-nodisp",
		"-autoexit",
		"-hide_banner",
		"-loglevel", "warning",
		"-fflags", "nobuffer",
		"-f", "s16le",
		"-ar", strconv.Itoa(clock.SampleRate()),
		"-ac", "1",
		"-i", "-",
	}

	cmd := exec.Command(command, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	cmd.WaitDelay = playerStopGrace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create player stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start audio player: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	logger := cfg.Logger.With().Str("player", command).Logger()
	return &Device{
		Speaker: NewSpeaker(clock, stdin, cfg.BufferBytes, logger),
		cmd:     cmd,
		stdin:   stdin,
		waitErr: waitErr,
	}, nil
}

// Close ends the player: the drain loop stops first, then stdin is closed so
// the player exits, and it is killed if it does not exit in time.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.Speaker.Flush()
		_ = d.Speaker.Close()
		if err := d.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			d.closeErr = err
		}

		select {
		case <-d.waitErr:
		case <-time.After(playerStopGrace):
			_ = d.cmd.Process.Kill()
			<-d.waitErr
		}
	})
	return d.closeErr
}
