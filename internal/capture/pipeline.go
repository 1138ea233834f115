package capture

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lexiqai/live-voice/internal/audio"
	"github.com/lexiqai/live-voice/internal/observability"
)

const (
	// TargetRate is the sample rate the remote endpoint expects.
	TargetRate = 16000
	// MIMEType labels every outbound payload.
	MIMEType = "audio/pcm;rate=16000"

	DefaultBlockFrames = 4096
)

var errAlreadyConnected = errors.New("capture pipeline already connected")

// Payload is one encoded capture block.
type Payload struct {
	Data     string
	MIMEType string
}

// SendFunc delivers a payload to the transport.
type SendFunc func(Payload) error

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	// InputRate is the sample rate of the source frames; blocks are resampled
	// to TargetRate when it differs.
	InputRate   int
	BlockFrames int
	// Observe, if set, is called with the PCM byte count of every sent block.
	Observe func(pcmBytes int)
	Logger  zerolog.Logger
}

// Pipeline taps a mono f32le source in fixed-size blocks and forwards each
// block, encoded, to a SendFunc. Blocks are sent in capture order and nothing
// is buffered beyond the block being converted.
type Pipeline struct {
	src io.Reader
	cfg PipelineConfig
	log zerolog.Logger

	connected    atomic.Bool
	disconnected atomic.Bool
	done         chan struct{}
	doneOnce     sync.Once
}

func NewPipeline(src io.Reader, cfg PipelineConfig) *Pipeline {
	if cfg.InputRate <= 0 {
		cfg.InputRate = TargetRate
	}
	if cfg.BlockFrames <= 0 {
		cfg.BlockFrames = DefaultBlockFrames
	}
	return &Pipeline{
		src:  src,
		cfg:  cfg,
		log:  observability.WithComponent(cfg.Logger, "capture"),
		done: make(chan struct{}),
	}
}

// Connect starts the tap. A pipeline connects once.
func (p *Pipeline) Connect(send SendFunc) error {
	if p.disconnected.Load() {
		return io.ErrClosedPipe
	}
	if !p.connected.CompareAndSwap(false, true) {
		return errAlreadyConnected
	}
	go p.tap(send)
	return nil
}

// Disconnect stops further emission. It does not wait for the tap to exit;
// the tap returns once its pending read completes, which stopping the source
// stream forces. Safe to call at any time, any number of times.
func (p *Pipeline) Disconnect() {
	if !p.disconnected.CompareAndSwap(false, true) {
		return
	}
	if !p.connected.Load() {
		p.finish()
	}
}

// Done is closed once the tap has exited.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

func (p *Pipeline) finish() {
	p.doneOnce.Do(func() { close(p.done) })
}

func (p *Pipeline) tap(send SendFunc) {
	defer p.finish()

	block := make([]byte, p.cfg.BlockFrames*4)
	for {
		if _, err := io.ReadFull(p.src, block); err != nil {
			if !p.disconnected.Load() && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				p.log.Warn().Err(err).Msg("capture source failed")
			}
			return
		}
		if p.disconnected.Load() {
			return
		}

		payload, pcmBytes, err := p.encode(block)
		if err != nil {
			p.log.Warn().Err(err).Msg("dropping capture block")
			continue
		}
		if err := send(payload); err != nil {
			if !p.disconnected.Load() {
				p.log.Warn().Err(err).Msg("failed to send capture block")
			}
			return
		}
		if p.cfg.Observe != nil {
			p.cfg.Observe(pcmBytes)
		}
	}
}

func (p *Pipeline) encode(block []byte) (Payload, int, error) {
	samples, err := audio.DecodeFloat32LE(block)
	if err != nil {
		return Payload{}, 0, err
	}
	if p.cfg.InputRate != TargetRate {
		samples = audio.Resample(samples, p.cfg.InputRate, TargetRate)
	}
	pcm := audio.FloatToPCM16(samples)
	return Payload{Data: audio.EncodeTransportText(pcm), MIMEType: MIMEType}, len(pcm), nil
}
