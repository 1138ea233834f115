package live

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/live-voice/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 20

	eventBuffer    = 128
	outboundBuffer = 64
)

// WSConfig controls the websocket dialer.
type WSConfig struct {
	Endpoint         string
	APIKey           string
	HandshakeTimeout time.Duration
	Logger           zerolog.Logger
}

// WSDialer opens BidiGenerateContent streams over a websocket.
type WSDialer struct {
	cfg WSConfig
}

func NewWSDialer(cfg WSConfig) *WSDialer {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	return &WSDialer{cfg: cfg}
}

// Dial connects, sends the setup message, and waits for the server's
// acknowledgement before returning the transport.
func (d *WSDialer) Dial(ctx context.Context, setup Setup) (Transport, error) {
	if strings.TrimSpace(d.cfg.APIKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is not configured")
	}

	wsURL, err := buildStreamURL(d.cfg.Endpoint, d.cfg.APIKey)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.HandshakeTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: d.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to live endpoint: %w", err)
	}

	if err := handshake(ctx, conn, setup); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return newWSTransport(conn, d.cfg.Logger), nil
}

func handshake(ctx context.Context, conn *websocket.Conn, setup Setup) error {
	// unblock the reads below if ctx ends first
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}

	payload, err := encodeSetup(setup)
	if err != nil {
		return fmt.Errorf("failed to encode setup: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to send setup: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("setup not acknowledged: %w", ctxErr)
			}
			return fmt.Errorf("setup not acknowledged: %w", err)
		}
		msg, err := decodeServerMessage(data)
		if err != nil {
			continue
		}
		if msg.SetupComplete != nil {
			break
		}
	}

	_ = conn.SetWriteDeadline(time.Time{})
	_ = conn.SetReadDeadline(time.Time{})
	return nil
}

func buildStreamURL(endpoint, apiKey string) (string, error) {
	base := strings.TrimSpace(endpoint)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid live endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid live endpoint scheme %q", u.Scheme)
	}

	query := u.Query()
	query.Set("key", apiKey)
	u.RawQuery = query.Encode()
	return u.String(), nil
}

type wsTransport struct {
	conn *websocket.Conn
	log  zerolog.Logger

	events   chan Event
	outbound chan []byte
	closing  chan struct{}

	wg        sync.WaitGroup
	closeOnce sync.Once
	requested atomic.Bool

	errMu sync.Mutex
	err   string
}

func newWSTransport(conn *websocket.Conn, logger zerolog.Logger) *wsTransport {
	t := &wsTransport{
		conn:     conn,
		log:      observability.WithComponent(logger, "live_transport"),
		events:   make(chan Event, eventBuffer),
		outbound: make(chan []byte, outboundBuffer),
		closing:  make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	t.wg.Add(2)
	go t.readPump()
	go t.writePump()
	go func() {
		t.wg.Wait()
		if message := t.failure(); message != "" {
			t.deliver(Event{Kind: EventError, Message: message})
		}
		t.deliver(Event{Kind: EventClosed})
		close(t.events)
	}()

	return t
}

func (t *wsTransport) Events() <-chan Event {
	return t.events
}

func (t *wsTransport) Send(m Media) error {
	payload, err := encodeMedia(m)
	if err != nil {
		return fmt.Errorf("failed to encode media: %w", err)
	}

	select {
	case <-t.closing:
		return ErrClosed
	default:
	}

	select {
	case t.outbound <- payload:
		return nil
	case <-t.closing:
		return ErrClosed
	}
}

// Close ends the stream with a normal closure and waits for both pumps to
// exit. It is safe to call more than once and from any goroutine.
func (t *wsTransport) Close() error {
	t.requested.Store(true)
	t.shutdown(websocket.CloseNormalClosure, "")
	t.wg.Wait()
	return nil
}

func (t *wsTransport) shutdown(code int, text string) {
	t.closeOnce.Do(func() {
		close(t.closing)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
		_ = t.conn.Close()
	})
}

func (t *wsTransport) emit(ev Event) {
	select {
	case t.events <- ev:
	case <-t.closing:
	}
}

// deliver is used once both pumps have exited; nothing else writes events.
func (t *wsTransport) deliver(ev Event) {
	select {
	case t.events <- ev:
	default:
		t.log.Warn().Stringer("kind", ev.Kind).Msg("event buffer full, dropping final event")
	}
}

func (t *wsTransport) failure() string {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

// setErr records the first abnormal termination. Closes the caller asked for
// and normal close codes are not failures.
func (t *wsTransport) setErr(err error) {
	if err == nil || t.requested.Load() {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		t.log.Info().Msg("live endpoint closed the stream")
		return
	}

	message := err.Error()
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Text != "" {
		message = closeErr.Text
	}

	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.err == "" {
		t.log.Error().Err(err).Msg("live stream failed")
		t.err = message
	}
}

func (t *wsTransport) readPump() {
	defer t.wg.Done()

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.setErr(err)
			t.shutdown(websocket.CloseNormalClosure, "")
			return
		}

		msg, err := decodeServerMessage(data)
		if err != nil {
			t.log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping undecodable server message")
			continue
		}
		if msg.GoAway != nil {
			t.log.Info().Str("time_left", msg.GoAway.TimeLeft).Msg("server will close the stream soon")
		}
		for _, ev := range msg.events() {
			t.emit(ev)
		}
	}
}

func (t *wsTransport) writePump() {
	defer t.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-t.outbound:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				t.setErr(fmt.Errorf("failed to send media: %w", err))
				t.shutdown(websocket.CloseInternalServerErr, "")
				return
			}
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				t.setErr(fmt.Errorf("failed to ping: %w", err))
				t.shutdown(websocket.CloseInternalServerErr, "")
				return
			}
		case <-t.closing:
			return
		}
	}
}
