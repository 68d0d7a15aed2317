// Package stt manages the lifetime of a streaming recognizer session on top
// of a provider transport: transcript accumulation, protocol keepalives while
// the caller is silent, and transparent reconnection with linear backoff.
//
// The client owns one logical recognition stream per call. Transport drops are
// absorbed by the reconnect cycle; the accumulated transcript survives and the
// next connection resumes the same utterance. Consumers observe everything
// through the Events channel.
package stt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxbridge-ai/voxbridge/internal/observe"
	"github.com/voxbridge-ai/voxbridge/pkg/audio"
	"github.com/voxbridge-ai/voxbridge/pkg/provider/stt"
)

// State is the lifecycle state of the recognizer client.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateReady
	StateReconnecting
	StateFailed
	StateTerminated
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultKeepaliveInterval = 15 * time.Second
	defaultKeepaliveIdle     = 10 * time.Second
	defaultReconnectBase     = time.Second
	defaultReconnectAttempts = 5

	// closeGrace bounds how long Close waits for trailing finals solicited by
	// the goodbye handshake before events stop.
	closeGrace = 500 * time.Millisecond
)

// Config configures a recognizer client.
type Config struct {
	// Stream is the provider-level stream configuration, re-sent verbatim on
	// every reconnect.
	Stream stt.Config

	// Codec describes the audio being sent, used for duration accounting.
	Codec audio.Codec

	// ConnectTimeout bounds each connection attempt. Defaults to 10s.
	ConnectTimeout time.Duration

	// KeepaliveInterval is how often the keepalive ticker fires. Defaults
	// to 15s.
	KeepaliveInterval time.Duration

	// KeepaliveIdle is the audio-idle threshold: a keepalive is sent only
	// when no audio has been forwarded for this long. Defaults to 10s.
	KeepaliveIdle time.Duration

	// ReconnectBase is the linear backoff unit; attempt n waits n*base.
	// Defaults to 1s.
	ReconnectBase time.Duration

	// ReconnectAttempts caps the reconnect cycle. Defaults to 5.
	ReconnectAttempts int

	// FinalizeTrailingSilenceMs is the synthetic trailing silence passed to
	// the provider's finalize verb.
	FinalizeTrailingSilenceMs int

	// Metrics receives connect-latency recordings. Defaults to the
	// process-wide instruments.
	Metrics *observe.Metrics
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = defaultKeepaliveInterval
	}
	if c.KeepaliveIdle <= 0 {
		c.KeepaliveIdle = defaultKeepaliveIdle
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = defaultReconnectBase
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = defaultReconnectAttempts
	}
}

// Client drives one streaming recognition session.
type Client struct {
	transport stt.Transport
	cfg       Config
	log       *slog.Logger

	events chan Event

	mu    sync.Mutex
	state State
	conn  stt.Conn
	acc   accumulator

	lastAudio atomic.Int64 // unix nanos of the last forwarded frame
	bytesSent atomic.Int64

	done      chan struct{}
	runDone   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a recognizer client. The client is idle until Connect.
func New(transport stt.Transport, cfg Config, log *slog.Logger) *Client {
	cfg.applyDefaults()
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		transport: transport,
		cfg:       cfg,
		log:       log.With("component", "stt"),
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
		runDone:   make(chan struct{}),
	}
}

// Events returns the event channel. It is closed by Close after all loops
// have stopped.
func (c *Client) Events() <-chan Event { return c.events }

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the initial recognizer connection and starts the
// consume and keepalive loops. Valid only from the idle state.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("stt: connect from state %s", state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	dialStart := time.Now()
	conn, err := c.transport.Connect(dialCtx, c.cfg.Stream)
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("stt: connect: %w", err)
	}
	c.cfg.Metrics.STTConnectDuration.Record(ctx, time.Since(dialStart).Seconds())

	c.mu.Lock()
	c.conn = conn
	c.state = StateReady
	c.mu.Unlock()
	c.lastAudio.Store(time.Now().UnixNano())

	c.wg.Add(2)
	go c.run(conn)
	go c.keepaliveLoop()

	c.emit(ReadyEvent{})
	return nil
}

// SendAudio forwards one audio frame to the recognizer. It reports whether
// the frame was actually forwarded; frames offered while the client is not
// ready are dropped.
func (c *Client) SendAudio(frame []byte) bool {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != StateReady || conn == nil {
		return false
	}
	if err := conn.SendAudio(frame); err != nil {
		c.log.Warn("audio frame not forwarded", "err", err)
		return false
	}
	c.bytesSent.Add(int64(len(frame)))
	c.lastAudio.Store(time.Now().UnixNano())
	return true
}

// Finalize asks the recognizer to force-commit any pending partial tokens.
func (c *Client) Finalize() error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != StateReady || conn == nil {
		return fmt.Errorf("stt: finalize from state %s", state)
	}
	if err := conn.Finalize(c.cfg.FinalizeTrailingSilenceMs); err != nil {
		return fmt.Errorf("stt: finalize: %w", err)
	}
	return nil
}

// TakeTranscript returns any buffered utterance text and resets the
// accumulator. Used when a turn must be cut short without waiting for an
// endpoint, such as a silence timeout.
func (c *Client) TakeTranscript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.acc.pending() {
		return ""
	}
	return c.acc.take()
}

// AudioSeconds returns the total duration of audio forwarded so far, derived
// from the configured codec.
func (c *Client) AudioSeconds() float64 {
	bps := c.cfg.Codec.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return float64(c.bytesSent.Load()) / float64(bps)
}

// Close terminates the client: the connection is closed, loops are stopped,
// and the events channel is closed. The goodbye handshake can solicit
// trailing finals from the recognizer, so Close gives the consume loop a
// short grace window to deliver them before events stop. Safe to call
// multiple times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if c.state != StateFailed {
			c.state = StateTerminated
		}
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
			timer := time.NewTimer(closeGrace)
			select {
			case <-c.runDone:
			case <-timer.C:
			}
			timer.Stop()
		}
		close(c.done)
		c.wg.Wait()
		close(c.events)
	})
}

// run consumes the current connection until it ends, then decides between
// finishing, failing, and reconnecting.
func (c *Client) run(conn stt.Conn) {
	defer c.wg.Done()
	defer close(c.runDone)
	for {
		c.consume(conn)
		if c.isDone() {
			return
		}

		info := conn.CloseInfo()
		switch {
		case info.Fatal:
			c.log.Error("recognizer failed", "code", int(info.Code), "reason", info.Reason, "err", info.Err)
			c.setState(StateFailed)
			c.emit(ErrorEvent{Err: info.Err})
			return
		case info.Code == stt.CloseCodeNormal:
			c.setState(StateTerminated)
			c.emit(FinishedEvent{})
			return
		default:
			next, err := c.reconnect(info)
			if err != nil {
				return
			}
			conn = next
		}
	}
}

// consume drains token batches from one connection into the accumulator and
// emits transcript events.
func (c *Client) consume(conn stt.Conn) {
	for batch := range conn.Tokens() {
		c.mu.Lock()
		u := c.acc.ingest(batch)
		c.mu.Unlock()

		if u.endpoint {
			// Finals committed in the same batch as the endpoint marker are
			// surfaced before the utterance completes.
			if u.finalChanged {
				c.emit(FinalEvent{Text: u.committed})
			}
			if u.utterance != "" {
				c.emit(SpeechEndedEvent{Text: u.utterance})
			}
			continue
		}
		if u.finalChanged {
			c.emit(FinalEvent{Text: u.committed})
		}
		if u.interimChanged {
			c.emit(InterimEvent{Text: u.current})
		}
	}
}

// reconnect runs the linear-backoff reconnect cycle after an abnormal drop.
// On success it installs the new connection and returns it; on exhaustion it
// fails the client.
func (c *Client) reconnect(info stt.CloseInfo) (stt.Conn, error) {
	c.mu.Lock()
	c.conn = nil
	c.state = StateReconnecting
	c.mu.Unlock()
	c.emit(DisconnectedEvent{Code: info.Code, Reason: info.Reason})
	c.log.Warn("recognizer connection lost", "code", int(info.Code), "reason", info.Reason)

	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		delay := time.Duration(attempt) * c.cfg.ReconnectBase
		timer := time.NewTimer(delay)
		select {
		case <-c.done:
			timer.Stop()
			return nil, fmt.Errorf("stt: reconnect: client closed")
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		dialStart := time.Now()
		conn, err := c.transport.Connect(ctx, c.cfg.Stream)
		cancel()
		if err != nil {
			c.log.Warn("reconnect attempt failed", "attempt", attempt, "err", err)
			continue
		}
		c.cfg.Metrics.STTConnectDuration.Record(context.Background(), time.Since(dialStart).Seconds())

		c.mu.Lock()
		c.conn = conn
		c.state = StateReady
		c.mu.Unlock()
		c.lastAudio.Store(time.Now().UnixNano())
		c.emit(ReconnectedEvent{Attempt: attempt})
		c.log.Info("recognizer reconnected", "attempt", attempt)
		return conn, nil
	}

	err := fmt.Errorf("stt: reconnect: %d attempts exhausted after close %d (%s)",
		c.cfg.ReconnectAttempts, int(info.Code), info.Reason)
	c.setState(StateFailed)
	c.emit(ReconnectFailedEvent{Err: err})
	return nil, err
}

// keepaliveLoop keeps an audio-idle connection alive. A keepalive is sent
// only while ready and only when no audio has been forwarded for longer than
// the idle threshold.
func (c *Client) keepaliveLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		conn, state := c.conn, c.state
		c.mu.Unlock()
		if state != StateReady || conn == nil {
			continue
		}
		idle := time.Since(time.Unix(0, c.lastAudio.Load()))
		if idle <= c.cfg.KeepaliveIdle {
			continue
		}
		if err := conn.SendKeepalive(); err != nil {
			c.log.Warn("keepalive not sent", "err", err)
		}
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}
