// Package mock provides a test double for the stt.Transport interface.
//
// Use Transport in unit tests to script recognizer behaviour (token batches,
// remote disconnects, connect failures) without a live recognizer. Each
// successful Connect call yields a new *Conn recorded on Transport.Conns; the
// test drives it via Feed and CloseWith.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/voxbridge-ai/voxbridge/pkg/provider/stt"
)

// Transport is a mock implementation of stt.Transport.
type Transport struct {
	mu sync.Mutex

	// ConnectErrs scripts per-call Connect outcomes: entry i is returned as
	// the error of the i-th Connect call (nil = success). Calls beyond the
	// slice succeed.
	ConnectErrs []error

	// Configs records the stt.Config passed to each Connect call.
	Configs []stt.Config

	// Conns records every connection handed out, in creation order.
	Conns []*Conn

	calls int
}

// Connect implements stt.Transport.
func (t *Transport) Connect(ctx context.Context, cfg stt.Config) (stt.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.calls
	t.calls++
	t.Configs = append(t.Configs, cfg)

	if idx < len(t.ConnectErrs) && t.ConnectErrs[idx] != nil {
		return nil, t.ConnectErrs[idx]
	}

	c := &Conn{
		tokens: make(chan stt.TokenBatch, 64),
		done:   make(chan struct{}),
	}
	t.Conns = append(t.Conns, c)
	return c, nil
}

// ConnectCalls returns the number of Connect invocations so far.
func (t *Transport) ConnectCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Conn is a scripted recognizer connection.
type Conn struct {
	mu sync.Mutex

	// SendErr, if non-nil, is returned by SendAudio.
	SendErr error

	// SentAudio records every frame passed to SendAudio.
	SentAudio [][]byte

	// Keepalives counts SendKeepalive calls.
	Keepalives int

	// Finalizes records the trailing-silence argument of each Finalize call.
	Finalizes []int

	tokens chan stt.TokenBatch
	done   chan struct{}
	once   sync.Once
	info   stt.CloseInfo
}

// Feed delivers a token batch to the consumer, as if the recognizer had sent
// it. Panics if called after the connection closed.
func (c *Conn) Feed(batch stt.TokenBatch) {
	select {
	case c.tokens <- batch:
	case <-c.done:
	}
}

// CloseWith simulates the connection ending with the given close info and
// closes the token channel. Subsequent calls are no-ops.
func (c *Conn) CloseWith(info stt.CloseInfo) {
	c.once.Do(func() {
		c.mu.Lock()
		c.info = info
		c.mu.Unlock()
		close(c.done)
		close(c.tokens)
	})
}

// SendAudio implements stt.Conn.
func (c *Conn) SendAudio(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	select {
	case <-c.done:
		return errors.New("mock: connection is closed")
	default:
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	c.SentAudio = append(c.SentAudio, cp)
	return nil
}

// SendKeepalive implements stt.Conn.
func (c *Conn) SendKeepalive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Keepalives++
	return nil
}

// Finalize implements stt.Conn.
func (c *Conn) Finalize(trailingSilenceMs int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Finalizes = append(c.Finalizes, trailingSilenceMs)
	return nil
}

// Tokens implements stt.Conn.
func (c *Conn) Tokens() <-chan stt.TokenBatch { return c.tokens }

// CloseInfo implements stt.Conn.
func (c *Conn) CloseInfo() stt.CloseInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Close implements stt.Conn.
func (c *Conn) Close() error {
	c.CloseWith(stt.CloseInfo{Code: stt.CloseCodeNormal, Reason: "client closed"})
	return nil
}

// KeepaliveCount returns the number of keepalives sent.
func (c *Conn) KeepaliveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Keepalives
}

// AudioFrameCount returns the number of audio frames sent.
func (c *Conn) AudioFrameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.SentAudio)
}

var _ stt.Transport = (*Transport)(nil)
var _ stt.Conn = (*Conn)(nil)
