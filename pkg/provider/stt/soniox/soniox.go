// Package soniox provides a Soniox-backed recognizer transport using the
// Soniox real-time WebSocket API. It implements the stt.Transport interface.
package soniox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"

	"github.com/voxbridge-ai/voxbridge/pkg/provider/stt"
)

const (
	defaultEndpoint = "wss://stt-rt.soniox.com/transcribe-websocket"
	defaultModel    = "stt-rt-preview"
)

// Option is a functional option for configuring the Transport.
type Option func(*Transport)

// WithEndpoint overrides the default Soniox real-time endpoint. Used by tests
// to point the transport at a local server.
func WithEndpoint(url string) Option {
	return func(t *Transport) { t.endpoint = url }
}

// WithModel sets the Soniox model identifier used when the stream config does
// not name one.
func WithModel(model string) Option {
	return func(t *Transport) { t.model = model }
}

// Transport implements stt.Transport backed by the Soniox real-time API.
type Transport struct {
	apiKey   string
	endpoint string
	model    string
}

// New creates a Soniox Transport. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Transport, error) {
	if apiKey == "" {
		return nil, errors.New("soniox: apiKey must not be empty")
	}
	t := &Transport{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		model:    defaultModel,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// startFrame is the first JSON message on a new connection.
type startFrame struct {
	APIKey                  string   `json:"api_key"`
	Model                   string   `json:"model"`
	AudioFormat             string   `json:"audio_format"`
	SampleRate              int      `json:"sample_rate"`
	NumChannels             int      `json:"num_channels"`
	LanguageHints           []string `json:"language_hints,omitempty"`
	EnableEndpointDetection bool     `json:"enable_endpoint_detection"`
	EnableNonFinalTokens    bool     `json:"enable_non_final_tokens"`
}

// controlFrame carries keepalive and finalize verbs.
type controlFrame struct {
	Type              string `json:"type"`
	TrailingSilenceMs int    `json:"trailing_silence_ms,omitempty"`
}

// response is one recognizer message.
type response struct {
	Tokens []struct {
		Text     string `json:"text"`
		IsFinal  bool   `json:"is_final"`
		Language string `json:"language"`
	} `json:"tokens"`
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Finished     bool   `json:"finished"`
}

// Connect implements stt.Transport. It dials the endpoint, sends the start
// frame built from cfg, and returns a live Conn.
func (t *Transport) Connect(ctx context.Context, cfg stt.Config) (stt.Conn, error) {
	ws, _, err := websocket.Dial(ctx, t.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("soniox: dial: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = t.model
	}
	start := startFrame{
		APIKey:                  t.apiKey,
		Model:                   model,
		AudioFormat:             cfg.AudioFormat,
		SampleRate:              cfg.SampleRate,
		NumChannels:             cfg.Channels,
		LanguageHints:           cfg.LanguageHints,
		EnableEndpointDetection: cfg.EnableEndpointDetection,
		EnableNonFinalTokens:    cfg.EnableInterim,
	}
	startBytes, _ := json.Marshal(start)
	if err := ws.Write(ctx, websocket.MessageText, startBytes); err != nil {
		ws.Close(websocket.StatusInternalError, "start frame failed")
		return nil, fmt.Errorf("soniox: send start frame: %w", err)
	}

	c := &conn{
		ws:     ws,
		tokens: make(chan stt.TokenBatch, 64),
		done:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.readLoop()
	return c, nil
}

// conn is a live Soniox streaming connection. It implements stt.Conn.
type conn struct {
	ws     *websocket.Conn
	tokens chan stt.TokenBatch

	writeMu sync.Mutex // serialises writes; coder/websocket allows one writer

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	closeMu   sync.Mutex
	closeInfo stt.CloseInfo
}

// SendAudio delivers one binary audio frame.
func (c *conn) SendAudio(frame []byte) error {
	return c.write(websocket.MessageBinary, frame)
}

// SendKeepalive sends the protocol keepalive message.
func (c *conn) SendKeepalive() error {
	msg, _ := json.Marshal(controlFrame{Type: "keepalive"})
	return c.write(websocket.MessageText, msg)
}

// Finalize asks the recognizer to flush pending partials as finals.
func (c *conn) Finalize(trailingSilenceMs int) error {
	msg, _ := json.Marshal(controlFrame{Type: "finalize", TrailingSilenceMs: trailingSilenceMs})
	return c.write(websocket.MessageText, msg)
}

// Tokens implements stt.Conn.
func (c *conn) Tokens() <-chan stt.TokenBatch { return c.tokens }

// CloseInfo implements stt.Conn.
func (c *conn) CloseInfo() stt.CloseInfo {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeInfo
}

// Close ends the connection. An empty text frame tells Soniox that audio is
// complete so trailing finals can be delivered before the socket closes.
func (c *conn) Close() error {
	c.once.Do(func() {
		close(c.done)
		_ = c.write(websocket.MessageText, []byte(""))
		c.setCloseInfo(stt.CloseInfo{Code: stt.CloseCodeNormal, Reason: "client closed"})
		_ = c.ws.Close(websocket.StatusNormalClosure, "session closed")
		c.wg.Wait()
	})
	return nil
}

// write serialises one frame onto the socket.
func (c *conn) write(typ websocket.MessageType, data []byte) error {
	select {
	case <-c.done:
		return errors.New("soniox: connection is closed")
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.Write(context.Background(), typ, data)
}

// readLoop receives recognizer messages and dispatches token batches until
// the connection ends.
func (c *conn) readLoop() {
	defer c.wg.Done()
	defer close(c.tokens)

	for {
		_, msg, err := c.ws.Read(context.Background())
		if err != nil {
			c.recordReadError(err)
			return
		}

		var resp response
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}

		if resp.ErrorCode != 0 {
			c.setCloseInfo(stt.CloseInfo{
				Code:   stt.CloseCode(resp.ErrorCode),
				Reason: resp.ErrorMessage,
				Err:    fmt.Errorf("soniox: recognizer error %d: %s", resp.ErrorCode, resp.ErrorMessage),
				Fatal:  resp.ErrorCode >= 400 && resp.ErrorCode < 500,
			})
			_ = c.ws.Close(websocket.StatusInternalError, "recognizer error")
			return
		}

		if batch := toBatch(resp); len(batch) > 0 {
			select {
			case c.tokens <- batch:
			case <-c.done:
				return
			}
		}

		if resp.Finished {
			c.setCloseInfo(stt.CloseInfo{Code: stt.CloseCodeNormal, Reason: "finished"})
			return
		}
	}
}

// recordReadError translates a websocket read error into CloseInfo, keeping
// any info already recorded by Close or an error response.
func (c *conn) recordReadError(err error) {
	select {
	case <-c.done:
		return // client-initiated close already recorded
	default:
	}
	status := websocket.CloseStatus(err)
	info := stt.CloseInfo{Code: stt.CloseCode(status), Err: err}
	if status == -1 {
		// Not a close frame: raw transport drop.
		info.Code = 1006
	} else if status == websocket.StatusNormalClosure {
		info.Err = nil
	}
	c.setCloseInfo(info)
}

func (c *conn) setCloseInfo(info stt.CloseInfo) {
	c.closeMu.Lock()
	if c.closeInfo == (stt.CloseInfo{}) {
		c.closeInfo = info
	}
	c.closeMu.Unlock()
}

// toBatch converts a recognizer response into a TokenBatch.
func toBatch(resp response) stt.TokenBatch {
	batch := make(stt.TokenBatch, 0, len(resp.Tokens))
	for _, t := range resp.Tokens {
		batch = append(batch, stt.Token{
			Text:     t.Text,
			Final:    t.IsFinal,
			Language: t.Language,
		})
	}
	return batch
}
