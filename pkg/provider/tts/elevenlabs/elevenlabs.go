// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider
// interface with one WebSocket connection per synthesis request, which keeps
// cancellation scoped to a single utterance.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/coder/websocket"

	"github.com/voxbridge-ai/voxbridge/pkg/provider/tts"
)

const (
	defaultEndpoint       = "wss://api.elevenlabs.io/v1/text-to-speech"
	defaultVoicesEndpoint = "https://api.elevenlabs.io/v1/voices"
	defaultModel          = "eleven_flash_v2_5"
	defaultOutputFmt      = "ulaw_8000"
)

// ErrVoiceNotFound is returned by VerifyVoice when the account's voice
// catalog does not contain the requested voice.
var ErrVoiceNotFound = errors.New("elevenlabs: voice not found")

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "ulaw_8000",
// "pcm_22050", "pcm_24000", "mp3_22050_32").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithEndpoint overrides the default streaming endpoint base. Used by tests
// to point the provider at a local server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithVoicesEndpoint overrides the default voice-catalog endpoint. Used by
// tests to point the provider at a local server.
func WithVoicesEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.voicesEndpoint = endpoint
	}
}

// WithVoiceSettings overrides the default stability and similarity boost.
func WithVoiceSettings(stability, similarityBoost float64) Option {
	return func(p *Provider) {
		p.settings = &voiceSettings{Stability: stability, SimilarityBoost: similarityBoost}
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey         string
	endpoint       string
	voicesEndpoint string
	model          string
	outputFormat   string
	settings       *voiceSettings
	httpClient     *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:         apiKey,
		endpoint:       defaultEndpoint,
		voicesEndpoint: defaultVoicesEndpoint,
		model:          defaultModel,
		outputFormat:   defaultOutputFmt,
		settings:       &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		httpClient:     &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// OutputFormat returns the configured output format string.
func (p *Provider) OutputFormat() string { return p.outputFormat }

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
// An empty Text signals end of input.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded audio chunk
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize implements tts.Provider. It opens a WebSocket scoped to this
// one request, sends the whole utterance plus the end-of-input marker, and
// streams decoded audio chunks until the server reports the final chunk.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (*tts.Synthesis, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}
	if text == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice.ID), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	// Handshake, utterance, end-of-input. All writes happen up front; the
	// rest of the request is read-only.
	msgs := []textMessage{
		{Text: " ", VoiceSettings: p.settings, XiAPIKey: p.apiKey},
		{Text: text},
		{Text: ""},
	}
	for _, m := range msgs {
		raw, _ := json.Marshal(m)
		if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
			conn.Close(websocket.StatusInternalError, "write failed")
			return nil, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	audioCh := make(chan []byte, 256)
	synth := tts.NewSynthesis(audioCh)

	go func() {
		defer close(audioCh)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					synth.SetStreamErr(fmt.Errorf("elevenlabs: read: %w", err))
				}
				return
			}
			var resp audioResponse
			if err := json.Unmarshal(msg, &resp); err != nil {
				continue
			}
			if resp.Error != "" {
				synth.SetStreamErr(fmt.Errorf("elevenlabs: synthesis failed: %s: %s", resp.Error, resp.Message))
				return
			}
			if resp.Audio != "" {
				chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
				if err == nil && len(chunk) > 0 {
					select {
					case audioCh <- chunk:
					case <-ctx.Done():
						return
					}
				}
			}
			if resp.IsFinal {
				return
			}
		}
	}()

	return synth, nil
}

// streamURL constructs the per-voice WebSocket URL including model and
// output format.
func (p *Provider) streamURL(voiceID string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return fmt.Sprintf("%s/%s/stream-input?%s", p.endpoint, voiceID, q.Encode())
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID string `json:"voice_id"`
	Name    string `json:"name"`
}

// ListVoices returns all voices available for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	raw, err := decodeVoices(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return raw, nil
}

// VerifyVoice checks that voiceID exists in the account's voice catalog.
// Returns [ErrVoiceNotFound] when the catalog was listed successfully but
// does not contain the voice; any other error means the catalog itself could
// not be consulted.
func (p *Provider) VerifyVoice(ctx context.Context, voiceID string) error {
	voices, err := p.ListVoices(ctx)
	if err != nil {
		return err
	}
	for _, v := range voices {
		if v.ID == voiceID {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrVoiceNotFound, voiceID)
}

// decodeVoices parses a /v1/voices response body into Voice values.
func decodeVoices(r io.Reader) ([]tts.Voice, error) {
	var vr voicesResponse
	if err := json.NewDecoder(r).Decode(&vr); err != nil {
		return nil, err
	}
	voices := make([]tts.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		voices = append(voices, tts.Voice{ID: v.VoiceID, Name: v.Name})
	}
	return voices, nil
}

var _ tts.Provider = (*Provider)(nil)
