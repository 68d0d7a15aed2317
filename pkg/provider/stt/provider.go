// Package stt defines the transport abstraction for streaming speech
// recognizers.
//
// A Transport wraps one recognizer protocol (e.g., the Soniox real-time
// WebSocket API) and exposes a uniform connection handle: raw audio frames in,
// token batches out, plus the protocol-level keepalive and finalize verbs the
// session's STT client drives. Reconnection, transcript accumulation, and
// endpoint bookkeeping live above the transport, in internal/stt; a Conn
// represents exactly one underlying connection and is discarded on disconnect.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Config describes the audio format and recognition hints sent in the
// transport's initial configuration frame.
type Config struct {
	// Model selects the recognizer model (provider-specific identifier).
	Model string

	// SampleRate is the input audio sample rate in Hz. Telephony input is 8000.
	SampleRate int

	// Channels is the number of audio channels. Telephony input is mono.
	Channels int

	// AudioFormat names the input encoding in the recognizer's vocabulary
	// (e.g., "mulaw", "pcm_s16le").
	AudioFormat string

	// LanguageHints biases recognition toward the listed BCP-47 language tags.
	// Empty means auto-detect.
	LanguageHints []string

	// EnableEndpointDetection asks the recognizer to emit an endpoint marker
	// token when the speaker has paused long enough to be considered done.
	EnableEndpointDetection bool

	// EnableInterim asks for low-latency non-final tokens in addition to
	// final ones.
	EnableInterim bool
}

// Transport is the abstraction over a streaming recognizer protocol.
type Transport interface {
	// Connect establishes one streaming session and sends the configuration
	// frame. The returned Conn is ready to accept audio immediately.
	//
	// Returns an error if the session cannot be established before ctx is
	// done (authentication failure, unreachable endpoint, cancelled context).
	Connect(ctx context.Context, cfg Config) (Conn, error)
}

// Conn is a single live recognizer connection. All methods must be safe for
// concurrent use. When the connection drops, remotely or via Close, the
// Tokens channel is closed and CloseInfo reports why.
type Conn interface {
	// SendAudio delivers one raw audio frame to the recognizer.
	SendAudio(frame []byte) error

	// SendKeepalive sends the protocol's no-op message so the remote side
	// does not reap an audio-idle connection.
	SendKeepalive() error

	// Finalize asks the recognizer to force-emit any pending partial as
	// final after trailingSilenceMs of synthetic trailing silence.
	Finalize(trailingSilenceMs int) error

	// Tokens returns the channel of recognized token batches. The channel is
	// closed when the connection ends for any reason.
	Tokens() <-chan TokenBatch

	// CloseInfo reports why the connection ended. Valid only after the
	// Tokens channel has been closed.
	CloseInfo() CloseInfo

	// Close terminates the connection, flushing pending audio where the
	// protocol allows. Safe to call multiple times.
	Close() error
}
