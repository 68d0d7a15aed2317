package stt

// Recognizer marker tokens. The endpoint marker arrives as a token in the
// normal stream; the finalize marker acknowledges a manual Finalize and
// carries no text.
const (
	// EndpointMarker signals that the speaker has paused long enough for the
	// recognizer to consider the utterance complete.
	EndpointMarker = "<end>"

	// FinalizeMarker acknowledges a manual finalize request. Consumers
	// discard it.
	FinalizeMarker = "<fin>"
)

// Token is a single recognized fragment. Interim tokens are superseded by
// later batches; final tokens are authoritative and append-only within an
// utterance.
type Token struct {
	// Text is the recognized fragment, or a marker constant.
	Text string

	// Final reports whether the recognizer has committed to this fragment.
	Final bool

	// Language is the detected BCP-47 tag for this fragment, when the
	// recognizer reports per-token language. May be empty.
	Language string
}

// TokenBatch is one recognizer response worth of tokens, delivered in stream
// order.
type TokenBatch []Token

// CloseCode classifies why a connection ended, mirroring websocket close
// semantics: 1000 is a normal closure, anything else is abnormal.
type CloseCode int

// CloseCodeNormal is a clean, expected connection end.
const CloseCodeNormal CloseCode = 1000

// CloseInfo describes the end of a recognizer connection.
type CloseInfo struct {
	// Code is the close code. CloseCodeNormal means a clean shutdown;
	// other values indicate an abnormal drop eligible for reconnection.
	Code CloseCode

	// Reason is the close reason phrase, if the protocol supplied one.
	Reason string

	// Err is the underlying transport error for abnormal closes. Nil on a
	// clean shutdown.
	Err error

	// Fatal marks protocol or authentication failures that reconnecting
	// cannot fix.
	Fatal bool
}
