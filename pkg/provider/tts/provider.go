// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., the ElevenLabs
// streaming API) and presents a uniform streaming interface: one Synthesize
// call per utterance, ordered audio chunks out. Request-id scoping,
// cancellation bookkeeping, and codec bridging live above the provider, in
// internal/tts.
//
// Implementations must be safe for concurrent use; multiple synthesis
// requests may run in parallel.
package tts

import (
	"context"
	"sync/atomic"
)

// Voice identifies a synthesis voice.
type Voice struct {
	// ID is the provider-assigned voice identifier.
	ID string

	// Name is a human-readable label, informational only.
	Name string
}

// Synthesis is one in-flight synthesis request. Audio chunks arrive on Audio
// in synthesis order; the channel is closed when the request finishes,
// fails, or is cancelled. After the channel closes, Err reports whether the
// stream ended cleanly.
type Synthesis struct {
	// Audio emits encoded audio chunks in order. Closed by the provider.
	Audio <-chan []byte

	err atomic.Pointer[streamErr]
}

type streamErr struct{ err error }

// NewSynthesis wraps an audio channel. Providers call SetStreamErr before
// closing the channel when synthesis fails mid-stream.
func NewSynthesis(audio <-chan []byte) *Synthesis {
	return &Synthesis{Audio: audio}
}

// Err returns the mid-stream failure, if any. Valid once Audio is closed.
func (s *Synthesis) Err() error {
	if v := s.err.Load(); v != nil {
		return v.err
	}
	return nil
}

// SetStreamErr records a mid-stream failure. The first recorded error wins.
func (s *Synthesis) SetStreamErr(err error) {
	if err == nil {
		return
	}
	s.err.CompareAndSwap(nil, &streamErr{err: err})
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize starts one synthesis request for text and returns the
	// in-flight Synthesis handle. The audio channel is closed when synthesis
	// completes or ctx is cancelled; the caller must drain it.
	//
	// Returns a non-nil error only if the request cannot be started.
	Synthesize(ctx context.Context, text string, voice Voice) (*Synthesis, error)
}
