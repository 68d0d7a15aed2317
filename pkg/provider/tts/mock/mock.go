// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider in unit tests to feed scripted audio chunks without a live
// synthesis backend. Chunks, delays, and mid-stream errors are configurable;
// call records expose what was synthesised.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/voxbridge-ai/voxbridge/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable behaviour ---

	// Chunks is the audio emitted by each Synthesize call, in order.
	Chunks [][]byte

	// ChunkDelay, if set, is the pause before each chunk. Used to give
	// cancellation tests a window to interrupt mid-synthesis.
	ChunkDelay time.Duration

	// Hold, if non-nil, blocks chunk delivery until the channel is closed.
	Hold chan struct{}

	// SynthesizeErr, if non-nil, is returned by Synthesize instead of
	// starting a stream.
	SynthesizeErr error

	// StreamErr, if non-nil, is recorded on the Synthesis after all chunks
	// are delivered, simulating a mid-stream failure.
	StreamErr error

	// --- Call records (read after test) ---

	// Texts records the text of every Synthesize call.
	Texts []string

	// Voices records the voice of every Synthesize call.
	Voices []tts.Voice
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (*tts.Synthesis, error) {
	p.mu.Lock()
	p.Texts = append(p.Texts, text)
	p.Voices = append(p.Voices, voice)
	chunks := make([][]byte, len(p.Chunks))
	copy(chunks, p.Chunks)
	delay := p.ChunkDelay
	hold := p.Hold
	synthErr := p.SynthesizeErr
	streamErr := p.StreamErr
	p.mu.Unlock()

	if synthErr != nil {
		return nil, synthErr
	}

	audio := make(chan []byte, len(chunks))
	synth := tts.NewSynthesis(audio)
	go func() {
		defer close(audio)
		if hold != nil {
			select {
			case <-hold:
			case <-ctx.Done():
				return
			}
		}
		for _, c := range chunks {
			if delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}
			select {
			case <-ctx.Done():
				return
			case audio <- c:
			}
		}
		if streamErr != nil {
			synth.SetStreamErr(streamErr)
		}
	}()
	return synth, nil
}

// SynthesizeCount returns the number of Synthesize calls so far.
func (p *Provider) SynthesizeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Texts)
}

var _ tts.Provider = (*Provider)(nil)
