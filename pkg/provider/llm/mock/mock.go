// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the dialog layer sends correct
// CompletionRequests and to feed controlled responses without a live LLM
// backend. All fields are safe to set before calling any method; mutating
// them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Script: []mock.StreamResponse{
//	        {Chunks: []llm.Chunk{{Text: "Hello!"}, {FinishReason: "stop"}}},
//	    },
//	}
//	ch, err := p.StreamCompletion(ctx, req)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/voxbridge-ai/voxbridge/pkg/provider/llm"
)

// StreamResponse scripts one StreamCompletion call.
type StreamResponse struct {
	// Err, if non-nil, is returned instead of opening a channel.
	Err error

	// Chunks is the sequence emitted on the returned channel before it is
	// closed.
	Chunks []llm.Chunk
}

// StreamCall records a single invocation of StreamCompletion.
type StreamCall struct {
	// Ctx is the context passed to StreamCompletion.
	Ctx context.Context
	// Req is the CompletionRequest passed to StreamCompletion.
	Req llm.CompletionRequest
}

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Script holds per-call stream responses: call i uses entry i. Calls
	// beyond the script reuse the last entry; an empty script yields an
	// immediately closed channel.
	Script []StreamResponse

	// ChunkDelay, if set, is the pause before each chunk is emitted. Used to
	// give cancellation tests a window to interrupt mid-stream.
	ChunkDelay time.Duration

	// CompleteResponse is returned by Complete. May be nil (returns nil, nil).
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// --- Call records (read after test) ---

	// StreamCalls records every invocation of StreamCompletion in order.
	StreamCalls []StreamCall

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// StreamCompletion records the call and plays the next scripted response.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	idx := len(p.StreamCalls)
	p.StreamCalls = append(p.StreamCalls, StreamCall{Ctx: ctx, Req: req})

	var resp StreamResponse
	if len(p.Script) > 0 {
		if idx >= len(p.Script) {
			idx = len(p.Script) - 1
		}
		resp = p.Script[idx]
	}
	delay := p.ChunkDelay
	p.mu.Unlock()

	if resp.Err != nil {
		return nil, resp.Err
	}

	ch := make(chan llm.Chunk, len(resp.Chunks))
	go func() {
		defer close(ch)
		for _, c := range resp.Chunks {
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
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// Complete records the call and returns CompleteResponse, CompleteErr.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	return p.CompleteResponse, p.CompleteErr
}

// StreamCallCount returns the number of StreamCompletion invocations.
func (p *Provider) StreamCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StreamCalls)
}

// LastStreamRequest returns the most recent StreamCompletion request, or a
// zero request if none were made.
func (p *Provider) LastStreamRequest() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.StreamCalls) == 0 {
		return llm.CompletionRequest{}
	}
	return p.StreamCalls[len(p.StreamCalls)-1].Req
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
