package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/voxbridge-ai/voxbridge/pkg/provider/llm"
	"github.com/voxbridge-ai/voxbridge/pkg/provider/llm/mock"
)

func TestLLMFallback_CompletePrimary(t *testing.T) {
	primary := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from primary"}}
	secondary := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from secondary"}}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", secondary)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from primary" {
		t.Fatalf("content = %q, want from primary", resp.Content)
	}
	if len(secondary.CompleteCalls) != 0 {
		t.Error("secondary must not be called when the primary succeeds")
	}
}

func TestLLMFallback_CompleteFailover(t *testing.T) {
	primary := &mock.Provider{CompleteErr: errors.New("rate limited")}
	secondary := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from secondary"}}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", secondary)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from secondary" {
		t.Fatalf("content = %q, want from secondary", resp.Content)
	}
	if len(primary.CompleteCalls) != 1 {
		t.Errorf("primary calls = %d, want 1", len(primary.CompleteCalls))
	}
}

func TestLLMFallback_StreamFailover(t *testing.T) {
	primary := &mock.Provider{Script: []mock.StreamResponse{{Err: errors.New("connect refused")}}}
	secondary := &mock.Provider{Script: []mock.StreamResponse{{Chunks: []llm.Chunk{
		{Text: "hello"},
		{FinishReason: "stop"},
	}}}}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", secondary)

	ch, err := f.StreamCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var text string
	for c := range ch {
		text += c.Text
	}
	if text != "hello" {
		t.Fatalf("streamed text = %q, want hello", text)
	}
	if primary.StreamCallCount() != 1 {
		t.Errorf("primary stream calls = %d, want 1", primary.StreamCallCount())
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	primary := &mock.Provider{CompleteErr: errors.New("down")}
	secondary := &mock.Provider{CompleteErr: errors.New("also down")}

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", secondary)

	_, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
