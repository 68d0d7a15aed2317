// Package llm manages conversation state on top of an llm.Provider: history
// with a bounded trailing window, the installed system prompt and tool
// schema, streaming generation with tool-call handoff, and per-session token
// accounting.
//
// The provider handed to the client is typically a resilience.LLMFallback, so
// primary/secondary failover happens below this layer.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/voxbridge-ai/voxbridge/pkg/provider/llm"
)

const defaultHistoryWindow = 20

// Result is the outcome of one completed generation.
type Result struct {
	// Content is the assistant's text. Empty when the model answered with a
	// tool call.
	Content string

	// FinishReason reports why generation stopped ("stop", "length",
	// "tool_calls").
	FinishReason string

	// ToolCall is non-nil when the model requested a tool invocation instead
	// of answering. The caller resolves it and continues the turn via
	// AddToolResult.
	ToolCall *llm.ToolCall

	// Usage is the token accounting for this request.
	Usage llm.Usage
}

// StreamEvent is one notification from a streaming generation. Exactly one
// field is set: Delta for incremental text, End for successful completion,
// Err for a mid-stream failure. The channel closes after End or Err.
type StreamEvent struct {
	Delta string
	End   *Result
	Err   error
}

// Config configures a Client.
type Config struct {
	// HistoryWindow bounds the conversation history to the most recent N
	// messages. Defaults to 20. The system prompt is kept outside the window
	// and never truncated.
	HistoryWindow int
}

// Client produces assistant turns for one session.
type Client struct {
	provider llm.Provider
	log      *slog.Logger
	window   int

	mu           sync.Mutex
	systemPrompt string
	tools        []llm.ToolDefinition
	temperature  float64
	maxTokens    int
	history      []llm.Message
	usage        llm.Usage
	cancelActive context.CancelFunc
}

// NewClient creates a Client over the given provider.
func NewClient(provider llm.Provider, cfg Config, log *slog.Logger) *Client {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		provider: provider,
		log:      log.With("component", "llm"),
		window:   cfg.HistoryWindow,
	}
}

// Configure installs the system prompt, sampling settings, and tool schema.
// Raw tool definitions are accepted in any of the shapes NormalizeTools
// handles.
func (c *Client) Configure(systemPrompt string, rawTools []map[string]any, temperature float64, maxTokens int) error {
	tools, err := NormalizeTools(rawTools)
	if err != nil {
		return fmt.Errorf("llm: configure: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.systemPrompt = systemPrompt
	c.tools = tools
	c.temperature = temperature
	c.maxTokens = maxTokens
	return nil
}

// AddAssistantMessage appends assistant text to the history without a
// generation, used for the configured greeting.
func (c *Client) AddAssistantMessage(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, llm.Message{Role: "assistant", Content: text})
	c.truncateLocked()
}

// AddToolResult appends a tool-result message to the history. The next
// generation call produces the follow-up assistant turn.
func (c *Client) AddToolResult(callID, toolName, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, llm.Message{
		Role:       "tool",
		Content:    result,
		ToolCallID: callID,
	})
	c.truncateLocked()
	c.log.Debug("tool result recorded", "tool", toolName, "call_id", callID)
}

// Generate appends userMessage to the history, performs one blocking
// completion, and appends the assistant reply. An empty userMessage generates
// from the existing history, which is how tool-result follow-ups run.
func (c *Client) Generate(ctx context.Context, userMessage string) (*Result, error) {
	req := c.beginRequest(userMessage)

	resp, err := c.provider.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llm: generate: %w", err)
	}

	res := &Result{
		Content:      resp.Content,
		FinishReason: "stop",
		Usage:        resp.Usage,
	}
	if len(resp.ToolCalls) > 0 {
		tc := resp.ToolCalls[0]
		res.ToolCall = &tc
		res.FinishReason = "tool_calls"
	}
	c.finishRequest(res)
	return res, nil
}

// GenerateStreaming appends userMessage to the history and starts a streaming
// completion. Events arrive on the returned channel: zero or more Delta
// events, then exactly one End or Err event, after which the channel closes.
// A cancelled generation closes the channel without a terminal event.
//
// An empty userMessage generates from the existing history.
func (c *Client) GenerateStreaming(ctx context.Context, userMessage string) (<-chan StreamEvent, error) {
	req := c.beginRequest(userMessage)

	reqCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelActive = cancel
	c.mu.Unlock()

	ch, err := c.provider.StreamCompletion(reqCtx, req)
	if err != nil {
		cancel()
		c.clearCancel()
		return nil, fmt.Errorf("llm: start generation: %w", err)
	}

	out := make(chan StreamEvent, 32)
	go func() {
		defer close(out)
		defer cancel()
		defer c.clearCancel()

		var (
			content  strings.Builder
			toolCall *llm.ToolCall
			finish   string
			usage    llm.Usage
		)
		for chunk := range ch {
			if chunk.Usage != nil {
				usage.Add(*chunk.Usage)
				continue
			}
			if chunk.FinishReason == "error" {
				select {
				case out <- StreamEvent{Err: fmt.Errorf("llm: stream failed: %s", chunk.Text)}:
				case <-reqCtx.Done():
				}
				return
			}
			if chunk.Text != "" {
				content.WriteString(chunk.Text)
				select {
				case out <- StreamEvent{Delta: chunk.Text}:
				case <-reqCtx.Done():
					return
				}
			}
			if chunk.FinishReason != "" {
				finish = chunk.FinishReason
			}
			if len(chunk.ToolCalls) > 0 {
				tc := chunk.ToolCalls[0]
				toolCall = &tc
			}
		}
		if reqCtx.Err() != nil {
			return
		}

		res := &Result{
			Content:      content.String(),
			FinishReason: finish,
			ToolCall:     toolCall,
			Usage:        usage,
		}
		c.finishRequest(res)
		select {
		case out <- StreamEvent{End: res}:
		case <-reqCtx.Done():
		}
	}()
	return out, nil
}

// Cancel aborts any in-flight generation. The stream channel closes without a
// terminal event.
func (c *Client) Cancel() {
	c.mu.Lock()
	cancel := c.cancelActive
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Usage returns the accumulated token usage across all generations.
func (c *Client) Usage() llm.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// History returns a copy of the current conversation history.
func (c *Client) History() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Message, len(c.history))
	copy(out, c.history)
	return out
}

// beginRequest appends the user message (when non-empty) and snapshots the
// completion request.
func (c *Client) beginRequest(userMessage string) llm.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if userMessage != "" {
		c.history = append(c.history, llm.Message{Role: "user", Content: userMessage})
		c.truncateLocked()
	}
	msgs := make([]llm.Message, len(c.history))
	copy(msgs, c.history)
	return llm.CompletionRequest{
		Messages:     msgs,
		Tools:        c.tools,
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
		SystemPrompt: c.systemPrompt,
	}
}

// finishRequest records usage and, for plain text answers, appends the
// assistant message. Tool-call turns leave the history untouched until the
// resolver reports back via AddToolResult.
func (c *Client) finishRequest(res *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage.Add(res.Usage)
	if res.ToolCall == nil && res.Content != "" {
		c.history = append(c.history, llm.Message{Role: "assistant", Content: res.Content})
		c.truncateLocked()
	}
}

func (c *Client) clearCancel() {
	c.mu.Lock()
	c.cancelActive = nil
	c.mu.Unlock()
}

// truncateLocked drops the oldest messages beyond the trailing window. Must
// be called with c.mu held.
func (c *Client) truncateLocked() {
	if len(c.history) <= c.window {
		return
	}
	c.history = append(c.history[:0:0], c.history[len(c.history)-c.window:]...)
}
