// Package gateway is the telephony edge of Voxbridge: a WebSocket server
// that accepts one call per connection, frames caller audio into the session
// orchestrator, and serializes the session's outward events as JSON control
// frames plus base64 media frames.
//
// The gateway also resolves the built-in knowledge_base_search tool against
// the configured retrieval service; every other tool call is forwarded to the
// edge for external resolution.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/voxbridge-ai/voxbridge/internal/config"
	llmc "github.com/voxbridge-ai/voxbridge/internal/llm"
	"github.com/voxbridge-ai/voxbridge/internal/observe"
	"github.com/voxbridge-ai/voxbridge/internal/resilience"
	"github.com/voxbridge-ai/voxbridge/internal/session"
	sttc "github.com/voxbridge-ai/voxbridge/internal/stt"
	"github.com/voxbridge-ai/voxbridge/internal/transcriptlog"
	ttsc "github.com/voxbridge-ai/voxbridge/internal/tts"
	"github.com/voxbridge-ai/voxbridge/pkg/audio"
	"github.com/voxbridge-ai/voxbridge/pkg/kb"
	"github.com/voxbridge-ai/voxbridge/pkg/provider/llm"
	llmopenai "github.com/voxbridge-ai/voxbridge/pkg/provider/llm/openai"
	"github.com/voxbridge-ai/voxbridge/pkg/provider/stt"
	"github.com/voxbridge-ai/voxbridge/pkg/provider/stt/soniox"
	"github.com/voxbridge-ai/voxbridge/pkg/provider/tts"
	"github.com/voxbridge-ai/voxbridge/pkg/provider/tts/elevenlabs"
)

// kbToolName is the tool the gateway resolves itself instead of forwarding.
const kbToolName = "knowledge_base_search"

// callSession is the per-call surface the gateway drives. Satisfied by
// *session.Orchestrator; tests substitute a scripted fake.
type callSession interface {
	Connect(ctx context.Context) error
	ConfigureSession(ac session.AgentConfig) error
	SendAudio(frame []byte) bool
	SendToolResult(callID, result string) error
	Events() <-chan session.Event
	Disconnect()
}

// SessionFactory builds the session behind one accepted call.
type SessionFactory func(sessionID string) (callSession, error)

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*Server)

// WithSessionFactory replaces the default factory that builds real provider
// sessions from the config.
func WithSessionFactory(f SessionFactory) Option {
	return func(s *Server) { s.newSession = f }
}

// WithTranscriptStore injects the transcript store shared by all sessions.
func WithTranscriptStore(store transcriptlog.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithMetrics injects the metrics instruments shared by all sessions.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server accepts calls over WebSocket and runs one session per connection.
type Server struct {
	cfg     *config.Config
	log     *slog.Logger
	store   transcriptlog.Store
	metrics *observe.Metrics
	kb      *kb.Client

	newSession SessionFactory
	nextCall   atomic.Uint64
}

// New creates a gateway server from the loaded configuration.
func New(cfg *config.Config, log *slog.Logger, opts ...Option) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg: cfg,
		log: log.With("component", "gateway"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.store == nil {
		s.store = transcriptlog.Noop{}
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if cfg.KnowledgeBase.BaseURL != "" {
		var kbOpts []kb.Option
		if cfg.KnowledgeBase.APIKey != "" {
			kbOpts = append(kbOpts, kb.WithAPIKey(cfg.KnowledgeBase.APIKey))
		}
		if cfg.KnowledgeBase.SearchType != "" {
			kbOpts = append(kbOpts, kb.WithSearchType(cfg.KnowledgeBase.SearchType))
		}
		client, err := kb.NewClient(cfg.KnowledgeBase.BaseURL, cfg.KnowledgeBase.KBID, kbOpts...)
		if err != nil {
			return nil, fmt.Errorf("gateway: knowledge base client: %w", err)
		}
		s.kb = client
	}
	if s.newSession == nil {
		s.newSession = s.buildSession
	}
	return s, nil
}

// Register adds the call endpoint to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/call", s.handleCall)
}

// handleCall upgrades the connection and runs the call until the edge hangs
// up or the conversation ends.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "err", err)
		return
	}

	sessionID := fmt.Sprintf("call-%d-%d", time.Now().Unix(), s.nextCall.Add(1))
	log := s.log.With("session_id", sessionID)

	sess, err := s.newSession(sessionID)
	if err != nil {
		log.Error("session construction failed", "err", err)
		ws.Close(websocket.StatusInternalError, "session unavailable")
		return
	}
	defer sess.Disconnect()

	ctx := r.Context()
	if err := sess.Connect(ctx); err != nil {
		log.Error("session connect failed", "err", err)
		ws.Close(websocket.StatusInternalError, "session connect failed")
		return
	}
	if err := sess.ConfigureSession(s.agentConfig()); err != nil {
		log.Error("session configure failed", "err", err)
		ws.Close(websocket.StatusInternalError, "session configure failed")
		return
	}
	log.Info("call started")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop(ctx, ws, sess, sessionID, log)
	}()

	s.readLoop(ctx, ws, sess, log)

	// The edge hung up or the socket dropped. Disconnect closes the event
	// channel, which ends the write loop.
	sess.Disconnect()
	wg.Wait()
	ws.Close(websocket.StatusNormalClosure, "call ended")
	log.Info("call ended")
}

// readLoop consumes edge frames until the socket ends or a stop frame
// arrives.
func (s *Server) readLoop(ctx context.Context, ws *websocket.Conn, sess callSession, log *slog.Logger) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn("malformed frame from edge", "err", err)
			continue
		}

		switch msg.Event {
		case eventMedia:
			frame, err := base64.StdEncoding.DecodeString(msg.Payload)
			if err != nil {
				log.Warn("bad media payload", "err", err)
				continue
			}
			sess.SendAudio(frame)
		case "tool.result":
			if err := sess.SendToolResult(msg.CallID, msg.Result); err != nil {
				log.Warn("tool result rejected", "call_id", msg.CallID, "err", err)
			}
		case "stop":
			return
		default:
			log.Warn("unknown frame from edge", "event", msg.Event)
		}
	}
}

// writeLoop serializes session events onto the socket until the event
// channel closes.
func (s *Server) writeLoop(ctx context.Context, ws *websocket.Conn, sess callSession, sessionID string, log *slog.Logger) {
	var kbWG sync.WaitGroup
	defer kbWG.Wait()

	for ev := range sess.Events() {
		out := outboundMessage{
			SessionID: sessionID,
			TenantID:  s.cfg.Agent.TenantID,
			AgentID:   s.cfg.Agent.AgentID,
		}

		switch e := ev.(type) {
		case session.AudioDeltaEvent:
			out.Event = eventMedia
			out.Payload = base64.StdEncoding.EncodeToString(e.Data)
		case session.AudioDoneEvent:
			out.Event = eventAudioDone
		case session.UserTranscriptEvent:
			out.Event = eventTranscriptUser
			out.Text = e.Text
		case session.AgentTranscriptEvent:
			out.Event = eventTranscriptAgent
			out.Text = e.Text
		case session.FunctionCallEvent:
			if s.kb != nil && e.Name == kbToolName {
				kbWG.Add(1)
				go func() {
					defer kbWG.Done()
					s.resolveKBSearch(ctx, sess, e, log)
				}()
				continue
			}
			out.Event = eventFunctionCall
			out.CallID = e.CallID
			out.Name = e.Name
			out.Arguments = e.Arguments
		case session.AgentReadyEvent:
			out.Event = eventAgentReady
		case session.SpeechStartedEvent:
			out.Event = eventSpeechStarted
		case session.SilenceTimeoutEvent:
			out.Event = eventSilenceTimeout
		case session.ConversationEndedEvent:
			out.Event = eventConversationEnded
			out.Reason = e.Reason
			cost := e.Cost
			out.Cost = &cost
		case session.ErrorEvent:
			out.Event = eventError
			out.Message = e.Err.Error()
		default:
			continue
		}

		data, err := json.Marshal(out)
		if err != nil {
			log.Error("event marshal failed", "event", out.Event, "err", err)
			continue
		}
		if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
			log.Debug("edge write failed", "err", err)
			return
		}
	}
}

// resolveKBSearch answers a knowledge_base_search tool call from the
// configured retrieval service instead of forwarding it to the edge.
func (s *Server) resolveKBSearch(ctx context.Context, sess callSession, ev session.FunctionCallEvent, log *slog.Logger) {
	var args struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal([]byte(ev.Arguments), &args); err != nil {
		log.Warn("bad knowledge base arguments", "call_id", ev.CallID, "err", err)
		s.answerTool(sess, ev.CallID, `{"error":"malformed search arguments"}`, log)
		return
	}
	if args.MaxResults <= 0 {
		args.MaxResults = s.cfg.KnowledgeBase.MaxResults
	}

	results, err := s.kb.Search(ctx, args.Query, args.MaxResults)
	if err != nil {
		log.Warn("knowledge base search failed", "call_id", ev.CallID, "err", err)
		s.answerTool(sess, ev.CallID, `{"error":"knowledge base lookup failed"}`, log)
		return
	}

	body, err := json.Marshal(map[string]any{"results": results})
	if err != nil {
		s.answerTool(sess, ev.CallID, `{"error":"knowledge base lookup failed"}`, log)
		return
	}
	s.answerTool(sess, ev.CallID, string(body), log)
}

func (s *Server) answerTool(sess callSession, callID, result string, log *slog.Logger) {
	if err := sess.SendToolResult(callID, result); err != nil {
		log.Warn("tool result delivery failed", "call_id", callID, "err", err)
	}
}

// agentConfig snapshots the per-call agent configuration from the loaded
// config. When the knowledge base is configured and the agent does not
// already declare the search tool, a default definition is appended.
func (s *Server) agentConfig() session.AgentConfig {
	tools := s.cfg.Agent.Tools
	if s.kb != nil && !declaresTool(tools, kbToolName) {
		tools = append(append([]map[string]any{}, tools...), defaultKBTool())
	}
	return session.AgentConfig{
		SystemPrompt:   s.cfg.Agent.SystemPrompt,
		Greeting:       s.cfg.Agent.Greeting,
		Tools:          tools,
		Temperature:    s.cfg.LLM.TemperatureOrDefault(),
		MaxTokens:      s.cfg.LLM.MaxTokens,
		SilenceTimeout: time.Duration(s.cfg.Conversation.SilenceTimeoutMs) * time.Millisecond,
		BargeIn:        s.cfg.Conversation.BargeInEnabled(),
	}
}

// declaresTool reports whether one of the raw tool definitions carries the
// given name, in either the flat or the nested function shape.
func declaresTool(tools []map[string]any, name string) bool {
	for _, t := range tools {
		if t["name"] == name {
			return true
		}
		if fn, ok := t["function"].(map[string]any); ok && fn["name"] == name {
			return true
		}
	}
	return false
}

func defaultKBTool() map[string]any {
	return map[string]any{
		"name":        kbToolName,
		"description": "Search the knowledge base for information relevant to the caller's question.",
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query in the caller's words.",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results to return.",
				},
			},
			"required": []any{"query"},
		},
	}
}

// buildSession constructs a real provider session from the config. This is
// the default SessionFactory.
func (s *Server) buildSession(sessionID string) (callSession, error) {
	sttClient, err := s.buildSTT()
	if err != nil {
		return nil, err
	}
	llmClient, err := s.buildLLM()
	if err != nil {
		return nil, err
	}
	ttsClient, err := s.buildTTS()
	if err != nil {
		return nil, err
	}

	cfg := session.Config{
		SessionID: sessionID,
		TenantID:  s.cfg.Agent.TenantID,
		AgentID:   s.cfg.Agent.AgentID,
		Rates: session.Rates{
			STTPerMinute:   s.cfg.Costs.STTPerMinute,
			LLMInputPer1K:  s.cfg.Costs.LLMInputPer1K,
			LLMOutputPer1K: s.cfg.Costs.LLMOutputPer1K,
			TTSPer1KChars:  s.cfg.Costs.TTSPer1KChars,
		},
	}
	return session.NewOrchestrator(cfg, sttClient, llmClient, ttsClient, s.store, s.metrics, s.log), nil
}

func (s *Server) buildSTT() (*sttc.Client, error) {
	transport, err := soniox.New(s.cfg.STT.APIKey, soniox.WithModel(s.cfg.STT.Model))
	if err != nil {
		return nil, fmt.Errorf("gateway: recognizer transport: %w", err)
	}
	return sttc.New(transport, sttc.Config{
		Stream: stt.Config{
			Model:                   s.cfg.STT.Model,
			SampleRate:              s.cfg.STT.SampleRate,
			Channels:                1,
			AudioFormat:             s.cfg.STT.AudioFormat,
			LanguageHints:           s.cfg.STT.LanguageHints,
			EnableEndpointDetection: s.cfg.STT.EndpointDetectionEnabled(),
			EnableInterim:           s.cfg.STT.InterimEnabled(),
		},
		Codec:   audio.ULaw8000,
		Metrics: s.metrics,
	}, s.log), nil
}

func (s *Server) buildLLM() (*llmc.Client, error) {
	primary, err := newBackend(s.cfg.LLM.Primary)
	if err != nil {
		return nil, fmt.Errorf("gateway: primary llm: %w", err)
	}

	// Even a single backend goes through the fallback group so every request
	// passes its circuit breaker and is counted.
	fb := resilience.NewLLMFallback(primary, "primary", resilience.FallbackConfig{
		Logger:  s.log,
		Metrics: s.metrics,
		Kind:    "llm",
	})
	if s.cfg.LLM.Secondary != nil {
		secondary, err := newBackend(*s.cfg.LLM.Secondary)
		if err != nil {
			return nil, fmt.Errorf("gateway: secondary llm: %w", err)
		}
		fb.AddFallback("secondary", secondary)
	}
	var provider llm.Provider = fb

	return llmc.NewClient(provider, llmc.Config{}, s.log), nil
}

func newBackend(cfg config.BackendConfig) (llm.Provider, error) {
	var opts []llmopenai.Option
	if cfg.BaseURL != "" {
		opts = append(opts, llmopenai.WithBaseURL(cfg.BaseURL))
	}
	return llmopenai.New(cfg.APIKey, cfg.Model, opts...)
}

func (s *Server) buildTTS() (*ttsc.Client, error) {
	opts := []elevenlabs.Option{
		elevenlabs.WithOutputFormat(elevenFormat(s.cfg.TTS.OutputFormat)),
	}
	if s.cfg.TTS.Model != "" {
		opts = append(opts, elevenlabs.WithModel(s.cfg.TTS.Model))
	}
	provider, err := elevenlabs.New(s.cfg.TTS.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("gateway: synthesis provider: %w", err)
	}

	// Validated at config load.
	output, err := audio.ParseFormat(s.cfg.TTS.OutputFormat)
	if err != nil {
		return nil, fmt.Errorf("gateway: synthesis output format: %w", err)
	}

	client := ttsc.NewClient(provider, ttsc.Config{
		Voice:           tts.Voice{ID: s.cfg.TTS.Voice},
		Output:          output,
		Target:          audio.ULaw8000,
		FadeInMs:        s.cfg.TTS.FadeInMs,
		DecimateEnabled: s.cfg.TTS.ResampleDownshift,
		Metrics:         s.metrics,
	}, s.log)
	return client, nil
}

// elevenFormat translates a config output-format string into the ElevenLabs
// format vocabulary: "ULAW_8000_8" becomes "ulaw_8000", "PCM_22050_16"
// becomes "pcm_22050", and MP3 formats keep their bitrate suffix.
func elevenFormat(format string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(format)), "_")
	if len(parts) < 2 {
		return strings.ToLower(format)
	}
	switch parts[0] {
	case "ulaw", "pcm":
		return parts[0] + "_" + parts[1]
	default:
		return strings.Join(parts, "_")
	}
}
