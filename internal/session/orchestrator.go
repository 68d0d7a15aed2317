// Package session binds one call together: the recognizer, completion, and
// synthesis clients, the turn-taking manager, cost accounting, and the
// outward event surface the telephony edge consumes. The orchestrator owns
// every component lifecycle; components never reference each other.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxbridge-ai/voxbridge/internal/convo"
	llmc "github.com/voxbridge-ai/voxbridge/internal/llm"
	"github.com/voxbridge-ai/voxbridge/internal/observe"
	sttc "github.com/voxbridge-ai/voxbridge/internal/stt"
	"github.com/voxbridge-ai/voxbridge/internal/transcriptlog"
	ttsc "github.com/voxbridge-ai/voxbridge/internal/tts"
	"github.com/voxbridge-ai/voxbridge/pkg/provider/llm"
)

const defaultDisconnectTimeout = 500 * time.Millisecond

// Config identifies the session and sets its rate card.
type Config struct {
	SessionID string
	TenantID  string
	AgentID   string

	// Rates prices the final cost snapshot.
	Rates Rates

	// DisconnectTimeout bounds how long Disconnect waits for the event loop
	// to drain before tearing components down. Defaults to 500ms.
	DisconnectTimeout time.Duration
}

// AgentConfig is the per-call agent configuration snapshot, immutable for
// the session.
type AgentConfig struct {
	SystemPrompt string
	Greeting     string
	Tools        []map[string]any
	Temperature  float64
	MaxTokens    int

	SilenceTimeout time.Duration
	BargeIn        bool
}

// Orchestrator composes the per-call pipeline and exposes the outward
// interface: audio in, audio plus control events out.
type Orchestrator struct {
	cfg     Config
	log     *slog.Logger
	stt     *sttc.Client
	llm     *llmc.Client
	tts     *ttsc.Client
	store   transcriptlog.Store
	metrics *observe.Metrics

	events chan Event
	cmds   chan toolResult

	mu         sync.Mutex
	conv       *convo.Manager
	connected  bool
	configured bool
	start      time.Time

	runCtx    context.Context
	runCancel context.CancelFunc

	done           chan struct{}
	closeOnce      sync.Once
	disconnectOnce sync.Once
	wg             sync.WaitGroup
}

type toolResult struct {
	callID string
	result string
}

// NewOrchestrator wires a session from its already-constructed components.
// store may be nil to disable transcript logging; metrics may be nil to use
// the process-wide instruments.
func NewOrchestrator(cfg Config, stt *sttc.Client, llmClient *llmc.Client, tts *ttsc.Client, store transcriptlog.Store, metrics *observe.Metrics, log *slog.Logger) *Orchestrator {
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = defaultDisconnectTimeout
	}
	if store == nil {
		store = transcriptlog.Noop{}
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		log:     log.With("component", "session", "session_id", cfg.SessionID),
		stt:     stt,
		llm:     llmClient,
		tts:     tts,
		store:   store,
		metrics: metrics,
		events:  make(chan Event, 256),
		cmds:    make(chan toolResult, 16),
		done:    make(chan struct{}),
	}
}

// Events returns the outward event channel. It is closed by Disconnect;
// after Disconnect returns, no further events are delivered.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// Connect brings up every component. It fails atomically: if any component
// fails, the ones already up are torn down and the error is returned.
func (o *Orchestrator) Connect(ctx context.Context) error {
	o.mu.Lock()
	if o.connected {
		o.mu.Unlock()
		return fmt.Errorf("session: already connected")
	}
	o.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.stt.Connect(gctx) })
	g.Go(func() error { return o.tts.Initialize() })
	if err := g.Wait(); err != nil {
		o.stt.Close()
		o.tts.Close()
		return fmt.Errorf("session: connect: %w", err)
	}

	o.mu.Lock()
	o.connected = true
	o.start = time.Now()
	o.runCtx, o.runCancel = context.WithCancel(context.Background())
	o.mu.Unlock()

	o.metrics.ActiveSessions.Add(ctx, 1)
	o.log.Info("session connected", "tenant_id", o.cfg.TenantID, "agent_id", o.cfg.AgentID)
	return nil
}

// ConfigureSession installs the agent configuration, starts the turn-taking
// loop, and emits AgentReadyEvent. Must follow Connect.
func (o *Orchestrator) ConfigureSession(ac AgentConfig) error {
	o.mu.Lock()
	if !o.connected {
		o.mu.Unlock()
		return fmt.Errorf("session: not connected")
	}
	if o.configured {
		o.mu.Unlock()
		return fmt.Errorf("session: already configured")
	}
	o.mu.Unlock()

	if err := o.llm.Configure(ac.SystemPrompt, ac.Tools, ac.Temperature, ac.MaxTokens); err != nil {
		return fmt.Errorf("session: configure: %w", err)
	}

	conv := convo.NewManager(convo.Config{
		Greeting:       ac.Greeting,
		SilenceTimeout: ac.SilenceTimeout,
		BargeIn:        ac.BargeIn,
	}, o.log)

	o.mu.Lock()
	o.conv = conv
	o.configured = true
	o.mu.Unlock()

	o.wg.Add(1)
	go o.run()

	// agent.ready is queued ahead of whatever the manager decides first, so
	// the edge always sees it before the greeting transcript.
	o.emit(AgentReadyEvent{})
	conv.Start()
	return nil
}

// SendAudio forwards one telephony frame to the recognizer. Returns false
// when the recognizer cannot accept audio right now.
func (o *Orchestrator) SendAudio(frame []byte) bool {
	o.mu.Lock()
	connected := o.connected
	o.mu.Unlock()
	if !connected {
		return false
	}
	return o.stt.SendAudio(frame)
}

// SendToolResult resolves an outstanding FunctionCallEvent and triggers the
// follow-up generation.
func (o *Orchestrator) SendToolResult(callID, result string) error {
	select {
	case o.cmds <- toolResult{callID: callID, result: result}:
		return nil
	case <-o.done:
		return fmt.Errorf("session: closed")
	}
}

// Cost returns a point-in-time usage and cost snapshot.
func (o *Orchestrator) Cost() CostBreakdown {
	o.mu.Lock()
	start := o.start
	o.mu.Unlock()

	var minutes float64
	if !start.IsZero() {
		minutes = time.Since(start).Minutes()
	}
	return o.cfg.Rates.breakdown(o.stt.AudioSeconds(), o.llm.Usage(), o.tts.Characters(), minutes)
}

// Disconnect ends the conversation, drains the event loop, and tears down
// components in reverse dependency order. Idempotent. After it returns, no
// further outward events are emitted.
func (o *Orchestrator) Disconnect() {
	o.disconnectOnce.Do(o.disconnect)
}

func (o *Orchestrator) disconnect() {
	o.mu.Lock()
	conv := o.conv
	connected := o.connected
	o.connected = false
	o.mu.Unlock()

	if conv != nil {
		// The loop forwards the terminal event outward and exits.
		conv.End("session closed")

		drained := make(chan struct{})
		go func() {
			o.wg.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(o.cfg.DisconnectTimeout):
			o.log.Warn("event loop did not drain in time", "timeout", o.cfg.DisconnectTimeout)
		}
	}

	o.closeOnce.Do(func() { close(o.done) })
	if conv != nil {
		conv.Close()
	}
	o.tts.Close()
	o.llm.Cancel()
	// The caller may have been mid-utterance at hangup; the partial still
	// belongs in the transcript log.
	if connected {
		if leftover := o.stt.TakeTranscript(); leftover != "" {
			o.logTranscript(transcriptlog.RoleUser, leftover, "")
		}
	}
	o.stt.Close()
	o.mu.Lock()
	if o.runCancel != nil {
		o.runCancel()
	}
	o.mu.Unlock()
	o.wg.Wait()

	if connected {
		cost := o.Cost()
		ctx := context.Background()
		o.metrics.ActiveSessions.Add(ctx, -1)
		o.metrics.CostSTTSeconds.Add(ctx, cost.STTSeconds)
		o.metrics.CostLLMTokens.Add(ctx, cost.LLMInputTokens, observe.DirInput)
		o.metrics.CostLLMTokens.Add(ctx, cost.LLMOutputTokens, observe.DirOutput)
		o.metrics.CostTTSCharacters.Add(ctx, cost.TTSCharacters)
		o.log.Info("session disconnected", "total_cost", cost.TotalCost,
			"stt_seconds", cost.STTSeconds, "tts_characters", cost.TTSCharacters)
	}
	close(o.events)
}

// loopState is the per-turn state owned by the run goroutine.
type loopState struct {
	genCh     <-chan llmc.StreamEvent
	genStart  time.Time
	curSynth  uint64
	pending   *llm.ToolCall
	turnStart time.Time
}

// run is the single event loop of the session: it consumes component events,
// feeds the turn-taking manager, and emits outward events in order.
func (o *Orchestrator) run() {
	defer o.wg.Done()

	ls := &loopState{}
	sttCh := o.stt.Events()
	ttsCh := o.tts.Events()
	convoCh := o.conv.Events()

	for {
		select {
		case <-o.done:
			return
		case ev, ok := <-sttCh:
			if !ok {
				sttCh = nil
				continue
			}
			o.handleSTT(ls, ev)
		case ev, ok := <-ttsCh:
			if !ok {
				ttsCh = nil
				continue
			}
			o.handleTTS(ls, ev)
		case ev := <-convoCh:
			if terminal := o.handleConvo(ls, ev); terminal {
				return
			}
		case sev, ok := <-ls.genCh:
			if !ok {
				ls.genCh = nil
				continue
			}
			o.handleGeneration(ls, sev)
		case cmd := <-o.cmds:
			o.handleToolResult(ls, cmd)
		}
	}
}

func (o *Orchestrator) handleSTT(ls *loopState, ev sttc.Event) {
	switch e := ev.(type) {
	case sttc.ReadyEvent:
		o.log.Debug("recognizer ready")
	case sttc.InterimEvent:
		o.conv.OnUserInterim(e.Text)
	case sttc.SpeechEndedEvent:
		ls.turnStart = time.Now()
		o.conv.OnUserSpeechEnded(e.Text)
	case sttc.FinalEvent:
		// Committed text; the full utterance arrives with SpeechEnded.
	case sttc.DisconnectedEvent:
		o.log.Warn("recognizer disconnected", "code", e.Code, "reason", e.Reason)
	case sttc.ReconnectedEvent:
		o.metrics.RecordSTTReconnect(o.runCtx, "ok")
		o.log.Info("recognizer reconnected", "attempt", e.Attempt)
	case sttc.ReconnectFailedEvent:
		o.metrics.RecordSTTReconnect(o.runCtx, "failed")
		o.emit(ErrorEvent{Err: e.Err})
		o.conv.End("recognizer unavailable")
	case sttc.ErrorEvent:
		o.emit(ErrorEvent{Err: e.Err})
		o.conv.End("recognizer failed")
	case sttc.FinishedEvent:
		o.log.Info("recognizer stream finished")
	}
}

func (o *Orchestrator) handleConvo(ls *loopState, ev convo.Event) (terminal bool) {
	switch e := ev.(type) {
	case convo.GreetingRequestedEvent:
		o.llm.AddAssistantMessage(e.Text)
		o.agentSay(ls, e.Text)
	case convo.SpeechStartedEvent:
		o.emit(SpeechStartedEvent{})
	case convo.ResponseRequestedEvent:
		o.emit(UserTranscriptEvent{Text: e.Transcript})
		o.logTranscript(transcriptlog.RoleUser, e.Transcript, "")
		o.startGeneration(ls, e.Transcript)
	case convo.AgentInterruptedEvent:
		o.metrics.BargeIns.Add(o.runCtx, 1)
		o.tts.Cancel()
		ls.curSynth = 0
		if err := o.stt.Finalize(); err != nil {
			o.log.Warn("finalize after barge-in", "error", err)
		}
	case convo.SilenceTimeoutEvent:
		o.emit(SilenceTimeoutEvent{})
	case convo.ConversationEndedEvent:
		o.emit(ConversationEndedEvent{Reason: e.Reason, Cost: o.Cost()})
		return true
	}
	return false
}

func (o *Orchestrator) handleTTS(ls *loopState, ev ttsc.Event) {
	switch e := ev.(type) {
	case ttsc.StartedEvent:
		if e.ID == ls.curSynth {
			o.conv.OnAgentAudioStarted()
		}
	case ttsc.DeltaEvent:
		if e.ID != ls.curSynth {
			return // stale synthesis, discard
		}
		if !ls.turnStart.IsZero() {
			o.metrics.TurnDuration.Record(o.runCtx, time.Since(ls.turnStart).Seconds())
			ls.turnStart = time.Time{}
		}
		o.emit(AudioDeltaEvent{Data: e.Data})
	case ttsc.DoneEvent:
		if e.ID != ls.curSynth {
			return
		}
		ls.curSynth = 0
		if e.Err != nil {
			o.log.Warn("synthesis truncated", "error", e.Err, "bytes", e.Bytes)
		}
		o.emit(AudioDoneEvent{})
		o.conv.OnAgentAudioDone()
	case ttsc.CancelledEvent:
		// Already handled at the barge-in that caused it.
	}
}

func (o *Orchestrator) handleGeneration(ls *loopState, sev llmc.StreamEvent) {
	switch {
	case sev.Err != nil:
		ls.genCh = nil
		o.emit(ErrorEvent{Err: sev.Err})
		o.conv.OnTurnAborted()
	case sev.End != nil:
		ls.genCh = nil
		o.metrics.LLMTurnDuration.Record(o.runCtx, time.Since(ls.genStart).Seconds())
		if tc := sev.End.ToolCall; tc != nil {
			ls.pending = tc
			o.metrics.RecordToolCall(o.runCtx, tc.Name, "requested")
			o.emit(FunctionCallEvent{CallID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
			return // stay thinking until the edge resolves the call
		}
		if strings.TrimSpace(sev.End.Content) == "" {
			o.conv.OnTurnAborted()
			return
		}
		o.agentSay(ls, sev.End.Content)
	default:
		// Token deltas are buffered inside the client's terminal Result;
		// playback starts only when the turn text is complete.
	}
}

func (o *Orchestrator) handleToolResult(ls *loopState, cmd toolResult) {
	if ls.pending == nil || ls.pending.ID != cmd.callID {
		o.log.Warn("tool result for unknown call", "call_id", cmd.callID)
		return
	}
	name := ls.pending.Name
	ls.pending = nil

	o.llm.AddToolResult(cmd.callID, name, cmd.result)
	o.logTranscript(transcriptlog.RoleTool, cmd.result, name)
	o.metrics.RecordToolCall(o.runCtx, name, "resolved")
	o.startGeneration(ls, "")
}

// startGeneration begins a streaming LLM turn. An empty userMessage asks for
// a follow-up over the existing history (tool-result continuation).
func (o *Orchestrator) startGeneration(ls *loopState, userMessage string) {
	ch, err := o.llm.GenerateStreaming(o.runCtx, userMessage)
	if err != nil {
		o.emit(ErrorEvent{Err: err})
		o.conv.OnTurnAborted()
		return
	}
	ls.genCh = ch
	ls.genStart = time.Now()
}

// agentSay publishes the agent's text and starts its synthesis.
func (o *Orchestrator) agentSay(ls *loopState, text string) {
	o.emit(AgentTranscriptEvent{Text: text})
	o.logTranscript(transcriptlog.RoleAssistant, text, "")

	id, err := o.tts.SynthesizeStreaming(o.runCtx, text)
	if err != nil {
		o.log.Error("synthesis start failed", "error", err)
		o.emit(ErrorEvent{Err: err})
		o.conv.OnTurnAborted()
		return
	}
	ls.curSynth = id
}

func (o *Orchestrator) logTranscript(role transcriptlog.Role, text, toolName string) {
	err := o.store.Append(o.runCtx, transcriptlog.Entry{
		SessionID: o.cfg.SessionID,
		TenantID:  o.cfg.TenantID,
		AgentID:   o.cfg.AgentID,
		Role:      role,
		Text:      text,
		ToolName:  toolName,
		At:        time.Now(),
	})
	if err != nil {
		o.log.Warn("transcript append failed", "error", err)
	}
}

func (o *Orchestrator) emit(ev Event) {
	select {
	case o.events <- ev:
	case <-o.done:
	}
}
