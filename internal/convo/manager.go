// Package convo implements the turn-taking state machine of a call. It owns
// no connections; it consumes transcript and playback notifications from the
// orchestrator and answers with high-level intents: greet, respond, interrupt,
// time out, end.
package convo

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultSilenceTimeout = 30 * time.Second

// State is the single active phase of the conversation.
type State int

const (
	StateIdle State = iota
	StateUserSpeaking
	StateThinking
	StateAgentSpeaking
	StateEnded
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUserSpeaking:
		return "user_speaking"
	case StateThinking:
		return "thinking"
	case StateAgentSpeaking:
		return "agent_speaking"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// Config configures a conversation manager.
type Config struct {
	// Greeting, when non-empty, is spoken as the opening agent turn.
	Greeting string

	// SilenceTimeout bounds caller inactivity during idle and user_speaking.
	// Defaults to 30s.
	SilenceTimeout time.Duration

	// BargeIn allows the caller to interrupt the agent mid-utterance.
	BargeIn bool
}

// Manager enforces turn-taking for one session. Input methods are called by
// the orchestrator's event loop; decisions come back on Events. The silence
// timer is the only concurrent input.
type Manager struct {
	cfg    Config
	log    *slog.Logger
	events chan Event

	mu       sync.Mutex
	state    State
	started  bool
	timer    *time.Timer
	timerGen int

	done chan struct{}
	once sync.Once
}

// NewManager creates a manager in the idle state. Call Start to begin.
func NewManager(cfg Config, log *slog.Logger) *Manager {
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = defaultSilenceTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		log:    log.With("component", "convo"),
		events: make(chan Event, 32),
		done:   make(chan struct{}),
	}
}

// Events returns the decision channel.
func (m *Manager) Events() <-chan Event { return m.events }

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start begins the conversation: speaks the greeting when one is configured,
// otherwise waits idle for the caller. Idempotent.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started || m.state == StateEnded {
		m.mu.Unlock()
		return
	}
	m.started = true

	var evs []Event
	if m.cfg.Greeting != "" {
		m.state = StateAgentSpeaking
		evs = append(evs, GreetingRequestedEvent{Text: m.cfg.Greeting})
	} else {
		m.state = StateIdle
		m.armSilenceLocked()
	}
	m.mu.Unlock()
	m.emit(evs...)
}

// OnUserInterim reports caller speech activity. Enters user_speaking from
// idle, triggers a barge-in during agent playback, and feeds the silence
// timer. Empty text is ignored.
func (m *Manager) OnUserInterim(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	m.mu.Lock()
	var evs []Event
	switch m.state {
	case StateIdle:
		m.state = StateUserSpeaking
		m.armSilenceLocked()
		evs = append(evs, SpeechStartedEvent{})
	case StateUserSpeaking:
		m.armSilenceLocked()
	case StateAgentSpeaking:
		if !m.cfg.BargeIn {
			break
		}
		m.state = StateUserSpeaking
		m.armSilenceLocked()
		m.log.Info("barge-in detected")
		evs = append(evs, AgentInterruptedEvent{}, SpeechStartedEvent{})
	}
	m.mu.Unlock()
	m.emit(evs...)
}

// OnUserSpeechEnded reports a completed caller utterance. Requests an LLM
// turn; an empty transcript just drops back to idle. An utterance whose
// endpoint arrives without any preceding interim (interim disabled, or the
// whole utterance committed in one final batch) lands here from idle and is
// accepted the same way.
func (m *Manager) OnUserSpeechEnded(transcript string) {
	transcript = strings.TrimSpace(transcript)

	m.mu.Lock()
	if m.state != StateUserSpeaking && m.state != StateIdle {
		m.mu.Unlock()
		return
	}
	var evs []Event
	if transcript == "" {
		if m.state == StateUserSpeaking {
			m.state = StateIdle
			m.armSilenceLocked()
		}
	} else {
		if m.state == StateIdle {
			evs = append(evs, SpeechStartedEvent{})
		}
		m.state = StateThinking
		m.stopSilenceLocked()
		evs = append(evs, ResponseRequestedEvent{Transcript: transcript})
	}
	m.mu.Unlock()
	m.emit(evs...)
}

// OnAgentAudioStarted reports the first synthesized chunk of the turn.
func (m *Manager) OnAgentAudioStarted() {
	m.mu.Lock()
	if m.state == StateThinking {
		m.state = StateAgentSpeaking
		m.stopSilenceLocked()
	}
	m.mu.Unlock()
}

// OnAgentAudioDone reports that agent playback finished. The floor returns
// to the caller.
func (m *Manager) OnAgentAudioDone() {
	m.mu.Lock()
	if m.state == StateAgentSpeaking {
		m.state = StateIdle
		m.armSilenceLocked()
	}
	m.mu.Unlock()
}

// OnTurnAborted reports that the agent turn in progress was dropped before
// completing, for example after an LLM failure or an empty generation. The
// floor returns to the caller.
func (m *Manager) OnTurnAborted() {
	m.mu.Lock()
	if m.state == StateThinking || m.state == StateAgentSpeaking {
		m.state = StateIdle
		m.armSilenceLocked()
	}
	m.mu.Unlock()
}

// End terminates the conversation with the given reason. Idempotent; all
// later inputs are ignored.
func (m *Manager) End(reason string) {
	m.mu.Lock()
	if m.state == StateEnded {
		m.mu.Unlock()
		return
	}
	m.state = StateEnded
	m.stopSilenceLocked()
	m.mu.Unlock()
	m.emit(ConversationEndedEvent{Reason: reason})
}

// Close stops the silence timer and suppresses further events. It does not
// close the events channel; the consumer owns its read loop lifecycle.
func (m *Manager) Close() {
	m.once.Do(func() {
		m.mu.Lock()
		m.stopSilenceLocked()
		m.mu.Unlock()
		close(m.done)
	})
}

// armSilenceLocked (re)starts the inactivity timer. Each arm invalidates any
// earlier timer through the generation counter.
func (m *Manager) armSilenceLocked() {
	m.timerGen++
	gen := m.timerGen
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.cfg.SilenceTimeout, func() {
		m.silenceExpired(gen)
	})
}

func (m *Manager) stopSilenceLocked() {
	m.timerGen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) silenceExpired(gen int) {
	m.mu.Lock()
	stale := gen != m.timerGen ||
		(m.state != StateIdle && m.state != StateUserSpeaking)
	m.mu.Unlock()
	if stale {
		return
	}
	m.log.Info("silence timeout", "after", m.cfg.SilenceTimeout)
	m.emit(SilenceTimeoutEvent{})
}

func (m *Manager) emit(evs ...Event) {
	for _, ev := range evs {
		select {
		case m.events <- ev:
		case <-m.done:
			return
		}
	}
}
