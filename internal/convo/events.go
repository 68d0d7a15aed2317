package convo

// Event is a turn-taking decision emitted by the Manager. The orchestrator
// consumes these and drives the STT, LLM, and TTS clients accordingly.
type Event interface {
	convoEvent()
}

// GreetingRequestedEvent asks the orchestrator to synthesize the configured
// greeting as the opening agent turn. The greeting joins the history as an
// assistant message, never as a user turn.
type GreetingRequestedEvent struct {
	Text string
}

// SpeechStartedEvent signals the caller began (or resumed) talking.
type SpeechStartedEvent struct{}

// ResponseRequestedEvent asks for an LLM turn on the completed utterance.
type ResponseRequestedEvent struct {
	Transcript string
}

// AgentInterruptedEvent signals a barge-in: the caller spoke while the agent
// was playing audio. The in-flight synthesis must be cancelled and its
// remaining audio discarded; the partial assistant text stays out of history.
type AgentInterruptedEvent struct{}

// SilenceTimeoutEvent signals that no caller activity arrived within the
// configured window. The orchestrator decides whether to prompt or hang up.
type SilenceTimeoutEvent struct{}

// ConversationEndedEvent is terminal.
type ConversationEndedEvent struct {
	Reason string
}

func (GreetingRequestedEvent) convoEvent() {}
func (SpeechStartedEvent) convoEvent()     {}
func (ResponseRequestedEvent) convoEvent() {}
func (AgentInterruptedEvent) convoEvent()  {}
func (SilenceTimeoutEvent) convoEvent()    {}
func (ConversationEndedEvent) convoEvent() {}
