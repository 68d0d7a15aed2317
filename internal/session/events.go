package session

// Event is an outward notification to the telephony edge. The wire names in
// the comments are what the gateway serializes them as.
type Event interface {
	sessionEvent()
}

// AudioDeltaEvent carries synthesized audio for playback. (audio.delta)
type AudioDeltaEvent struct {
	Data []byte
}

// AudioDoneEvent marks the end of the current agent utterance. (audio.done)
type AudioDoneEvent struct{}

// UserTranscriptEvent is the final transcript of a caller utterance.
// (transcript.user)
type UserTranscriptEvent struct {
	Text string
}

// AgentTranscriptEvent is the text of an agent utterance, emitted before its
// audio. (transcript.agent)
type AgentTranscriptEvent struct {
	Text string
}

// FunctionCallEvent asks the edge to resolve a tool invocation and answer
// via SendToolResult. Arguments is a JSON string. (function.call)
type FunctionCallEvent struct {
	CallID    string
	Name      string
	Arguments string
}

// AgentReadyEvent signals that configuration is installed and the call loop
// is live. (agent.ready)
type AgentReadyEvent struct{}

// SpeechStartedEvent signals caller speech onset, including barge-ins.
// (speech.started)
type SpeechStartedEvent struct{}

// SilenceTimeoutEvent signals caller inactivity past the configured window.
// The edge decides whether to prompt or hang up. (silence.timeout)
type SilenceTimeoutEvent struct{}

// ConversationEndedEvent is terminal and carries the final cost snapshot.
// (conversation.ended)
type ConversationEndedEvent struct {
	Reason string
	Cost   CostBreakdown
}

// ErrorEvent reports an unrecoverable component failure. (error)
type ErrorEvent struct {
	Err error
}

func (AudioDeltaEvent) sessionEvent()        {}
func (AudioDoneEvent) sessionEvent()         {}
func (UserTranscriptEvent) sessionEvent()    {}
func (AgentTranscriptEvent) sessionEvent()   {}
func (FunctionCallEvent) sessionEvent()      {}
func (AgentReadyEvent) sessionEvent()        {}
func (SpeechStartedEvent) sessionEvent()     {}
func (SilenceTimeoutEvent) sessionEvent()    {}
func (ConversationEndedEvent) sessionEvent() {}
func (ErrorEvent) sessionEvent()             {}
