package gateway

import "github.com/voxbridge-ai/voxbridge/internal/session"

// inboundMessage is one JSON frame from the telephony edge.
//
//	{"event":"media", "payload":"<base64 µ-law>"}
//	{"event":"tool.result", "call_id":"...", "result":"..."}
//	{"event":"stop"}
type inboundMessage struct {
	Event   string `json:"event"`
	Payload string `json:"payload,omitempty"`
	CallID  string `json:"call_id,omitempty"`
	Result  string `json:"result,omitempty"`
}

// outboundMessage is one JSON frame to the telephony edge. Every frame
// carries the session identity; the remaining fields depend on the event.
type outboundMessage struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id"`
	TenantID  string `json:"tenant_id,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`

	// Payload is base64-encoded µ-law audio on "media" frames.
	Payload string `json:"payload,omitempty"`

	// Text carries transcript content on "transcript.user" and
	// "transcript.agent" frames.
	Text string `json:"text,omitempty"`

	// CallID, Name, and Arguments describe a "function.call" frame. The edge
	// answers with a "tool.result" frame carrying the same call_id.
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// Reason and Cost accompany the terminal "conversation.ended" frame.
	Reason string                 `json:"reason,omitempty"`
	Cost   *session.CostBreakdown `json:"cost,omitempty"`

	// Message carries the description on "error" frames.
	Message string `json:"message,omitempty"`
}

// Outbound event names.
const (
	eventMedia             = "media"
	eventAudioDone         = "audio.done"
	eventTranscriptUser    = "transcript.user"
	eventTranscriptAgent   = "transcript.agent"
	eventFunctionCall      = "function.call"
	eventAgentReady        = "agent.ready"
	eventSpeechStarted     = "speech.started"
	eventSilenceTimeout    = "silence.timeout"
	eventConversationEnded = "conversation.ended"
	eventError             = "error"
)
