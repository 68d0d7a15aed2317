package stt

import "github.com/voxbridge-ai/voxbridge/pkg/provider/stt"

// Event is a recognizer lifecycle or transcript notification. Exactly one
// concrete event type is delivered per channel message; consumers switch on
// the concrete type.
type Event interface {
	sttEvent()
}

// ReadyEvent signals that the initial connection is established and audio may
// flow.
type ReadyEvent struct{}

// InterimEvent carries the current best transcript for the in-progress
// utterance: committed text plus the live interim tail. Each InterimEvent
// supersedes the previous one.
type InterimEvent struct {
	Text string
}

// FinalEvent signals that new final tokens were committed. Text is the full
// committed transcript of the current utterance so far.
type FinalEvent struct {
	Text string
}

// SpeechEndedEvent signals that the recognizer detected the end of an
// utterance. Text is the complete utterance transcript; the accumulator has
// been reset for the next utterance.
type SpeechEndedEvent struct {
	Text string
}

// FinishedEvent signals a clean end of the recognizer stream. No further
// events follow.
type FinishedEvent struct{}

// DisconnectedEvent signals an abnormal connection drop. A reconnect cycle
// begins immediately after.
type DisconnectedEvent struct {
	Code   stt.CloseCode
	Reason string
}

// ReconnectedEvent signals a successful reconnect on the given attempt
// (1-based).
type ReconnectedEvent struct {
	Attempt int
}

// ReconnectFailedEvent signals that all reconnect attempts were exhausted.
// The client is failed; no further events follow.
type ReconnectFailedEvent struct {
	Err error
}

// ErrorEvent signals an unrecoverable recognizer error, such as an
// authentication failure. The client is failed; no further events follow.
type ErrorEvent struct {
	Err error
}

func (ReadyEvent) sttEvent()           {}
func (InterimEvent) sttEvent()         {}
func (FinalEvent) sttEvent()           {}
func (SpeechEndedEvent) sttEvent()     {}
func (FinishedEvent) sttEvent()        {}
func (DisconnectedEvent) sttEvent()    {}
func (ReconnectedEvent) sttEvent()     {}
func (ReconnectFailedEvent) sttEvent() {}
func (ErrorEvent) sttEvent()           {}
