package tts

// Event is a synthesis lifecycle notification. Every event carries the
// request ID it belongs to; consumers must discard events whose ID does not
// match the synthesis they are playing.
type Event interface {
	ttsEvent()
}

// StartedEvent signals that a synthesis request was accepted by the backend.
type StartedEvent struct {
	ID uint64
}

// DeltaEvent carries one ordered chunk of output audio, already bridged to
// the configured output pipeline (decoded, decimated, faded).
type DeltaEvent struct {
	ID   uint64
	Data []byte
}

// DoneEvent is the terminal event of a completed synthesis. Err is non-nil
// when the stream failed mid-flight; any audio already delivered remains
// valid.
type DoneEvent struct {
	ID    uint64
	Bytes int
	Err   error
}

// CancelledEvent is the terminal event of a cancelled synthesis. A request
// ends with exactly one DoneEvent or exactly one CancelledEvent, never both.
type CancelledEvent struct {
	ID uint64
}

func (StartedEvent) ttsEvent()   {}
func (DeltaEvent) ttsEvent()     {}
func (DoneEvent) ttsEvent()      {}
func (CancelledEvent) ttsEvent() {}
