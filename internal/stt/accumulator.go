package stt

import (
	"strings"

	"github.com/voxbridge-ai/voxbridge/pkg/provider/stt"
)

// accumulator assembles utterance transcripts from recognizer token batches.
//
// Final tokens are append-only within an utterance and land in finalSoFar.
// Non-final tokens are a rolling hypothesis: every batch replaces the whole
// interim tail, so the tail is rebuilt from scratch per batch. Marker tokens
// never enter the transcript.
//
// The accumulator survives reconnects untouched; a new connection continues
// the same utterance.
type accumulator struct {
	finalSoFar  strings.Builder
	interimTail string
}

// update describes the transcript change produced by one token batch.
type update struct {
	// interimChanged reports that the combined transcript changed without new
	// final commits. current holds the new combined text.
	interimChanged bool

	// finalChanged reports that new final tokens were committed. committed
	// holds the full committed text of the utterance so far.
	finalChanged bool

	// endpoint reports that the recognizer marked the utterance complete.
	// utterance holds the full trimmed transcript, and the accumulator has
	// been reset.
	endpoint  bool
	utterance string

	current   string
	committed string
}

// ingest applies one token batch and reports what changed.
func (a *accumulator) ingest(batch stt.TokenBatch) update {
	prevCurrent := a.current()
	prevFinal := a.finalSoFar.Len()

	var tail strings.Builder
	endpoint := false
	for _, tok := range batch {
		switch tok.Text {
		case stt.FinalizeMarker:
			// Acknowledgement only, carries no transcript text.
		case stt.EndpointMarker:
			endpoint = true
		default:
			if tok.Final {
				a.finalSoFar.WriteString(tok.Text)
			} else {
				tail.WriteString(tok.Text)
			}
		}
	}
	a.interimTail = tail.String()

	var u update
	if endpoint {
		if a.finalSoFar.Len() != prevFinal {
			u.finalChanged = true
			u.committed = strings.TrimSpace(a.finalSoFar.String())
		}
		u.endpoint = true
		u.utterance = strings.TrimSpace(a.finalSoFar.String())
		// An endpoint with nothing committed keeps the buffers; the next
		// batch continues the utterance.
		if u.utterance != "" {
			a.reset()
		}
		return u
	}
	if a.finalSoFar.Len() != prevFinal {
		u.finalChanged = true
		u.committed = strings.TrimSpace(a.finalSoFar.String())
	}
	if cur := a.current(); cur != prevCurrent {
		u.interimChanged = true
		u.current = strings.TrimSpace(cur)
	}
	return u
}

// current returns committed text plus the live interim tail.
func (a *accumulator) current() string {
	return a.finalSoFar.String() + a.interimTail
}

// pending reports whether any transcript text is buffered.
func (a *accumulator) pending() bool {
	return a.finalSoFar.Len() > 0 || a.interimTail != ""
}

// take returns the trimmed buffered transcript and resets the accumulator.
func (a *accumulator) take() string {
	text := strings.TrimSpace(a.current())
	a.reset()
	return text
}

func (a *accumulator) reset() {
	a.finalSoFar.Reset()
	a.interimTail = ""
}
