package session

import "github.com/voxbridge-ai/voxbridge/pkg/provider/llm"

// Rates is the billing rate card for one session, taken from configuration.
// Zero rates are valid and price that component at nothing.
type Rates struct {
	// STTPerMinute is the recognizer price per audio minute.
	STTPerMinute float64

	// LLMInputPer1K and LLMOutputPer1K are the completion prices per
	// thousand tokens.
	LLMInputPer1K  float64
	LLMOutputPer1K float64

	// TTSPer1KChars is the synthesis price per thousand characters.
	TTSPer1KChars float64
}

// CostBreakdown is a point-in-time snapshot of session usage and its priced
// total. Every counter is monotonically non-decreasing across snapshots of
// the same session.
type CostBreakdown struct {
	STTSeconds       float64 `json:"stt_seconds"`
	LLMInputTokens   int64   `json:"llm_input_tokens"`
	LLMOutputTokens  int64   `json:"llm_output_tokens"`
	TTSCharacters    int64   `json:"tts_characters"`
	WallClockMinutes float64 `json:"wall_clock_minutes"`

	STTCost   float64 `json:"stt_cost"`
	LLMCost   float64 `json:"llm_cost"`
	TTSCost   float64 `json:"tts_cost"`
	TotalCost float64 `json:"total_cost"`
}

// breakdown prices the given usage counters.
func (r Rates) breakdown(sttSeconds float64, usage llm.Usage, ttsChars int64, minutes float64) CostBreakdown {
	b := CostBreakdown{
		STTSeconds:       sttSeconds,
		LLMInputTokens:   int64(usage.PromptTokens),
		LLMOutputTokens:  int64(usage.CompletionTokens),
		TTSCharacters:    ttsChars,
		WallClockMinutes: minutes,
	}
	b.STTCost = sttSeconds / 60 * r.STTPerMinute
	b.LLMCost = float64(usage.PromptTokens)/1000*r.LLMInputPer1K +
		float64(usage.CompletionTokens)/1000*r.LLMOutputPer1K
	b.TTSCost = float64(ttsChars) / 1000 * r.TTSPer1KChars
	b.TotalCost = b.STTCost + b.LLMCost + b.TTSCost
	return b
}
