package soniox

import (
	"encoding/json"
	"testing"

	"github.com/voxbridge-ai/voxbridge/pkg/provider/stt"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("New with empty key: want error, got nil")
	}
	tr, err := New("key", WithModel("stt-rt-v3"), WithEndpoint("wss://localhost/ws"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr.model != "stt-rt-v3" {
		t.Errorf("model: want stt-rt-v3, got %q", tr.model)
	}
	if tr.endpoint != "wss://localhost/ws" {
		t.Errorf("endpoint: want wss://localhost/ws, got %q", tr.endpoint)
	}
}

func TestStartFrameShape(t *testing.T) {
	t.Parallel()

	frame := startFrame{
		APIKey:                  "k",
		Model:                   "stt-rt-preview",
		AudioFormat:             "mulaw",
		SampleRate:              8000,
		NumChannels:             1,
		LanguageHints:           []string{"en", "ur"},
		EnableEndpointDetection: true,
		EnableNonFinalTokens:    true,
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{
		"api_key", "model", "audio_format", "sample_rate", "num_channels",
		"language_hints", "enable_endpoint_detection", "enable_non_final_tokens",
	} {
		if _, ok := m[key]; !ok {
			t.Errorf("start frame missing key %q", key)
		}
	}
	if m["sample_rate"].(float64) != 8000 {
		t.Errorf("sample_rate: want 8000, got %v", m["sample_rate"])
	}
}

func TestToBatch(t *testing.T) {
	t.Parallel()

	raw := `{"tokens":[
		{"text":"hello","is_final":true,"language":"en"},
		{"text":" wor","is_final":false},
		{"text":"<end>","is_final":true}
	]}`
	var resp response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	batch := toBatch(resp)
	if len(batch) != 3 {
		t.Fatalf("batch length: want 3, got %d", len(batch))
	}
	if batch[0] != (stt.Token{Text: "hello", Final: true, Language: "en"}) {
		t.Errorf("token 0: got %+v", batch[0])
	}
	if batch[1].Final {
		t.Error("token 1 must be non-final")
	}
	if batch[2].Text != stt.EndpointMarker {
		t.Errorf("token 2: want endpoint marker, got %q", batch[2].Text)
	}
}

func TestErrorResponseIsFatalFor4xx(t *testing.T) {
	t.Parallel()

	var resp response
	raw := `{"error_code":401,"error_message":"invalid api key"}`
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ErrorCode != 401 {
		t.Fatalf("error code: want 401, got %d", resp.ErrorCode)
	}
	fatal := resp.ErrorCode >= 400 && resp.ErrorCode < 500
	if !fatal {
		t.Error("401 must classify as fatal")
	}
}
