package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
	p, err := New("key",
		WithModel("eleven_turbo_v2"),
		WithOutputFormat("pcm_22050"),
		WithEndpoint("wss://localhost/tts"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "eleven_turbo_v2" {
		t.Errorf("model: got %q", p.model)
	}
	if p.OutputFormat() != "pcm_22050" {
		t.Errorf("output format: got %q", p.OutputFormat())
	}
}

func TestStreamURL(t *testing.T) {
	p, err := New("key", WithModel("eleven_flash_v2_5"), WithOutputFormat("ulaw_8000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	u := p.streamURL("voice123")
	if !strings.HasPrefix(u, "wss://api.elevenlabs.io/v1/text-to-speech/voice123/stream-input?") {
		t.Errorf("url prefix: got %q", u)
	}
	if !strings.Contains(u, "model_id=eleven_flash_v2_5") {
		t.Errorf("missing model_id: %q", u)
	}
	if !strings.Contains(u, "output_format=ulaw_8000") {
		t.Errorf("missing output_format: %q", u)
	}
}

func TestTextMessageShape(t *testing.T) {
	raw, err := json.Marshal(textMessage{
		Text:          " ",
		VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		XiAPIKey:      "key",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"text", "voice_settings", "xi_api_key"} {
		if _, ok := m[key]; !ok {
			t.Errorf("handshake missing key %q", key)
		}
	}

	// End-of-input marker carries only the empty text field.
	raw, _ = json.Marshal(textMessage{Text: ""})
	if string(raw) != `{"text":""}` {
		t.Errorf("end-of-input payload: got %s", raw)
	}
}

func TestVerifyVoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("xi-api-key"); got != "key" {
			t.Errorf("xi-api-key = %q", got)
		}
		w.Write([]byte(`{"voices":[{"voice_id":"v1","name":"Amira"}]}`))
	}))
	defer srv.Close()

	p, err := New("key", WithVoicesEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := p.VerifyVoice(context.Background(), "v1"); err != nil {
		t.Errorf("VerifyVoice(v1): %v", err)
	}
	if err := p.VerifyVoice(context.Background(), "v9"); !errors.Is(err, ErrVoiceNotFound) {
		t.Errorf("VerifyVoice(v9) = %v, want ErrVoiceNotFound", err)
	}
}

func TestVerifyVoiceCatalogUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := New("key", WithVoicesEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = p.VerifyVoice(context.Background(), "v1")
	if err == nil || errors.Is(err, ErrVoiceNotFound) {
		t.Errorf("VerifyVoice = %v, want catalog error distinct from ErrVoiceNotFound", err)
	}
}

func TestDecodeVoices(t *testing.T) {
	body := `{"voices":[
		{"voice_id":"v1","name":"Amira"},
		{"voice_id":"v2","name":"Daniel"}
	]}`
	voices, err := decodeVoices(strings.NewReader(body))
	if err != nil {
		t.Fatalf("decodeVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("voices: want 2, got %d", len(voices))
	}
	if voices[0].ID != "v1" || voices[0].Name != "Amira" {
		t.Errorf("voice 0: got %+v", voices[0])
	}
}
