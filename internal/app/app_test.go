package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxbridge-ai/voxbridge/internal/config"
	"github.com/voxbridge-ai/voxbridge/internal/transcriptlog"
)

const testYAML = `
server:
  listen_addr: "127.0.0.1:0"
agent:
  tenant_id: acme
  agent_id: support-1
llm:
  primary:
    api_key: sk-test
    model: gpt-4o-mini
tts:
  api_key: sk-test
  voice: voice1
`

func testApp(t *testing.T) *App {
	t.Helper()

	cfg, err := config.LoadFromReader(strings.NewReader(testYAML))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, log, WithTranscriptStore(transcriptlog.Noop{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestHandlerServesProbesAndMetrics(t *testing.T) {
	t.Parallel()

	a := testApp(t)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: status %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestReadyzProbesKnowledgeBase(t *testing.T) {
	t.Parallel()

	var healthHits int32
	kbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			atomic.AddInt32(&healthHits, 1)
			w.Write([]byte(`{"status":"healthy"}`))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(kbSrv.Close)

	cfg, err := config.LoadFromReader(strings.NewReader(testYAML))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.KnowledgeBase.BaseURL = kbSrv.URL
	cfg.KnowledgeBase.KBID = "kb-support"

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, log, WithTranscriptStore(transcriptlog.Noop{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "knowledge_base") {
		t.Errorf("readiness body missing knowledge_base check: %s", body)
	}
	if atomic.LoadInt32(&healthHits) == 0 {
		t.Error("knowledge base health endpoint was never probed")
	}
}

func TestCallEndpointRequiresUpgrade(t *testing.T) {
	t.Parallel()

	a := testApp(t)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/v1/call")
	if err != nil {
		t.Fatalf("GET /v1/call: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Error("plain GET on the call endpoint must not succeed")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	a := testApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	// Give the listener a moment to come up, then stop.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestRunFailsOnBadListenAddr(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(testYAML))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Server.ListenAddr = "256.0.0.1:bad"

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, log, WithTranscriptStore(transcriptlog.Noop{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Run(ctx); err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want listen error", err)
	}
}
