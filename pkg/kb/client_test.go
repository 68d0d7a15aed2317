package kb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/search" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "kb-secret" {
			t.Errorf("X-API-Key = %q", got)
		}
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.KBID != "kb-42" || req.Query != "opening hours" || req.TopK != 2 || req.SearchType != "text" {
			t.Errorf("request body: %+v", req)
		}
		var out searchResponse
		out.Results.TotalFound = 1
		out.Results.Returned = 1
		out.Results.SearchType = "text"
		out.Results.TextResults = []Result{
			{ID: "r-1", Type: "faq", Content: "Open 9-5 weekdays.", Score: 0.92,
				Source: map[string]any{"document": "faq.md"}},
		}
		out.Metrics.ProcessingTimeMs = 12
		out.Cost = 0.0001
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "kb-42", WithAPIKey("kb-secret"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	results, err := c.Search(context.Background(), "opening hours", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Content != "Open 9-5 weekdays." {
		t.Errorf("results: %+v", results)
	}
	if results[0].ID != "r-1" || results[0].Score != 0.92 {
		t.Errorf("result fields: %+v", results[0])
	}
}

func TestSearchNon200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "kb-42")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Search(context.Background(), "anything", 0); err == nil {
		t.Fatal("want error on 503")
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient("", "kb-42"); err == nil {
		t.Fatal("want error for empty base URL")
	}
	if _, err := NewClient("http://kb.local", ""); err == nil {
		t.Fatal("want error for empty knowledge base ID")
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "kb-42")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
}

func TestHealthNon200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "kb-42")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.Health(context.Background()); err == nil {
		t.Fatal("want error on 503")
	}
}
