package embedding

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicEmbedder_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := embeddingsResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{float32(i), 0.5}, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	e := NewAnthropic("test-key", "claude-embed-v1", 2)
	e.baseURL = server.URL

	embeddings, err := e.EmbedBatch(t.Context(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(embeddings) != 2 {
		t.Fatalf("len(embeddings) = %d, want 2", len(embeddings))
	}
	if embeddings[0].Vector[0] != 0 || embeddings[1].Vector[0] != 1 {
		t.Errorf("embeddings out of order: %+v", embeddings)
	}
	if embeddings[0].Model != "anthropic/claude-embed-v1" {
		t.Errorf("model = %q", embeddings[0].Model)
	}
}

func TestAnthropicEmbedder_EmbedBatch_Empty(t *testing.T) {
	e := NewAnthropic("test-key", "", 0)
	out, err := e.EmbedBatch(t.Context(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil result for empty input, got %v", out)
	}
}

func TestAnthropicEmbedder_NonRetryableErrorStopsImmediately(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "bad request"}`))
	}))
	defer server.Close()

	e := NewAnthropic("test-key", "claude-embed-v1", 2)
	e.baseURL = server.URL

	_, err := e.EmbedBatch(t.Context(), []string{"hello"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected exactly one call for a non-retryable error, got %d", calls)
	}
}

func TestAnthropicEmbedder_Dimensions(t *testing.T) {
	e := NewAnthropic("key", "model", 512)
	if e.Dimensions() != 512 {
		t.Errorf("Dimensions() = %d, want 512", e.Dimensions())
	}
	if e.Model() != "anthropic/model" {
		t.Errorf("Model() = %q", e.Model())
	}
}
