package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const defaultAnthropicEmbedBaseURL = "https://api.anthropic.com/v1"

// AnthropicEmbedder generates embeddings over HTTP, retrying rate-limited
// or connection-dropped batches with exponential backoff, matching the
// Embed stage's own batch retry policy (three attempts, 2s-30s backoff).
type AnthropicEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	httpClient *http.Client
}

// NewAnthropic creates a new Anthropic embedder.
func NewAnthropic(apiKey, model string, dimensions int) *AnthropicEmbedder {
	if model == "" {
		model = "claude-embed-v1"
	}
	if dimensions <= 0 {
		dimensions = 768
	}

	return &AnthropicEmbedder{
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		baseURL:    defaultAnthropicEmbedBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed generates an embedding for a single text input.
func (a *AnthropicEmbedder) Embed(ctx context.Context, text string) (*Embedding, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	embeddings, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts in a single request,
// retrying with exponential backoff on a rate-limited or connection error.
func (a *AnthropicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	clean := make([]string, len(texts))
	for i, t := range texts {
		if t == "" {
			t = " "
		}
		clean[i] = t
	}

	op := func() ([]*Embedding, error) {
		resp, err := a.doRequest(ctx, clean)
		if err != nil {
			return nil, classifyHTTPError(err)
		}
		return resp, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 30 * time.Second

	return backoff.Retry(ctx, op, backoff.WithBackOff(bo), backoff.WithMaxTries(3))
}

func (a *AnthropicEmbedder) doRequest(ctx context.Context, texts []string) ([]*Embedding, error) {
	body, err := json.Marshal(embeddingsRequest{Model: a.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("encode embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embeddings endpoint: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embeddings response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings endpoint returned %d: %s", resp.StatusCode, string(payload))
	}

	var parsed embeddingsResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}

	out := make([]*Embedding, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = &Embedding{
			Text:   texts[d.Index],
			Vector: Vector(d.Embedding),
			Model:  fmt.Sprintf("anthropic/%s", a.model),
		}
	}
	for i, e := range out {
		if e == nil {
			return nil, fmt.Errorf("embeddings response missing index %d", i)
		}
	}
	return out, nil
}

// classifyHTTPError marks rate-limit and connection-shaped errors as
// retryable to backoff.Retry by returning them unwrapped; anything else is
// wrapped in backoff.Permanent so the retry loop gives up immediately.
func classifyHTTPError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate") ||
		strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "eof") {
		return err
	}
	return backoff.Permanent(err)
}

// Dimensions returns the vector dimensionality.
func (a *AnthropicEmbedder) Dimensions() int {
	return a.dimensions
}

// Model returns the model identifier.
func (a *AnthropicEmbedder) Model() string {
	return fmt.Sprintf("anthropic/%s", a.model)
}

// AnthropicProvider implements Provider for Anthropic embedder.
type AnthropicProvider struct{}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Create instantiates an Anthropic embedder with the given configuration.
func (p *AnthropicProvider) Create(config map[string]interface{}) (Embedder, error) {
	apiKey, ok := config["api_key"].(string)
	if !ok || apiKey == "" {
		return nil, fmt.Errorf("api_key is required for anthropic provider")
	}

	model, _ := config["model"].(string)
	if model == "" {
		model = "claude-embed-v1"
	}

	dimensions := 768
	if dim, ok := config["dimensions"].(int); ok {
		dimensions = dim
	} else if dim, ok := config["dimensions"].(float64); ok {
		dimensions = int(dim)
	}

	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}

	return NewAnthropic(apiKey, model, dimensions), nil
}
