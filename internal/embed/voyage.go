// Package embed produces vector embeddings for topic search.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kibitzbot/kibitz/internal/providers"
)

// Embedder turns texts into dense vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VoyageEmbedder calls a Voyage-compatible /embeddings endpoint.
type VoyageEmbedder struct {
	apiKey      string
	apiBase     string
	model       string
	client      *http.Client
	retryConfig providers.RetryConfig
}

func NewVoyageEmbedder(apiKey, apiBase, model string) *VoyageEmbedder {
	if apiBase == "" {
		apiBase = "https://api.voyageai.com/v1"
	}
	if model == "" {
		model = "voyage-3"
	}
	return &VoyageEmbedder{
		apiKey:      apiKey,
		apiBase:     strings.TrimRight(apiBase, "/"),
		model:       model,
		client:      &http.Client{Timeout: 60 * time.Second},
		retryConfig: providers.DefaultRetryConfig(),
	}
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (e *VoyageEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(embedRequest{Input: texts, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("voyage: marshal request: %w", err)
	}

	return providers.RetryDo(ctx, e.retryConfig, func() ([][]float32, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", e.apiBase+"/embeddings", bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("voyage: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("voyage: request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return nil, &providers.HTTPError{
				Status:     resp.StatusCode,
				Body:       fmt.Sprintf("voyage: %s", string(body)),
				RetryAfter: providers.ParseRetryAfter(resp.Header.Get("Retry-After")),
			}
		}

		var parsed embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("voyage: decode response: %w", err)
		}
		if len(parsed.Data) != len(texts) {
			return nil, fmt.Errorf("voyage: got %d embeddings for %d inputs", len(parsed.Data), len(texts))
		}

		out := make([][]float32, len(texts))
		for _, d := range parsed.Data {
			if d.Index < 0 || d.Index >= len(out) {
				return nil, fmt.Errorf("voyage: embedding index %d out of range", d.Index)
			}
			out[d.Index] = d.Embedding
		}
		return out, nil
	})
}
