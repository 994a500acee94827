package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/apperr"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/settings"
)

const (
	ollamaTimeout = 60 * time.Second

	// ollamaBatchConcurrency bounds parallel embed calls; the local
	// server serializes heavy work anyway.
	ollamaBatchConcurrency = 4
)

var ollamaDimensions = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
}

var _ Provider = (*Ollama)(nil)

// Ollama embeds text through a local Ollama instance. The embed endpoint
// takes one input at a time, so batches fan out with bounded concurrency.
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllama creates an unconfigured Ollama embedding provider.
func NewOllama() *Ollama {
	return &Ollama{
		httpClient: &http.Client{
			Timeout: ollamaTimeout,
		},
	}
}

// NewOllamaWithBaseURL creates a provider pointing at a custom base URL (for testing).
func NewOllamaWithBaseURL(baseURL string) *Ollama {
	p := NewOllama()
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *Ollama) Name() string { return "ollama" }

// RequiredSettings is empty: base URL and model both have defaults.
func (p *Ollama) RequiredSettings() []string { return nil }

func (p *Ollama) Initialize(values map[string]string) error {
	if p.baseURL == "" {
		p.baseURL = strings.TrimRight(values[settings.KeyOllamaBaseURL], "/")
	}
	if p.baseURL == "" {
		p.baseURL = "http://localhost:11434"
	}
	p.model = values[settings.KeyOllamaEmbeddingModel]
	if p.model == "" {
		p.model = "nomic-embed-text"
	}
	return nil
}

func (p *Ollama) Dimensions() int {
	if d, ok := ollamaDimensions[p.model]; ok {
		return d
	}
	return 768
}

// embedRequest is the JSON body for POST /api/embed.
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse is the JSON returned by POST /api/embed.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: p.model, Input: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransport, err, "embed request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.KindProvider, "embed: unexpected status %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, err, "decoding embed response")
	}

	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, apperr.New(apperr.KindData, "no embedding produced")
	}
	return result.Embeddings[0], nil
}

func (p *Ollama) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ollamaBatchConcurrency)

	for i, text := range texts {
		g.Go(func() error {
			v, err := p.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embedding input %d: %w", i, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
