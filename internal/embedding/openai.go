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

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/apperr"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/settings"
)

const (
	openaiBaseURL = "https://api.openai.com/v1"
	openaiTimeout = 30 * time.Second
)

// openaiDimensions maps embedding models to their vector widths.
var openaiDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

var _ Provider = (*OpenAI)(nil)

// OpenAI embeds text through the OpenAI embeddings endpoint. A whole batch
// goes out as a single request.
type OpenAI struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAI creates an unconfigured OpenAI embedding provider.
func NewOpenAI() *OpenAI {
	return &OpenAI{
		baseURL: openaiBaseURL,
		httpClient: &http.Client{
			Timeout: openaiTimeout,
		},
	}
}

// NewOpenAIWithBaseURL creates a provider pointing at a custom base URL (for testing).
func NewOpenAIWithBaseURL(baseURL string) *OpenAI {
	p := NewOpenAI()
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) RequiredSettings() []string {
	return []string{settings.KeyAPIKey}
}

func (p *OpenAI) Initialize(values map[string]string) error {
	p.apiKey = values[settings.KeyAPIKey]
	p.model = values[settings.KeyEmbeddingModel]
	if p.model == "" {
		p.model = "text-embedding-3-small"
	}
	return nil
}

func (p *OpenAI) Dimensions() int {
	if d, ok := openaiDimensions[p.model]; ok {
		return d
	}
	return 1536
}

func (p *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embeddingsRequest is the JSON body for POST /embeddings.
type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingsResponse is the JSON returned by POST /embeddings.
type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// apiError is the error envelope OpenAI-compatible endpoints return.
type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAI) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, err := json.Marshal(embeddingsRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransport, err, "embedding request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, providerError(resp, "embedding")
	}

	var result embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperr.Wrap(apperr.KindProvider, err, "decoding embed response")
	}

	vectors := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, apperr.New(apperr.KindProvider, "embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, apperr.New(apperr.KindData, "no embedding produced for input %d", i)
		}
	}
	return vectors, nil
}

// providerError turns a non-200 response into a provider error, extracting
// the message from the OpenAI-style error envelope when present.
func providerError(resp *http.Response, op string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var ae apiError
	if json.Unmarshal(raw, &ae) == nil && ae.Error.Message != "" {
		return apperr.New(apperr.KindProvider, "%s: %s", op, ae.Error.Message)
	}
	return apperr.New(apperr.KindProvider, "%s: unexpected status %d", op, resp.StatusCode)
}
