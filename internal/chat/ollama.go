package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/apperr"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/settings"
)

const ollamaTimeout = 120 * time.Second

var _ Backend = (*Ollama)(nil)

// Ollama completes chats through a local Ollama instance. The model comes
// from the ollama_model setting, not the shared model setting, since
// OpenAI model names mean nothing to a local runtime.
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllama creates an unconfigured Ollama chat backend.
func NewOllama() *Ollama {
	return &Ollama{
		httpClient: &http.Client{
			Timeout: ollamaTimeout,
		},
	}
}

// NewOllamaWithBaseURL creates a backend pointing at a custom base URL (for testing).
func NewOllamaWithBaseURL(baseURL string) *Ollama {
	b := NewOllama()
	b.baseURL = strings.TrimRight(baseURL, "/")
	return b
}

func (b *Ollama) Name() string { return "ollama" }

// RequiredSettings is empty: base URL and model both have defaults.
func (b *Ollama) RequiredSettings() []string { return nil }

func (b *Ollama) Initialize(values map[string]string) error {
	if b.baseURL == "" {
		b.baseURL = strings.TrimRight(values[settings.KeyOllamaBaseURL], "/")
	}
	if b.baseURL == "" {
		b.baseURL = "http://localhost:11434"
	}
	b.model = values[settings.KeyOllamaModel]
	if b.model == "" {
		b.model = "llama3.1"
	}
	return nil
}

// ollamaChatRequest is the JSON body for POST /api/chat.
type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// ollamaChatResponse is the JSON returned by POST /api/chat (non-streaming).
type ollamaChatResponse struct {
	Message Message `json:"message"`
}

func (b *Ollama) Complete(ctx context.Context, req Request) (string, error) {
	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    b.model,
		Messages: req.Messages,
		Stream:   false,
		Options:  options,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransport, err, "chat request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperr.New(apperr.KindProvider, "chat: unexpected status %d", resp.StatusCode)
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", apperr.Wrap(apperr.KindData, err, "decoding chat response")
	}
	return result.Message.Content, nil
}
