package chat

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

// newTokenParamModels marks model families whose completions endpoint
// takes max_completion_tokens instead of the legacy max_tokens.
var newTokenParamModels = []string{"gpt-4o", "gpt-4.1", "gpt-5", "o1", "o3", "o4-"}

var _ Backend = (*OpenAI)(nil)

// OpenAI completes chats through the OpenAI chat completions endpoint.
type OpenAI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAI creates an unconfigured OpenAI chat backend.
func NewOpenAI() *OpenAI {
	return &OpenAI{
		baseURL: openaiBaseURL,
		httpClient: &http.Client{
			Timeout: openaiTimeout,
		},
	}
}

// NewOpenAIWithBaseURL creates a backend pointing at a custom base URL (for testing).
func NewOpenAIWithBaseURL(baseURL string) *OpenAI {
	b := NewOpenAI()
	b.baseURL = strings.TrimRight(baseURL, "/")
	return b
}

func (b *OpenAI) Name() string { return "openai" }

func (b *OpenAI) RequiredSettings() []string {
	return []string{settings.KeyAPIKey}
}

func (b *OpenAI) Initialize(values map[string]string) error {
	b.apiKey = values[settings.KeyAPIKey]
	return nil
}

// tokenParam picks the token-limit parameter name for a model. Newer
// model families reject the legacy max_tokens.
func tokenParam(model string) string {
	for _, marker := range newTokenParamModels {
		if strings.HasPrefix(model, marker) {
			return "max_completion_tokens"
		}
	}
	return "max_tokens"
}

type chatCompletionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type chatAPIError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (b *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	body := map[string]any{
		"model":       req.Model,
		"messages":    req.Messages,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		body[tokenParam(req.Model)] = req.MaxTokens
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransport, err, "chat request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var ae chatAPIError
		if json.Unmarshal(raw, &ae) == nil && ae.Error.Message != "" {
			return "", apperr.New(apperr.KindProvider, "chat: %s", ae.Error.Message)
		}
		return "", apperr.New(apperr.KindProvider, "chat: unexpected status %d", resp.StatusCode)
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", apperr.Wrap(apperr.KindData, err, "decoding chat response")
	}
	if len(result.Choices) == 0 {
		return "", apperr.New(apperr.KindData, "chat: response has no choices")
	}
	return result.Choices[0].Message.Content, nil
}
