package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/apperr"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/settings"
)

const wpxploreTimeout = 30 * time.Second

var _ Provider = (*WPXplore)(nil)

// WPXplore talks to the WP Xplore vector service, a text-capable backend:
// documents are sent as raw text and embedded server-side.
type WPXplore struct {
	baseURL    string
	apiKey     string
	index      string
	httpClient *http.Client
}

// NewWPXplore creates an unconfigured WP Xplore provider.
func NewWPXplore() *WPXplore {
	return &WPXplore{
		httpClient: &http.Client{
			Timeout: wpxploreTimeout,
		},
	}
}

func (p *WPXplore) Name() string { return "wpxplore" }

func (p *WPXplore) AcceptsText() bool { return true }

func (p *WPXplore) RequiredSettings() []string {
	return []string{settings.KeyVectorBaseURL, settings.KeyVectorSecretKey}
}

func (p *WPXplore) Initialize(values map[string]string) error {
	p.baseURL = strings.TrimRight(values[settings.KeyVectorBaseURL], "/")
	p.apiKey = values[settings.KeyVectorSecretKey]
	p.index = values[settings.KeyVectorIndexName]
	if p.index == "" {
		p.index = "directorist-listings"
	}
	return nil
}

// wpxDocument is the upsert payload for one document.
type wpxDocument struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type wpxUpsertRequest struct {
	Documents []wpxDocument `json:"documents"`
}

type wpxUpsertResponse struct {
	IDs []string `json:"ids"`
}

type wpxQueryRequest struct {
	Text   string            `json:"text,omitempty"`
	Vector []float32         `json:"vector,omitempty"`
	TopK   int               `json:"top_k"`
	Filter map[string]string `json:"filter,omitempty"`
}

type wpxQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float32        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

type wpxError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *WPXplore) Upsert(ctx context.Context, r Record) (string, error) {
	ids, err := p.BatchUpsert(ctx, []Record{r})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (p *WPXplore) BatchUpsert(ctx context.Context, records []Record) ([]string, error) {
	if len(records) == 0 {
		return []string{}, nil
	}

	docs := make([]wpxDocument, len(records))
	ids := make([]string, len(records))
	for i, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		ids[i] = id
		docs[i] = wpxDocument{ID: id, Text: r.Text, Metadata: r.Metadata}
	}

	var resp wpxUpsertResponse
	if err := p.do(ctx, http.MethodPost, p.indexPath("documents"), wpxUpsertRequest{Documents: docs}, &resp); err != nil {
		return nil, err
	}
	// The service echoes the ids it stored; trust our own when it doesn't.
	if len(resp.IDs) == len(ids) {
		return resp.IDs, nil
	}
	return ids, nil
}

func (p *WPXplore) Delete(ctx context.Context, id string) error {
	return p.do(ctx, http.MethodDelete, p.indexPath("documents/"+url.PathEscape(id)), nil, nil)
}

func (p *WPXplore) BatchDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string][]string{"ids": ids}
	return p.do(ctx, http.MethodPost, p.indexPath("documents/delete"), body, nil)
}

func (p *WPXplore) Query(ctx context.Context, vec []float32, topK int, filter map[string]string) ([]Match, error) {
	return p.query(ctx, wpxQueryRequest{Vector: vec, TopK: topK, Filter: filter})
}

func (p *WPXplore) QueryByText(ctx context.Context, text string, topK int, filter map[string]string) ([]Match, error) {
	return p.query(ctx, wpxQueryRequest{Text: text, TopK: topK, Filter: filter})
}

func (p *WPXplore) query(ctx context.Context, req wpxQueryRequest) ([]Match, error) {
	var resp wpxQueryResponse
	if err := p.do(ctx, http.MethodPost, p.indexPath("query"), req, &resp); err != nil {
		return nil, err
	}
	matches := make([]Match, len(resp.Matches))
	for i, m := range resp.Matches {
		match := Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata}
		match.ListingID = ResolveListingID(match)
		matches[i] = match
	}
	return matches, nil
}

func (p *WPXplore) indexPath(suffix string) string {
	return fmt.Sprintf("/v1/indexes/%s/%s", url.PathEscape(p.index), suffix)
}

func (p *WPXplore) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindTransport, err, "vector store request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var we wpxError
		if json.Unmarshal(raw, &we) == nil && we.Error.Message != "" {
			return apperr.New(apperr.KindProvider, "vector store: %s", we.Error.Message)
		}
		return apperr.New(apperr.KindProvider, "vector store: unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperr.Wrap(apperr.KindProvider, err, "decoding vector store response")
		}
	}
	return nil
}
