package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/apperr"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/settings"
)

const pineconeTimeout = 30 * time.Second

var _ Provider = (*Pinecone)(nil)

// Pinecone is a vector-only backend: callers supply embeddings on writes
// and queries, and text queries are not supported.
type Pinecone struct {
	apiKey     string
	namespace  string
	baseURL    string
	httpClient *http.Client
}

// NewPinecone creates an unconfigured Pinecone provider.
func NewPinecone() *Pinecone {
	return &Pinecone{
		httpClient: &http.Client{
			Timeout: pineconeTimeout,
		},
	}
}

// NewPineconeWithBaseURL creates a provider pointing at a custom base URL (for testing).
func NewPineconeWithBaseURL(baseURL string) *Pinecone {
	p := NewPinecone()
	p.baseURL = strings.TrimRight(baseURL, "/")
	return p
}

func (p *Pinecone) Name() string { return "pinecone" }

func (p *Pinecone) AcceptsText() bool { return false }

func (p *Pinecone) RequiredSettings() []string {
	return []string{
		settings.KeyPineconeAPIKey,
		settings.KeyPineconeEnv,
		settings.KeyPineconeIndex,
	}
}

func (p *Pinecone) Initialize(values map[string]string) error {
	p.apiKey = values[settings.KeyPineconeAPIKey]
	p.namespace = values[settings.KeyVectorNamespace]
	if p.baseURL == "" {
		p.baseURL = fmt.Sprintf("https://%s-%s.svc.pinecone.io",
			values[settings.KeyPineconeIndex], values[settings.KeyPineconeEnv])
	}
	return nil
}

type pineconeVector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type pineconeUpsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type pineconeDeleteRequest struct {
	IDs       []string `json:"ids"`
	Namespace string   `json:"namespace,omitempty"`
}

type pineconeQueryRequest struct {
	Vector          []float32         `json:"vector"`
	TopK            int               `json:"topK"`
	Filter          map[string]string `json:"filter,omitempty"`
	Namespace       string            `json:"namespace,omitempty"`
	IncludeMetadata bool              `json:"includeMetadata"`
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float32        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

func (p *Pinecone) Upsert(ctx context.Context, r Record) (string, error) {
	ids, err := p.BatchUpsert(ctx, []Record{r})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (p *Pinecone) BatchUpsert(ctx context.Context, records []Record) ([]string, error) {
	if len(records) == 0 {
		return []string{}, nil
	}

	vectors := make([]pineconeVector, len(records))
	ids := make([]string, len(records))
	for i, r := range records {
		if len(r.Vector) == 0 {
			return nil, apperr.New(apperr.KindValidation, "record %d has no vector", i)
		}
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		ids[i] = id
		vectors[i] = pineconeVector{ID: id, Values: r.Vector, Metadata: r.Metadata}
	}

	req := pineconeUpsertRequest{Vectors: vectors, Namespace: p.namespace}
	if err := p.do(ctx, "/vectors/upsert", req, nil); err != nil {
		return nil, err
	}
	return ids, nil
}

func (p *Pinecone) Delete(ctx context.Context, id string) error {
	return p.BatchDelete(ctx, []string{id})
}

func (p *Pinecone) BatchDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return p.do(ctx, "/vectors/delete", pineconeDeleteRequest{IDs: ids, Namespace: p.namespace}, nil)
}

func (p *Pinecone) Query(ctx context.Context, vec []float32, topK int, filter map[string]string) ([]Match, error) {
	req := pineconeQueryRequest{
		Vector:          vec,
		TopK:            topK,
		Filter:          filter,
		Namespace:       p.namespace,
		IncludeMetadata: true,
	}
	var resp pineconeQueryResponse
	if err := p.do(ctx, "/query", req, &resp); err != nil {
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

func (p *Pinecone) QueryByText(ctx context.Context, text string, topK int, filter map[string]string) ([]Match, error) {
	return nil, apperr.New(apperr.KindNotSupported, "pinecone does not accept text queries")
}

func (p *Pinecone) do(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindTransport, err, "pinecone request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperr.New(apperr.KindProvider, "pinecone: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperr.Wrap(apperr.KindProvider, err, "decoding pinecone response")
		}
	}
	return nil
}
