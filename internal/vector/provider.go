// Package vector abstracts the vector store holding listing embeddings.
// Two capability classes exist: text-capable backends embed on their side
// and answer text queries directly, vector-only backends require the
// caller to supply embeddings.
package vector

import (
	"context"
	"strconv"
)

// Record is one listing's entry in the vector store.
type Record struct {
	// ID is the external vector id. Empty on first upsert; the provider
	// assigns one and returns it so re-syncs update in place.
	ID string

	ListingID int64
	Text      string
	Metadata  map[string]string

	// Vector is required by vector-only backends and ignored by
	// text-capable ones.
	Vector []float32
}

// Match is one query result.
type Match struct {
	ID        string
	Score     float32
	ListingID int64
	Metadata  map[string]any
}

// ResolveListingID returns the listing id of a match, falling back to the
// metadata when the backend did not surface it top-level. String and
// float forms are coerced; 0 means unresolvable.
func ResolveListingID(m Match) int64 {
	if m.ListingID != 0 {
		return m.ListingID
	}
	raw, ok := m.Metadata["listing_id"]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			return id
		}
	}
	return 0
}

// Provider is one vector store backend.
type Provider interface {
	// Name is the identifier used in the vector_service setting.
	Name() string

	// RequiredSettings lists the setting keys that must be non-empty
	// before Initialize can succeed.
	RequiredSettings() []string

	// Initialize configures the provider from the effective settings.
	// It performs no network calls.
	Initialize(settings map[string]string) error

	// AcceptsText reports whether the backend embeds text itself. When
	// false, Record.Vector must be populated and QueryByText returns a
	// not-supported error.
	AcceptsText() bool

	// Upsert writes one record and returns the external vector id.
	Upsert(ctx context.Context, r Record) (string, error)

	// BatchUpsert writes records and returns their ids in input order.
	BatchUpsert(ctx context.Context, records []Record) ([]string, error)

	// Delete removes one vector by external id.
	Delete(ctx context.Context, id string) error

	// BatchDelete removes vectors by external id.
	BatchDelete(ctx context.Context, ids []string) error

	// Query returns the topK nearest matches for a vector. A non-empty
	// filter restricts matches to records whose metadata carries the
	// given values.
	Query(ctx context.Context, vec []float32, topK int, filter map[string]string) ([]Match, error)

	// QueryByText is Query for raw text. Vector-only backends return an
	// apperr.KindNotSupported error.
	QueryByText(ctx context.Context, text string, topK int, filter map[string]string) ([]Match, error)
}
