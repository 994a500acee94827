// Package retrieval builds the listing context injected into chat
// prompts. The primary path queries the vector store; when that is not
// possible the assembler falls back to enumerating published listings,
// cached briefly so chat traffic does not hammer the mirror.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/apperr"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/cache"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/embedding"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/htmltext"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/listing"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/settings"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/storage"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/vector"
)

const (
	// fallbackTTL matches how long a stale listing snapshot is acceptable
	// in chat answers.
	fallbackTTL = time.Hour

	fallbackCacheKey = "published-listings"

	// fallbackLimit caps how many listings the enumeration fallback puts
	// into one prompt.
	fallbackLimit = 10
)

// Source values on a Result.
const (
	SourceVector   = "vector"
	SourceFallback = "fallback"
	SourceNone     = "none"
)

// Result is the assembled context for one question.
type Result struct {
	Context  string
	Source   string
	Listings []listing.Listing
}

// Assembler turns a visitor question into prompt context.
type Assembler struct {
	source     listing.Source
	settings   *settings.Manager
	embeddings *embedding.Manager
	vectors    *vector.Manager
	fallback   *cache.Cache[[]listing.Listing]
	logger     *slog.Logger
}

func New(source listing.Source, sm *settings.Manager, em *embedding.Manager, vm *vector.Manager, logger *slog.Logger) *Assembler {
	return &Assembler{
		source:     source,
		settings:   sm,
		embeddings: em,
		vectors:    vm,
		fallback:   cache.New[[]listing.Listing](fallbackTTL),
		logger:     logger,
	}
}

// BuildContext retrieves the listings most relevant to the question and
// formats them for the prompt. Retrieval trouble of any kind degrades to
// the enumeration fallback rather than failing the chat.
func (a *Assembler) BuildContext(ctx context.Context, question string) (Result, error) {
	listings, err := a.retrieve(ctx, question)
	if err != nil {
		a.logger.Warn("retrieval degraded to fallback", "error", err)
		return a.fallbackResult(ctx)
	}
	if len(listings) == 0 {
		return a.fallbackResult(ctx)
	}
	return Result{
		Context:  formatListings(listings),
		Source:   SourceVector,
		Listings: listings,
	}, nil
}

// SearchListings returns the published listings most relevant to the
// query, for callers that want structured results instead of prompt text.
func (a *Assembler) SearchListings(ctx context.Context, query string, topK int) ([]listing.Listing, error) {
	if topK <= 0 {
		cfg, err := a.settings.Load(ctx)
		if err != nil {
			return nil, err
		}
		topK = cfg.TopK
	}
	return a.query(ctx, query, topK)
}

// retrieve runs the vector search path and resolves matches to published
// listings.
func (a *Assembler) retrieve(ctx context.Context, question string) ([]listing.Listing, error) {
	cfg, err := a.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	return a.query(ctx, question, cfg.TopK)
}

func (a *Assembler) query(ctx context.Context, question string, topK int) ([]listing.Listing, error) {
	provider, err := a.vectors.Current(ctx)
	if err != nil {
		return nil, err
	}

	matches, err := provider.QueryByText(ctx, question, topK, nil)
	if apperr.Is(err, apperr.KindNotSupported) {
		// Vector-only backend: embed the question ourselves when the
		// embedding provider is configured.
		embedder, embErr := a.embeddings.Current(ctx)
		if embErr != nil {
			return nil, fmt.Errorf("text query unsupported and no embedding provider: %w", embErr)
		}
		vec, embErr := embedder.Embed(ctx, question)
		if embErr != nil {
			return nil, embErr
		}
		matches, err = provider.Query(ctx, vec, topK, nil)
	}
	if err != nil {
		return nil, err
	}

	listings := make([]listing.Listing, 0, len(matches))
	for _, m := range matches {
		id := vector.ResolveListingID(m)
		if id == 0 {
			continue
		}
		l, err := a.source.GetByID(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !l.Published() {
			continue
		}
		listings = append(listings, l)
	}
	return listings, nil
}

// fallbackResult enumerates published listings, cached for fallbackTTL.
func (a *Assembler) fallbackResult(ctx context.Context) (Result, error) {
	listings, ok := a.fallback.Get(fallbackCacheKey)
	if !ok {
		var err error
		listings, err = a.source.Query(ctx, listing.Filter{Statuses: []string{listing.StatusPublished}})
		if err != nil {
			return Result{}, err
		}
		if len(listings) > fallbackLimit {
			listings = listings[:fallbackLimit]
		}
		a.fallback.Set(fallbackCacheKey, listings)
	}

	if len(listings) == 0 {
		return Result{Source: SourceNone}, nil
	}
	return Result{
		Context:  formatListings(listings),
		Source:   SourceFallback,
		Listings: listings,
	}, nil
}

// InvalidateFallback drops the cached fallback snapshot, called after
// listings change.
func (a *Assembler) InvalidateFallback() {
	a.fallback.Delete(fallbackCacheKey)
}

// formatListings renders listings as prompt context blocks.
func formatListings(listings []listing.Listing) string {
	blocks := make([]string, 0, len(listings))
	for _, l := range listings {
		blocks = append(blocks, formatListing(l))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

func formatListing(l listing.Listing) string {
	var b strings.Builder
	b.WriteString("Listing: ")
	b.WriteString(l.Title)
	if len(l.Types) > 0 {
		b.WriteString("\nType: ")
		b.WriteString(strings.Join(l.Types, ", "))
	}
	if len(l.Categories) > 0 {
		b.WriteString("\nCategory: ")
		b.WriteString(strings.Join(l.Categories, ", "))
	}
	if len(l.Locations) > 0 {
		b.WriteString("\nLocation: ")
		b.WriteString(strings.Join(l.Locations, ", "))
	}
	if content := htmltext.Strip(l.Content); content != "" {
		b.WriteString("\n")
		b.WriteString(content)
	}
	for _, f := range l.Fields {
		if f.Label == "" || strings.TrimSpace(f.Value) == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(f.Label)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(f.Value))
	}
	if l.Permalink != "" {
		b.WriteString("\nURL: ")
		b.WriteString(l.Permalink)
	}
	return b.String()
}
