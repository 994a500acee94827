package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/apperr"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/embedding"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/listing"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/settings"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/storage"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/vector"
)

// memStore is an in-memory settings.Store.
type memStore struct {
	data map[string]string
}

func (s *memStore) GetAllSettings(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) SetSettings(ctx context.Context, values map[string]string) error {
	for k, v := range values {
		s.data[k] = v
	}
	return nil
}

// fakeSource is a listing.Source over a fixed set, counting Query calls.
type fakeSource struct {
	listings   map[int64]listing.Listing
	queryCalls int
}

func (f *fakeSource) GetByID(ctx context.Context, id int64) (listing.Listing, error) {
	l, ok := f.listings[id]
	if !ok {
		return listing.Listing{}, storage.ErrNotFound
	}
	return l, nil
}

func (f *fakeSource) Query(ctx context.Context, filter listing.Filter) ([]listing.Listing, error) {
	f.queryCalls++
	var out []listing.Listing
	for _, l := range f.listings {
		if filter.Matches(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeSource) DirectoryTypes(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeSource) Statuses(ctx context.Context) ([]string, error)       { return nil, nil }

// fakeVector serves canned matches.
type fakeVector struct {
	acceptsText bool
	matches     []vector.Match
	queryErr    error
	textQueries int
	vecQueries  int
}

func (f *fakeVector) Name() string                              { return "fake" }
func (f *fakeVector) RequiredSettings() []string                { return nil }
func (f *fakeVector) Initialize(values map[string]string) error { return nil }
func (f *fakeVector) AcceptsText() bool                         { return f.acceptsText }

func (f *fakeVector) Upsert(ctx context.Context, r vector.Record) (string, error) { return "", nil }
func (f *fakeVector) BatchUpsert(ctx context.Context, rs []vector.Record) ([]string, error) {
	return nil, nil
}
func (f *fakeVector) Delete(ctx context.Context, id string) error       { return nil }
func (f *fakeVector) BatchDelete(ctx context.Context, ids []string) error { return nil }

func (f *fakeVector) Query(ctx context.Context, vec []float32, topK int, filter map[string]string) ([]vector.Match, error) {
	f.vecQueries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.matches, nil
}

func (f *fakeVector) QueryByText(ctx context.Context, text string, topK int, filter map[string]string) ([]vector.Match, error) {
	if !f.acceptsText {
		return nil, apperr.New(apperr.KindNotSupported, "text queries not supported")
	}
	f.textQueries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.matches, nil
}

// fakeEmbedder returns a fixed vector.
type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Name() string                              { return "fakeembed" }
func (f *fakeEmbedder) RequiredSettings() []string                { return nil }
func (f *fakeEmbedder) Initialize(values map[string]string) error { return nil }
func (f *fakeEmbedder) Dimensions() int                           { return 2 }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return []float32{0.1, 0.2}, nil
}

func (f *fakeEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type fixture struct {
	assembler *Assembler
	source    *fakeSource
	vec       *fakeVector
	emb       *fakeEmbedder
}

func newFixture(t *testing.T, acceptsText bool, embeddingService string) *fixture {
	t.Helper()

	sm, err := settings.NewManager(&memStore{data: map[string]string{}}, "test-key")
	if err != nil {
		t.Fatalf("settings.NewManager: %v", err)
	}
	if err := sm.Save(context.Background(), map[string]string{
		settings.KeyVectorService:    "fake",
		settings.KeyEmbeddingService: embeddingService,
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fv := &fakeVector{acceptsText: acceptsText}
	fe := &fakeEmbedder{}
	src := &fakeSource{listings: map[int64]listing.Listing{
		1: {ID: 1, Title: "Blue Bottle", Status: "publish", Categories: []string{"Coffee"}},
		2: {ID: 2, Title: "Draft Diner", Status: "draft"},
		3: {ID: 3, Title: "Harbor Hotel", Status: "publish", Types: []string{"Hotel"}},
	}}

	vm := vector.NewManager(sm)
	vm.Register("fake", func() vector.Provider { return fv })
	em := embedding.NewManager(sm)
	em.Register("fakeembed", func() embedding.Provider { return fe })

	return &fixture{
		assembler: New(src, sm, em, vm, slog.New(slog.DiscardHandler)),
		source:    src,
		vec:       fv,
		emb:       fe,
	}
}

// TestBuildContextTextCapable verifies the text query path and that draft
// and dangling matches are dropped.
func TestBuildContextTextCapable(t *testing.T) {
	f := newFixture(t, true, "fakeembed")
	f.vec.matches = []vector.Match{
		{ID: "a", ListingID: 1, Score: 0.9},
		{ID: "b", ListingID: 2, Score: 0.8},  // draft, excluded
		{ID: "c", ListingID: 99, Score: 0.7}, // gone from the mirror
	}

	result, err := f.assembler.BuildContext(context.Background(), "coffee?")
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}

	if result.Source != SourceVector {
		t.Errorf("Source = %q, want vector", result.Source)
	}
	if len(result.Listings) != 1 || result.Listings[0].ID != 1 {
		t.Errorf("Listings = %+v, want just listing 1", result.Listings)
	}
	if !strings.Contains(result.Context, "Blue Bottle") {
		t.Errorf("Context = %q, want Blue Bottle included", result.Context)
	}
	if strings.Contains(result.Context, "Draft Diner") {
		t.Error("Context includes a draft listing")
	}
	if f.vec.textQueries != 1 || f.emb.calls != 0 {
		t.Errorf("textQueries=%d embCalls=%d, want 1/0", f.vec.textQueries, f.emb.calls)
	}
}

// TestBuildContextVectorOnlyEmbeds verifies the embed-then-query path for
// vector-only backends.
func TestBuildContextVectorOnlyEmbeds(t *testing.T) {
	f := newFixture(t, false, "fakeembed")
	f.vec.matches = []vector.Match{
		{ID: "a", Metadata: map[string]any{"listing_id": "1"}, Score: 0.9},
	}

	result, err := f.assembler.BuildContext(context.Background(), "coffee?")
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}

	if result.Source != SourceVector {
		t.Errorf("Source = %q, want vector", result.Source)
	}
	if f.emb.calls != 1 {
		t.Errorf("embedder calls = %d, want 1", f.emb.calls)
	}
	if f.vec.vecQueries != 1 {
		t.Errorf("vector queries = %d, want 1", f.vec.vecQueries)
	}
}

// TestBuildContextVectorOnlyNoEmbedder verifies degradation to the
// fallback when a vector-only backend has no usable embedding provider.
func TestBuildContextVectorOnlyNoEmbedder(t *testing.T) {
	f := newFixture(t, false, "unregistered")

	result, err := f.assembler.BuildContext(context.Background(), "coffee?")
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}

	if result.Source != SourceFallback {
		t.Errorf("Source = %q, want fallback", result.Source)
	}
	// Fallback enumerates published listings only.
	for _, l := range result.Listings {
		if !l.Published() {
			t.Errorf("fallback includes unpublished listing %d", l.ID)
		}
	}
	if strings.Contains(result.Context, "Draft Diner") {
		t.Error("fallback context includes a draft listing")
	}
}

// TestBuildContextProviderErrorFallsBack verifies provider failures never
// fail the chat.
func TestBuildContextProviderErrorFallsBack(t *testing.T) {
	f := newFixture(t, true, "fakeembed")
	f.vec.queryErr = fmt.Errorf("connection refused")

	result, err := f.assembler.BuildContext(context.Background(), "coffee?")
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if result.Source != SourceFallback {
		t.Errorf("Source = %q, want fallback", result.Source)
	}
}

// TestFallbackCached verifies the fallback snapshot is reused.
func TestFallbackCached(t *testing.T) {
	f := newFixture(t, true, "fakeembed")
	f.vec.queryErr = fmt.Errorf("down")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.assembler.BuildContext(ctx, "q"); err != nil {
			t.Fatalf("BuildContext: %v", err)
		}
	}
	if f.source.queryCalls != 1 {
		t.Errorf("source queries = %d, want 1 (cached)", f.source.queryCalls)
	}

	f.assembler.InvalidateFallback()
	if _, err := f.assembler.BuildContext(ctx, "q"); err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if f.source.queryCalls != 2 {
		t.Errorf("source queries = %d, want 2 after invalidation", f.source.queryCalls)
	}
}

// TestFallbackEmpty verifies an empty mirror yields an empty context.
func TestFallbackEmpty(t *testing.T) {
	f := newFixture(t, true, "fakeembed")
	f.vec.queryErr = fmt.Errorf("down")
	f.source.listings = map[int64]listing.Listing{}

	result, err := f.assembler.BuildContext(context.Background(), "q")
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if result.Source != SourceNone {
		t.Errorf("Source = %q, want none", result.Source)
	}
	if result.Context != "" {
		t.Errorf("Context = %q, want empty", result.Context)
	}
}

// TestSearchListings verifies the structured search path.
func TestSearchListings(t *testing.T) {
	f := newFixture(t, true, "fakeembed")
	f.vec.matches = []vector.Match{
		{ID: "a", ListingID: 3, Score: 0.9},
		{ID: "b", ListingID: 1, Score: 0.8},
	}

	got, err := f.assembler.SearchListings(context.Background(), "hotel", 5)
	if err != nil {
		t.Fatalf("SearchListings: %v", err)
	}
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 1 {
		t.Errorf("SearchListings = %+v, want listings 3 then 1", got)
	}
}

// TestFormatListing checks the context block layout.
func TestFormatListing(t *testing.T) {
	l := listing.Listing{
		Title:      "Blue Bottle",
		Content:    "<p>Espresso &amp; pastries.</p>",
		Types:      []string{"Restaurant", "Cafe"},
		Categories: []string{"Coffee"},
		Locations:  []string{"Oakland"},
		Permalink:  "https://example.com/blue-bottle",
		Fields:     []listing.Field{{Label: "Phone", Value: "555-0101"}},
	}

	got := formatListing(l)
	want := "Listing: Blue Bottle\n" +
		"Type: Restaurant, Cafe\n" +
		"Category: Coffee\n" +
		"Location: Oakland\n" +
		"Espresso & pastries.\n" +
		"Phone: 555-0101\n" +
		"URL: https://example.com/blue-bottle"
	if got != want {
		t.Errorf("formatListing = %q, want %q", got, want)
	}
}
