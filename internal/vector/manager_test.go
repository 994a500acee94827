package vector

import (
	"context"
	"strings"
	"testing"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/apperr"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/settings"
)

// memStore is an in-memory settings.Store for tests.
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

func newTestSettings(t *testing.T, values map[string]string) *settings.Manager {
	t.Helper()
	sm, err := settings.NewManager(&memStore{data: map[string]string{}}, "test-key")
	if err != nil {
		t.Fatalf("settings.NewManager: %v", err)
	}
	if len(values) > 0 {
		if err := sm.Save(context.Background(), values); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	return sm
}

// TestManagerCurrentWPXplore verifies the default service resolves once
// its settings are present.
func TestManagerCurrentWPXplore(t *testing.T) {
	sm := newTestSettings(t, map[string]string{
		settings.KeyVectorBaseURL:   "https://vector.example.com",
		settings.KeyVectorSecretKey: "secret",
	})
	m := NewManager(sm)

	p, err := m.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if p.Name() != "wpxplore" {
		t.Errorf("Name = %q, want wpxplore", p.Name())
	}
	if !p.AcceptsText() {
		t.Error("AcceptsText = false, want true")
	}
}

// TestManagerMissingRequiredSetting verifies the error names the missing key.
func TestManagerMissingRequiredSetting(t *testing.T) {
	sm := newTestSettings(t, map[string]string{
		settings.KeyVectorService: "pinecone",
		settings.KeyPineconeAPIKey: "k",
	})
	m := NewManager(sm)

	_, err := m.Current(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Errorf("error kind = %v, want configuration", apperr.KindOf(err))
	}
	if !strings.Contains(err.Error(), settings.KeyPineconeEnv) {
		t.Errorf("error = %q, want it to name %q", err.Error(), settings.KeyPineconeEnv)
	}
	if m.Ready(context.Background()) {
		t.Error("Ready = true, want false")
	}
}

// TestManagerUnknownService verifies an unregistered name is a configuration error.
func TestManagerUnknownService(t *testing.T) {
	sm := newTestSettings(t, map[string]string{
		settings.KeyVectorService: "chroma",
	})
	m := NewManager(sm)

	_, err := m.Current(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !apperr.Is(err, apperr.KindConfiguration) {
		t.Errorf("error kind = %v, want configuration", apperr.KindOf(err))
	}
}

// TestManagerProviders verifies the registry listing.
func TestManagerProviders(t *testing.T) {
	m := NewManager(newTestSettings(t, nil))
	got := m.Providers()
	if len(got) != 3 || got[0] != "pinecone" || got[1] != "qdrant" || got[2] != "wpxplore" {
		t.Errorf("Providers = %v, want [pinecone qdrant wpxplore]", got)
	}
}
