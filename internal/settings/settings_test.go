package settings

import (
	"context"
	"strings"
	"testing"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/apperr"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) GetAllSettings(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) SetSettings(ctx context.Context, settings map[string]string) error {
	for k, v := range settings {
		s.data[k] = v
	}
	return nil
}

func newTestManager(t *testing.T) (*Manager, *memStore) {
	t.Helper()
	store := newMemStore()
	m, err := NewManager(store, "test-encryption-key")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, store
}

// TestDefaultsApplied verifies defaults surface when nothing is stored.
func TestDefaultsApplied(t *testing.T) {
	m, _ := newTestManager(t)

	values, err := m.Values(context.Background())
	if err != nil {
		t.Fatalf("Values: %v", err)
	}

	if values[KeyModel] != "gpt-3.5-turbo" {
		t.Errorf("model = %q, want %q", values[KeyModel], "gpt-3.5-turbo")
	}
	if values[KeyTemperature] != "0.7" {
		t.Errorf("temperature = %q, want %q", values[KeyTemperature], "0.7")
	}
	if values[KeyMaxTokens] != "1000" {
		t.Errorf("max_tokens = %q, want %q", values[KeyMaxTokens], "1000")
	}
	if values[KeyVectorIndexName] != "directorist-listings" {
		t.Errorf("vector_index_name = %q, want %q", values[KeyVectorIndexName], "directorist-listings")
	}
	if values[KeyAPIKey] != "" {
		t.Errorf("api_key = %q, want empty", values[KeyAPIKey])
	}
}

// TestSecretEncryptedAtRest saves a credential and verifies the stored
// value is not the plaintext while Values returns the plaintext.
func TestSecretEncryptedAtRest(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	if err := m.Save(ctx, map[string]string{KeyAPIKey: "sk-live-12345"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	stored := store.data[KeyAPIKey]
	if stored == "" {
		t.Fatal("api_key not stored")
	}
	if strings.Contains(stored, "sk-live-12345") {
		t.Errorf("stored value %q contains plaintext", stored)
	}
	if !strings.HasPrefix(stored, encPrefix) {
		t.Errorf("stored value %q missing encryption prefix", stored)
	}

	values, err := m.Values(ctx)
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	if values[KeyAPIKey] != "sk-live-12345" {
		t.Errorf("decrypted api_key = %q, want %q", values[KeyAPIKey], "sk-live-12345")
	}
}

// TestMaskedHidesSecrets verifies secrets are masked only when present.
func TestMaskedHidesSecrets(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.Save(ctx, map[string]string{KeyAPIKey: "sk-live-12345"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	masked, err := m.Masked(ctx)
	if err != nil {
		t.Fatalf("Masked: %v", err)
	}
	if masked[KeyAPIKey] != MaskedSecret {
		t.Errorf("api_key = %q, want %q", masked[KeyAPIKey], MaskedSecret)
	}
	// Unconfigured secrets stay empty, not masked.
	if masked[KeyPineconeAPIKey] != "" {
		t.Errorf("pinecone_api_key = %q, want empty", masked[KeyPineconeAPIKey])
	}
}

// TestMaskedRoundTripPreservesSecret verifies saving the masked form back
// does not clobber the stored credential.
func TestMaskedRoundTripPreservesSecret(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.Save(ctx, map[string]string{KeyAPIKey: "sk-original"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Dashboard reads masked settings, edits the model, saves everything back.
	masked, err := m.Masked(ctx)
	if err != nil {
		t.Fatalf("Masked: %v", err)
	}
	masked[KeyModel] = "gpt-4o"
	if err := m.Save(ctx, masked); err != nil {
		t.Fatalf("Save (round-trip): %v", err)
	}

	values, err := m.Values(ctx)
	if err != nil {
		t.Fatalf("Values: %v", err)
	}
	if values[KeyAPIKey] != "sk-original" {
		t.Errorf("api_key = %q, want %q", values[KeyAPIKey], "sk-original")
	}
	if values[KeyModel] != "gpt-4o" {
		t.Errorf("model = %q, want %q", values[KeyModel], "gpt-4o")
	}
}

// TestSaveEmptySecretPreserves verifies an empty secret on save keeps the
// stored value.
func TestSaveEmptySecretPreserves(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.Save(ctx, map[string]string{KeyAPIKey: "sk-keep"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := m.Save(ctx, map[string]string{KeyAPIKey: ""}); err != nil {
		t.Fatalf("Save (empty): %v", err)
	}

	got, err := m.Get(ctx, KeyAPIKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "sk-keep" {
		t.Errorf("api_key = %q, want %q", got, "sk-keep")
	}
}

// TestSaveReplacesSecret verifies a new plaintext secret replaces the old one.
func TestSaveReplacesSecret(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.Save(ctx, map[string]string{KeyAPIKey: "sk-old"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := m.Save(ctx, map[string]string{KeyAPIKey: "sk-new"}); err != nil {
		t.Fatalf("Save (replace): %v", err)
	}

	got, err := m.Get(ctx, KeyAPIKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "sk-new" {
		t.Errorf("api_key = %q, want %q", got, "sk-new")
	}
}

// TestSaveUnknownKeyRejected verifies unknown keys fail validation.
func TestSaveUnknownKeyRejected(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.Save(context.Background(), map[string]string{"bogus_key": "x"})
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("error kind = %v, want validation", apperr.KindOf(err))
	}
}

// TestLoadTypedSnapshot verifies parsing of numeric, boolean, and list values.
func TestLoadTypedSnapshot(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.Save(ctx, map[string]string{
		KeyModel:              "gpt-4o",
		KeyTemperature:        "0.2",
		KeyMaxTokens:          "500",
		KeyTopK:               "5",
		KeyStrictRetrieval:    "false",
		KeySyncStatuses:       "publish, private",
		KeySyncDirectoryTypes: "Restaurant,Hotel",
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if s.Model != "gpt-4o" {
		t.Errorf("Model = %q, want %q", s.Model, "gpt-4o")
	}
	if s.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", s.Temperature)
	}
	if s.MaxTokens != 500 {
		t.Errorf("MaxTokens = %d, want 500", s.MaxTokens)
	}
	if s.TopK != 5 {
		t.Errorf("TopK = %d, want 5", s.TopK)
	}
	if s.StrictRetrieval {
		t.Error("StrictRetrieval = true, want false")
	}
	if len(s.SyncStatuses) != 2 || s.SyncStatuses[1] != "private" {
		t.Errorf("SyncStatuses = %v, want [publish private]", s.SyncStatuses)
	}
	if len(s.SyncDirectoryTypes) != 2 || s.SyncDirectoryTypes[0] != "Restaurant" {
		t.Errorf("SyncDirectoryTypes = %v", s.SyncDirectoryTypes)
	}
}

// TestLoadUnparseableFallsBack verifies garbage numerics fall back to defaults.
func TestLoadUnparseableFallsBack(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.Save(ctx, map[string]string{
		KeyTemperature: "hot",
		KeyMaxTokens:   "lots",
		KeyTopK:        "",
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", s.Temperature)
	}
	if s.MaxTokens != 1000 {
		t.Errorf("MaxTokens = %d, want 1000", s.MaxTokens)
	}
	if s.TopK != 3 {
		t.Errorf("TopK = %d, want 3", s.TopK)
	}
}

// TestCipherRoundTrip checks encrypt/decrypt and legacy plaintext handling.
func TestCipherRoundTrip(t *testing.T) {
	c, err := newSecretCipher("key-one")
	if err != nil {
		t.Fatalf("newSecretCipher: %v", err)
	}

	enc, err := c.Encrypt("hello secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	plain, err := c.Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plain != "hello secret" {
		t.Errorf("Decrypt = %q, want %q", plain, "hello secret")
	}

	// Unprefixed values pass through untouched.
	got, err := c.Decrypt("legacy-plaintext")
	if err != nil {
		t.Fatalf("Decrypt (legacy): %v", err)
	}
	if got != "legacy-plaintext" {
		t.Errorf("Decrypt (legacy) = %q", got)
	}

	// A different key must not decrypt the value.
	c2, err := newSecretCipher("key-two")
	if err != nil {
		t.Fatalf("newSecretCipher: %v", err)
	}
	if _, err := c2.Decrypt(enc); err == nil {
		t.Error("expected decrypt failure with wrong key, got nil")
	}
}
