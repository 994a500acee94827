// Package settings manages the assistant's runtime configuration: chat
// behavior, provider selection, and provider credentials. Settings live in
// the database so the dashboard can change them without a restart; provider
// credentials are encrypted at rest and masked on every read path that
// leaves the process.
package settings

import (
	"context"
	"strconv"
	"strings"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/apperr"
)

// Setting keys. The REST settings surface accepts exactly this set.
const (
	KeyAPIKey          = "api_key"
	KeyModel           = "model"
	KeySystemPrompt    = "system_prompt"
	KeyTemperature     = "temperature"
	KeyMaxTokens       = "max_tokens"
	KeyAgentName       = "chat_agent_name"
	KeySiteName        = "site_name"
	KeyStrictRetrieval = "chat_strict_retrieval"
	KeyTopK            = "retrieval_top_k"
	KeyChatService     = "chat_service"

	KeyEmbeddingService = "embedding_service"
	KeyEmbeddingModel   = "vector_embedding_model"

	KeyVectorService    = "vector_service"
	KeyVectorBaseURL    = "vector_api_base_url"
	KeyVectorSecretKey  = "vector_api_secret_key"
	KeyVectorIndexName  = "vector_index_name"
	KeyVectorNamespace  = "vector_namespace"
	KeyPineconeAPIKey   = "pinecone_api_key"
	KeyPineconeEnv      = "pinecone_environment"
	KeyPineconeIndex    = "pinecone_index_name"
	KeyQdrantURL        = "qdrant_url"
	KeyQdrantAPIKey     = "qdrant_api_key"
	KeyQdrantCollection = "qdrant_collection"

	KeyAutoSync           = "vector_auto_sync"
	KeySyncStatuses       = "sync_statuses"
	KeySyncDirectoryTypes = "sync_directory_types"
	KeyChunkSize          = "listing_chunk_size"

	KeyOllamaBaseURL        = "ollama_base_url"
	KeyOllamaModel          = "ollama_model"
	KeyOllamaEmbeddingModel = "ollama_embedding_model"
)

// MaskedSecret is what secret values look like outside the process.
// Receiving it back on save means "keep the stored value".
const MaskedSecret = "sk-***"

var defaults = map[string]string{
	KeyModel:           "gpt-3.5-turbo",
	KeySystemPrompt:    "",
	KeyTemperature:     "0.7",
	KeyMaxTokens:       "1000",
	KeyAgentName:       "",
	KeySiteName:        "",
	KeyStrictRetrieval: "true",
	KeyTopK:            "3",
	KeyChatService:     "openai",

	KeyEmbeddingService: "openai",
	KeyEmbeddingModel:   "text-embedding-3-small",

	KeyVectorService:   "wpxplore",
	KeyVectorIndexName: "directorist-listings",

	KeyAutoSync:     "true",
	KeySyncStatuses: "publish",
	KeyChunkSize:    "20",

	KeyOllamaBaseURL:        "http://localhost:11434",
	KeyOllamaModel:          "llama3.1",
	KeyOllamaEmbeddingModel: "nomic-embed-text",
}

// secretKeys hold provider credentials: encrypted at rest, masked on read.
var secretKeys = map[string]bool{
	KeyAPIKey:          true,
	KeyVectorSecretKey: true,
	KeyPineconeAPIKey:  true,
	KeyQdrantAPIKey:    true,
}

var knownKeys = buildKnownKeys()

func buildKnownKeys() map[string]bool {
	known := map[string]bool{
		KeyVectorBaseURL:      true,
		KeyVectorNamespace:    true,
		KeyPineconeEnv:        true,
		KeyPineconeIndex:      true,
		KeyQdrantURL:          true,
		KeyQdrantCollection:   true,
		KeySyncDirectoryTypes: true,
	}
	for k := range defaults {
		known[k] = true
	}
	for k := range secretKeys {
		known[k] = true
	}
	return known
}

// IsSecret reports whether a setting key holds a credential.
func IsSecret(key string) bool {
	return secretKeys[key]
}

// Store is the persistence the manager needs.
type Store interface {
	GetAllSettings(ctx context.Context) (map[string]string, error)
	SetSettings(ctx context.Context, settings map[string]string) error
}

// Manager reads and writes runtime settings, handling defaults, secret
// encryption, and masking.
type Manager struct {
	store  Store
	cipher *secretCipher
}

func NewManager(store Store, encryptionKey string) (*Manager, error) {
	c, err := newSecretCipher(encryptionKey)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, err, "initializing settings encryption")
	}
	return &Manager{store: store, cipher: c}, nil
}

// Values returns the effective settings: defaults overlaid with stored
// values, secrets decrypted. For in-process use only; the REST surface
// goes through Masked.
func (m *Manager) Values(ctx context.Context) (map[string]string, error) {
	stored, err := m.store.GetAllSettings(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindData, err, "loading settings")
	}

	values := make(map[string]string, len(defaults)+len(stored))
	for k, v := range defaults {
		values[k] = v
	}
	for k, v := range stored {
		if secretKeys[k] {
			plain, err := m.cipher.Decrypt(v)
			if err != nil {
				return nil, apperr.Wrap(apperr.KindConfiguration, err,
					"decrypting setting %q (was the encryption key changed?)", k)
			}
			values[k] = plain
			continue
		}
		values[k] = v
	}
	return values, nil
}

// Get returns a single effective setting value.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	values, err := m.Values(ctx)
	if err != nil {
		return "", err
	}
	return values[key], nil
}

// Masked returns the effective settings with every non-empty secret
// replaced by MaskedSecret. Empty secrets stay empty so the dashboard can
// tell "not configured" from "configured".
func (m *Manager) Masked(ctx context.Context) (map[string]string, error) {
	values, err := m.Values(ctx)
	if err != nil {
		return nil, err
	}
	for k := range secretKeys {
		if values[k] != "" {
			values[k] = MaskedSecret
		}
	}
	return values, nil
}

// Save validates and persists the incoming settings. Unknown keys are
// rejected. A secret arriving empty or still masked is dropped so the
// stored credential survives a round-trip through the dashboard.
func (m *Manager) Save(ctx context.Context, incoming map[string]string) error {
	toStore := make(map[string]string, len(incoming))
	for k, v := range incoming {
		if !knownKeys[k] {
			return apperr.New(apperr.KindValidation, "unknown setting %q", k)
		}
		if secretKeys[k] {
			if v == "" || v == MaskedSecret {
				continue
			}
			enc, err := m.cipher.Encrypt(v)
			if err != nil {
				return apperr.Wrap(apperr.KindConfiguration, err, "encrypting setting %q", k)
			}
			toStore[k] = enc
			continue
		}
		toStore[k] = v
	}
	if len(toStore) == 0 {
		return nil
	}
	if err := m.store.SetSettings(ctx, toStore); err != nil {
		return apperr.Wrap(apperr.KindData, err, "saving settings")
	}
	return nil
}

// Settings is a typed snapshot of the chat and sync configuration.
// Unparseable stored values fall back to their defaults.
type Settings struct {
	Model           string
	SystemPrompt    string
	Temperature     float64
	MaxTokens       int
	AgentName       string
	SiteName        string
	StrictRetrieval bool
	TopK            int
	ChatService     string

	EmbeddingService string
	EmbeddingModel   string
	VectorService    string
	VectorIndexName  string

	AutoSync           bool
	SyncStatuses       []string
	SyncDirectoryTypes []string
	ChunkSize          int
}

// Load returns a typed snapshot of the effective settings.
func (m *Manager) Load(ctx context.Context) (Settings, error) {
	values, err := m.Values(ctx)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Model:           values[KeyModel],
		SystemPrompt:    values[KeySystemPrompt],
		Temperature:     parseFloat(values[KeyTemperature], 0.7),
		MaxTokens:       parseInt(values[KeyMaxTokens], 1000),
		AgentName:       values[KeyAgentName],
		SiteName:        values[KeySiteName],
		StrictRetrieval: parseBool(values[KeyStrictRetrieval], true),
		TopK:            parseInt(values[KeyTopK], 3),
		ChatService:     values[KeyChatService],

		EmbeddingService: values[KeyEmbeddingService],
		EmbeddingModel:   values[KeyEmbeddingModel],
		VectorService:    values[KeyVectorService],
		VectorIndexName:  values[KeyVectorIndexName],

		AutoSync:           parseBool(values[KeyAutoSync], true),
		SyncStatuses:       splitList(values[KeySyncStatuses]),
		SyncDirectoryTypes: splitList(values[KeySyncDirectoryTypes]),
		ChunkSize:          parseInt(values[KeyChunkSize], 20),
	}, nil
}

func parseFloat(s string, def float64) float64 {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseInt(s string, def int) int {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return def
}

func parseBool(s string, def bool) bool {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return def
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
