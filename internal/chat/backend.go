// Package chat answers visitor questions, grounding the model in listing
// context assembled by the retrieval layer.
package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/apperr"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/settings"
)

// Message is one turn in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a completion request to a chat backend.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Backend is one chat completion service.
type Backend interface {
	// Name is the identifier used in the chat_service setting.
	Name() string

	// RequiredSettings lists the setting keys that must be non-empty
	// before Initialize can succeed.
	RequiredSettings() []string

	// Initialize configures the backend from the effective settings.
	// It performs no network calls.
	Initialize(settings map[string]string) error

	// Complete returns the assistant's reply.
	Complete(ctx context.Context, req Request) (string, error)
}

// Manager picks and configures the chat backend named by the
// chat_service setting.
type Manager struct {
	mu        sync.RWMutex
	settings  *settings.Manager
	factories map[string]func() Backend
}

func NewManager(sm *settings.Manager) *Manager {
	m := &Manager{
		settings:  sm,
		factories: make(map[string]func() Backend),
	}
	m.Register("openai", func() Backend { return NewOpenAI() })
	m.Register("ollama", func() Backend { return NewOllama() })
	return m
}

// Register adds a backend factory under the given service name.
func (m *Manager) Register(name string, factory func() Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[name] = factory
}

// Backends returns the registered service names, sorted.
func (m *Manager) Backends() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.factories))
	for name := range m.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Current returns the configured chat backend, ready to use.
func (m *Manager) Current(ctx context.Context) (Backend, error) {
	values, err := m.settings.Values(ctx)
	if err != nil {
		return nil, err
	}
	name := values[settings.KeyChatService]

	m.mu.RLock()
	factory, ok := m.factories[name]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.KindConfiguration, "unknown chat service %q", name)
	}

	b := factory()
	for _, key := range b.RequiredSettings() {
		if values[key] == "" {
			return nil, apperr.New(apperr.KindConfiguration,
				"chat service %q requires setting %q", name, key)
		}
	}
	if err := b.Initialize(values); err != nil {
		return nil, err
	}
	return b, nil
}
