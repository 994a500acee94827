package vector

import (
	"context"
	"sort"
	"sync"

	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/apperr"
	"github.com/MahfuzulAlam/directorist-smart-assistant/internal/settings"
)

// Manager picks and configures the vector store named by the
// vector_service setting. Like the embedding manager, Current builds a
// freshly configured provider per call so settings changes apply
// immediately.
type Manager struct {
	mu        sync.RWMutex
	settings  *settings.Manager
	factories map[string]func() Provider
}

func NewManager(sm *settings.Manager) *Manager {
	m := &Manager{
		settings:  sm,
		factories: make(map[string]func() Provider),
	}
	m.Register("wpxplore", func() Provider { return NewWPXplore() })
	m.Register("pinecone", func() Provider { return NewPinecone() })
	m.Register("qdrant", func() Provider { return NewQdrant() })
	return m
}

// Register adds a provider factory under the given service name.
func (m *Manager) Register(name string, factory func() Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[name] = factory
}

// Providers returns the registered service names, sorted.
func (m *Manager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.factories))
	for name := range m.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Current returns the configured vector store provider, ready to use.
func (m *Manager) Current(ctx context.Context) (Provider, error) {
	values, err := m.settings.Values(ctx)
	if err != nil {
		return nil, err
	}
	name := values[settings.KeyVectorService]

	m.mu.RLock()
	factory, ok := m.factories[name]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.KindConfiguration, "unknown vector service %q", name)
	}

	p := factory()
	for _, key := range p.RequiredSettings() {
		if values[key] == "" {
			return nil, apperr.New(apperr.KindConfiguration,
				"vector service %q requires setting %q", name, key)
		}
	}
	if err := p.Initialize(values); err != nil {
		return nil, err
	}
	return p, nil
}

// Ready reports whether the configured provider can be used right now.
func (m *Manager) Ready(ctx context.Context) bool {
	_, err := m.Current(ctx)
	return err == nil
}
