// Package embedding turns listing text and visitor questions into vectors.
// Providers are selected and configured at runtime through settings, so a
// site can switch services without redeploying.
package embedding

import "context"

// Provider is one embedding backend.
type Provider interface {
	// Name is the identifier used in the embedding_service setting.
	Name() string

	// RequiredSettings lists the setting keys that must be non-empty
	// before Initialize can succeed.
	RequiredSettings() []string

	// Initialize configures the provider from the effective settings.
	// It performs no network calls.
	Initialize(settings map[string]string) error

	// Embed returns the vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed returns one vector per input text, in input order. An
	// empty input returns an empty result without any network traffic.
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the vector width the configured model produces.
	Dimensions() int
}
