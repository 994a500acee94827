package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Auth    AuthConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type StorageConfig struct {
	DataDir string
}

type AuthConfig struct {
	// Token guards the REST surface. Empty disables auth, for local use only.
	Token string

	// EncryptionKey protects provider secrets at rest. Required.
	EncryptionKey string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4600,
			MCPPort: 4601,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.directorist.assistant)
// and secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at
// $XDG_CONFIG_HOME/directorist-assistant/config.json and secrets must be
// provided via environment variables.
//
// Environment variables (ASSISTANT_*) override backend values on all
// platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try platform keychain for secrets still unset.
	if cfg.Auth.EncryptionKey == "" {
		if key, err := kc.Get("directorist-assistant", "encryption_key"); err == nil && key != "" {
			cfg.Auth.EncryptionKey = key
		}
	}
	if cfg.Auth.Token == "" {
		if token, err := kc.Get("directorist-assistant", "auth_token"); err == nil && token != "" {
			cfg.Auth.Token = token
		}
	}

	if cfg.Auth.EncryptionKey == "" {
		msg := "missing required config: settings encryption key. " +
			"Set it via environment variable ASSISTANT_ENCRYPTION_KEY" +
			encryptionKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}

// keychainReader reads from macOS Keychain via the security CLI.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
