package config

// ConfigBackend is where `assistant config set` values land between runs:
// UserDefaults (via the `defaults` CLI) on macOS, a JSON file under the
// XDG config dir elsewhere. Secrets never pass through it.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
