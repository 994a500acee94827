//go:build darwin

package config

import "os/exec"

// keychainExec reads one secret (the API auth token or the settings
// encryption key) from the login keychain via the security CLI.
func keychainExec(service, account string) ([]byte, error) {
	return exec.Command(
		"security", "find-generic-password",
		"-s", service,
		"-a", account,
		"-w",
	).Output()
}
