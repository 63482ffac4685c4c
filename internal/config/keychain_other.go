//go:build !darwin

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Without a system keychain, secrets live in a 0600 JSON file keyed by
// service and account.
type secretsFile map[string]map[string]string

func secretsFilePath() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "profilesim", "secrets.json")
}

func keychainGet(service, account string) ([]byte, error) {
	var secrets secretsFile
	if err := readJSONFile(secretsFilePath(), &secrets); err != nil {
		return nil, fmt.Errorf("secret store not available: %w", err)
	}
	val, ok := secrets[service][account]
	if !ok {
		return nil, fmt.Errorf("no secret %q for service %q", account, service)
	}
	return []byte(val), nil
}

func keychainSet(service, account, value string) error {
	p := secretsFilePath()
	secrets := secretsFile{}
	if err := readJSONFile(p, &secrets); err != nil && !os.IsNotExist(err) {
		return err
	}
	if secrets[service] == nil {
		secrets[service] = map[string]string{}
	}
	secrets[service][account] = value
	return writeJSONFile(p, secrets)
}
