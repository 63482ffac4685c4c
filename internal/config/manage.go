package config

import (
	"fmt"
	"strconv"

	"github.com/kalambet/profilesim/internal/faults"
)

// KeyInfo is one row of "config show".
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

func lookup(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// ShowAll lists the effective value of every non-secret key.
func ShowAll(cfg Config) []KeyInfo {
	var rows []KeyInfo
	for _, s := range specs {
		if !s.secret {
			rows = append(rows, KeyInfo{Key: s.key, EnvVar: s.env, Value: fmt.Sprint(s.extract(cfg))})
		}
	}
	return rows
}

// ValidKeys lists the keys accepted by SetKey and UnsetKey.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}

// SetKey parses value according to the key's type and persists it.
func SetKey(key, value string) error {
	return setKey(newPlatformBackend(), key, value)
}

func setKey(b ConfigBackend, key, value string) error {
	s, ok := lookup(key)
	if !ok {
		return faults.Configf(key, "unknown key")
	}
	if s.secret {
		return faults.Configf(key, "is a secret; use %s or config set-secret", s.env)
	}

	switch s.typ {
	case kInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return faults.Configf(key, "want an integer, got %q", value)
		}
		return b.SetInt(key, n)
	case kFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return faults.Configf(key, "want a number, got %q", value)
		}
		return b.SetFloat(key, f)
	case kBool:
		if _, err := strconv.ParseBool(value); err != nil {
			return faults.Configf(key, "want true or false, got %q", value)
		}
	}
	return b.SetString(key, value)
}

// UnsetKey removes a persisted key so its default applies again.
func UnsetKey(key string) error {
	return unsetKey(newPlatformBackend(), key)
}

func unsetKey(b ConfigBackend, key string) error {
	s, ok := lookup(key)
	if !ok || s.secret {
		return faults.Configf(key, "unknown key")
	}
	return b.Delete(key)
}

func errUnknownSecret(key string) error {
	return faults.Configf(key, "unknown secret")
}
