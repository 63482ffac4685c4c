package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kalambet/profilesim/internal/disclosure"
	"github.com/kalambet/profilesim/internal/faults"
	"github.com/kalambet/profilesim/internal/noise"
	"github.com/kalambet/profilesim/internal/profile"
	"github.com/kalambet/profilesim/internal/session"
)

type Config struct {
	Engine     EngineConfig
	Ollama     OllamaConfig
	OpenAI     OpenAIConfig
	Storage    StorageConfig
	Log        LogConfig
	Simulation SimulationConfig
	Noise      NoiseConfig
	Extraction ExtractionConfig
}

type EngineConfig struct {
	// Backend is "statement", "ollama" or "openai".
	Backend string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
	// JSON switches the log output from text to JSON lines.
	JSON bool
}

type SimulationConfig struct {
	// PriorityOrder is a comma-separated list of dimensions.
	PriorityOrder        string
	MaxFactsPerTurn      int
	MaxTurns             int
	ConvergenceThreshold float64
	ConflictMargin       float64
	Parallelism          int
}

type NoiseConfig struct {
	Forgetfulness float64
	Vagueness     float64
	Misleading    float64
	TopicHopping  float64
}

type ExtractionConfig struct {
	Timeout   string
	RateLimit float64 // calls per second, 0 disables
	CacheTTL  string  // 0 or empty disables
}

// Default returns the built-in configuration.
func Default() Config {
	order := make([]string, len(disclosure.DefaultPriorityOrder))
	for i, d := range disclosure.DefaultPriorityOrder {
		order[i] = string(d)
	}
	return Config{
		Engine: EngineConfig{Backend: "statement"},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "qwen2.5:7b",
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
			Model:   "qwen-turbo",
		},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
		Simulation: SimulationConfig{
			PriorityOrder:        strings.Join(order, ","),
			MaxFactsPerTurn:      3,
			MaxTurns:             20,
			ConvergenceThreshold: 0.9,
			Parallelism:          4,
		},
		Extraction: ExtractionConfig{
			Timeout:  "30s",
			CacheTTL: "10m",
		},
	}
}

// Load reads configuration from the platform-native backend, a .env file
// in the working directory, environment variables, and the platform secret
// store.
//
// On macOS the backend is UserDefaults (domain: com.profilesim.app) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/profilesim/config.json
// and secrets come from environment variables or a secrets file.
//
// Environment variables (PROFILESIM_*) override backend values on all
// platforms. DASHSCOPE_API_KEY is accepted for the OpenAI-compatible key.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := Default()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.OpenAI.APIKey == "" {
		if key, err := kc.Get(secretService, "openai_api_key"); err == nil && key != "" {
			cfg.OpenAI.APIKey = key
		}
	}

	return cfg, nil
}

// Session converts the simulation settings into a session configuration.
// Invalid settings are ConfigurationErrors.
func (c Config) Session() (session.Config, error) {
	var order []profile.Dimension
	for _, part := range strings.Split(c.Simulation.PriorityOrder, ",") {
		if part = strings.TrimSpace(part); part != "" {
			order = append(order, profile.Dimension(part))
		}
	}
	timeout, err := c.Extraction.timeout()
	if err != nil {
		return session.Config{}, err
	}

	sc := session.Config{
		Disclosure: disclosure.Config{
			PriorityOrder:      order,
			MaxNewFactsPerTurn: c.Simulation.MaxFactsPerTurn,
			Noise: noise.Model{
				Forgetfulness: c.Noise.Forgetfulness,
				Vagueness:     c.Noise.Vagueness,
				Misleading:    c.Noise.Misleading,
				TopicHopping:  c.Noise.TopicHopping,
			},
		},
		ConvergenceThreshold: c.Simulation.ConvergenceThreshold,
		MaxTurns:             c.Simulation.MaxTurns,
		ExtractTimeout:       timeout,
		ConflictMargin:       c.Simulation.ConflictMargin,
	}
	if err := sc.Validate(); err != nil {
		return session.Config{}, err
	}
	return sc, nil
}

func (e ExtractionConfig) timeout() (time.Duration, error) {
	return parseDuration("extraction.timeout", e.Timeout)
}

// CacheDuration returns the extraction cache TTL; zero disables caching.
func (e ExtractionConfig) CacheDuration() (time.Duration, error) {
	return parseDuration("extraction.cache_ttl", e.CacheTTL)
}

func parseDuration(key, s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, faults.Configf(key, "invalid duration %q", s)
	}
	if d < 0 {
		return 0, faults.Configf(key, "must not be negative, got %s", s)
	}
	return d, nil
}

const secretService = "profilesim"

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// SetSecret stores a secret config value in the platform secret store.
func SetSecret(key, value string) error {
	for _, s := range specs {
		if s.key == key && s.secret {
			return keychainSet(secretService, s.account, value)
		}
	}
	return errUnknownSecret(key)
}
