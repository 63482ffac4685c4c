package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key string
	typ keyType
	env string
	// fallbackEnv is consulted when env is unset.
	fallbackEnv string
	secret      bool
	// account names the secret in the platform secret store.
	account string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "engine.backend", typ: kString, env: "PROFILESIM_ENGINE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Engine.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Backend },
	},
	{
		key: "ollama.base_url", typ: kString, env: "PROFILESIM_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "PROFILESIM_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "openai.base_url", typ: kString, env: "PROFILESIM_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.model", typ: kString, env: "PROFILESIM_OPENAI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.Model },
	},
	{
		key: "openai.api_key", typ: kString, env: "PROFILESIM_OPENAI_API_KEY", fallbackEnv: "DASHSCOPE_API_KEY",
		secret: true, account: "openai_api_key",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PROFILESIM_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "PROFILESIM_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.json", typ: kBool, env: "PROFILESIM_LOG_JSON",
		apply:   func(cfg *Config, v any) { cfg.Log.JSON = v.(bool) },
		extract: func(cfg Config) any { return cfg.Log.JSON },
	},
	{
		key: "simulation.priority_order", typ: kString, env: "PROFILESIM_SIMULATION_PRIORITY_ORDER",
		apply:   func(cfg *Config, v any) { cfg.Simulation.PriorityOrder = v.(string) },
		extract: func(cfg Config) any { return cfg.Simulation.PriorityOrder },
	},
	{
		key: "simulation.max_facts_per_turn", typ: kInt, env: "PROFILESIM_SIMULATION_MAX_FACTS_PER_TURN",
		apply:   func(cfg *Config, v any) { cfg.Simulation.MaxFactsPerTurn = v.(int) },
		extract: func(cfg Config) any { return cfg.Simulation.MaxFactsPerTurn },
	},
	{
		key: "simulation.max_turns", typ: kInt, env: "PROFILESIM_SIMULATION_MAX_TURNS",
		apply:   func(cfg *Config, v any) { cfg.Simulation.MaxTurns = v.(int) },
		extract: func(cfg Config) any { return cfg.Simulation.MaxTurns },
	},
	{
		key: "simulation.convergence_threshold", typ: kFloat, env: "PROFILESIM_SIMULATION_CONVERGENCE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Simulation.ConvergenceThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Simulation.ConvergenceThreshold },
	},
	{
		key: "simulation.conflict_margin", typ: kFloat, env: "PROFILESIM_SIMULATION_CONFLICT_MARGIN",
		apply:   func(cfg *Config, v any) { cfg.Simulation.ConflictMargin = v.(float64) },
		extract: func(cfg Config) any { return cfg.Simulation.ConflictMargin },
	},
	{
		key: "simulation.parallelism", typ: kInt, env: "PROFILESIM_SIMULATION_PARALLELISM",
		apply:   func(cfg *Config, v any) { cfg.Simulation.Parallelism = v.(int) },
		extract: func(cfg Config) any { return cfg.Simulation.Parallelism },
	},
	{
		key: "noise.forgetfulness", typ: kFloat, env: "PROFILESIM_NOISE_FORGETFULNESS",
		apply:   func(cfg *Config, v any) { cfg.Noise.Forgetfulness = v.(float64) },
		extract: func(cfg Config) any { return cfg.Noise.Forgetfulness },
	},
	{
		key: "noise.vagueness", typ: kFloat, env: "PROFILESIM_NOISE_VAGUENESS",
		apply:   func(cfg *Config, v any) { cfg.Noise.Vagueness = v.(float64) },
		extract: func(cfg Config) any { return cfg.Noise.Vagueness },
	},
	{
		key: "noise.misleading", typ: kFloat, env: "PROFILESIM_NOISE_MISLEADING",
		apply:   func(cfg *Config, v any) { cfg.Noise.Misleading = v.(float64) },
		extract: func(cfg Config) any { return cfg.Noise.Misleading },
	},
	{
		key: "noise.topic_hopping", typ: kFloat, env: "PROFILESIM_NOISE_TOPIC_HOPPING",
		apply:   func(cfg *Config, v any) { cfg.Noise.TopicHopping = v.(float64) },
		extract: func(cfg Config) any { return cfg.Noise.TopicHopping },
	},
	{
		key: "extraction.timeout", typ: kString, env: "PROFILESIM_EXTRACTION_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Extraction.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Extraction.Timeout },
	},
	{
		key: "extraction.rate_limit", typ: kFloat, env: "PROFILESIM_EXTRACTION_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Extraction.RateLimit = v.(float64) },
		extract: func(cfg Config) any { return cfg.Extraction.RateLimit },
	},
	{
		key: "extraction.cache_ttl", typ: kString, env: "PROFILESIM_EXTRACTION_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Extraction.CacheTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Extraction.CacheTTL },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetFloat(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" && s.fallbackEnv != "" {
			raw = os.Getenv(s.fallbackEnv)
		}
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
