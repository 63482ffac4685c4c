package engine

import "github.com/kalambet/profilesim/internal/faults"

// Backend names accepted by Detect.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Backend       string
	OllamaBaseURL string
	OpenAIBaseURL string
	OpenAIAPIKey  string
}

// Detect returns the engine for cfg.Backend. An empty backend means Ollama.
func Detect(cfg DetectConfig) (Engine, error) {
	switch cfg.Backend {
	case "", BackendOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL), nil
	case BackendOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, faults.Configf("openai.api_key", "required for the %s backend (set PROFILESIM_OPENAI_API_KEY or DASHSCOPE_API_KEY)", BackendOpenAI)
		}
		return NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	default:
		return nil, faults.Configf("engine.backend", "unknown backend %q", cfg.Backend)
	}
}
