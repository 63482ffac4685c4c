package engine

import (
	"errors"
	"testing"

	"github.com/kalambet/profilesim/internal/faults"
)

func TestDetect_DefaultsToOllama(t *testing.T) {
	e, err := Detect(DetectConfig{OllamaBaseURL: "http://localhost:11434"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OllamaEngine); !ok {
		t.Errorf("Detect returned %T, want *OllamaEngine", e)
	}
	if _, ok := e.(ModelManager); !ok {
		t.Error("OllamaEngine should implement ModelManager")
	}
}

func TestDetect_OpenAI(t *testing.T) {
	e, err := Detect(DetectConfig{Backend: BackendOpenAI, OpenAIAPIKey: "sk-test", OpenAIBaseURL: DashScopeBaseURL})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OpenAIEngine); !ok {
		t.Errorf("Detect returned %T, want *OpenAIEngine", e)
	}
}

func TestDetect_OpenAIWithoutKey(t *testing.T) {
	_, err := Detect(DetectConfig{Backend: BackendOpenAI})
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}

func TestDetect_UnknownBackend(t *testing.T) {
	_, err := Detect(DetectConfig{Backend: "mlx"})
	if !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}
