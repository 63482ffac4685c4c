// Package extraction turns a person's utterance into a partial profile. It
// holds the Extractor contract plus an LLM-backed implementation, an offline
// implementation that reads the simulator's own sentences, and caching and
// rate-limiting decorators.
package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/profilesim/internal/engine"
	"github.com/kalambet/profilesim/internal/faults"
	"github.com/kalambet/profilesim/internal/profile"
)

// Extractor produces a validated partial profile from free text. Fields the
// text says nothing about are null. Failures are ExternalCallFailures.
type Extractor interface {
	Extract(ctx context.Context, text string) (profile.Profile, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, text string) (profile.Profile, error)

func (f Func) Extract(ctx context.Context, text string) (profile.Profile, error) {
	return f(ctx, text)
}

// DefaultTimeout bounds one LLM extraction call.
const DefaultTimeout = 30 * time.Second

// LLMExtractor asks a chat model to fill the profile schema from the text.
type LLMExtractor struct {
	engine  engine.Engine
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewLLMExtractor creates an extractor over eng using model. A zero timeout
// uses DefaultTimeout.
func NewLLMExtractor(eng engine.Engine, model string, timeout time.Duration) *LLMExtractor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LLMExtractor{engine: eng, model: model, timeout: timeout, logger: slog.Default()}
}

// WithLogger returns a copy of e that logs to l.
func (e *LLMExtractor) WithLogger(l *slog.Logger) *LLMExtractor {
	cp := *e
	cp.logger = l
	return &cp
}

// Extract sends the text to the model and decodes its reply. Unknown fields
// and ill-typed values in the reply are dropped with a warning; an
// unparseable reply is an error.
func (e *LLMExtractor) Extract(ctx context.Context, text string) (profile.Profile, error) {
	if text == "" {
		return profile.Init(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.engine.Chat(ctx, e.model, BuildPrompt(text), profileSchema())
	if err != nil {
		return nil, faults.External("extract", err)
	}

	p, dropped, err := Decode(raw)
	if err != nil {
		e.logger.Warn("unparseable extraction response", "error", err, "response", raw)
		return nil, faults.External("extract", fmt.Errorf("decoding response: %w", err))
	}
	for _, d := range dropped {
		e.logger.Warn("dropping extracted field", "field", d.Key.String(), "reason", d.Reason)
	}
	return p, nil
}

// profileSchema returns the JSON schema hint: one object per dimension, one
// {value, confidence} object per field.
func profileSchema() *engine.Schema {
	dims := map[string]engine.SchemaProperty{}
	for _, d := range profile.Schema() {
		fields := make(map[string]engine.SchemaProperty, len(d.Fields))
		for _, f := range d.Fields {
			fields[f.Name] = engine.Object(fieldHint(f), nil)
		}
		dims[string(d.Name)] = engine.Object(d.Description, fields)
	}
	return engine.ObjectSchema(dims)
}
