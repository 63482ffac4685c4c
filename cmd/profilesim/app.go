package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kalambet/profilesim/internal/config"
	"github.com/kalambet/profilesim/internal/engine"
	"github.com/kalambet/profilesim/internal/extraction"
	"github.com/kalambet/profilesim/internal/faults"
	"github.com/kalambet/profilesim/internal/session"
	"github.com/kalambet/profilesim/internal/storage"
)

const backendStatement = "statement"

// app bundles what every command needs once configuration is loaded.
type app struct {
	cfg      config.Config
	session  session.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *session.Metrics
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newApp(cfg, os.Stderr)
}

func newApp(cfg config.Config, logOut io.Writer) (*app, error) {
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := newLogger(logOut, cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return nil, err
	}
	sc, err := cfg.Session()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	reg := prometheus.NewRegistry()
	return &app{
		cfg:      cfg,
		session:  sc,
		logger:   logger,
		registry: reg,
		metrics:  session.NewMetrics(reg),
	}, nil
}

func newLogger(w io.Writer, level string, asJSON bool) (*slog.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, faults.Configf("log.level", "%v", err)
	}
	opts := log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	}
	if asJSON {
		opts.Formatter = log.JSONFormatter
		opts.TimeFormat = time.RFC3339
	}
	return slog.New(log.NewWithOptions(w, opts)), nil
}

// extractor builds the configured extraction backend, wrapped in the rate
// limiter and cache when those are enabled.
func (a *app) extractor(ctx context.Context, progress io.Writer) (extraction.Extractor, error) {
	var ext extraction.Extractor
	switch a.cfg.Engine.Backend {
	case backendStatement:
		ext = extraction.NewStatementExtractor()
	default:
		eng, err := engine.Detect(engine.DetectConfig{
			Backend:       a.cfg.Engine.Backend,
			OllamaBaseURL: a.cfg.Ollama.BaseURL,
			OpenAIBaseURL: a.cfg.OpenAI.BaseURL,
			OpenAIAPIKey:  a.cfg.OpenAI.APIKey,
		})
		if err != nil {
			return nil, err
		}
		model := a.model()
		if err := engine.EnsureReady(ctx, eng, model, progress); err != nil {
			return nil, err
		}
		ext = extraction.NewLLMExtractor(eng, model, a.session.ExtractTimeout).WithLogger(a.logger)
	}

	if rate := a.cfg.Extraction.RateLimit; rate > 0 {
		ext = extraction.NewRateLimited(ext, rate, 1)
	}
	ttl, err := a.cfg.Extraction.CacheDuration()
	if err != nil {
		return nil, err
	}
	if ttl > 0 {
		ext = extraction.NewCached(ext, ttl)
	}
	return ext, nil
}

// model is the chat model used by the configured backend.
func (a *app) model() string {
	switch a.cfg.Engine.Backend {
	case engine.BackendOpenAI:
		return a.cfg.OpenAI.Model
	case backendStatement:
		return ""
	default:
		return a.cfg.Ollama.Model
	}
}

// backendLabel names the extraction backend in the run ledger.
func (a *app) backendLabel() string {
	if m := a.model(); m != "" {
		return a.cfg.Engine.Backend + ":" + m
	}
	return a.cfg.Engine.Backend
}

func (a *app) runner(ext extraction.Extractor) *session.Runner {
	return session.NewRunner(ext,
		session.WithMetrics(a.metrics),
		session.WithLogger(a.logger),
	)
}

func (a *app) openStore() (*storage.Store, error) {
	store, err := storage.Open(a.cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

// flushMetrics writes the registry to --metrics-file, if set.
func (a *app) flushMetrics() error {
	if metricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(metricsFile, a.registry); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
