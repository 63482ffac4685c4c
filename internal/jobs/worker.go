// Package jobs runs queued simulation sessions from the SQLite job queue
// and records their results in the run ledger.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/profilesim/internal/persona"
	"github.com/kalambet/profilesim/internal/session"
	"github.com/kalambet/profilesim/internal/storage"
)

// TypeSimulate is the job type for one queued session.
const TypeSimulate = "simulate"

// staleAfter is how long a job may stay running before a starting worker
// assumes its previous owner died.
const staleAfter = time.Hour

// Payload describes a queued session. PersonaFile, when set, takes
// precedence over the built-in Persona.
type Payload struct {
	Persona     string         `json:"persona"`
	PersonaFile string         `json:"persona_file,omitempty"`
	Seed        uint64         `json:"seed"`
	Config      session.Config `json:"config"`
}

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	RequeueStale(olderThan time.Duration) (int, error)
	GetRun(id string) (storage.Run, error)
	RunSaver
}

// JobEnqueuer adds jobs to the queue.
type JobEnqueuer interface {
	EnqueueJob(job storage.Job) error
}

// SessionRunner runs one session.
type SessionRunner interface {
	Run(ctx context.Context, spec session.Spec) (*session.Result, error)
}

// Enqueue validates p and queues it as a simulate job. A persona file is
// checked and stored as an absolute path. It returns the job ID.
func Enqueue(store JobEnqueuer, p Payload, maxAttempts int) (string, error) {
	if err := p.Config.Validate(); err != nil {
		return "", err
	}
	if p.Persona == "" && p.PersonaFile == "" {
		return "", fmt.Errorf("payload names no persona")
	}
	if p.PersonaFile != "" {
		// The worker may run from another directory.
		abs, err := filepath.Abs(p.PersonaFile)
		if err != nil {
			return "", fmt.Errorf("resolving persona file: %w", err)
		}
		if _, err := persona.LoadFile(abs); err != nil {
			return "", err
		}
		p.PersonaFile = abs
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        TypeSimulate,
		PayloadJSON: string(data),
		MaxAttempts: maxAttempts,
	}
	if err := store.EnqueueJob(job); err != nil {
		return "", fmt.Errorf("enqueueing job: %w", err)
	}
	return job.ID, nil
}

// Worker processes simulate jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	runner  SessionRunner
	backend string
	poll    time.Duration
	logger  *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithLogger sets the worker's logger. The default is slog.Default().
func WithLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = l }
}

// NewWorker creates a Worker with the given dependencies. backend is the
// extraction backend name stored with each run.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, runner SessionRunner, backend string, pollInterval time.Duration, opts ...WorkerOption) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	w := &Worker{
		store:   store,
		runner:  runner,
		backend: backend,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Worker) requeueStale() {
	n, err := w.store.RequeueStale(staleAfter)
	if err != nil {
		w.logger.Error("requeueing stale jobs", "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("requeued stale jobs", "count", n)
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.requeueStale()
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// Drain processes due jobs until none is left and returns how many it
// handled.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	w.requeueStale()
	n := 0
	for ctx.Err() == nil {
		done, err := w.RunOnce(ctx)
		if err != nil {
			return n, err
		}
		if !done {
			return n, nil
		}
		n++
	}
	return n, ctx.Err()
}

// RunOnce claims and processes a single simulate job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{TypeSimulate})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	// A requeued job whose run was saved before its worker died is done.
	_, err := w.store.GetRun(job.ID)
	if err == nil {
		w.logger.Info("run already recorded", "job_id", job.ID)
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("checking for recorded run: %w", err)
	}

	var payload Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	p, err := persona.Resolve(payload.Persona, payload.PersonaFile)
	if err != nil {
		return fmt.Errorf("resolving persona: %w", err)
	}

	res, err := w.runner.Run(ctx, session.Spec{
		ID:          job.ID,
		Persona:     p.Name,
		GroundTruth: p.Profile,
		Config:      payload.Config,
		Seed:        payload.Seed,
	})
	if err != nil {
		return fmt.Errorf("running session: %w", err)
	}

	if err := Save(w.store, res, w.backend); err != nil {
		return err
	}
	w.logger.Info("job complete", "job_id", job.ID, "persona", p.Name, "accuracy", res.FinalReport().OverallAccuracy)
	return nil
}
