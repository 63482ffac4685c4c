package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/profilesim/internal/extraction"
	"github.com/kalambet/profilesim/internal/persona"
	"github.com/kalambet/profilesim/internal/session"
	"github.com/kalambet/profilesim/internal/storage"
)

type mockRunner struct {
	calls atomic.Int32
	runFn func(ctx context.Context, spec session.Spec) (*session.Result, error)
}

func (m *mockRunner) Run(ctx context.Context, spec session.Spec) (*session.Result, error) {
	m.calls.Add(1)
	return m.runFn(ctx, spec)
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPayload() Payload {
	cfg := session.DefaultConfig()
	cfg.Disclosure.MaxNewFactsPerTurn = 2
	return Payload{Persona: "sparse", Seed: 3, Config: cfg}
}

func TestEnqueue(t *testing.T) {
	store := openTestStore(t)

	id, err := Enqueue(store, testPayload(), 0)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, err := store.ClaimNextJob([]string{TypeSimulate})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil || job.ID != id {
		t.Fatalf("claimed %+v, want job %s", job, id)
	}

	var p Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if p.Persona != "sparse" || p.Seed != 3 || p.Config.Disclosure.MaxNewFactsPerTurn != 2 {
		t.Errorf("payload = %+v", p)
	}
	if p.Config.ExtractTimeout != 30*time.Second {
		t.Errorf("ExtractTimeout = %v", p.Config.ExtractTimeout)
	}
}

func TestEnqueue_Invalid(t *testing.T) {
	store := openTestStore(t)

	bad := testPayload()
	bad.Config.MaxTurns = 0
	if _, err := Enqueue(store, bad, 0); err == nil {
		t.Error("expected config error")
	}

	noPersona := testPayload()
	noPersona.Persona = ""
	if _, err := Enqueue(store, noPersona, 0); err == nil {
		t.Error("expected error for missing persona")
	}

	jobs, err := store.ListJobs("", 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("invalid payloads were queued: %d jobs", len(jobs))
	}
}

func TestWorker_ProcessesJob(t *testing.T) {
	store := openTestStore(t)
	id, err := Enqueue(store, testPayload(), 0)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	runner := session.NewRunner(extraction.NewStatementExtractor())
	w := NewWorker(store, runner, "statement", 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("expected RunOnce to process a job")
	}

	run, err := store.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Persona != "sparse" || run.Backend != "statement" || run.Seed != 3 {
		t.Errorf("run = %+v", run)
	}
	if run.FinalAccuracy != 1 || !run.Converged || !run.Exhausted {
		t.Errorf("noiseless run did not converge: %+v", run)
	}

	turns, err := store.GetTurnReports(id)
	if err != nil {
		t.Fatalf("GetTurnReports: %v", err)
	}
	if len(turns) != run.Turns || len(turns) != 2 {
		t.Errorf("got %d turn reports for %d turns", len(turns), run.Turns)
	}

	completed, err := store.ListJobs(storage.JobCompleted, 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(completed) != 1 {
		t.Errorf("got %d completed jobs, want 1", len(completed))
	}
}

func TestWorker_NoJobs(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockRunner{}, "statement", 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if didWork {
		t.Error("expected no work")
	}
}

func TestWorker_FailedSessionRetries(t *testing.T) {
	store := openTestStore(t)
	id, err := Enqueue(store, testPayload(), 2)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	runner := &mockRunner{runFn: func(context.Context, session.Spec) (*session.Result, error) {
		return nil, errors.New("backend down")
	}}
	w := NewWorker(store, runner, "ollama", 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("expected RunOnce to process a job")
	}

	pending, err := store.ListJobs(storage.JobPending, 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("pending = %+v", pending)
	}
	if pending[0].Attempts != 1 || pending[0].LastError == "" {
		t.Errorf("job = %+v", pending[0])
	}
	if !pending[0].RunAfter.After(time.Now().UTC()) {
		t.Error("failed job should be delayed by backoff")
	}

	if _, err := store.GetRun(id); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("failed session was recorded: %v", err)
	}
}

func TestWorker_UnknownPersonaFails(t *testing.T) {
	store := openTestStore(t)
	p := testPayload()
	p.Persona = "nobody"
	if _, err := Enqueue(store, p, 1); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	runner := &mockRunner{}
	w := NewWorker(store, runner, "statement", 0)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if runner.calls.Load() != 0 {
		t.Error("runner should not be called for an unknown persona")
	}

	failed, err := store.ListJobs(storage.JobFailed, 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(failed) != 1 {
		t.Errorf("got %d failed jobs, want 1", len(failed))
	}
}

func TestWorker_Drain(t *testing.T) {
	store := openTestStore(t)
	for seed := uint64(1); seed <= 3; seed++ {
		p := testPayload()
		p.Seed = seed
		if _, err := Enqueue(store, p, 0); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	w := NewWorker(store, session.NewRunner(extraction.NewStatementExtractor()), "statement", 0)
	n, err := w.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 3 {
		t.Errorf("drained %d jobs, want 3", n)
	}

	runs, err := store.ListRuns(storage.RunFilter{Persona: "sparse"})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("got %d runs, want 3", len(runs))
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockRunner{}, "statement", 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

type requeueCounter struct {
	*storage.Store
	calls     int
	olderThan time.Duration
}

func (r *requeueCounter) RequeueStale(olderThan time.Duration) (int, error) {
	r.calls++
	r.olderThan = olderThan
	return r.Store.RequeueStale(olderThan)
}

func TestWorker_DrainRequeuesStaleFirst(t *testing.T) {
	store := &requeueCounter{Store: openTestStore(t)}
	w := NewWorker(store, &mockRunner{}, "statement", 0)

	n, err := w.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 0 {
		t.Errorf("drained %d jobs from an empty queue", n)
	}
	if store.calls != 1 || store.olderThan != staleAfter {
		t.Errorf("RequeueStale calls = %d with %v, want 1 with %v", store.calls, store.olderThan, staleAfter)
	}
}

func TestEnqueue_PersonaFileRelativeToCaller(t *testing.T) {
	store := openTestStore(t)

	t.Chdir(t.TempDir())
	doc := "name: me\nprofile:\n  identity_language:\n    age: 81\n"
	if err := os.WriteFile("me.yaml", []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	p := testPayload()
	p.Persona = ""
	p.PersonaFile = "./me.yaml"
	id, err := Enqueue(store, p, 1)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// The worker runs somewhere else.
	t.Chdir(t.TempDir())
	w := NewWorker(store, session.NewRunner(extraction.NewStatementExtractor()), "statement", 0)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	run, err := store.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Persona != "me" {
		t.Errorf("persona = %q, want me", run.Persona)
	}
}

func TestEnqueue_MissingPersonaFile(t *testing.T) {
	store := openTestStore(t)
	p := testPayload()
	p.PersonaFile = filepath.Join(t.TempDir(), "absent.yaml")
	if _, err := Enqueue(store, p, 0); err == nil {
		t.Fatal("expected error for a missing persona file")
	}
	list, err := store.ListJobs("", 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("queued %d jobs for a missing file", len(list))
	}
}

func TestWorker_CompletesJobWithRecordedRun(t *testing.T) {
	store := openTestStore(t)
	id, err := Enqueue(store, testPayload(), 0)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// A previous worker saved the run but died before completing the job.
	prev := session.NewRunner(extraction.NewStatementExtractor())
	sparse, err := persona.ByName("sparse")
	if err != nil {
		t.Fatal(err)
	}
	res, err := prev.Run(context.Background(), session.Spec{ID: id, Persona: sparse.Name, GroundTruth: sparse.Profile, Config: testPayload().Config, Seed: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := Save(store, res, "statement"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	runner := &mockRunner{}
	w := NewWorker(store, runner, "statement", 0)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if runner.calls.Load() != 0 {
		t.Error("session ran again for a recorded run")
	}
	completed, err := store.ListJobs(storage.JobCompleted, 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != id {
		t.Errorf("completed = %+v, want job %s", completed, id)
	}
}

func TestWorker_WithLogger(t *testing.T) {
	store := openTestStore(t)
	if _, err := Enqueue(store, testPayload(), 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	w := NewWorker(store, session.NewRunner(extraction.NewStatementExtractor()), "statement", 0, WithLogger(logger))
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !strings.Contains(buf.String(), "job complete") {
		t.Errorf("log = %q, want the job completion", buf.String())
	}
}
