package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run is one finished simulation session. Profiles and config are stored
// as JSON text.
type Run struct {
	ID               string
	Persona          string
	Seed             uint64
	Backend          string
	ConfigJSON       string
	Turns            int
	FinalAccuracy    float64
	FinalRecall      float64
	Converged        bool
	ConvergedTurn    int
	Exhausted        bool
	FinalProfileJSON string
	ExpressedJSON    string
	StartedAt        time.Time
	FinishedAt       time.Time
}

// TurnReport is the evaluation of one turn of a run.
type TurnReport struct {
	RunID           string
	Turn            int
	Text            string
	ExtractionError string
	Accuracy        float64
	Recall          float64
	ReportJSON      string
}

// Conflict is one fusion conflict recorded during a run. Values are JSON.
type Conflict struct {
	RunID         string
	Turn          int
	Dimension     string
	Field         string
	OldValue      string
	OldConfidence float64
	NewValue      string
	NewConfidence float64
	Decision      string
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Persona string
	Limit   int
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
