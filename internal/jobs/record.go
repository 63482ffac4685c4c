package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/kalambet/profilesim/internal/session"
	"github.com/kalambet/profilesim/internal/storage"
)

// RunSaver persists a finished run.
type RunSaver interface {
	SaveRun(run storage.Run, turns []storage.TurnReport, conflicts []storage.Conflict) error
}

// Record converts a session result into ledger rows.
func Record(res *session.Result, backend string) (storage.Run, []storage.TurnReport, []storage.Conflict, error) {
	cfg, err := json.Marshal(res.Config)
	if err != nil {
		return storage.Run{}, nil, nil, fmt.Errorf("encoding config: %w", err)
	}
	final, err := json.Marshal(res.Final)
	if err != nil {
		return storage.Run{}, nil, nil, fmt.Errorf("encoding final profile: %w", err)
	}
	expressed, err := json.Marshal(res.Expressed)
	if err != nil {
		return storage.Run{}, nil, nil, fmt.Errorf("encoding expressed profile: %w", err)
	}

	report := res.FinalReport()
	run := storage.Run{
		ID:               res.ID,
		Persona:          res.Persona,
		Seed:             res.Seed,
		Backend:          backend,
		ConfigJSON:       string(cfg),
		Turns:            len(res.Turns),
		FinalAccuracy:    report.OverallAccuracy,
		FinalRecall:      report.Recall,
		Converged:        res.Converged,
		ConvergedTurn:    res.ConvergedTurn,
		Exhausted:        res.Exhausted,
		FinalProfileJSON: string(final),
		ExpressedJSON:    string(expressed),
		StartedAt:        res.StartedAt,
		FinishedAt:       res.FinishedAt,
	}

	turns := make([]storage.TurnReport, 0, len(res.Turns))
	for _, t := range res.Turns {
		data, err := json.Marshal(t.Report)
		if err != nil {
			return storage.Run{}, nil, nil, fmt.Errorf("encoding report for turn %d: %w", t.Number, err)
		}
		turns = append(turns, storage.TurnReport{
			RunID:           res.ID,
			Turn:            t.Number,
			Text:            t.Text,
			ExtractionError: t.ExtractionError,
			Accuracy:        t.Report.OverallAccuracy,
			Recall:          t.Report.Recall,
			ReportJSON:      string(data),
		})
	}

	var conflicts []storage.Conflict
	for _, c := range res.Conflicts() {
		oldValue, err := json.Marshal(c.Old.Value)
		if err != nil {
			return storage.Run{}, nil, nil, err
		}
		newValue, err := json.Marshal(c.New.Value)
		if err != nil {
			return storage.Run{}, nil, nil, err
		}
		conflicts = append(conflicts, storage.Conflict{
			RunID:         res.ID,
			Turn:          c.Turn,
			Dimension:     string(c.Dimension),
			Field:         c.Field,
			OldValue:      string(oldValue),
			OldConfidence: c.Old.Confidence,
			NewValue:      string(newValue),
			NewConfidence: c.New.Confidence,
			Decision:      string(c.Decision),
		})
	}
	return run, turns, conflicts, nil
}

// Save records res in store.
func Save(store RunSaver, res *session.Result, backend string) error {
	run, turns, conflicts, err := Record(res, backend)
	if err != nil {
		return err
	}
	if err := store.SaveRun(run, turns, conflicts); err != nil {
		return fmt.Errorf("saving run %s: %w", res.ID, err)
	}
	return nil
}
