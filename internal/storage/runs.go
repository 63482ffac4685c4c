package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveRun stores a run with its turn reports and conflicts in one
// transaction.
func (s *Store) SaveRun(run Run, turns []TurnReport, conflicts []Conflict) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning save transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, persona, seed, backend, config_json, turns, final_accuracy, final_recall,
			converged, converged_turn, exhausted, final_profile_json, expressed_json, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Persona, int64(run.Seed), run.Backend, orEmptyObject(run.ConfigJSON), run.Turns,
		run.FinalAccuracy, run.FinalRecall, run.Converged, run.ConvergedTurn, run.Exhausted,
		orEmptyObject(run.FinalProfileJSON), orEmptyObject(run.ExpressedJSON),
		run.StartedAt.UTC().Format(time.RFC3339Nano), run.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	for _, tr := range turns {
		if _, err := tx.Exec(`
			INSERT INTO turn_reports (run_id, turn, text, extraction_error, accuracy, recall, report_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, tr.Turn, tr.Text, tr.ExtractionError, tr.Accuracy, tr.Recall, orEmptyObject(tr.ReportJSON),
		); err != nil {
			return fmt.Errorf("inserting turn %d of run %s: %w", tr.Turn, run.ID, err)
		}
	}

	for _, c := range conflicts {
		if _, err := tx.Exec(`
			INSERT INTO conflicts (run_id, turn, dimension, field, old_value, old_confidence, new_value, new_confidence, decision)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, c.Turn, c.Dimension, c.Field, c.OldValue, c.OldConfidence, c.NewValue, c.NewConfidence, c.Decision,
		); err != nil {
			return fmt.Errorf("inserting conflict for run %s: %w", run.ID, err)
		}
	}

	return tx.Commit()
}

func orEmptyObject(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}

const runColumns = `id, persona, seed, backend, config_json, turns, final_accuracy, final_recall,
	converged, converged_turn, exhausted, final_profile_json, expressed_json, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var seed int64
	var startedAt, finishedAt string
	if err := row.Scan(&r.ID, &r.Persona, &seed, &r.Backend, &r.ConfigJSON, &r.Turns,
		&r.FinalAccuracy, &r.FinalRecall, &r.Converged, &r.ConvergedTurn, &r.Exhausted,
		&r.FinalProfileJSON, &r.ExpressedJSON, &startedAt, &finishedAt); err != nil {
		return Run{}, err
	}
	r.Seed = uint64(seed)

	var err error
	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return Run{}, fmt.Errorf("parsing started_at for run %s: %w", r.ID, err)
	}
	if r.FinishedAt, err = parseTime(finishedAt); err != nil {
		return Run{}, fmt.Errorf("parsing finished_at for run %s: %w", r.ID, err)
	}
	return r, nil
}

// GetRun returns the run with the given ID.
func (s *Store) GetRun(id string) (Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Run{}, ErrNotFound
	}
	return r, err
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(f RunFilter) ([]Run, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if f.Persona != "" {
		query += ` WHERE persona = ?`
		args = append(args, f.Persona)
	}
	query += ` ORDER BY started_at DESC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetTurnReports returns the turn reports of a run in turn order.
func (s *Store) GetTurnReports(runID string) ([]TurnReport, error) {
	rows, err := s.db.Query(`
		SELECT run_id, turn, text, extraction_error, accuracy, recall, report_json
		FROM turn_reports WHERE run_id = ? ORDER BY turn ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TurnReport
	for rows.Next() {
		var tr TurnReport
		if err := rows.Scan(&tr.RunID, &tr.Turn, &tr.Text, &tr.ExtractionError, &tr.Accuracy, &tr.Recall, &tr.ReportJSON); err != nil {
			return nil, err
		}
		results = append(results, tr)
	}
	return results, rows.Err()
}

// GetConflicts returns the conflicts of a run in the order they were
// recorded.
func (s *Store) GetConflicts(runID string) ([]Conflict, error) {
	rows, err := s.db.Query(`
		SELECT run_id, turn, dimension, field, old_value, old_confidence, new_value, new_confidence, decision
		FROM conflicts WHERE run_id = ? ORDER BY turn ASC, id ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Conflict
	for rows.Next() {
		var c Conflict
		if err := rows.Scan(&c.RunID, &c.Turn, &c.Dimension, &c.Field, &c.OldValue, &c.OldConfidence,
			&c.NewValue, &c.NewConfidence, &c.Decision); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// DeleteRun removes a run together with its turn reports and conflicts.
func (s *Store) DeleteRun(id string) error {
	res, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
