package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

const (
	defaultMaxAttempts = 3
	maxBackoff         = 5 * time.Minute
)

const jobColumns = `id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error`

func timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	if err := row.Scan(&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError); err != nil {
		return Job{}, err
	}
	j.LastError = lastError.String

	var err error
	if j.RunAfter, err = parseTime(runAfter); err != nil {
		return Job{}, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return Job{}, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Job{}, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return j, nil
}

// EnqueueJob inserts a pending job. MaxAttempts defaults to 3 and RunAfter
// to now.
func (s *Store) EnqueueJob(job Job) error {
	now := timestamp(time.Now())
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = timestamp(job.RunAfter)
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = defaultMaxAttempts
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, JobPending, job.MaxAttempts, runAfter, now, now,
	)
	return err
}

// ClaimNextJob atomically marks the oldest due pending job of one of types
// as running and returns it. It returns nil when nothing is due.
func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := timestamp(time.Now())
	args := []any{JobRunning, now, JobPending, now}
	for _, t := range types {
		args = append(args, t)
	}

	row := s.db.QueryRow(`
		UPDATE jobs SET status = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = ? AND run_after <= ? AND type IN (?`+strings.Repeat(",?", len(types)-1)+`)
			ORDER BY run_after ASC, created_at ASC
			LIMIT 1
		)
		RETURNING `+jobColumns, args...)

	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming next job: %w", err)
	}
	return &j, nil
}

// CompleteJob marks a job completed.
func (s *Store) CompleteJob(id string) error {
	return s.setStatus(id, JobCompleted)
}

func (s *Store) setStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`, status, timestamp(time.Now()), id)
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

// backoff is the delay before retry number attempts: 2^attempts seconds,
// capped at maxBackoff.
func backoff(attempts int) time.Duration {
	if attempts >= 16 {
		return maxBackoff
	}
	return min(time.Duration(1<<attempts)*time.Second, maxBackoff)
}

// FailJob records a failed attempt. The job is retried after an exponential
// backoff until it reaches MaxAttempts, then marked failed.
func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now()
	attempts++
	status, runAfter := JobPending, now.Add(backoff(attempts))
	if attempts >= maxAttempts {
		status, runAfter = JobFailed, now
	}

	if _, err := tx.Exec(`
		UPDATE jobs SET status = ?, attempts = ?, last_error = ?, run_after = ?, updated_at = ?
		WHERE id = ?`,
		status, attempts, errMsg, timestamp(runAfter), timestamp(now), id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// RequeueStale returns running jobs not updated for olderThan to pending.
// A worker that dies mid-session leaves its job running; this makes it
// claimable again. It returns the number of jobs requeued.
func (s *Store) RequeueStale(olderThan time.Duration) (int, error) {
	now := time.Now()
	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, run_after = ?, updated_at = ?
		WHERE status = ? AND updated_at < ?`,
		JobPending, timestamp(now), timestamp(now), JobRunning, timestamp(now.Add(-olderThan)),
	)
	if err != nil {
		return 0, fmt.Errorf("requeueing stale jobs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ListJobs returns jobs with the given status, newest first. An empty
// status lists every job.
func (s *Store) ListJobs(status string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
