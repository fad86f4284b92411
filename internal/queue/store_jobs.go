package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const insertJobSQL = `INSERT INTO jobs (
    pass, position, source_path, definition_path, derived, status,
    intermediate_path, chrom_path, result_path, error_message,
    progress_stage, progress_percent, progress_message, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertJob(ctx context.Context, db execer, job *Job, now time.Time) error {
	if job.Pass <= 0 {
		job.Pass = 1
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	timestamp := now.Format(time.RFC3339Nano)
	res, err := db.ExecContext(
		ctx,
		insertJobSQL,
		job.Pass,
		job.Position,
		job.SourcePath,
		job.DefinitionPath,
		boolToInt(job.Derived),
		job.Status,
		nullableString(job.IntermediatePath),
		nullableString(job.ChromPath),
		nullableString(job.ResultPath),
		nullableString(job.ErrorMessage),
		nullableString(job.ProgressStage),
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		timestamp,
		timestamp,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	job.ID = id
	return nil
}

// Insert appends a job to the batch table and assigns its ID.
func (s *Store) Insert(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if _, ok := statusSet[job.Status]; !ok {
		return fmt.Errorf("insert job: unknown status %q", job.Status)
	}
	ctx = ensureContext(ctx)
	if err := retryOnBusy(ctx, func() error {
		return insertJob(ctx, s.db, job, time.Now().UTC())
	}); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID fetches a job by identifier. It returns nil when the job is absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, intermediate_path = ?, chrom_path = ?, result_path = ?,
             error_message = ?, progress_stage = ?, progress_percent = ?,
             progress_message = ?, updated_at = ?
         WHERE id = ?`,
		job.Status,
		nullableString(job.IntermediatePath),
		nullableString(job.ChromPath),
		nullableString(job.ResultPath),
		nullableString(job.ErrorMessage),
		nullableString(job.ProgressStage),
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		job.UpdatedAt.Format(time.RFC3339Nano),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// List returns jobs in batch order, filtered by status when any are given.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY pass, position, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Replace clears the batch table and repopulates it with jobs in a single
// transaction. Jobs receive fresh IDs.
func (s *Store) Replace(ctx context.Context, jobs []*Job) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin replace tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
			return fmt.Errorf("clear jobs: %w", err)
		}
		now := time.Now().UTC()
		for _, job := range jobs {
			if job == nil {
				continue
			}
			if err := insertJob(ctx, tx, job, now); err != nil {
				return fmt.Errorf("insert replacement job: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit replace: %w", err)
		}
		return nil
	})
}

// Clear removes jobs with the given statuses, or every job when none are given.
func (s *Store) Clear(ctx context.Context, statuses ...Status) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if len(statuses) == 0 {
		res, err = s.execWithRetry(ctx, `DELETE FROM jobs`)
	} else {
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		res, err = s.execWithRetry(ctx, `DELETE FROM jobs WHERE status IN (`+makePlaceholders(len(statuses))+`)`, args...)
	}
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
