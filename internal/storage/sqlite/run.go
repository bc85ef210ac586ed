package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	idx "github.com/riskteria/idx-bei/internal"
)

const runColumns = `id, job, started_at, finished_at, status, error, bytes, output, request_id`

// InsertRun records a finished job run.
func (s *Store) InsertRun(ctx context.Context, r *idx.JobRun) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO job_runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Job, formatTime(r.StartedAt), formatTime(r.FinishedAt), string(r.Status),
		nullStr(r.Error), r.Bytes, r.Output, nullStr(r.RequestID),
	)
	return err
}

// ListRuns returns runs newest first. Run IDs are UUIDv7, so ID order is
// start order.
func (s *Store) ListRuns(ctx context.Context, f idx.RunFilter) ([]*idx.JobRun, error) {
	var (
		where []string
		args  []any
	)
	if f.Job != "" {
		where = append(where, "job=?")
		args = append(args, f.Job)
	}
	q := `SELECT ` + runColumns + ` FROM job_runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, max(0, f.Offset))

	rows, err := s.read.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*idx.JobRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastRun returns the most recent run of job.
func (s *Store) LastRun(ctx context.Context, job string) (*idx.JobRun, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM job_runs WHERE job=? ORDER BY id DESC LIMIT 1`, job,
	)
	return scanRun(row)
}

// PruneRuns deletes runs that started before the cutoff and returns how
// many were removed.
func (s *Store) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.write.ExecContext(ctx,
		`DELETE FROM job_runs WHERE started_at < ?`, formatTime(before),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanRun(s scanner) (*idx.JobRun, error) {
	var (
		r                 idx.JobRun
		started, finished string
		status            string
		errMsg, requestID sql.NullString
	)
	err := s.Scan(&r.ID, &r.Job, &started, &finished, &status, &errMsg, &r.Bytes, &r.Output, &requestID)
	if err != nil {
		return nil, notFoundErr(err)
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	r.Status = idx.RunStatus(status)
	r.Error = errMsg.String
	r.RequestID = requestID.String
	return &r, nil
}
