package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	idx "github.com/riskteria/idx-bei/internal"
)

const jobColumns = `name, url, output, cache_ttl_ms, headers, merge, each_source, each_path,
	paginate_param, paginate_data_path, paginate_start, created_at, updated_at`

// UpsertJob inserts a job or updates the existing job with the same name.
// CreatedAt is kept from the first insert.
func (s *Store) UpsertJob(ctx context.Context, j *idx.Job) error {
	headers, err := marshalHeaders(j.Headers)
	if err != nil {
		return err
	}
	var eachSource, eachPath sql.NullString
	if j.Each != nil {
		eachSource, eachPath = nullStr(j.Each.Source), nullStr(j.Each.Path)
	}
	var pageParam, pagePath sql.NullString
	pageStart := 1
	if j.Paginate != nil {
		pageParam, pagePath = nullStr(j.Paginate.Param), nullStr(j.Paginate.DataPath)
		pageStart = j.Paginate.Start
	}
	now := s.now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now

	_, err = s.write.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   url=excluded.url, output=excluded.output, cache_ttl_ms=excluded.cache_ttl_ms,
		   headers=excluded.headers, merge=excluded.merge,
		   each_source=excluded.each_source, each_path=excluded.each_path,
		   paginate_param=excluded.paginate_param, paginate_data_path=excluded.paginate_data_path,
		   paginate_start=excluded.paginate_start,
		   updated_at=excluded.updated_at`,
		j.Name, j.URL, j.Output, j.CacheTTL.Milliseconds(), headers, boolToInt(j.Merge),
		eachSource, eachPath, pageParam, pagePath, pageStart,
		formatTime(j.CreatedAt), formatTime(j.UpdatedAt),
	)
	return err
}

// GetJob retrieves a job by name.
func (s *Store) GetJob(ctx context.Context, name string) (*idx.Job, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE name=?`, name,
	)
	return scanJob(row)
}

// ListJobs returns all jobs ordered by name.
func (s *Store) ListJobs(ctx context.Context) ([]*idx.Job, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*idx.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// DeleteJob removes a job. Its run history is kept.
func (s *Store) DeleteJob(ctx context.Context, name string) error {
	result, err := s.write.ExecContext(ctx, `DELETE FROM jobs WHERE name=?`, name)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "job")
}

func scanJob(s scanner) (*idx.Job, error) {
	var (
		j                    idx.Job
		ttlMs                int64
		headers              sql.NullString
		merge                int
		eachSource, eachPath sql.NullString
		pageParam, pagePath  sql.NullString
		pageStart            int
		created, updated     string
	)
	err := s.Scan(&j.Name, &j.URL, &j.Output, &ttlMs, &headers, &merge, &eachSource, &eachPath,
		&pageParam, &pagePath, &pageStart, &created, &updated)
	if err != nil {
		return nil, notFoundErr(err)
	}
	j.CacheTTL = time.Duration(ttlMs) * time.Millisecond
	j.Merge = merge != 0
	if eachSource.Valid {
		j.Each = &idx.Each{Source: eachSource.String, Path: eachPath.String}
	}
	if pageParam.Valid {
		j.Paginate = &idx.Paginate{Param: pageParam.String, DataPath: pagePath.String, Start: pageStart}
	}
	j.CreatedAt = parseTime(created)
	j.UpdatedAt = parseTime(updated)
	if headers.Valid && headers.String != "" {
		if err := json.Unmarshal([]byte(headers.String), &j.Headers); err != nil {
			return nil, fmt.Errorf("job %s: decode headers: %w", j.Name, err)
		}
	}
	return &j, nil
}

func marshalHeaders(h http.Header) (sql.NullString, error) {
	if len(h) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
