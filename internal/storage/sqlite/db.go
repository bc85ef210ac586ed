// Package sqlite implements the storage interfaces using SQLite via modernc.org/sqlite.
// Job definitions and run history live in one database file.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"runtime"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	idx "github.com/riskteria/idx-bei/internal"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements storage.Store. Writes go through a single connection
// and reads through a small pool, both on the same WAL-mode file.
type Store struct {
	write *sql.DB
	read  *sql.DB
	now   func() time.Time
}

var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

// connString turns a file path, or ":memory:", into a modernc DSN with
// the connection pragmas applied. In-memory databases use a shared cache
// so the read pool sees what the writer commits.
func connString(dsn string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	if dsn == ":memory:" {
		q.Set("mode", "memory")
		q.Set("cache", "shared")
		return "file::memory:?" + q.Encode()
	}
	return "file:" + dsn + "?" + q.Encode()
}

// New opens the database at dsn and brings its schema up to date.
func New(dsn string) (*Store, error) {
	conn := connString(dsn)

	write, err := sql.Open("sqlite", conn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open %s: %w", dsn, err)
	}
	write.SetMaxOpenConns(1)

	if err := migrate(context.Background(), write); err != nil {
		write.Close()
		return nil, err
	}

	read, err := sql.Open("sqlite", conn)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("sqlite open %s: %w", dsn, err)
	}
	read.SetMaxOpenConns(max(4, runtime.NumCPU()))

	return &Store{write: write, read: read, now: time.Now}, nil
}

// migrate applies pending goose migrations from the embedded
// migrations directory and logs each version it applies.
func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	for _, r := range results {
		slog.LogAttrs(ctx, slog.LevelInfo, "migration applied",
			slog.Int64("version", r.Source.Version),
			slog.Duration("duration", r.Duration),
		)
	}
	return nil
}

// Ping checks the read pool; it backs /readyz.
func (s *Store) Ping(ctx context.Context) error {
	return s.read.PingContext(ctx)
}

// Close releases both pools.
func (s *Store) Close() error {
	return errors.Join(s.write.Close(), s.read.Close())
}

// timeLayout keeps sub-second precision so run ordering survives a round trip.
const timeLayout = time.RFC3339Nano

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// notFoundErr translates sql.ErrNoRows to idx.ErrNotFound.
func notFoundErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return idx.ErrNotFound
	}
	return err
}

func checkRowsAffected(result sql.Result, entity string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, idx.ErrNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
