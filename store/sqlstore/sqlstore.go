// Package sqlstore persists key records, grants and revisions in a SQL
// database. It speaks to postgres through the instrumented postgresx driver
// and to SQLite through modernc.org/sqlite.
package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/pq"
	"github.com/remind101/pagecrypt/retry"
	"github.com/remind101/pagecrypt/store"
	_ "modernc.org/sqlite"
)

const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// Store implements keys.Store, grants.Store and content.RevisionStore.
type Store struct {
	db      *sql.DB
	dialect string
	retrier *retry.Retrier
}

// Open connects to the database. dialect is Postgres or SQLite; for SQLite,
// url is a file name or ":memory:".
func Open(dialect, url string) (*Store, error) {
	var driverName string
	switch dialect {
	case Postgres:
		driverName = pq.DriverName
	case SQLite:
		driverName = "sqlite"
	default:
		return nil, errors.Errorf("sqlstore: unsupported dialect %q", dialect)
	}

	db, err := sql.Open(driverName, url)
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore: open")
	}
	if dialect == SQLite {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}
	return New(db, dialect), nil
}

// New wraps an open database.
func New(db *sql.DB, dialect string) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		retrier: store.NewRetrier("sqlstore", store.Transient),
	}
}

// OpenMemory returns a migrated store backed by an in-memory SQLite database.
func OpenMemory(ctx context.Context) (*Store, error) {
	s, err := Open(SQLite, ":memory:")
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the tables if they don't exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaFor(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return store.Wrap("migrate", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $n for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, op, query string, args ...interface{}) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, store.Wrap(op, err)
	}
	return res, nil
}

// query runs a read with retries on transient failures. reset, when set, is
// called before every attempt to drop rows scanned by a failed one. scan is
// called for each row.
func (s *Store) query(ctx context.Context, op, query string, args []interface{}, reset func(), scan func(*sql.Rows) error) error {
	_, err := s.retrier.RetryContext(ctx, func(ctx context.Context) (interface{}, error) {
		if reset != nil {
			reset()
		}
		rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			if err := scan(rows); err != nil {
				return nil, err
			}
		}
		return nil, rows.Err()
	})
	return store.Wrap(op, err)
}

func isUniqueViolation(err error) bool {
	return pq.IsUniqueViolation(err) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Times are stored as UTC unix nanoseconds.
func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
