// Package sqlstore persists memory records in SQLite (default) or
// PostgreSQL through database/sql and sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/becomeliminal/nim-memory/memory"
)

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Config configures Open.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `yaml:"driver"`

	// Path is the SQLite database file. ":memory:" keeps everything in
	// process. Ignored for PostgreSQL.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string. Ignored for SQLite.
	DSN string `yaml:"dsn"`

	// MaxOpenConns caps the pool (default: 10, 1 for in-memory SQLite).
	MaxOpenConns int `yaml:"max_open_conns"`

	Logger logrus.FieldLogger `yaml:"-"`
}

// Store implements memory.RecordStore.
type Store struct {
	db     *sqlx.DB
	driver string
	log    logrus.FieldLogger

	mu    sync.Mutex
	ready bool
}

var _ memory.RecordStore = (*Store)(nil)

// Open connects to the database. The schema is created lazily by the
// first call that touches data.
func Open(cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}

	var dsn string
	switch cfg.Driver {
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, errors.New("sqlstore: sqlite path is required")
		}
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("sqlstore: create data directory: %w", err)
			}
		}
		dsn = cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
		if cfg.Path == ":memory:" {
			cfg.MaxOpenConns = 1
		}
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, errors.New("sqlstore: postgres dsn is required")
		}
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 10
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	return New(db, cfg.Logger), nil
}

// New wraps an existing connection. The driver name decides the SQL
// dialect.
func New(db *sqlx.DB, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		db:     db,
		driver: db.DriverName(),
		log:    log.WithFields(logrus.Fields{"component": "sqlstore", "driver": db.DriverName()}),
	}
}

// EnsureSchema creates the table and indexes if they are missing. Once
// it has succeeded it is a no-op for the life of the Store.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return memory.WrapStorage("ensure_schema", err)
		}
	}
	s.ready = true
	s.log.Debug("schema ready")
	return nil
}

// InsertOrReplace upserts rec by ID.
func (s *Store) InsertOrReplace(ctx context.Context, rec *memory.Record) error {
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	r, err := toRow(rec)
	if err != nil {
		return memory.WrapStorage("insert", err)
	}
	if _, err := s.db.NamedExecContext(ctx, upsertSQL, r); err != nil {
		return memory.WrapStorage("insert", err)
	}
	return nil
}

// GetByID returns memory.ErrNotFound when id does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (*memory.Record, error) {
	return s.getOne(ctx, "get", "id = ?", id)
}

// GetByHash returns the oldest record with the given content hash.
func (s *Store) GetByHash(ctx context.Context, hash string) (*memory.Record, error) {
	return s.getOne(ctx, "get_by_hash", "content_hash = ?", hash)
}

func (s *Store) getOne(ctx context.Context, op, cond string, arg any) (*memory.Record, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	query := s.db.Rebind(fmt.Sprintf(`SELECT %s FROM memories WHERE %s ORDER BY "timestamp" ASC LIMIT 1`, columns, cond))
	var r row
	if err := s.db.GetContext(ctx, &r, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, memory.ErrNotFound
		}
		return nil, memory.WrapStorage(op, err)
	}

	rec, err := r.record()
	if err != nil {
		return nil, memory.WrapStorage(op, err)
	}
	return rec, nil
}

// DeleteByID reports whether a row was removed.
func (s *Store) DeleteByID(ctx context.Context, id string) (bool, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM memories WHERE id = ?`), id)
	if err != nil {
		return false, memory.WrapStorage("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, memory.WrapStorage("delete", err)
	}
	return n > 0, nil
}

// Query runs a filtered range scan.
func (s *Store) Query(ctx context.Context, q memory.Query) ([]*memory.Record, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	query, args := s.buildQuery(q)
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, memory.WrapStorage("query", err)
	}

	recs := make([]*memory.Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].record()
		if err != nil {
			return nil, memory.WrapStorage("query", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
