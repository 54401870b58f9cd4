package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

type Driver string

const (
	DriverSQLite Driver = "sqlite"
	DriverDuckDB Driver = "duckdb"
	DriverPgx    Driver = "pgx"
)

var ErrUnsupportedDriver = errors.New("unsupported driver")

func ParseDriver(s string) (Driver, error) {
	switch Driver(s) {
	case DriverSQLite, DriverDuckDB, DriverPgx:
		return Driver(s), nil
	case "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql":
		return DriverPgx, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, s)
}

// Connection is the subset of *sql.Conn used by the query tool and the
// dataset loader.
type Connection interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

type Config struct {
	Logger *slog.Logger
	Driver Driver
	DSN    string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if _, err := ParseDriver(string(cfg.Driver)); err != nil {
		return err
	}
	if cfg.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	return nil
}

// Store opens a fresh database handle for every connection. Nothing is pooled
// between calls.
type Store struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate store config: %w", err)
	}
	return &Store{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

func (s *Store) Driver() Driver {
	return s.cfg.Driver
}

func (s *Store) Conn(ctx context.Context) (Connection, error) {
	db, err := sql.Open(string(s.cfg.Driver), s.cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	s.log.Debug("store: opened connection", "driver", s.cfg.Driver)

	return &transientConn{Conn: conn, db: db, log: s.log}, nil
}

type transientConn struct {
	*sql.Conn
	db  *sql.DB
	log *slog.Logger
}

func (c *transientConn) Close() error {
	connErr := c.Conn.Close()
	dbErr := c.db.Close()
	c.log.Debug("store: closed connection")
	return errors.Join(connErr, dbErr)
}
