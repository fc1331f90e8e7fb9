package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/psihotips/psihotips-ops/pkg/config"
)

// Row is the single-row result surface consumed by this tool.
type Row interface {
	Scan(dest ...any) error
}

// Rows is the multi-row result surface consumed by this tool.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Tx is a transaction on the session. Commit or Rollback ends it.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Session is the serial database session shared by the prober, the
// reconciler and the bootstrap loader. A *Postgres satisfies it; tests
// substitute fakes.
type Session interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
	Begin(ctx context.Context) (Tx, error)
}

// Postgres wraps a single PostgreSQL connection.
type Postgres struct {
	conn *pgx.Conn
}

// ConnConfig builds a pgx connection config from the tool configuration.
// Parameters are set individually rather than through a DSN so that
// special characters in passwords survive intact.
func ConnConfig(cfg config.PostgresConfig) (*pgx.ConnConfig, error) {
	connConfig, err := pgx.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("failed to create connection config: %w", err)
	}

	connConfig.Host = cfg.Host
	connConfig.Port = uint16(cfg.Port)
	connConfig.Database = cfg.Database
	connConfig.User = cfg.User
	connConfig.Password = cfg.Password
	connConfig.ConnectTimeout = 10 * time.Second

	return connConfig, nil
}

// Connect opens a single connection to the configured database.
func Connect(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	connConfig, err := ConnConfig(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Postgres{conn: conn}, nil
}

// Exec runs a statement and discards any rows.
func (db *Postgres) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return db.conn.Exec(ctx, sql, args...)
}

// Query runs a query returning multiple rows.
func (db *Postgres) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := db.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// QueryRow runs a query expected to return at most one row.
func (db *Postgres) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return db.conn.QueryRow(ctx, sql, args...)
}

// Begin starts a transaction on the session.
func (db *Postgres) Begin(ctx context.Context) (Tx, error) {
	tx, err := db.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Ping verifies the connection with a round trip.
func (db *Postgres) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// Close closes the database connection.
func (db *Postgres) Close(ctx context.Context) error {
	if db.conn != nil {
		return db.conn.Close(ctx)
	}
	return nil
}
