package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"health-telemetry/internal/models"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS telemetry_entries (
		id          BIGSERIAL PRIMARY KEY,
		spo2        DOUBLE PRECISION NOT NULL,
		heart_rate  DOUBLE PRECISION NOT NULL,
		temp_c      DOUBLE PRECISION,
		temp_f      DOUBLE PRECISION,
		device      TEXT NOT NULL,
		device_ts   BIGINT NOT NULL,
		server_ts   BIGINT NOT NULL,
		valid_hr    BOOLEAN NOT NULL,
		valid_spo2  BOOLEAN NOT NULL
	)`

// PostgresArchive appends entries to the telemetry_entries table.
type PostgresArchive struct {
	db         *sql.DB
	insertStmt *sql.Stmt
	log        *zap.Logger
}

// OpenPostgres connects to databaseURL, applies the schema and prepares the
// insert statement.
func OpenPostgres(ctx context.Context, databaseURL string, log *zap.Logger) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// A single writer drains the sink queue, so a small pool is plenty.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	a, err := NewPostgresArchive(ctx, db, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info("postgres archive connected",
		zap.Int("max_open_conns", 4),
		zap.String("conn_max_lifetime", "5m"),
	)
	return a, nil
}

// NewPostgresArchive wraps an open handle. The archive owns db from here on.
func NewPostgresArchive(ctx context.Context, db *sql.DB, log *zap.Logger) (*PostgresArchive, error) {
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("create telemetry_entries table: %w", err)
	}

	stmt, err := db.PrepareContext(ctx,
		fmt.Sprintf(insertEntrySQL, "$1, $2, $3, $4, $5, $6, $7, $8, $9"))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	return &PostgresArchive{db: db, insertStmt: stmt, log: log}, nil
}

// Save inserts one entry using the prepared statement.
func (a *PostgresArchive) Save(ctx context.Context, e models.Entry) error {
	if _, err := a.insertStmt.ExecContext(ctx, entryArgs(e)...); err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// Close closes the prepared statement and the connection pool.
func (a *PostgresArchive) Close() error {
	if a.insertStmt != nil {
		a.insertStmt.Close()
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
