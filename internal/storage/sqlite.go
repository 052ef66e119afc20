package storage

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"health-telemetry/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS telemetry_entries (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    spo2        REAL NOT NULL,
    heart_rate  REAL NOT NULL,
    temp_c      REAL,
    temp_f      REAL,
    device      TEXT NOT NULL,
    device_ts   INTEGER NOT NULL,
    server_ts   INTEGER NOT NULL,
    valid_hr    INTEGER NOT NULL,
    valid_spo2  INTEGER NOT NULL
)`

const sqliteIndex = `CREATE INDEX IF NOT EXISTS idx_telemetry_entries_server_ts ON telemetry_entries(server_ts)`

// SQLiteArchive appends entries to a local SQLite file.
type SQLiteArchive struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens (or creates) the SQLite file at path and applies the
// schema. The modernc.org driver is pure Go and needs no CGO.
func OpenSQLite(ctx context.Context, path string, log *zap.Logger) (*SQLiteArchive, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	a := &SQLiteArchive{db: db, log: log}
	if err := a.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migration: %w", err)
	}
	return a, nil
}

func (a *SQLiteArchive) migrate(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create telemetry_entries table: %w", err)
	}
	if _, err := a.db.ExecContext(ctx, sqliteIndex); err != nil {
		return fmt.Errorf("create server_ts index: %w", err)
	}
	a.log.Info("SQLite migration applied")
	return nil
}

// Save inserts one entry.
func (a *SQLiteArchive) Save(ctx context.Context, e models.Entry) error {
	_, err := a.db.ExecContext(ctx,
		fmt.Sprintf(insertEntrySQL, "?, ?, ?, ?, ?, ?, ?, ?, ?"), entryArgs(e)...)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	a.log.Debug("entry archived", zap.Int64("server_ts", e.ServerTimestamp))
	return nil
}

// Close shuts down the database connection.
func (a *SQLiteArchive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
