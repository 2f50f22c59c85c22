package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Concurrent tool calls share one writer connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance.
// The parent directory is created when missing; ":memory:" opens a
// private in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// RecordInvocation stores inv, filling ID and CreatedAt
func (s *SQLiteStorage) RecordInvocation(ctx context.Context, inv *Invocation) error {
	if inv.Tool == "" {
		return fmt.Errorf("invocation tool is required")
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}
	args := inv.Arguments
	if args == "" {
		args = "{}"
	}

	query := `
		INSERT INTO invocations (tool, arguments, success, match_count, error_message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		inv.Tool,
		args,
		boolToInt(inv.Success),
		inv.MatchCount,
		inv.ErrorMessage,
		inv.Duration.Milliseconds(),
		inv.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record invocation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get invocation ID: %w", err)
	}
	inv.ID = id
	inv.Arguments = args
	return nil
}

// ListInvocations returns invocations matching filter, newest first
func (s *SQLiteStorage) ListInvocations(ctx context.Context, filter ListFilter) ([]*Invocation, error) {
	var where []string
	var args []interface{}

	if filter.Tool != "" {
		where = append(where, "tool = ?")
		args = append(args, filter.Tool)
	}
	if filter.OnlyFailed {
		where = append(where, "success = 0")
	}
	if filter.SinceMillis > 0 {
		where = append(where, "created_at >= ?")
		args = append(args, filter.SinceMillis)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, tool, arguments, success, match_count, error_message, duration_ms, created_at
		FROM invocations
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
	}
	defer rows.Close()

	var invocations []*Invocation
	for rows.Next() {
		var inv Invocation
		var success int
		var durationMs, createdAt int64
		if err := rows.Scan(&inv.ID, &inv.Tool, &inv.Arguments, &success, &inv.MatchCount,
			&inv.ErrorMessage, &durationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		inv.Success = success != 0
		inv.Duration = time.Duration(durationMs) * time.Millisecond
		inv.CreatedAt = time.UnixMilli(createdAt)
		invocations = append(invocations, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invocations: %w", err)
	}

	return invocations, nil
}

// ToolStats aggregates invocations per tool
func (s *SQLiteStorage) ToolStats(ctx context.Context) ([]ToolStats, error) {
	query := `
		SELECT tool,
		       COUNT(*),
		       SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
		       SUM(match_count),
		       CAST(AVG(duration_ms) AS INTEGER),
		       MAX(created_at)
		FROM invocations
		GROUP BY tool
		ORDER BY tool
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool stats: %w", err)
	}
	defer rows.Close()

	var stats []ToolStats
	for rows.Next() {
		var st ToolStats
		var avgMs, lastAt int64
		if err := rows.Scan(&st.Tool, &st.Calls, &st.Failures, &st.TotalMatches, &avgMs, &lastAt); err != nil {
			return nil, fmt.Errorf("failed to scan tool stats: %w", err)
		}
		st.AvgDuration = time.Duration(avgMs) * time.Millisecond
		st.LastInvokedAt = time.UnixMilli(lastAt)
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tool stats: %w", err)
	}

	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
