// Package lite provides a SQLite-backed record store with the same surface as
// the Postgres store. It backs laptop-local deployments (no AGENTHUB_DATABASE_URL)
// and the fast service/handler tests.
package lite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store implements the hub's record-store surface on a local SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) a SQLite database at dbPath and runs the schema
// migration. Pass ":memory:" for an ephemeral store (tests).
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("lite: create data dir %s: %w", dir, err)
		}
		dbPath += "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("lite: open database: %w", err)
	}

	// Single connection keeps WAL mode (and :memory: databases) simple.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("lite: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL,
			description      TEXT,
			agent_type       TEXT NOT NULL DEFAULT 'General',
			platform         TEXT NOT NULL DEFAULT 'Others',
			hosted_in        TEXT,
			status           TEXT NOT NULL DEFAULT 'Ideation',
			function_domains TEXT NOT NULL DEFAULT '[]',
			sub_functions    TEXT NOT NULL DEFAULT '[]',
			owner_primary    TEXT,
			owner_team       TEXT,
			tags             TEXT NOT NULL DEFAULT '[]',
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_packs (
			id                TEXT PRIMARY KEY,
			name              TEXT NOT NULL,
			description       TEXT,
			problem_statement TEXT,
			business_outcome  TEXT,
			process_area      TEXT,
			maturity          TEXT NOT NULL DEFAULT 'Prototype',
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS skills (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT,
			status      TEXT NOT NULL DEFAULT 'Draft',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS gaps (
			id                TEXT PRIMARY KEY,
			title             TEXT NOT NULL,
			problem_statement TEXT NOT NULL,
			desired_outcome   TEXT,
			process_area      TEXT,
			sub_functions     TEXT NOT NULL DEFAULT '[]',
			urgency           TEXT,
			status            TEXT NOT NULL DEFAULT 'New',
			recommended_path  TEXT,
			created_by        TEXT,
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS gap_matches (
			id               TEXT PRIMARY KEY,
			gap_id           TEXT NOT NULL,
			match_type       TEXT NOT NULL,
			agent_id         TEXT,
			workflow_id      TEXT,
			skill_id         TEXT,
			target_id        TEXT NOT NULL,
			relevance_score  REAL NOT NULL,
			suggested_action TEXT,
			gap_reason       TEXT,
			created_at       TEXT NOT NULL,
			UNIQUE (gap_id, match_type, target_id)
		)`,
		`CREATE TABLE IF NOT EXISTS usage_metrics_snapshot (
			id                TEXT PRIMARY KEY,
			account           TEXT NOT NULL,
			agent_id          TEXT,
			agent_name        TEXT,
			metric            TEXT NOT NULL,
			value             REAL NOT NULL DEFAULT 0,
			time_window_start TEXT NOT NULL,
			time_window_end   TEXT NOT NULL,
			data_source       TEXT NOT NULL,
			notes             TEXT,
			raw_agent_slug    TEXT,
			match_confidence  TEXT,
			created_at        TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS unmatched_usage_rows (
			id                TEXT PRIMARY KEY,
			account           TEXT NOT NULL,
			agent_name        TEXT NOT NULL,
			metric            TEXT NOT NULL,
			value             REAL NOT NULL DEFAULT 0,
			time_window_start TEXT NOT NULL,
			time_window_end   TEXT NOT NULL,
			data_source       TEXT NOT NULL,
			notes             TEXT,
			raw_agent_slug    TEXT,
			match_confidence  TEXT,
			resolved          INTEGER NOT NULL DEFAULT 0,
			resolved_agent_id TEXT,
			resolved_at       TEXT,
			resolved_by       TEXT,
			created_at        TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_aliases (
			id         TEXT PRIMARY KEY,
			alias_name TEXT NOT NULL UNIQUE,
			agent_id   TEXT NOT NULL,
			created_by TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS import_history (
			id               TEXT PRIMARY KEY,
			file_name        TEXT NOT NULL,
			records_imported INTEGER NOT NULL DEFAULT 0,
			records_failed   INTEGER NOT NULL DEFAULT 0,
			imported_by      TEXT,
			import_notes     TEXT,
			created_at       TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	return nil
}

// Ping checks that the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close(ctx context.Context) {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("lite: close database", "error", err)
	}
}

// formatTime and parseTime define the canonical text encoding for timestamps.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t := parseTime(*s)
	return &t
}

// encodeList stores string slices as JSON text.
func encodeList(vals []string) string {
	if vals == nil {
		vals = []string{}
	}
	b, _ := json.Marshal(vals)
	return string(b)
}

func decodeList(raw string) []string {
	var vals []string
	if err := json.Unmarshal([]byte(raw), &vals); err != nil || vals == nil {
		return []string{}
	}
	return vals
}
