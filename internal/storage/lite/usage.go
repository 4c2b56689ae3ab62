package lite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/digital-coe/agenthub/internal/model"
	"github.com/digital-coe/agenthub/internal/storage"
)

const snapshotColumns = `id, account, agent_id, agent_name, metric, value,
	 time_window_start, time_window_end, data_source, notes,
	 raw_agent_slug, match_confidence, created_at`

const unmatchedColumns = `id, account, agent_name, metric, value,
	 time_window_start, time_window_end, data_source, notes,
	 raw_agent_slug, match_confidence, resolved, resolved_agent_id, resolved_at,
	 resolved_by, created_at`

// ListAliases returns all learned agent aliases, newest first.
func (s *Store) ListAliases(ctx context.Context) ([]model.AgentAlias, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, alias_name, agent_id, created_by, created_at
		 FROM agent_aliases ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("lite: list aliases: %w", err)
	}
	defer rows.Close()

	var aliases []model.AgentAlias
	for rows.Next() {
		var a model.AgentAlias
		var created string
		if err := rows.Scan(&a.ID, &a.AliasName, &a.AgentID, &a.CreatedBy, &created); err != nil {
			return nil, fmt.Errorf("lite: scan alias: %w", err)
		}
		a.CreatedAt = parseTime(created)
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// InsertAlias records a learned alias. A duplicate alias_name is treated as
// "already learned" and absorbed silently.
func (s *Store) InsertAlias(ctx context.Context, alias model.AgentAlias) error {
	if alias.ID == uuid.Nil {
		alias.ID = uuid.New()
	}
	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO agent_aliases (id, alias_name, agent_id, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		alias.ID, alias.AliasName, alias.AgentID, alias.CreatedBy, formatTime(alias.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("lite: insert alias: %w", err)
	}
	return nil
}

// InsertSnapshots bulk-inserts matched usage rows in one transaction.
func (s *Store) InsertSnapshots(ctx context.Context, snapshots []model.UsageMetricsSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("lite: begin insert snapshots tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range snapshots {
		snap := &snapshots[i]
		if snap.ID == uuid.Nil {
			snap.ID = uuid.New()
		}
		if snap.CreatedAt.IsZero() {
			snap.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO usage_metrics_snapshot (id, account, agent_id, agent_name, metric, value,
			                                     time_window_start, time_window_end, data_source,
			                                     notes, raw_agent_slug, match_confidence, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, snap.Account, nullUUID(snap.AgentID), snap.AgentName, snap.Metric, snap.Value,
			snap.TimeWindowStart, snap.TimeWindowEnd, snap.DataSource,
			snap.Notes, snap.RawAgentSlug, snap.MatchConfidence, formatTime(snap.CreatedAt),
		); err != nil {
			return fmt.Errorf("lite: insert snapshot: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lite: commit insert snapshots tx: %w", err)
	}
	return nil
}

// InsertUnmatched bulk-inserts rows that failed agent resolution.
func (s *Store) InsertUnmatched(ctx context.Context, unmatched []model.UnmatchedUsageRow) error {
	if len(unmatched) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("lite: begin insert unmatched tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range unmatched {
		u := &unmatched[i]
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO unmatched_usage_rows (id, account, agent_name, metric, value,
			                                   time_window_start, time_window_end, data_source,
			                                   notes, raw_agent_slug, match_confidence, resolved, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			u.ID, u.Account, u.AgentName, u.Metric, u.Value,
			u.TimeWindowStart, u.TimeWindowEnd, u.DataSource,
			u.Notes, u.RawAgentSlug, u.MatchConfidence, formatTime(u.CreatedAt),
		); err != nil {
			return fmt.Errorf("lite: insert unmatched row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lite: commit insert unmatched tx: %w", err)
	}
	return nil
}

func scanSnapshot(row rowScanner) (model.UsageMetricsSnapshot, error) {
	var snap model.UsageMetricsSnapshot
	var agentID uuid.NullUUID
	var created string
	err := row.Scan(
		&snap.ID, &snap.Account, &agentID, &snap.AgentName, &snap.Metric, &snap.Value,
		&snap.TimeWindowStart, &snap.TimeWindowEnd, &snap.DataSource, &snap.Notes,
		&snap.RawAgentSlug, &snap.MatchConfidence, &created,
	)
	if err != nil {
		return model.UsageMetricsSnapshot{}, err
	}
	snap.AgentID = uuidPtr(agentID)
	snap.CreatedAt = parseTime(created)
	return snap, nil
}

// ListSnapshots returns usage snapshots, newest import first. When agentID is
// non-nil only that agent's snapshots are returned, ordered by window end.
func (s *Store) ListSnapshots(ctx context.Context, agentID *uuid.UUID) ([]model.UsageMetricsSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM usage_metrics_snapshot ORDER BY created_at DESC`
	args := []any{}
	if agentID != nil {
		query = `SELECT ` + snapshotColumns + ` FROM usage_metrics_snapshot
		 WHERE agent_id = ? ORDER BY time_window_end DESC`
		args = append(args, *agentID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lite: list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []model.UsageMetricsSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("lite: scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

func scanUnmatched(row rowScanner) (model.UnmatchedUsageRow, error) {
	var u model.UnmatchedUsageRow
	var resolvedAgentID uuid.NullUUID
	var resolvedAt *string
	var created string
	err := row.Scan(
		&u.ID, &u.Account, &u.AgentName, &u.Metric, &u.Value,
		&u.TimeWindowStart, &u.TimeWindowEnd, &u.DataSource, &u.Notes,
		&u.RawAgentSlug, &u.MatchConfidence, &u.Resolved, &resolvedAgentID,
		&resolvedAt, &u.ResolvedBy, &created,
	)
	if err != nil {
		return model.UnmatchedUsageRow{}, err
	}
	u.ResolvedAgentID = uuidPtr(resolvedAgentID)
	u.ResolvedAt = parseTimePtr(resolvedAt)
	u.CreatedAt = parseTime(created)
	return u, nil
}

// ListUnmatched returns unresolved rows awaiting manual resolution, newest
// first. Resolved rows are included only when includeResolved is set.
func (s *Store) ListUnmatched(ctx context.Context, includeResolved bool) ([]model.UnmatchedUsageRow, error) {
	query := `SELECT ` + unmatchedColumns + ` FROM unmatched_usage_rows
	 WHERE resolved = 0 ORDER BY created_at DESC`
	if includeResolved {
		query = `SELECT ` + unmatchedColumns + ` FROM unmatched_usage_rows ORDER BY created_at DESC`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("lite: list unmatched rows: %w", err)
	}
	defer rows.Close()

	var result []model.UnmatchedUsageRow
	for rows.Next() {
		u, err := scanUnmatched(rows)
		if err != nil {
			return nil, fmt.Errorf("lite: scan unmatched row: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

// GetUnmatchedRow retrieves one unmatched row by id.
func (s *Store) GetUnmatchedRow(ctx context.Context, id uuid.UUID) (model.UnmatchedUsageRow, error) {
	u, err := scanUnmatched(s.db.QueryRowContext(ctx,
		`SELECT `+unmatchedColumns+` FROM unmatched_usage_rows WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.UnmatchedUsageRow{}, fmt.Errorf("lite: unmatched row %s: %w", id, storage.ErrNotFound)
		}
		return model.UnmatchedUsageRow{}, fmt.Errorf("lite: get unmatched row: %w", err)
	}
	return u, nil
}

// ResolveUnmatched applies a manual resolution atomically: inserts the
// snapshot built from the unmatched row, marks the row resolved, and, when
// requested, learns an alias from the row's original free-text name.
// Returns ErrNotFound when the row does not exist.
func (s *Store) ResolveUnmatched(ctx context.Context, input storage.ResolveInput) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("lite: begin resolve tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row, err := scanUnmatched(tx.QueryRowContext(ctx,
		`SELECT `+unmatchedColumns+` FROM unmatched_usage_rows WHERE id = ?`, input.RowID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lite: unmatched row %s: %w", input.RowID, storage.ErrNotFound)
		}
		return fmt.Errorf("lite: fetch unmatched row: %w", err)
	}

	now := time.Now().UTC()

	// Snapshot insert comes first so an interrupted resolution leaves an
	// unresolved row rather than a resolved row with no snapshot.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO usage_metrics_snapshot (id, account, agent_id, agent_name, metric, value,
		                                     time_window_start, time_window_end, data_source,
		                                     notes, raw_agent_slug, match_confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New(), row.Account, input.AgentID, input.AgentName, row.Metric, row.Value,
		row.TimeWindowStart, row.TimeWindowEnd, row.DataSource,
		row.Notes, row.RawAgentSlug, model.ConfidenceManual, formatTime(now),
	); err != nil {
		return fmt.Errorf("lite: insert resolved snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE unmatched_usage_rows
		 SET resolved = 1, resolved_agent_id = ?, resolved_at = ?, resolved_by = ?
		 WHERE id = ?`,
		input.AgentID, formatTime(now), input.ResolvedBy, input.RowID,
	); err != nil {
		return fmt.Errorf("lite: mark row resolved: %w", err)
	}

	if input.CreateAlias {
		// The alias maps the row's original free-text name, not the chosen
		// canonical name, so the same misspelling auto-matches next import.
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO agent_aliases (id, alias_name, agent_id, created_by, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			uuid.New(), row.AgentName, input.AgentID, input.ResolvedBy, formatTime(now),
		); err != nil {
			return fmt.Errorf("lite: learn alias: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lite: commit resolve tx: %w", err)
	}
	return nil
}

// RecordImport appends an entry to the import history log.
func (s *Store) RecordImport(ctx context.Context, rec model.ImportRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_history (id, file_name, records_imported, records_failed,
		                             imported_by, import_notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.FileName, rec.RecordsImported, rec.RecordsFailed,
		rec.ImportedBy, rec.ImportNotes, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("lite: record import: %w", err)
	}
	return nil
}

// ListImports returns the import history, newest first.
func (s *Store) ListImports(ctx context.Context) ([]model.ImportRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, records_imported, records_failed, imported_by, import_notes, created_at
		 FROM import_history ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("lite: list imports: %w", err)
	}
	defer rows.Close()

	var records []model.ImportRecord
	for rows.Next() {
		var r model.ImportRecord
		var created string
		if err := rows.Scan(&r.ID, &r.FileName, &r.RecordsImported, &r.RecordsFailed,
			&r.ImportedBy, &r.ImportNotes, &created); err != nil {
			return nil, fmt.Errorf("lite: scan import record: %w", err)
		}
		r.CreatedAt = parseTime(created)
		records = append(records, r)
	}
	return records, rows.Err()
}
