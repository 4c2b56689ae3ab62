package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/digital-coe/agenthub/internal/model"
)

const snapshotColumns = `id, account, agent_id, agent_name, metric, value,
	 time_window_start::text, time_window_end::text, data_source, notes,
	 raw_agent_slug, match_confidence, created_at`

const unmatchedColumns = `id, account, agent_name, metric, value,
	 time_window_start::text, time_window_end::text, data_source, notes,
	 raw_agent_slug, match_confidence, resolved, resolved_agent_id, resolved_at,
	 resolved_by, created_at`

// ListAliases returns all learned agent aliases, newest first.
func (db *DB) ListAliases(ctx context.Context) ([]model.AgentAlias, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, alias_name, agent_id, created_by, created_at
		 FROM agent_aliases ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list aliases: %w", err)
	}
	defer rows.Close()

	var aliases []model.AgentAlias
	for rows.Next() {
		var a model.AgentAlias
		if err := rows.Scan(&a.ID, &a.AliasName, &a.AgentID, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// InsertAlias records a learned alias. A duplicate alias_name is treated as
// "already learned" and absorbed silently.
func (db *DB) InsertAlias(ctx context.Context, alias model.AgentAlias) error {
	if alias.ID == uuid.Nil {
		alias.ID = uuid.New()
	}
	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO agent_aliases (id, alias_name, agent_id, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (alias_name) DO NOTHING`,
		alias.ID, alias.AliasName, alias.AgentID, alias.CreatedBy, alias.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert alias: %w", err)
	}
	return nil
}

// InsertSnapshots bulk-inserts matched usage rows in one transaction.
func (db *DB) InsertSnapshots(ctx context.Context, snapshots []model.UsageMetricsSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range snapshots {
		s := &snapshots[i]
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = time.Now().UTC()
		}
		batch.Queue(
			`INSERT INTO usage_metrics_snapshot (id, account, agent_id, agent_name, metric, value,
			                                     time_window_start, time_window_end, data_source,
			                                     notes, raw_agent_slug, match_confidence, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8::date, $9, $10, $11, $12, $13)`,
			s.ID, s.Account, s.AgentID, s.AgentName, s.Metric, s.Value,
			s.TimeWindowStart, s.TimeWindowEnd, s.DataSource,
			s.Notes, s.RawAgentSlug, s.MatchConfidence, s.CreatedAt,
		)
	}
	if err := db.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("storage: insert snapshots: %w", err)
	}
	return nil
}

// InsertUnmatched bulk-inserts rows that failed agent resolution.
func (db *DB) InsertUnmatched(ctx context.Context, unmatched []model.UnmatchedUsageRow) error {
	if len(unmatched) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range unmatched {
		u := &unmatched[i]
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = time.Now().UTC()
		}
		batch.Queue(
			`INSERT INTO unmatched_usage_rows (id, account, agent_name, metric, value,
			                                   time_window_start, time_window_end, data_source,
			                                   notes, raw_agent_slug, match_confidence, resolved, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6::date, $7::date, $8, $9, $10, $11, false, $12)`,
			u.ID, u.Account, u.AgentName, u.Metric, u.Value,
			u.TimeWindowStart, u.TimeWindowEnd, u.DataSource,
			u.Notes, u.RawAgentSlug, u.MatchConfidence, u.CreatedAt,
		)
	}
	if err := db.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("storage: insert unmatched rows: %w", err)
	}
	return nil
}

// ListSnapshots returns usage snapshots, newest import first. When agentID is
// non-nil only that agent's snapshots are returned, ordered by window end.
func (db *DB) ListSnapshots(ctx context.Context, agentID *uuid.UUID) ([]model.UsageMetricsSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM usage_metrics_snapshot ORDER BY created_at DESC`
	args := []any{}
	if agentID != nil {
		query = `SELECT ` + snapshotColumns + ` FROM usage_metrics_snapshot
		 WHERE agent_id = $1 ORDER BY time_window_end DESC`
		args = append(args, *agentID)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []model.UsageMetricsSnapshot
	for rows.Next() {
		var s model.UsageMetricsSnapshot
		if err := rows.Scan(
			&s.ID, &s.Account, &s.AgentID, &s.AgentName, &s.Metric, &s.Value,
			&s.TimeWindowStart, &s.TimeWindowEnd, &s.DataSource, &s.Notes,
			&s.RawAgentSlug, &s.MatchConfidence, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

func scanUnmatched(row pgx.Row) (model.UnmatchedUsageRow, error) {
	var u model.UnmatchedUsageRow
	err := row.Scan(
		&u.ID, &u.Account, &u.AgentName, &u.Metric, &u.Value,
		&u.TimeWindowStart, &u.TimeWindowEnd, &u.DataSource, &u.Notes,
		&u.RawAgentSlug, &u.MatchConfidence, &u.Resolved, &u.ResolvedAgentID,
		&u.ResolvedAt, &u.ResolvedBy, &u.CreatedAt,
	)
	return u, err
}

// ListUnmatched returns unresolved rows awaiting manual resolution, newest
// first. Resolved rows are included only when includeResolved is set.
func (db *DB) ListUnmatched(ctx context.Context, includeResolved bool) ([]model.UnmatchedUsageRow, error) {
	query := `SELECT ` + unmatchedColumns + ` FROM unmatched_usage_rows
	 WHERE resolved = false ORDER BY created_at DESC`
	if includeResolved {
		query = `SELECT ` + unmatchedColumns + ` FROM unmatched_usage_rows ORDER BY created_at DESC`
	}

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("storage: list unmatched rows: %w", err)
	}
	defer rows.Close()

	var result []model.UnmatchedUsageRow
	for rows.Next() {
		u, err := scanUnmatched(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan unmatched row: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

// GetUnmatchedRow retrieves one unmatched row by id.
func (db *DB) GetUnmatchedRow(ctx context.Context, id uuid.UUID) (model.UnmatchedUsageRow, error) {
	u, err := scanUnmatched(db.pool.QueryRow(ctx,
		`SELECT `+unmatchedColumns+` FROM unmatched_usage_rows WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.UnmatchedUsageRow{}, fmt.Errorf("storage: unmatched row %s: %w", id, ErrNotFound)
		}
		return model.UnmatchedUsageRow{}, fmt.Errorf("storage: get unmatched row: %w", err)
	}
	return u, nil
}

// ResolveInput carries a manual resolution of an unmatched row.
type ResolveInput struct {
	RowID       uuid.UUID
	AgentID     uuid.UUID
	AgentName   string
	ResolvedBy  string
	CreateAlias bool
}

// ResolveUnmatched applies a manual resolution atomically: inserts the
// snapshot built from the unmatched row, marks the row resolved, and, when
// requested, learns an alias from the row's original free-text name. The
// alias insert absorbs a uniqueness conflict; everything else aborts the
// transaction. Returns ErrNotFound when the row does not exist.
func (db *DB) ResolveUnmatched(ctx context.Context, input ResolveInput) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin resolve tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row, err := scanUnmatched(tx.QueryRow(ctx,
		`SELECT `+unmatchedColumns+` FROM unmatched_usage_rows WHERE id = $1 FOR UPDATE`,
		input.RowID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("storage: unmatched row %s: %w", input.RowID, ErrNotFound)
		}
		return fmt.Errorf("storage: fetch unmatched row: %w", err)
	}

	// Snapshot insert comes first so an interrupted resolution leaves an
	// unresolved row rather than a resolved row with no snapshot.
	confidence := model.ConfidenceManual
	if _, err := tx.Exec(ctx,
		`INSERT INTO usage_metrics_snapshot (id, account, agent_id, agent_name, metric, value,
		                                     time_window_start, time_window_end, data_source,
		                                     notes, raw_agent_slug, match_confidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8::date, $9, $10, $11, $12, $13)`,
		uuid.New(), row.Account, input.AgentID, input.AgentName, row.Metric, row.Value,
		row.TimeWindowStart, row.TimeWindowEnd, row.DataSource,
		row.Notes, row.RawAgentSlug, confidence, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("storage: insert resolved snapshot: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE unmatched_usage_rows
		 SET resolved = true, resolved_agent_id = $1, resolved_at = now(), resolved_by = $2
		 WHERE id = $3`,
		input.AgentID, input.ResolvedBy, input.RowID,
	); err != nil {
		return fmt.Errorf("storage: mark row resolved: %w", err)
	}

	if input.CreateAlias {
		// The alias maps the row's original free-text name, not the chosen
		// canonical name, so the same misspelling auto-matches next import.
		if _, err := tx.Exec(ctx,
			`INSERT INTO agent_aliases (id, alias_name, agent_id, created_by, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (alias_name) DO NOTHING`,
			uuid.New(), row.AgentName, input.AgentID, input.ResolvedBy, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("storage: learn alias: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit resolve tx: %w", err)
	}
	return nil
}

// RecordImport appends an entry to the import history log.
func (db *DB) RecordImport(ctx context.Context, rec model.ImportRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO import_history (id, file_name, records_imported, records_failed,
		                             imported_by, import_notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.FileName, rec.RecordsImported, rec.RecordsFailed,
		rec.ImportedBy, rec.ImportNotes, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: record import: %w", err)
	}
	return nil
}

// ListImports returns the import history, newest first.
func (db *DB) ListImports(ctx context.Context) ([]model.ImportRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, file_name, records_imported, records_failed, imported_by, import_notes, created_at
		 FROM import_history ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list imports: %w", err)
	}
	defer rows.Close()

	var records []model.ImportRecord
	for rows.Next() {
		var r model.ImportRecord
		if err := rows.Scan(&r.ID, &r.FileName, &r.RecordsImported, &r.RecordsFailed,
			&r.ImportedBy, &r.ImportNotes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan import record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
