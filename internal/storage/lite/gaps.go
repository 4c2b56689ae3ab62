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

const gapColumns = `id, title, problem_statement, desired_outcome, process_area, sub_functions,
	 urgency, status, recommended_path, created_by, created_at, updated_at`

func scanGap(row rowScanner) (model.Gap, error) {
	var g model.Gap
	var subs, created, updated string
	err := row.Scan(
		&g.ID, &g.Title, &g.ProblemStatement, &g.DesiredOutcome, &g.ProcessArea,
		&subs, &g.Urgency, &g.Status, &g.RecommendedPath, &g.CreatedBy,
		&created, &updated,
	)
	if err != nil {
		return model.Gap{}, err
	}
	g.SubFunctions = decodeList(subs)
	g.CreatedAt = parseTime(created)
	g.UpdatedAt = parseTime(updated)
	return g, nil
}

// CreateGap inserts a new gap.
func (s *Store) CreateGap(ctx context.Context, g model.Gap) (model.Gap, error) {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	if g.Status == "" {
		g.Status = model.GapStatusNew
	}
	if g.SubFunctions == nil {
		g.SubFunctions = []string{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gaps (id, title, problem_statement, desired_outcome, process_area,
		                   sub_functions, urgency, status, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Title, g.ProblemStatement, g.DesiredOutcome, g.ProcessArea,
		encodeList(g.SubFunctions), g.Urgency, string(g.Status), g.CreatedBy,
		formatTime(g.CreatedAt), formatTime(g.UpdatedAt),
	)
	if err != nil {
		return model.Gap{}, fmt.Errorf("lite: create gap: %w", err)
	}
	return g, nil
}

// GetGap retrieves a gap by id.
func (s *Store) GetGap(ctx context.Context, id uuid.UUID) (model.Gap, error) {
	g, err := scanGap(s.db.QueryRowContext(ctx,
		`SELECT `+gapColumns+` FROM gaps WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Gap{}, fmt.Errorf("lite: gap %s: %w", id, storage.ErrNotFound)
		}
		return model.Gap{}, fmt.Errorf("lite: get gap: %w", err)
	}
	return g, nil
}

// ListGaps returns all gaps, newest first.
func (s *Store) ListGaps(ctx context.Context) ([]model.Gap, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+gapColumns+` FROM gaps ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("lite: list gaps: %w", err)
	}
	defer rows.Close()

	var gaps []model.Gap
	for rows.Next() {
		g, err := scanGap(rows)
		if err != nil {
			return nil, fmt.Errorf("lite: scan gap: %w", err)
		}
		gaps = append(gaps, g)
	}
	return gaps, rows.Err()
}

// UpdateGap performs a partial update. Nil request fields are left unchanged.
func (s *Store) UpdateGap(ctx context.Context, id uuid.UUID, req model.UpdateGapRequest) (model.Gap, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE gaps
		 SET title = COALESCE(?, title),
		     problem_statement = COALESCE(?, problem_statement),
		     desired_outcome = COALESCE(?, desired_outcome),
		     process_area = COALESCE(?, process_area),
		     sub_functions = COALESCE(?, sub_functions),
		     status = COALESCE(?, status),
		     updated_at = ?
		 WHERE id = ?`,
		req.Title, req.ProblemStatement, req.DesiredOutcome, req.ProcessArea,
		listOrNil(req.SubFunctions), req.Status, formatTime(time.Now()), id,
	)
	if err != nil {
		return model.Gap{}, fmt.Errorf("lite: update gap: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Gap{}, fmt.Errorf("lite: gap %s: %w", id, storage.ErrNotFound)
	}
	return s.GetGap(ctx, id)
}

// SetRecommendedPath writes the derived recommendation onto a gap.
func (s *Store) SetRecommendedPath(ctx context.Context, id uuid.UUID, recommendation string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE gaps SET recommended_path = ?, updated_at = ? WHERE id = ?`,
		recommendation, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("lite: set recommended path: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("lite: gap %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// UpsertGapMatches inserts a batch of gap matches in one transaction.
// (gap_id, match_type, target_id) is unique, so re-running analysis for a gap
// refreshes scores and actions instead of duplicating rows.
func (s *Store) UpsertGapMatches(ctx context.Context, matches []model.GapMatch) error {
	if len(matches) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("lite: begin upsert matches tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range matches {
		m := &matches[i]
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO gap_matches (id, gap_id, match_type, agent_id, workflow_id, skill_id,
			                          target_id, relevance_score, suggested_action, gap_reason, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (gap_id, match_type, target_id) DO UPDATE SET
			   relevance_score = excluded.relevance_score,
			   suggested_action = excluded.suggested_action,
			   gap_reason = excluded.gap_reason`,
			m.ID, m.GapID, string(m.MatchType),
			nullUUID(m.AgentID), nullUUID(m.WorkflowID), nullUUID(m.SkillID),
			m.TargetID, m.RelevanceScore, string(m.SuggestedAction), m.GapReason,
			formatTime(m.CreatedAt),
		); err != nil {
			return fmt.Errorf("lite: upsert gap match: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("lite: commit upsert matches tx: %w", err)
	}
	return nil
}

// ListMatchesForGap returns a gap's matches ordered by relevance, best first.
func (s *Store) ListMatchesForGap(ctx context.Context, gapID uuid.UUID) ([]model.GapMatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, gap_id, match_type, agent_id, workflow_id, skill_id, target_id,
		        relevance_score, suggested_action, gap_reason, created_at
		 FROM gap_matches WHERE gap_id = ?
		 ORDER BY relevance_score DESC, created_at ASC`, gapID,
	)
	if err != nil {
		return nil, fmt.Errorf("lite: list gap matches: %w", err)
	}
	defer rows.Close()

	var matches []model.GapMatch
	for rows.Next() {
		var m model.GapMatch
		var agentID, workflowID, skillID uuid.NullUUID
		var created string
		if err := rows.Scan(
			&m.ID, &m.GapID, &m.MatchType, &agentID, &workflowID, &skillID,
			&m.TargetID, &m.RelevanceScore, &m.SuggestedAction, &m.GapReason, &created,
		); err != nil {
			return nil, fmt.Errorf("lite: scan gap match: %w", err)
		}
		m.AgentID = uuidPtr(agentID)
		m.WorkflowID = uuidPtr(workflowID)
		m.SkillID = uuidPtr(skillID)
		m.CreatedAt = parseTime(created)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidPtr(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	u := id.UUID
	return &u
}
