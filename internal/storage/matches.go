package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/digital-coe/agenthub/internal/model"
)

// UpsertGapMatches inserts a batch of gap matches in one transaction.
// (gap_id, match_type, target_id) is unique, so re-running analysis for a gap
// refreshes scores and actions instead of duplicating rows.
func (db *DB) UpsertGapMatches(ctx context.Context, matches []model.GapMatch) error {
	if len(matches) == 0 {
		return nil
	}

	return WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("storage: begin upsert matches tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		for i := range matches {
			m := &matches[i]
			if m.ID == uuid.Nil {
				m.ID = uuid.New()
			}
			if m.CreatedAt.IsZero() {
				m.CreatedAt = time.Now().UTC()
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO gap_matches (id, gap_id, match_type, agent_id, workflow_id, skill_id,
				                          target_id, relevance_score, suggested_action, gap_reason, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				 ON CONFLICT (gap_id, match_type, target_id) DO UPDATE SET
				   relevance_score = EXCLUDED.relevance_score,
				   suggested_action = EXCLUDED.suggested_action,
				   gap_reason = EXCLUDED.gap_reason`,
				m.ID, m.GapID, string(m.MatchType), m.AgentID, m.WorkflowID, m.SkillID,
				m.TargetID, m.RelevanceScore, string(m.SuggestedAction), m.GapReason, m.CreatedAt,
			); err != nil {
				return fmt.Errorf("storage: upsert gap match: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("storage: commit upsert matches tx: %w", err)
		}
		return nil
	})
}

// ListMatchesForGap returns a gap's matches ordered by relevance, best first.
func (db *DB) ListMatchesForGap(ctx context.Context, gapID uuid.UUID) ([]model.GapMatch, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, gap_id, match_type, agent_id, workflow_id, skill_id, target_id,
		        relevance_score, suggested_action, gap_reason, created_at
		 FROM gap_matches WHERE gap_id = $1
		 ORDER BY relevance_score DESC, created_at ASC`, gapID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list gap matches: %w", err)
	}
	defer rows.Close()

	var matches []model.GapMatch
	for rows.Next() {
		var m model.GapMatch
		if err := rows.Scan(
			&m.ID, &m.GapID, &m.MatchType, &m.AgentID, &m.WorkflowID, &m.SkillID,
			&m.TargetID, &m.RelevanceScore, &m.SuggestedAction, &m.GapReason, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan gap match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
