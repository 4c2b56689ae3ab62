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

const gapColumns = `id, title, problem_statement, desired_outcome, process_area, sub_functions,
	 urgency, status, recommended_path, created_by, created_at, updated_at`

func scanGap(row pgx.Row) (model.Gap, error) {
	var g model.Gap
	err := row.Scan(
		&g.ID, &g.Title, &g.ProblemStatement, &g.DesiredOutcome, &g.ProcessArea,
		&g.SubFunctions, &g.Urgency, &g.Status, &g.RecommendedPath, &g.CreatedBy,
		&g.CreatedAt, &g.UpdatedAt,
	)
	return g, err
}

// CreateGap inserts a new gap.
func (db *DB) CreateGap(ctx context.Context, g model.Gap) (model.Gap, error) {
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

	_, err := db.pool.Exec(ctx,
		`INSERT INTO gaps (id, title, problem_statement, desired_outcome, process_area,
		                   sub_functions, urgency, status, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		g.ID, g.Title, g.ProblemStatement, g.DesiredOutcome, g.ProcessArea,
		g.SubFunctions, g.Urgency, string(g.Status), g.CreatedBy, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return model.Gap{}, fmt.Errorf("storage: create gap: %w", err)
	}
	return g, nil
}

// GetGap retrieves a gap by id.
func (db *DB) GetGap(ctx context.Context, id uuid.UUID) (model.Gap, error) {
	g, err := scanGap(db.pool.QueryRow(ctx,
		`SELECT `+gapColumns+` FROM gaps WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Gap{}, fmt.Errorf("storage: gap %s: %w", id, ErrNotFound)
		}
		return model.Gap{}, fmt.Errorf("storage: get gap: %w", err)
	}
	return g, nil
}

// ListGaps returns all gaps, newest first.
func (db *DB) ListGaps(ctx context.Context) ([]model.Gap, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+gapColumns+` FROM gaps ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list gaps: %w", err)
	}
	defer rows.Close()

	var gaps []model.Gap
	for rows.Next() {
		g, err := scanGap(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan gap: %w", err)
		}
		gaps = append(gaps, g)
	}
	return gaps, rows.Err()
}

// UpdateGap performs a partial update. Nil request fields are left unchanged.
func (db *DB) UpdateGap(ctx context.Context, id uuid.UUID, req model.UpdateGapRequest) (model.Gap, error) {
	g, err := scanGap(db.pool.QueryRow(ctx,
		`UPDATE gaps
		 SET title = COALESCE($1, title),
		     problem_statement = COALESCE($2, problem_statement),
		     desired_outcome = COALESCE($3, desired_outcome),
		     process_area = COALESCE($4, process_area),
		     sub_functions = COALESCE($5, sub_functions),
		     status = COALESCE($6, status),
		     updated_at = now()
		 WHERE id = $7
		 RETURNING `+gapColumns,
		req.Title, req.ProblemStatement, req.DesiredOutcome, req.ProcessArea,
		sliceOrNil(req.SubFunctions), req.Status, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Gap{}, fmt.Errorf("storage: gap %s: %w", id, ErrNotFound)
		}
		return model.Gap{}, fmt.Errorf("storage: update gap: %w", err)
	}
	return g, nil
}

// SetRecommendedPath writes the derived recommendation onto a gap.
func (db *DB) SetRecommendedPath(ctx context.Context, id uuid.UUID, recommendation string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE gaps SET recommended_path = $1, updated_at = now() WHERE id = $2`,
		recommendation, id,
	)
	if err != nil {
		return fmt.Errorf("storage: set recommended path: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: gap %s: %w", id, ErrNotFound)
	}
	return nil
}
