package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/digital-coe/agenthub/internal/model"
)

// CreateWorkflowPack inserts a new workflow pack.
func (db *DB) CreateWorkflowPack(ctx context.Context, w model.WorkflowPack) (model.WorkflowPack, error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now
	if w.Maturity == "" {
		w.Maturity = model.MaturityPrototype
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO workflow_packs (id, name, description, problem_statement, business_outcome,
		                             process_area, maturity, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		w.ID, w.Name, w.Description, w.ProblemStatement, w.BusinessOutcome,
		w.ProcessArea, string(w.Maturity), w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return model.WorkflowPack{}, fmt.Errorf("storage: create workflow pack: %w", err)
	}
	return w, nil
}

// ListWorkflowPacks returns all workflow packs, name-ordered.
func (db *DB) ListWorkflowPacks(ctx context.Context) ([]model.WorkflowPack, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, description, problem_statement, business_outcome, process_area,
		        maturity, created_at, updated_at
		 FROM workflow_packs ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list workflow packs: %w", err)
	}
	defer rows.Close()

	var packs []model.WorkflowPack
	for rows.Next() {
		var w model.WorkflowPack
		if err := rows.Scan(
			&w.ID, &w.Name, &w.Description, &w.ProblemStatement, &w.BusinessOutcome,
			&w.ProcessArea, &w.Maturity, &w.CreatedAt, &w.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan workflow pack: %w", err)
		}
		packs = append(packs, w)
	}
	return packs, rows.Err()
}

// CreateSkill inserts a new skill.
func (db *DB) CreateSkill(ctx context.Context, s model.Skill) (model.Skill, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.Status == "" {
		s.Status = model.SkillStatusDraft
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO skills (id, name, description, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Name, s.Description, string(s.Status), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return model.Skill{}, fmt.Errorf("storage: create skill: %w", err)
	}
	return s, nil
}

// ListSkills returns all skills, name-ordered.
func (db *DB) ListSkills(ctx context.Context) ([]model.Skill, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, description, status, created_at, updated_at
		 FROM skills ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list skills: %w", err)
	}
	defer rows.Close()

	var skills []model.Skill
	for rows.Next() {
		var s model.Skill
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan skill: %w", err)
		}
		skills = append(skills, s)
	}
	return skills, rows.Err()
}
