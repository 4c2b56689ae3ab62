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

const agentColumns = `id, name, description, agent_type, platform, hosted_in, status,
	 function_domains, sub_functions, owner_primary, owner_team, tags, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (model.Agent, error) {
	var a model.Agent
	var domains, subs, tags, created, updated string
	err := row.Scan(
		&a.ID, &a.Name, &a.Description, &a.AgentType, &a.Platform, &a.HostedIn,
		&a.Status, &domains, &subs, &a.OwnerPrimary, &a.OwnerTeam, &tags,
		&created, &updated,
	)
	if err != nil {
		return model.Agent{}, err
	}
	a.FunctionDomains = decodeList(domains)
	a.SubFunctions = decodeList(subs)
	a.Tags = decodeList(tags)
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return a, nil
}

// CreateAgent inserts a new catalog agent.
func (s *Store) CreateAgent(ctx context.Context, agent model.Agent) (model.Agent, error) {
	if agent.ID == uuid.Nil {
		agent.ID = uuid.New()
	}
	now := time.Now().UTC()
	agent.CreatedAt = now
	agent.UpdatedAt = now
	if agent.Status == "" {
		agent.Status = model.AgentStatusIdeation
	}
	if agent.AgentType == "" {
		agent.AgentType = "General"
	}
	if agent.Platform == "" {
		agent.Platform = "Others"
	}
	if agent.FunctionDomains == nil {
		agent.FunctionDomains = []string{}
	}
	if agent.SubFunctions == nil {
		agent.SubFunctions = []string{}
	}
	if agent.Tags == nil {
		agent.Tags = []string{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, description, agent_type, platform, hosted_in, status,
		                     function_domains, sub_functions, owner_primary, owner_team, tags,
		                     created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Name, agent.Description, agent.AgentType, agent.Platform,
		agent.HostedIn, string(agent.Status), encodeList(agent.FunctionDomains),
		encodeList(agent.SubFunctions), agent.OwnerPrimary, agent.OwnerTeam,
		encodeList(agent.Tags), formatTime(agent.CreatedAt), formatTime(agent.UpdatedAt),
	)
	if err != nil {
		return model.Agent{}, fmt.Errorf("lite: create agent: %w", err)
	}
	return agent, nil
}

// GetAgent retrieves an agent by id.
func (s *Store) GetAgent(ctx context.Context, id uuid.UUID) (model.Agent, error) {
	a, err := scanAgent(s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Agent{}, fmt.Errorf("lite: agent %s: %w", id, storage.ErrNotFound)
		}
		return model.Agent{}, fmt.Errorf("lite: get agent: %w", err)
	}
	return a, nil
}

// ListAgents returns catalog agents, name-ordered, optionally filtered.
// SQLite LIKE is case-insensitive for ASCII, which matches the Postgres
// store's ILIKE behavior for this catalog's names.
func (s *Store) ListAgents(ctx context.Context, filter storage.AgentFilter) ([]model.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	var args []any
	var where []string
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		where = append(where, "(name LIKE ? OR description LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY name ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lite: list agents: %w", err)
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("lite: scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// ListAgentRefs returns the id/name projection the reconciler matches against.
func (s *Store) ListAgentRefs(ctx context.Context) ([]model.AgentRef, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM agents`)
	if err != nil {
		return nil, fmt.Errorf("lite: list agent refs: %w", err)
	}
	defer rows.Close()

	var refs []model.AgentRef
	for rows.Next() {
		var r model.AgentRef
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("lite: scan agent ref: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// UpdateAgent performs a partial update. Nil request fields are left
// unchanged. Returns the updated agent.
func (s *Store) UpdateAgent(ctx context.Context, id uuid.UUID, req model.UpdateAgentRequest) (model.Agent, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents
		 SET name = COALESCE(?, name),
		     description = COALESCE(?, description),
		     status = COALESCE(?, status),
		     function_domains = COALESCE(?, function_domains),
		     sub_functions = COALESCE(?, sub_functions),
		     tags = COALESCE(?, tags),
		     updated_at = ?
		 WHERE id = ?`,
		req.Name, req.Description, req.Status,
		listOrNil(req.FunctionDomains), listOrNil(req.SubFunctions), listOrNil(req.Tags),
		formatTime(time.Now()), id,
	)
	if err != nil {
		return model.Agent{}, fmt.Errorf("lite: update agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Agent{}, fmt.Errorf("lite: agent %s: %w", id, storage.ErrNotFound)
	}
	return s.GetAgent(ctx, id)
}

// listOrNil encodes an optional slice field, keeping NULL for an omitted one
// so the COALESCE update leaves the stored value alone.
func listOrNil(vals *[]string) any {
	if vals == nil {
		return nil
	}
	return encodeList(*vals)
}

// DashboardStats returns agent counts grouped by status, platform, and type.
func (s *Store) DashboardStats(ctx context.Context) (model.DashboardStats, error) {
	stats := model.DashboardStats{
		ByStatus:   make(map[string]int),
		ByPlatform: make(map[string]int),
		ByType:     make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, platform, agent_type, count(*) FROM agents GROUP BY 1, 2, 3`)
	if err != nil {
		return stats, fmt.Errorf("lite: dashboard stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, platform, agentType string
		var n int
		if err := rows.Scan(&status, &platform, &agentType, &n); err != nil {
			return stats, fmt.Errorf("lite: scan dashboard stats: %w", err)
		}
		stats.TotalAgents += n
		stats.ByStatus[status] += n
		stats.ByPlatform[platform] += n
		stats.ByType[agentType] += n
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("lite: dashboard stats: %w", err)
	}
	stats.DeployedAgents = stats.ByStatus[string(model.AgentStatusDeployed)]
	stats.DeployableAgents = stats.ByStatus[string(model.AgentStatusDeployable)]
	return stats, nil
}

// CreateWorkflowPack inserts a new workflow pack.
func (s *Store) CreateWorkflowPack(ctx context.Context, w model.WorkflowPack) (model.WorkflowPack, error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now
	if w.Maturity == "" {
		w.Maturity = model.MaturityPrototype
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_packs (id, name, description, problem_statement, business_outcome,
		                             process_area, maturity, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.Description, w.ProblemStatement, w.BusinessOutcome,
		w.ProcessArea, string(w.Maturity), formatTime(w.CreatedAt), formatTime(w.UpdatedAt),
	)
	if err != nil {
		return model.WorkflowPack{}, fmt.Errorf("lite: create workflow pack: %w", err)
	}
	return w, nil
}

// ListWorkflowPacks returns all workflow packs, name-ordered.
func (s *Store) ListWorkflowPacks(ctx context.Context) ([]model.WorkflowPack, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, problem_statement, business_outcome, process_area,
		        maturity, created_at, updated_at
		 FROM workflow_packs ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("lite: list workflow packs: %w", err)
	}
	defer rows.Close()

	var packs []model.WorkflowPack
	for rows.Next() {
		var w model.WorkflowPack
		var created, updated string
		if err := rows.Scan(
			&w.ID, &w.Name, &w.Description, &w.ProblemStatement, &w.BusinessOutcome,
			&w.ProcessArea, &w.Maturity, &created, &updated,
		); err != nil {
			return nil, fmt.Errorf("lite: scan workflow pack: %w", err)
		}
		w.CreatedAt = parseTime(created)
		w.UpdatedAt = parseTime(updated)
		packs = append(packs, w)
	}
	return packs, rows.Err()
}

// CreateSkill inserts a new skill.
func (s *Store) CreateSkill(ctx context.Context, sk model.Skill) (model.Skill, error) {
	if sk.ID == uuid.Nil {
		sk.ID = uuid.New()
	}
	now := time.Now().UTC()
	sk.CreatedAt = now
	sk.UpdatedAt = now
	if sk.Status == "" {
		sk.Status = model.SkillStatusDraft
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO skills (id, name, description, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sk.ID, sk.Name, sk.Description, string(sk.Status),
		formatTime(sk.CreatedAt), formatTime(sk.UpdatedAt),
	)
	if err != nil {
		return model.Skill{}, fmt.Errorf("lite: create skill: %w", err)
	}
	return sk, nil
}

// ListSkills returns all skills, name-ordered.
func (s *Store) ListSkills(ctx context.Context) ([]model.Skill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, status, created_at, updated_at
		 FROM skills ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("lite: list skills: %w", err)
	}
	defer rows.Close()

	var skills []model.Skill
	for rows.Next() {
		var sk model.Skill
		var created, updated string
		if err := rows.Scan(&sk.ID, &sk.Name, &sk.Description, &sk.Status, &created, &updated); err != nil {
			return nil, fmt.Errorf("lite: scan skill: %w", err)
		}
		sk.CreatedAt = parseTime(created)
		sk.UpdatedAt = parseTime(updated)
		skills = append(skills, sk)
	}
	return skills, rows.Err()
}
