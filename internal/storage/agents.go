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

const agentColumns = `id, name, description, agent_type, platform, hosted_in, status,
	 function_domains, sub_functions, owner_primary, owner_team, tags, created_at, updated_at`

func scanAgent(row pgx.Row) (model.Agent, error) {
	var a model.Agent
	err := row.Scan(
		&a.ID, &a.Name, &a.Description, &a.AgentType, &a.Platform, &a.HostedIn,
		&a.Status, &a.FunctionDomains, &a.SubFunctions, &a.OwnerPrimary,
		&a.OwnerTeam, &a.Tags, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

// CreateAgent inserts a new catalog agent.
func (db *DB) CreateAgent(ctx context.Context, agent model.Agent) (model.Agent, error) {
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

	_, err := db.pool.Exec(ctx,
		`INSERT INTO agents (id, name, description, agent_type, platform, hosted_in, status,
		                     function_domains, sub_functions, owner_primary, owner_team, tags,
		                     created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		agent.ID, agent.Name, agent.Description, agent.AgentType, agent.Platform,
		agent.HostedIn, string(agent.Status), agent.FunctionDomains, agent.SubFunctions,
		agent.OwnerPrimary, agent.OwnerTeam, agent.Tags, agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		return model.Agent{}, fmt.Errorf("storage: create agent: %w", err)
	}
	return agent, nil
}

// GetAgent retrieves an agent by id.
func (db *DB) GetAgent(ctx context.Context, id uuid.UUID) (model.Agent, error) {
	a, err := scanAgent(db.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Agent{}, fmt.Errorf("storage: agent %s: %w", id, ErrNotFound)
		}
		return model.Agent{}, fmt.Errorf("storage: get agent: %w", err)
	}
	return a, nil
}

// AgentFilter narrows ListAgents. Zero value lists everything.
type AgentFilter struct {
	Status string // exact status match
	Search string // case-insensitive substring of name or description
}

// ListAgents returns catalog agents, name-ordered, optionally filtered.
func (db *DB) ListAgents(ctx context.Context, filter AgentFilter) ([]model.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	var args []any
	var where []string
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY name ASC"

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list agents: %w", err)
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// ListAgentRefs returns the id/name projection the reconciler matches against.
func (db *DB) ListAgentRefs(ctx context.Context) ([]model.AgentRef, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, name FROM agents`)
	if err != nil {
		return nil, fmt.Errorf("storage: list agent refs: %w", err)
	}
	defer rows.Close()

	var refs []model.AgentRef
	for rows.Next() {
		var r model.AgentRef
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("storage: scan agent ref: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// UpdateAgent performs a partial update. Nil request fields are left
// unchanged (COALESCE pattern). Returns the updated agent.
func (db *DB) UpdateAgent(ctx context.Context, id uuid.UUID, req model.UpdateAgentRequest) (model.Agent, error) {
	a, err := scanAgent(db.pool.QueryRow(ctx,
		`UPDATE agents
		 SET name = COALESCE($1, name),
		     description = COALESCE($2, description),
		     status = COALESCE($3, status),
		     function_domains = COALESCE($4, function_domains),
		     sub_functions = COALESCE($5, sub_functions),
		     tags = COALESCE($6, tags),
		     updated_at = now()
		 WHERE id = $7
		 RETURNING `+agentColumns,
		req.Name, req.Description, req.Status,
		sliceOrNil(req.FunctionDomains), sliceOrNil(req.SubFunctions), sliceOrNil(req.Tags),
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Agent{}, fmt.Errorf("storage: agent %s: %w", id, ErrNotFound)
		}
		return model.Agent{}, fmt.Errorf("storage: update agent: %w", err)
	}
	return a, nil
}

// sliceOrNil dereferences an optional slice field so pgx sends NULL (not an
// empty array) when the caller omitted it.
func sliceOrNil(s *[]string) any {
	if s == nil {
		return nil
	}
	return *s
}

// DashboardStats returns agent counts grouped by status, platform, and type.
func (db *DB) DashboardStats(ctx context.Context) (model.DashboardStats, error) {
	stats := model.DashboardStats{
		ByStatus:   make(map[string]int),
		ByPlatform: make(map[string]int),
		ByType:     make(map[string]int),
	}

	rows, err := db.pool.Query(ctx,
		`SELECT status, platform, agent_type, count(*) FROM agents GROUP BY 1, 2, 3`)
	if err != nil {
		return stats, fmt.Errorf("storage: dashboard stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, platform, agentType string
		var n int
		if err := rows.Scan(&status, &platform, &agentType, &n); err != nil {
			return stats, fmt.Errorf("storage: scan dashboard stats: %w", err)
		}
		stats.TotalAgents += n
		stats.ByStatus[status] += n
		stats.ByPlatform[platform] += n
		stats.ByType[agentType] += n
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("storage: dashboard stats: %w", err)
	}
	stats.DeployedAgents = stats.ByStatus[string(model.AgentStatusDeployed)]
	stats.DeployableAgents = stats.ByStatus[string(model.AgentStatusDeployable)]
	return stats, nil
}
