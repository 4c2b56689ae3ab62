// Package model defines the entity types shared by storage, services, and the
// HTTP API. All types are plain value records; the store owns persistence.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AgentStatus is an agent's lifecycle state in the catalog.
type AgentStatus string

const (
	AgentStatusIdeation         AgentStatus = "Ideation"
	AgentStatusInProgress       AgentStatus = "In Progress"
	AgentStatusUAT              AgentStatus = "UAT"
	AgentStatusGovernanceReview AgentStatus = "Governance Review"
	AgentStatusDeployable       AgentStatus = "Deployable"
	AgentStatusDeployed         AgentStatus = "Deployed"
	AgentStatusArchived         AgentStatus = "Archived"
)

// Valid reports whether s is a known agent status.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusIdeation, AgentStatusInProgress, AgentStatusUAT,
		AgentStatusGovernanceReview, AgentStatusDeployable,
		AgentStatusDeployed, AgentStatusArchived:
		return true
	}
	return false
}

// SkillStatus is a skill's approval state.
type SkillStatus string

const (
	SkillStatusDraft      SkillStatus = "Draft"
	SkillStatusApproved   SkillStatus = "Approved"
	SkillStatusDeprecated SkillStatus = "Deprecated"
)

// Valid reports whether s is a known skill status.
func (s SkillStatus) Valid() bool {
	switch s {
	case SkillStatusDraft, SkillStatusApproved, SkillStatusDeprecated:
		return true
	}
	return false
}

// Maturity is a workflow pack's rollout maturity.
type Maturity string

const (
	MaturityPrototype  Maturity = "Prototype"
	MaturityPilot      Maturity = "Pilot"
	MaturityProduction Maturity = "Production"
)

// Agent is a catalogued AI automation unit. Canonical name is unique by
// convention; the store does not enforce it.
type Agent struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Description     *string    `json:"description,omitempty"`
	AgentType       string     `json:"agent_type"`
	Platform        string     `json:"platform"`
	HostedIn        *string    `json:"hosted_in,omitempty"`
	Status          AgentStatus `json:"status"`
	FunctionDomains []string   `json:"function_domains"`
	SubFunctions    []string   `json:"sub_functions"`
	OwnerPrimary    *string    `json:"owner_primary,omitempty"`
	OwnerTeam       *string    `json:"owner_team,omitempty"`
	Tags            []string   `json:"tags"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Validate checks the fields a caller must supply when creating an agent.
func (a Agent) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(a.Name) > 255 {
		return fmt.Errorf("name must be at most 255 characters")
	}
	if a.Status != "" && !a.Status.Valid() {
		return fmt.Errorf("unknown status %q", a.Status)
	}
	return nil
}

// AgentRef is the slim agent projection the reconciler matches against.
type AgentRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// WorkflowPack is an end-to-end workflow asset. Read-only to the matcher.
type WorkflowPack struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Description      *string   `json:"description,omitempty"`
	ProblemStatement *string   `json:"problem_statement,omitempty"`
	BusinessOutcome  *string   `json:"business_outcome,omitempty"`
	ProcessArea      *string   `json:"process_area,omitempty"`
	Maturity         Maturity  `json:"maturity"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Skill is a reusable capability. Read-only to the matcher.
type Skill struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description *string     `json:"description,omitempty"`
	Status      SkillStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// DashboardStats holds the agent counts the dashboard renders.
type DashboardStats struct {
	TotalAgents      int            `json:"total_agents"`
	DeployedAgents   int            `json:"deployed_agents"`
	DeployableAgents int            `json:"deployable_agents"`
	ByStatus         map[string]int `json:"agents_by_status"`
	ByPlatform       map[string]int `json:"agents_by_platform"`
	ByType           map[string]int `json:"agents_by_type"`
}
