package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/digital-coe/agenthub/internal/model"
	"github.com/digital-coe/agenthub/internal/service/gapmatch"
	"github.com/digital-coe/agenthub/internal/service/usage"
	"github.com/digital-coe/agenthub/internal/storage"
)

// Store is the read surface handlers use directly. Writes that carry
// business rules go through the services instead. Both the Postgres and
// SQLite stores satisfy it.
type Store interface {
	Ping(ctx context.Context) error

	CreateAgent(ctx context.Context, agent model.Agent) (model.Agent, error)
	GetAgent(ctx context.Context, id uuid.UUID) (model.Agent, error)
	ListAgents(ctx context.Context, filter storage.AgentFilter) ([]model.Agent, error)
	UpdateAgent(ctx context.Context, id uuid.UUID, req model.UpdateAgentRequest) (model.Agent, error)
	DashboardStats(ctx context.Context) (model.DashboardStats, error)

	CreateWorkflowPack(ctx context.Context, w model.WorkflowPack) (model.WorkflowPack, error)
	ListWorkflowPacks(ctx context.Context) ([]model.WorkflowPack, error)
	CreateSkill(ctx context.Context, s model.Skill) (model.Skill, error)
	ListSkills(ctx context.Context) ([]model.Skill, error)

	CreateGap(ctx context.Context, g model.Gap) (model.Gap, error)
	GetGap(ctx context.Context, id uuid.UUID) (model.Gap, error)
	ListGaps(ctx context.Context) ([]model.Gap, error)
	UpdateGap(ctx context.Context, id uuid.UUID, req model.UpdateGapRequest) (model.Gap, error)
	ListMatchesForGap(ctx context.Context, gapID uuid.UUID) ([]model.GapMatch, error)

	ListSnapshots(ctx context.Context, agentID *uuid.UUID) ([]model.UsageMetricsSnapshot, error)
	ListUnmatched(ctx context.Context, includeResolved bool) ([]model.UnmatchedUsageRow, error)
	ListAliases(ctx context.Context) ([]model.AgentAlias, error)
	ListImports(ctx context.Context) ([]model.ImportRecord, error)
}

// Handlers bundles the HTTP handlers and their dependencies.
type Handlers struct {
	store      Store
	reconciler *usage.Reconciler
	matcher    *gapmatch.Matcher
	logger     *slog.Logger

	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds everything NewHandlers needs.
type HandlersDeps struct {
	Store               Store
	Reconciler          *usage.Reconciler
	Matcher             *gapmatch.Matcher
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates the handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		store:               deps.Store,
		reconciler:          deps.Reconciler,
		matcher:             deps.Matcher,
		logger:              deps.Logger,
		version:             deps.Version,
		maxRequestBodyBytes: deps.MaxRequestBodyBytes,
	}
}

// HandleHealth reports service liveness and store reachability.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("health: store ping failed", "error", err)
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// HandleDashboardStats returns agent counts by status, platform, and type.
func (h *Handlers) HandleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.DashboardStats(r.Context())
	if err != nil {
		h.logger.Error("dashboard stats failed", "error", err)
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}
