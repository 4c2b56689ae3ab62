package server

import (
	"net/http"

	"github.com/digital-coe/agenthub/internal/model"
	"github.com/digital-coe/agenthub/internal/storage"
)

// HandleCreateAgent handles POST /v1/agents.
func (h *Handlers) HandleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	agent := model.Agent{
		Name:            req.Name,
		Description:     req.Description,
		AgentType:       req.AgentType,
		Platform:        req.Platform,
		HostedIn:        req.HostedIn,
		Status:          model.AgentStatus(req.Status),
		FunctionDomains: req.FunctionDomains,
		SubFunctions:    req.SubFunctions,
		OwnerPrimary:    req.OwnerPrimary,
		OwnerTeam:       req.OwnerTeam,
		Tags:            req.Tags,
	}
	if err := agent.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	created, err := h.store.CreateAgent(r.Context(), agent)
	if err != nil {
		h.logger.Error("create agent failed", "error", err)
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, created)
}

// HandleListAgents handles GET /v1/agents with optional status and search
// query filters.
func (h *Handlers) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	filter := storage.AgentFilter{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
	}
	agents, err := h.store.ListAgents(r.Context(), filter)
	if err != nil {
		h.logger.Error("list agents failed", "error", err)
		writeStoreError(w, r, err)
		return
	}
	if agents == nil {
		agents = []model.Agent{}
	}
	writeJSON(w, r, http.StatusOK, agents)
}

// HandleGetAgent handles GET /v1/agents/{id}.
func (h *Handlers) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid agent id")
		return
	}
	agent, err := h.store.GetAgent(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, agent)
}

// HandleUpdateAgent handles PATCH /v1/agents/{id}. Absent fields are left
// unchanged.
func (h *Handlers) HandleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid agent id")
		return
	}
	var req model.UpdateAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if req.Status != nil && !model.AgentStatus(*req.Status).Valid() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown status")
		return
	}

	updated, err := h.store.UpdateAgent(r.Context(), id, req)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, updated)
}

// HandleCreateWorkflow handles POST /v1/workflows.
func (h *Handlers) HandleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var pack model.WorkflowPack
	if err := decodeJSON(r, &pack); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if pack.Name == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name is required")
		return
	}
	created, err := h.store.CreateWorkflowPack(r.Context(), pack)
	if err != nil {
		h.logger.Error("create workflow pack failed", "error", err)
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, created)
}

// HandleListWorkflows handles GET /v1/workflows.
func (h *Handlers) HandleListWorkflows(w http.ResponseWriter, r *http.Request) {
	packs, err := h.store.ListWorkflowPacks(r.Context())
	if err != nil {
		h.logger.Error("list workflow packs failed", "error", err)
		writeStoreError(w, r, err)
		return
	}
	if packs == nil {
		packs = []model.WorkflowPack{}
	}
	writeJSON(w, r, http.StatusOK, packs)
}

// HandleCreateSkill handles POST /v1/skills.
func (h *Handlers) HandleCreateSkill(w http.ResponseWriter, r *http.Request) {
	var skill model.Skill
	if err := decodeJSON(r, &skill); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if skill.Name == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "name is required")
		return
	}
	if skill.Status != "" && !skill.Status.Valid() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "unknown status")
		return
	}
	created, err := h.store.CreateSkill(r.Context(), skill)
	if err != nil {
		h.logger.Error("create skill failed", "error", err)
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, created)
}

// HandleListSkills handles GET /v1/skills.
func (h *Handlers) HandleListSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := h.store.ListSkills(r.Context())
	if err != nil {
		h.logger.Error("list skills failed", "error", err)
		writeStoreError(w, r, err)
		return
	}
	if skills == nil {
		skills = []model.Skill{}
	}
	writeJSON(w, r, http.StatusOK, skills)
}
