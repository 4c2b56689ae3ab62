package server

import (
	"net/http"

	"github.com/digital-coe/agenthub/internal/model"
)

// HandleCreateGap handles POST /v1/gaps.
func (h *Handlers) HandleCreateGap(w http.ResponseWriter, r *http.Request) {
	var req model.CreateGapRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	gap := model.Gap{
		Title:            req.Title,
		ProblemStatement: req.ProblemStatement,
		DesiredOutcome:   req.DesiredOutcome,
		ProcessArea:      req.ProcessArea,
		SubFunctions:     req.SubFunctions,
		Urgency:          req.Urgency,
		CreatedBy:        req.CreatedBy,
	}
	if err := gap.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	created, err := h.store.CreateGap(r.Context(), gap)
	if err != nil {
		h.logger.Error("create gap failed", "error", err)
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, created)
}

// HandleListGaps handles GET /v1/gaps.
func (h *Handlers) HandleListGaps(w http.ResponseWriter, r *http.Request) {
	gaps, err := h.store.ListGaps(r.Context())
	if err != nil {
		h.logger.Error("list gaps failed", "error", err)
		writeStoreError(w, r, err)
		return
	}
	if gaps == nil {
		gaps = []model.Gap{}
	}
	writeJSON(w, r, http.StatusOK, gaps)
}

// HandleGetGap handles GET /v1/gaps/{id}.
func (h *Handlers) HandleGetGap(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid gap id")
		return
	}
	gap, err := h.store.GetGap(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, gap)
}

// HandleUpdateGap handles PATCH /v1/gaps/{id}.
func (h *Handlers) HandleUpdateGap(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid gap id")
		return
	}
	var req model.UpdateGapRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if req.Status != nil && !model.GapStatus(*req.Status).Valid() {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid gap status: "+*req.Status)
		return
	}

	updated, err := h.store.UpdateGap(r.Context(), id, req)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, updated)
}

// HandleListGapMatches handles GET /v1/gaps/{id}/matches.
func (h *Handlers) HandleListGapMatches(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid gap id")
		return
	}
	// 404 for a missing gap, not an empty match list.
	if _, err := h.store.GetGap(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	matches, err := h.store.ListMatchesForGap(r.Context(), id)
	if err != nil {
		h.logger.Error("list gap matches failed", "error", err)
		writeStoreError(w, r, err)
		return
	}
	if matches == nil {
		matches = []model.GapMatch{}
	}
	writeJSON(w, r, http.StatusOK, matches)
}

// HandleAnalyzeGap handles POST /v1/gaps/{id}/analyze. Pass force=true to
// rescore a gap that already has matches.
func (h *Handlers) HandleAnalyzeGap(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid gap id")
		return
	}
	force := r.URL.Query().Get("force") == "true"

	analysis, err := h.matcher.Analyze(r.Context(), id, force)
	if err != nil {
		h.logger.Error("gap analysis failed", "gap_id", id, "error", err)
		writeStoreError(w, r, err)
		return
	}
	if analysis.Matches == nil {
		analysis.Matches = []model.GapMatch{}
	}
	writeJSON(w, r, http.StatusOK, analysis)
}
