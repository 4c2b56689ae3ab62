package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/digital-coe/agenthub/internal/model"
	serviceusage "github.com/digital-coe/agenthub/internal/service/usage"
	"github.com/digital-coe/agenthub/internal/storage"
)

// HandleImportUsage handles POST /v1/usage/import. The body is either a
// multipart form with a "file" part or a raw CSV body.
func (h *Handlers) HandleImportUsage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)

	var src io.Reader = r.Body
	fileName := "upload.csv"

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "missing file part")
			return
		}
		defer file.Close()
		src = file
		if header.Filename != "" {
			fileName = header.Filename
		}
	}

	result, err := h.reconciler.ImportCSV(r.Context(), fileName, src)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput, "request body too large")
			return
		}
		h.logger.Error("usage import failed", "file", fileName, "error", err)
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.ImportResponse{
		Matched:   result.Matched,
		Unmatched: result.Unmatched,
	})
}

// HandleListSnapshots handles GET /v1/usage/snapshots with an optional
// agent_id filter.
func (h *Handlers) HandleListSnapshots(w http.ResponseWriter, r *http.Request) {
	var agentID *uuid.UUID
	if raw := r.URL.Query().Get("agent_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid agent_id")
			return
		}
		agentID = &id
	}

	snapshots, err := h.store.ListSnapshots(r.Context(), agentID)
	if err != nil {
		h.logger.Error("list snapshots failed", "error", err)
		writeStoreError(w, r, err)
		return
	}
	if snapshots == nil {
		snapshots = []model.UsageMetricsSnapshot{}
	}
	writeJSON(w, r, http.StatusOK, snapshots)
}

// HandleListUnmatched handles GET /v1/usage/unmatched. Resolved rows are
// included only with include_resolved=true.
func (h *Handlers) HandleListUnmatched(w http.ResponseWriter, r *http.Request) {
	includeResolved := r.URL.Query().Get("include_resolved") == "true"
	rows, err := h.store.ListUnmatched(r.Context(), includeResolved)
	if err != nil {
		h.logger.Error("list unmatched rows failed", "error", err)
		writeStoreError(w, r, err)
		return
	}
	if rows == nil {
		rows = []model.UnmatchedUsageRow{}
	}
	writeJSON(w, r, http.StatusOK, rows)
}

// HandleResolveUnmatched handles POST /v1/usage/unmatched/{id}/resolve.
func (h *Handlers) HandleResolveUnmatched(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid row id")
		return
	}
	var req model.ResolveUnmatchedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if req.AgentID == uuid.Nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "agent_id is required")
		return
	}

	err = h.reconciler.ResolveUnmatchedRow(r.Context(), serviceusage.ResolveInput{
		RowID:       id,
		AgentID:     req.AgentID,
		AgentName:   req.AgentName,
		CreateAlias: req.CreateAlias,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "resource not found")
			return
		}
		h.logger.Error("resolve unmatched row failed", "row_id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal error")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"resolved": true})
}

// HandleListAliases handles GET /v1/usage/aliases.
func (h *Handlers) HandleListAliases(w http.ResponseWriter, r *http.Request) {
	aliases, err := h.store.ListAliases(r.Context())
	if err != nil {
		h.logger.Error("list aliases failed", "error", err)
		writeStoreError(w, r, err)
		return
	}
	if aliases == nil {
		aliases = []model.AgentAlias{}
	}
	writeJSON(w, r, http.StatusOK, aliases)
}

// HandleListImports handles GET /v1/usage/imports.
func (h *Handlers) HandleListImports(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListImports(r.Context())
	if err != nil {
		h.logger.Error("list import history failed", "error", err)
		writeStoreError(w, r, err)
		return
	}
	if records == nil {
		records = []model.ImportRecord{}
	}
	writeJSON(w, r, http.StatusOK, records)
}
