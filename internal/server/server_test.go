package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digital-coe/agenthub/internal/model"
	"github.com/digital-coe/agenthub/internal/service/gapmatch"
	"github.com/digital-coe/agenthub/internal/service/usage"
	"github.com/digital-coe/agenthub/internal/storage/lite"
)

func newTestServer(t *testing.T) (*Server, *lite.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := lite.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })

	handlers := NewHandlers(HandlersDeps{
		Store:               store,
		Reconciler:          usage.New(store, "Admin", logger),
		Matcher:             gapmatch.New(store, logger),
		Logger:              logger,
		Version:             "test",
		MaxRequestBodyBytes: 1 << 20,
	})
	srv := New(ServerConfig{Handlers: handlers, Logger: logger})
	return srv, store
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

// decodeData unwraps the standard {data, meta} envelope.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage    `json:"data"`
		Meta model.ResponseMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.NotEmpty(t, envelope.Meta.RequestID)
	require.NoError(t, json.Unmarshal(envelope.Data, target))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body map[string]string
	decodeData(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestAgentEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/v1/agents", model.CreateAgentRequest{
		Name:            "Invoice Copilot",
		FunctionDomains: []string{"Finance"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.Agent
	decodeData(t, rec, &created)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, model.AgentStatusIdeation, created.Status)

	rec = doRequest(t, srv, http.MethodGet, "/v1/agents/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPatch, "/v1/agents/"+created.ID.String(),
		map[string]string{"status": string(model.AgentStatusDeployed)})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated model.Agent
	decodeData(t, rec, &updated)
	assert.Equal(t, model.AgentStatusDeployed, updated.Status)

	rec = doRequest(t, srv, http.MethodGet, "/v1/agents?status=Deployed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var agents []model.Agent
	decodeData(t, rec, &agents)
	assert.Len(t, agents, 1)

	// Validation and error mapping.
	rec = doRequest(t, srv, http.MethodPost, "/v1/agents", model.CreateAgentRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.ErrCodeInvalidInput, decodeError(t, rec).Error.Code)

	rec = doRequest(t, srv, http.MethodGet, "/v1/agents/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, model.ErrCodeNotFound, decodeError(t, rec).Error.Code)

	rec = doRequest(t, srv, http.MethodGet, "/v1/agents/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkflowAndSkillEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/v1/workflows",
		map[string]string{"name": "Order to Cash"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/v1/skills",
		map[string]string{"name": "Summarize Document", "status": "Approved"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/v1/workflows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var packs []model.WorkflowPack
	decodeData(t, rec, &packs)
	assert.Len(t, packs, 1)

	rec = doRequest(t, srv, http.MethodGet, "/v1/skills", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var skills []model.Skill
	decodeData(t, rec, &skills)
	require.Len(t, skills, 1)
	assert.Equal(t, model.SkillStatusApproved, skills[0].Status)

	rec = doRequest(t, srv, http.MethodPost, "/v1/skills",
		map[string]string{"name": "Bad", "status": "Nope"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGapAnalysisEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/v1/agents", model.CreateAgentRequest{
		Name:            "Invoice Copilot",
		FunctionDomains: []string{"Finance"},
		SubFunctions:    []string{"Invoice Processing"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	area := "Finance"
	rec = doRequest(t, srv, http.MethodPost, "/v1/gaps", model.CreateGapRequest{
		Title:            "Automate AP",
		ProblemStatement: "Manual invoice entry",
		ProcessArea:      &area,
		SubFunctions:     []string{"Invoice Processing"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var gap model.Gap
	decodeData(t, rec, &gap)

	rec = doRequest(t, srv, http.MethodPost, "/v1/gaps/"+gap.ID.String()+"/analyze", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var analysis model.GapAnalysis
	decodeData(t, rec, &analysis)
	require.Len(t, analysis.Matches, 1)
	assert.Equal(t, model.MaxRelevance, analysis.Matches[0].RelevanceScore)
	assert.False(t, analysis.Skipped)
	require.NotNil(t, analysis.Gap.RecommendedPath)
	assert.Contains(t, *analysis.Gap.RecommendedPath, "Reuse existing agent")
	assert.Equal(t, model.GapStatusNew, analysis.Gap.Status)

	// Second analyze without force is a no-op.
	rec = doRequest(t, srv, http.MethodPost, "/v1/gaps/"+gap.ID.String()+"/analyze", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &analysis)
	assert.True(t, analysis.Skipped)

	rec = doRequest(t, srv, http.MethodGet, "/v1/gaps/"+gap.ID.String()+"/matches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var matches []model.GapMatch
	decodeData(t, rec, &matches)
	assert.Len(t, matches, 1)

	rec = doRequest(t, srv, http.MethodPatch, "/v1/gaps/"+gap.ID.String(),
		map[string]string{"status": string(model.GapStatusInReview)})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPatch, "/v1/gaps/"+gap.ID.String(),
		map[string]string{"status": "Analyzed"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/v1/gaps/"+uuid.NewString()+"/analyze", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/v1/gaps/"+uuid.NewString()+"/matches", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUsagePipelineEndpoints(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	agent, err := store.CreateAgent(ctx, model.Agent{Name: "Invoice Copilot"})
	require.NoError(t, err)

	// Raw CSV body import.
	csv := "agent_name,account,value\nInvoice Copilot,Acme,4\nMystery Agent,Acme,2\n"
	req := httptest.NewRequest(http.MethodPost, "/v1/usage/import", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result model.ImportResponse
	decodeData(t, rec, &result)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.Unmatched)

	rec2 := doRequest(t, srv, http.MethodGet, "/v1/usage/snapshots?agent_id="+agent.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec2.Code)
	var snaps []model.UsageMetricsSnapshot
	decodeData(t, rec2, &snaps)
	assert.Len(t, snaps, 1)

	rec2 = doRequest(t, srv, http.MethodGet, "/v1/usage/unmatched", nil)
	require.Equal(t, http.StatusOK, rec2.Code)
	var pending []model.UnmatchedUsageRow
	decodeData(t, rec2, &pending)
	require.Len(t, pending, 1)

	// Resolve with alias learning.
	rec2 = doRequest(t, srv, http.MethodPost,
		"/v1/usage/unmatched/"+pending[0].ID.String()+"/resolve",
		model.ResolveUnmatchedRequest{AgentID: agent.ID, CreateAlias: true})
	require.Equal(t, http.StatusOK, rec2.Code)

	rec2 = doRequest(t, srv, http.MethodGet, "/v1/usage/aliases", nil)
	require.Equal(t, http.StatusOK, rec2.Code)
	var aliases []model.AgentAlias
	decodeData(t, rec2, &aliases)
	require.Len(t, aliases, 1)
	assert.Equal(t, "Mystery Agent", aliases[0].AliasName)

	rec2 = doRequest(t, srv, http.MethodGet, "/v1/usage/imports", nil)
	require.Equal(t, http.StatusOK, rec2.Code)
	var history []model.ImportRecord
	decodeData(t, rec2, &history)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].RecordsImported)

	// Missing agent_id is a validation error, unknown row a 404.
	rec2 = doRequest(t, srv, http.MethodPost,
		"/v1/usage/unmatched/"+pending[0].ID.String()+"/resolve",
		model.ResolveUnmatchedRequest{})
	require.Equal(t, http.StatusBadRequest, rec2.Code)

	rec2 = doRequest(t, srv, http.MethodPost,
		"/v1/usage/unmatched/"+uuid.NewString()+"/resolve",
		model.ResolveUnmatchedRequest{AgentID: agent.ID})
	require.Equal(t, http.StatusNotFound, rec2.Code)
}

func TestImportMultipart(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	_, err := store.CreateAgent(ctx, model.Agent{Name: "Invoice Copilot"})
	require.NoError(t, err)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "adoption_q3.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("agent_name,value\nInvoice Copilot,9\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/usage/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result model.ImportResponse
	decodeData(t, rec, &result)
	assert.Equal(t, 1, result.Matched)

	history, err := store.ListImports(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "adoption_q3.csv", history[0].FileName)
}

func TestDashboardStatsEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	_, err := store.CreateAgent(ctx, model.Agent{Name: "A", Status: model.AgentStatusDeployed})
	require.NoError(t, err)
	_, err = store.CreateAgent(ctx, model.Agent{Name: "B"})
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodGet, "/v1/stats/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats model.DashboardStats
	decodeData(t, rec, &stats)
	assert.Equal(t, 2, stats.TotalAgents)
	assert.Equal(t, 1, stats.DeployedAgents)
}
