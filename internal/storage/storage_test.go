package storage_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digital-coe/agenthub/internal/model"
	"github.com/digital-coe/agenthub/internal/storage"
	"github.com/digital-coe/agenthub/internal/testutil"
	"github.com/digital-coe/agenthub/migrations"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()
	testDB.Close(context.Background())
	tc.Terminate()
	os.Exit(code)
}

func requireDB(t *testing.T) {
	t.Helper()
	if testDB == nil {
		t.Skip("integration test requires docker (run without -short)")
	}
}

func strPtr(s string) *string { return &s }

func TestRunMigrationsIdempotent(t *testing.T) {
	requireDB(t)

	// NewTestDB already ran migrations; a second run must skip every
	// applied file without error.
	require.NoError(t, testDB.RunMigrations(context.Background(), migrations.FS))
}

func TestAgentRoundTrip(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	created, err := testDB.CreateAgent(ctx, model.Agent{
		Name:            "Invoice Triage Bot",
		Description:     strPtr("Routes inbound invoices"),
		AgentType:       "Autonomous",
		Platform:        "Copilot Studio",
		Status:          model.AgentStatusDeployed,
		FunctionDomains: []string{"Finance"},
		SubFunctions:    []string{"Accounts Payable"},
		Tags:            []string{"finance"},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := testDB.GetAgent(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Invoice Triage Bot", got.Name)
	assert.Equal(t, []string{"Finance"}, got.FunctionDomains)
	assert.Equal(t, model.AgentStatusDeployed, got.Status)

	// Partial update leaves unset fields alone.
	updated, err := testDB.UpdateAgent(ctx, created.ID, model.UpdateAgentRequest{
		Status: strPtr(string(model.AgentStatusArchived)),
	})
	require.NoError(t, err)
	assert.Equal(t, model.AgentStatusArchived, updated.Status)
	assert.Equal(t, "Invoice Triage Bot", updated.Name)

	_, err = testDB.GetAgent(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListAgentsFilter(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	_, err := testDB.CreateAgent(ctx, model.Agent{Name: "Claims Summarizer", AgentType: "Assistive", Platform: "Azure AI Foundry"})
	require.NoError(t, err)

	bySearch, err := testDB.ListAgents(ctx, storage.AgentFilter{Search: "claims summ"})
	require.NoError(t, err)
	require.NotEmpty(t, bySearch)
	assert.Equal(t, "Claims Summarizer", bySearch[0].Name)

	byStatus, err := testDB.ListAgents(ctx, storage.AgentFilter{Status: "Ideation"})
	require.NoError(t, err)
	for _, a := range byStatus {
		assert.Equal(t, model.AgentStatusIdeation, a.Status)
	}
}

func TestGapMatchUpsert(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	gap, err := testDB.CreateGap(ctx, model.Gap{
		Title:            "Contract summarization",
		ProblemStatement: "Legal reviews every contract manually",
		SubFunctions:     []string{"Legal Ops"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.GapStatusNew, gap.Status)

	agent, err := testDB.CreateAgent(ctx, model.Agent{Name: "Contract Bot", AgentType: "Autonomous", Platform: "Copilot Studio"})
	require.NoError(t, err)

	match := model.GapMatch{
		GapID:           gap.ID,
		MatchType:       model.MatchTypeAgent,
		AgentID:         &agent.ID,
		TargetID:        agent.ID,
		RelevanceScore:  0.6,
		SuggestedAction: model.ActionExtend,
	}
	require.NoError(t, testDB.UpsertGapMatches(ctx, []model.GapMatch{match}))

	// Re-analysis updates the existing row instead of inserting a duplicate.
	match.RelevanceScore = 0.85
	match.SuggestedAction = model.ActionReuse
	require.NoError(t, testDB.UpsertGapMatches(ctx, []model.GapMatch{match}))

	matches, err := testDB.ListMatchesForGap(ctx, gap.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 0.85, matches[0].RelevanceScore, 1e-9)
	assert.Equal(t, model.ActionReuse, matches[0].SuggestedAction)

	require.NoError(t, testDB.SetRecommendedPath(ctx, gap.ID, "Reuse existing agent"))
	got, err := testDB.GetGap(ctx, gap.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RecommendedPath)
	assert.Equal(t, "Reuse existing agent", *got.RecommendedPath)
}

func TestResolveUnmatchedFlow(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	agent, err := testDB.CreateAgent(ctx, model.Agent{Name: "HR Helper", AgentType: "Assistive", Platform: "Copilot Studio"})
	require.NoError(t, err)

	row := model.UnmatchedUsageRow{
		ID:              uuid.New(),
		Account:         "EMEA",
		AgentName:       "hr helper bot",
		Metric:          "unique_users",
		Value:           42,
		TimeWindowStart: "2026-08-01",
		TimeWindowEnd:   "2026-08-31",
		DataSource:      model.DefaultDataSource,
	}
	require.NoError(t, testDB.InsertUnmatched(ctx, []model.UnmatchedUsageRow{row}))

	require.NoError(t, testDB.ResolveUnmatched(ctx, storage.ResolveInput{
		RowID:       row.ID,
		AgentID:     agent.ID,
		AgentName:   agent.Name,
		ResolvedBy:  "tester",
		CreateAlias: true,
	}))

	// The row is resolved, a snapshot exists, and the alias is learned
	// from the row's original free-text name.
	resolved, err := testDB.GetUnmatchedRow(ctx, row.ID)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	require.NotNil(t, resolved.ResolvedAgentID)
	assert.Equal(t, agent.ID, *resolved.ResolvedAgentID)

	snaps, err := testDB.ListSnapshots(ctx, &agent.ID)
	require.NoError(t, err)
	require.NotEmpty(t, snaps)
	assert.InDelta(t, 42, snaps[0].Value, 1e-9)
	require.NotNil(t, snaps[0].MatchConfidence)
	assert.Equal(t, model.ConfidenceManual, *snaps[0].MatchConfidence)

	aliases, err := testDB.ListAliases(ctx)
	require.NoError(t, err)
	found := false
	for _, a := range aliases {
		if a.AliasName == "hr helper bot" && a.AgentID == agent.ID {
			found = true
		}
	}
	assert.True(t, found, "alias should be learned from the original row name")

	// A second alias insert for the same name is absorbed.
	require.NoError(t, testDB.InsertAlias(ctx, model.AgentAlias{
		AliasName: "hr helper bot",
		AgentID:   agent.ID,
	}))
}

func TestImportHistory(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	require.NoError(t, testDB.RecordImport(ctx, model.ImportRecord{
		FileName:        "adoption_aug.csv",
		RecordsImported: 10,
		RecordsFailed:   2,
		ImportedBy:      strPtr("Admin"),
	}))

	imports, err := testDB.ListImports(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, imports)
	assert.Equal(t, "adoption_aug.csv", imports[0].FileName)
	assert.WithinDuration(t, time.Now(), imports[0].CreatedAt, time.Minute)
}
