package gapmatch

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digital-coe/agenthub/internal/model"
	"github.com/digital-coe/agenthub/internal/storage"
	"github.com/digital-coe/agenthub/internal/storage/lite"
)

func newTestMatcher(t *testing.T) (*Matcher, *lite.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := lite.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })
	return New(store, logger), store
}

func strPtr(v string) *string { return &v }

func matchesOfType(matches []model.GapMatch, mt model.MatchType) []model.GapMatch {
	var out []model.GapMatch
	for _, m := range matches {
		if m.MatchType == mt {
			out = append(out, m)
		}
	}
	return out
}

func TestScoreAgentAdditive(t *testing.T) {
	gap := model.Gap{
		ID:           uuid.New(),
		ProcessArea:  strPtr("Finance"),
		SubFunctions: []string{"Invoice Processing"},
	}

	tests := []struct {
		name      string
		agent     model.Agent
		wantScore float64
		wantOK    bool
	}{
		{
			name: "all three signals clamp at ceiling",
			agent: model.Agent{
				ID:              uuid.New(),
				Name:            "Invoice Processing Copilot",
				FunctionDomains: []string{"Finance"},
				SubFunctions:    []string{"invoice processing"},
			},
			wantScore: model.MaxRelevance,
			wantOK:    true,
		},
		{
			name: "domain only",
			agent: model.Agent{
				ID:              uuid.New(),
				Name:            "Ledger Bot",
				FunctionDomains: []string{"Finance"},
			},
			wantScore: 0.3,
			wantOK:    true,
		},
		{
			name: "sub-function overlap only",
			agent: model.Agent{
				ID:           uuid.New(),
				Name:         "Helper",
				// "processing" overlaps the gap sub-function as a substring,
				// but the gap's full sub-function never appears in the
				// agent's text blob, so the text signal stays off.
				SubFunctions: []string{"processing"},
			},
			wantScore: 0.4,
			wantOK:    true,
		},
		{
			name: "text mention only",
			agent: model.Agent{
				ID:          uuid.New(),
				Name:        "General Assistant",
				Description: strPtr("Handles invoice processing end to end"),
			},
			wantScore: 0.3,
			wantOK:    true,
		},
		{
			name:   "no signal",
			agent:  model.Agent{ID: uuid.New(), Name: "Unrelated"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, ok := scoreAgent(gap, tt.agent)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.InDelta(t, tt.wantScore, match.RelevanceScore, 1e-9)
				assert.Equal(t, model.MatchTypeAgent, match.MatchType)
				require.NotNil(t, match.AgentID)
				assert.Equal(t, tt.agent.ID, *match.AgentID)
				assert.Equal(t, tt.agent.ID, match.TargetID)
			}
		})
	}
}

func TestScoreWorkflow(t *testing.T) {
	gap := model.Gap{
		ID:           uuid.New(),
		ProcessArea:  strPtr("Finance"),
		SubFunctions: []string{"invoice"},
	}

	both, ok := scoreWorkflow(gap, model.WorkflowPack{
		ID:          uuid.New(),
		Name:        "Invoice Lifecycle",
		ProcessArea: strPtr("Finance"),
	})
	require.True(t, ok)
	assert.InDelta(t, 0.8, both.RelevanceScore, 1e-9)
	assert.Equal(t, model.ActionReuse, both.SuggestedAction)

	areaOnly, ok := scoreWorkflow(gap, model.WorkflowPack{
		ID:          uuid.New(),
		Name:        "Procurement",
		ProcessArea: strPtr("Finance"),
	})
	require.True(t, ok)
	assert.InDelta(t, 0.4, areaOnly.RelevanceScore, 1e-9)
	assert.Equal(t, model.ActionPartialFit, areaOnly.SuggestedAction)

	// Text signal also fires on the business outcome.
	outcome, ok := scoreWorkflow(gap, model.WorkflowPack{
		ID:              uuid.New(),
		Name:            "AP Automation",
		BusinessOutcome: strPtr("Faster invoice turnaround"),
	})
	require.True(t, ok)
	assert.InDelta(t, 0.4, outcome.RelevanceScore, 1e-9)

	_, ok = scoreWorkflow(gap, model.WorkflowPack{ID: uuid.New(), Name: "Hiring"})
	assert.False(t, ok)
}

func TestScoreSkill(t *testing.T) {
	gap := model.Gap{ID: uuid.New(), SubFunctions: []string{"summarization"}}

	approved, ok := scoreSkill(gap, model.Skill{
		ID: uuid.New(), Name: "Document Summarization", Status: model.SkillStatusApproved,
	})
	require.True(t, ok)
	assert.InDelta(t, 0.8, approved.RelevanceScore, 1e-9)
	assert.Equal(t, model.ActionReuse, approved.SuggestedAction)
	assert.Nil(t, approved.GapReason)

	draft, ok := scoreSkill(gap, model.Skill{
		ID: uuid.New(), Name: "Summarization Helper", Status: model.SkillStatusDraft,
	})
	require.True(t, ok)
	assert.Equal(t, model.ActionExtend, draft.SuggestedAction)

	deprecated, ok := scoreSkill(gap, model.Skill{
		ID: uuid.New(), Name: "Legacy Summarization", Status: model.SkillStatusDeprecated,
	})
	require.True(t, ok)
	assert.Equal(t, model.ActionExtend, deprecated.SuggestedAction)
	require.NotNil(t, deprecated.GapReason)
	assert.Equal(t, "Skill is deprecated", *deprecated.GapReason)

	_, ok = scoreSkill(gap, model.Skill{ID: uuid.New(), Name: "Translation"})
	assert.False(t, ok)
}

func TestRecommend(t *testing.T) {
	agentMatch := func(score float64) model.GapMatch {
		return model.GapMatch{MatchType: model.MatchTypeAgent, RelevanceScore: score}
	}
	skillMatch := model.GapMatch{MatchType: model.MatchTypeSkill, RelevanceScore: 0.8}

	tests := []struct {
		name    string
		matches []model.GapMatch
		want    string
	}{
		{
			name:    "strong agent matches",
			matches: []model.GapMatch{agentMatch(0.99), agentMatch(0.7), agentMatch(0.4)},
			want:    "Reuse existing agent — 2 agent(s) closely match this need with 99% relevance.",
		},
		{
			name:    "moderate agent match",
			matches: []model.GapMatch{agentMatch(0.5)},
			want:    "Extend existing agent — 50% of required capabilities exist, but customization may be needed.",
		},
		{
			// A weak agent candidate still beats a skill-only outcome.
			name:    "weak agent match",
			matches: []model.GapMatch{agentMatch(0.3), skillMatch},
			want:    "Extend existing agent — 30% of required capabilities exist, but customization may be needed.",
		},
		{
			name:    "skills only",
			matches: []model.GapMatch{skillMatch},
			want:    "Build new agent — Required skills exist, but no agent combines them for this use case.",
		},
		{
			name: "nothing",
			want: "Discovery required — No strong matches found. Further analysis recommended.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Recommend(tt.matches))
		})
	}
}

func TestAnalyzePersistsMatchesAndRecommendation(t *testing.T) {
	m, store := newTestMatcher(t)
	ctx := context.Background()

	_, err := store.CreateAgent(ctx, model.Agent{
		Name:            "Invoice Copilot",
		FunctionDomains: []string{"Finance"},
		SubFunctions:    []string{"Invoice Processing"},
	})
	require.NoError(t, err)
	_, err = store.CreateSkill(ctx, model.Skill{
		Name: "Invoice Extraction", Status: model.SkillStatusApproved,
	})
	require.NoError(t, err)

	gap, err := store.CreateGap(ctx, model.Gap{
		Title:            "Automate AP",
		ProblemStatement: "Manual invoice entry",
		ProcessArea:      strPtr("Finance"),
		SubFunctions:     []string{"Invoice Processing", "invoice"},
	})
	require.NoError(t, err)

	analysis, err := m.Analyze(ctx, gap.ID, false)
	require.NoError(t, err)
	assert.False(t, analysis.Skipped)

	agentMatches := matchesOfType(analysis.Matches, model.MatchTypeAgent)
	require.Len(t, agentMatches, 1)
	assert.Equal(t, model.MaxRelevance, agentMatches[0].RelevanceScore)
	assert.Equal(t, model.ActionReuse, agentMatches[0].SuggestedAction)
	require.Len(t, matchesOfType(analysis.Matches, model.MatchTypeSkill), 1)

	// Analysis only writes recommended_path; intake status stays put.
	assert.Equal(t, model.GapStatusNew, analysis.Gap.Status)
	require.NotNil(t, analysis.Gap.RecommendedPath)
	assert.Equal(t,
		"Reuse existing agent — 1 agent(s) closely match this need with 99% relevance.",
		*analysis.Gap.RecommendedPath)

	persisted, err := store.ListMatchesForGap(ctx, gap.ID)
	require.NoError(t, err)
	assert.Len(t, persisted, 2)
}

func TestAnalyzeNoMatchesWritesNothing(t *testing.T) {
	m, store := newTestMatcher(t)
	ctx := context.Background()

	// A catalog asset with nothing in common with the gap must not
	// produce a match row or a recommendation.
	_, err := store.CreateAgent(ctx, model.Agent{
		Name:            "Payroll Copilot",
		FunctionDomains: []string{"HR"},
	})
	require.NoError(t, err)
	gap, err := store.CreateGap(ctx, model.Gap{
		Title:            "Automate contract review",
		ProblemStatement: "Legal reviews every contract by hand",
		ProcessArea:      strPtr("Legal"),
	})
	require.NoError(t, err)

	analysis, err := m.Analyze(ctx, gap.ID, false)
	require.NoError(t, err)
	assert.False(t, analysis.Skipped)
	assert.Empty(t, analysis.Matches)
	assert.Nil(t, analysis.Gap.RecommendedPath)

	persisted, err := store.ListMatchesForGap(ctx, gap.ID)
	require.NoError(t, err)
	assert.Empty(t, persisted)

	stored, err := store.GetGap(ctx, gap.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.RecommendedPath)
	assert.Equal(t, model.GapStatusNew, stored.Status)
}

func TestAnalyzeSkipsUnlessForced(t *testing.T) {
	m, store := newTestMatcher(t)
	ctx := context.Background()

	agent, err := store.CreateAgent(ctx, model.Agent{
		Name:            "Invoice Copilot",
		FunctionDomains: []string{"Finance"},
	})
	require.NoError(t, err)
	gap, err := store.CreateGap(ctx, model.Gap{
		Title:            "Automate AP",
		ProblemStatement: "Manual invoice entry",
		ProcessArea:      strPtr("Finance"),
	})
	require.NoError(t, err)

	first, err := m.Analyze(ctx, gap.ID, false)
	require.NoError(t, err)
	require.Len(t, first.Matches, 1)

	// Second run without force returns the stored matches untouched.
	second, err := m.Analyze(ctx, gap.ID, false)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Len(t, second.Matches, 1)

	// Catalog changed; forced re-analysis refreshes rather than duplicates.
	_, err = store.UpdateAgent(ctx, agent.ID, model.UpdateAgentRequest{
		SubFunctions: &[]string{"Invoice Processing"},
	})
	require.NoError(t, err)
	gapSubs := []string{"Invoice Processing"}
	_, err = store.UpdateGap(ctx, gap.ID, model.UpdateGapRequest{SubFunctions: &gapSubs})
	require.NoError(t, err)

	forced, err := m.Analyze(ctx, gap.ID, true)
	require.NoError(t, err)
	assert.False(t, forced.Skipped)

	persisted, err := store.ListMatchesForGap(ctx, gap.ID)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, model.MaxRelevance, persisted[0].RelevanceScore)
}

func TestAnalyzeUnknownGap(t *testing.T) {
	m, _ := newTestMatcher(t)
	_, err := m.Analyze(context.Background(), uuid.New(), false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
