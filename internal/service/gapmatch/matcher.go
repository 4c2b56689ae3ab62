// Package gapmatch scores catalog assets against submitted gaps and derives
// a recommended path (reuse, extend, build, or discovery) for each gap.
package gapmatch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/digital-coe/agenthub/internal/model"
	"github.com/digital-coe/agenthub/internal/storage"
	"github.com/digital-coe/agenthub/internal/telemetry"
)

// Scoring weights. Scores are additive per asset and clamped to
// model.MaxRelevance; anything below MatchThreshold is discarded.
const (
	weightDomain = 0.3
	weightSubFn  = 0.4
	weightText   = 0.3

	weightWorkflowArea = 0.4
	weightWorkflowText = 0.4

	// Skills match binarily: a matching skill always scores this.
	skillScore = 0.8

	MatchThreshold = 0.3
)

// An agent match at or above this score makes the gap a reuse candidate.
const reuseThreshold = 0.7

// Store is the persistence surface the matcher needs.
type Store interface {
	GetGap(ctx context.Context, id uuid.UUID) (model.Gap, error)
	SetRecommendedPath(ctx context.Context, id uuid.UUID, recommendation string) error
	ListAgents(ctx context.Context, filter storage.AgentFilter) ([]model.Agent, error)
	ListWorkflowPacks(ctx context.Context) ([]model.WorkflowPack, error)
	ListSkills(ctx context.Context) ([]model.Skill, error)
	UpsertGapMatches(ctx context.Context, matches []model.GapMatch) error
	ListMatchesForGap(ctx context.Context, gapID uuid.UUID) ([]model.GapMatch, error)
}

// Matcher analyzes gaps against the asset catalog.
type Matcher struct {
	store  Store
	logger *slog.Logger

	analyzeDuration metric.Float64Histogram
	matchesFound    metric.Int64Counter
}

// New creates a Matcher.
func New(store Store, logger *slog.Logger) *Matcher {
	meter := telemetry.Meter("agenthub/gapmatch")
	dur, _ := meter.Float64Histogram("agenthub.analyze.duration",
		metric.WithDescription("Time to analyze one gap (ms)"),
		metric.WithUnit("ms"),
	)
	found, _ := meter.Int64Counter("agenthub.analyze.matches",
		metric.WithDescription("Matches produced by gap analysis"),
	)
	return &Matcher{store: store, logger: logger, analyzeDuration: dur, matchesFound: found}
}

// Analyze scores every catalog asset against the gap, persists the matches,
// and writes the derived recommendation onto the gap. A gap that already has
// matches is returned as-is unless force is set; forced re-analysis refreshes
// existing match rows in place.
func (m *Matcher) Analyze(ctx context.Context, gapID uuid.UUID, force bool) (model.GapAnalysis, error) {
	start := time.Now()

	gap, err := m.store.GetGap(ctx, gapID)
	if err != nil {
		return model.GapAnalysis{}, err
	}

	if !force {
		existing, err := m.store.ListMatchesForGap(ctx, gapID)
		if err != nil {
			return model.GapAnalysis{}, err
		}
		if len(existing) > 0 {
			return model.GapAnalysis{Gap: gap, Matches: existing, Skipped: true}, nil
		}
	}

	// Load the three catalogs in parallel.
	var agents []model.Agent
	var workflows []model.WorkflowPack
	var skills []model.Skill
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		agents, err = m.store.ListAgents(gctx, storage.AgentFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		workflows, err = m.store.ListWorkflowPacks(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		skills, err = m.store.ListSkills(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.GapAnalysis{}, fmt.Errorf("gapmatch: load catalog: %w", err)
	}

	var matches []model.GapMatch
	for _, agent := range agents {
		if match, ok := scoreAgent(gap, agent); ok {
			matches = append(matches, match)
		}
	}
	for _, w := range workflows {
		if match, ok := scoreWorkflow(gap, w); ok {
			matches = append(matches, match)
		}
	}
	for _, sk := range skills {
		if match, ok := scoreSkill(gap, sk); ok {
			matches = append(matches, match)
		}
	}

	// Zero qualifying matches leaves the gap untouched: no match rows and
	// no recommendation write.
	if len(matches) > 0 {
		if err := m.store.UpsertGapMatches(ctx, matches); err != nil {
			return model.GapAnalysis{}, err
		}
		recommendation := Recommend(matches)
		if err := m.store.SetRecommendedPath(ctx, gapID, recommendation); err != nil {
			return model.GapAnalysis{}, err
		}
		gap.RecommendedPath = &recommendation
	}

	m.matchesFound.Add(ctx, int64(len(matches)))
	m.analyzeDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	m.logger.Info("gap analyzed",
		"gap_id", gapID,
		"matches", len(matches),
	)
	return model.GapAnalysis{Gap: gap, Matches: matches}, nil
}

// scoreAgent scores one agent against a gap. Three additive signals:
// the gap's process area appearing in the agent's function domains, a
// sub-function overlap, and the gap's sub-functions appearing in the agent's
// descriptive text.
func scoreAgent(gap model.Gap, agent model.Agent) (model.GapMatch, bool) {
	var score float64

	if gap.ProcessArea != nil && containsString(agent.FunctionDomains, *gap.ProcessArea) {
		score += weightDomain
	}
	if subFunctionsOverlap(agent.SubFunctions, gap.SubFunctions) {
		score += weightSubFn
	}

	blob := strings.ToLower(agent.Name)
	if agent.Description != nil {
		blob += " " + strings.ToLower(*agent.Description)
	}
	blob += " " + strings.ToLower(strings.Join(agent.SubFunctions, " "))
	if anySubstring(blob, gap.SubFunctions) {
		score += weightText
	}

	if score < MatchThreshold {
		return model.GapMatch{}, false
	}
	score = model.ClampRelevance(score)

	agentID := agent.ID
	return model.GapMatch{
		GapID:           gap.ID,
		MatchType:       model.MatchTypeAgent,
		AgentID:         &agentID,
		TargetID:        agent.ID,
		RelevanceScore:  score,
		SuggestedAction: model.ActionForScore(score),
	}, true
}

// scoreWorkflow scores one workflow pack: process-area equality plus the
// gap's sub-functions appearing in the pack's descriptive text.
func scoreWorkflow(gap model.Gap, w model.WorkflowPack) (model.GapMatch, bool) {
	var score float64

	if gap.ProcessArea != nil && w.ProcessArea != nil && *gap.ProcessArea == *w.ProcessArea {
		score += weightWorkflowArea
	}

	blob := strings.ToLower(w.Name)
	if w.Description != nil {
		blob += " " + strings.ToLower(*w.Description)
	}
	if w.BusinessOutcome != nil {
		blob += " " + strings.ToLower(*w.BusinessOutcome)
	}
	if anySubstring(blob, gap.SubFunctions) {
		score += weightWorkflowText
	}

	if score < MatchThreshold {
		return model.GapMatch{}, false
	}
	score = model.ClampRelevance(score)

	workflowID := w.ID
	return model.GapMatch{
		GapID:           gap.ID,
		MatchType:       model.MatchTypeWorkflow,
		WorkflowID:      &workflowID,
		TargetID:        w.ID,
		RelevanceScore:  score,
		SuggestedAction: model.ActionForScore(score),
	}, true
}

// scoreSkill matches binarily: a skill whose text mentions any gap
// sub-function scores a fixed relevance. Approved skills suggest reuse,
// everything else extension; deprecated skills carry a warning reason.
func scoreSkill(gap model.Gap, sk model.Skill) (model.GapMatch, bool) {
	blob := strings.ToLower(sk.Name)
	if sk.Description != nil {
		blob += " " + strings.ToLower(*sk.Description)
	}
	if !anySubstring(blob, gap.SubFunctions) {
		return model.GapMatch{}, false
	}

	action := model.ActionExtend
	if sk.Status == model.SkillStatusApproved {
		action = model.ActionReuse
	}
	var reason *string
	if sk.Status == model.SkillStatusDeprecated {
		r := "Skill is deprecated"
		reason = &r
	}

	skillID := sk.ID
	return model.GapMatch{
		GapID:           gap.ID,
		MatchType:       model.MatchTypeSkill,
		SkillID:         &skillID,
		TargetID:        sk.ID,
		RelevanceScore:  skillScore,
		SuggestedAction: action,
		GapReason:       reason,
	}, true
}

// Recommend derives the gap-level recommendation from a match set. Agent
// matches drive the reuse/extend tiers; skill matches alone suggest building
// a new agent from existing skills; an empty set means discovery.
func Recommend(matches []model.GapMatch) string {
	var bestAgent float64
	var agentCount, strongAgents, skillCount int
	for _, m := range matches {
		switch m.MatchType {
		case model.MatchTypeAgent:
			agentCount++
			if m.RelevanceScore > bestAgent {
				bestAgent = m.RelevanceScore
			}
			if m.RelevanceScore >= reuseThreshold {
				strongAgents++
			}
		case model.MatchTypeSkill:
			skillCount++
		}
	}

	percent := int(math.Round(bestAgent * 100))
	switch {
	case bestAgent >= reuseThreshold:
		return fmt.Sprintf("Reuse existing agent — %d agent(s) closely match this need with %d%% relevance.",
			strongAgents, percent)
	case agentCount > 0:
		// Any agent candidate at all, however weak, points at extension.
		return fmt.Sprintf("Extend existing agent — %d%% of required capabilities exist, but customization may be needed.",
			percent)
	case skillCount > 0:
		return "Build new agent — Required skills exist, but no agent combines them for this use case."
	default:
		return "Discovery required — No strong matches found. Further analysis recommended."
	}
}

// containsString reports exact membership.
func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// subFunctionsOverlap reports whether any pair of sub-functions overlaps as
// a case-insensitive substring in either direction, so "invoice processing"
// and "processing" count as overlap.
func subFunctionsOverlap(agentSubs, gapSubs []string) bool {
	for _, as := range agentSubs {
		a := strings.ToLower(as)
		for _, gs := range gapSubs {
			g := strings.ToLower(gs)
			if a == "" || g == "" {
				continue
			}
			if strings.Contains(a, g) || strings.Contains(g, a) {
				return true
			}
		}
	}
	return false
}

// anySubstring reports whether any needle appears in the lowercased blob.
func anySubstring(blob string, needles []string) bool {
	for _, n := range needles {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" && strings.Contains(blob, n) {
			return true
		}
	}
	return false
}
