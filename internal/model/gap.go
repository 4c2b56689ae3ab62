package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GapStatus is a gap's intake state. Decision transitions live in the intake
// UI; the matcher only reads gaps and writes recommended_path.
type GapStatus string

const (
	GapStatusNew          GapStatus = "New"
	GapStatusInReview     GapStatus = "In Review"
	GapStatusDecisionMade GapStatus = "Decision Made"
	GapStatusInBuild      GapStatus = "In Build"
	GapStatusClosed       GapStatus = "Closed"
)

// Valid reports whether s is a known gap status.
func (s GapStatus) Valid() bool {
	switch s {
	case GapStatusNew, GapStatusInReview, GapStatusDecisionMade,
		GapStatusInBuild, GapStatusClosed:
		return true
	}
	return false
}

// MatchType identifies which catalog a gap match points into.
type MatchType string

const (
	MatchTypeAgent    MatchType = "agent"
	MatchTypeWorkflow MatchType = "workflow"
	MatchTypeSkill    MatchType = "skill"
)

// SuggestedAction is the advisory action attached to a gap match.
type SuggestedAction string

const (
	ActionReuse      SuggestedAction = "Reuse"
	ActionExtend     SuggestedAction = "Extend"
	ActionPartialFit SuggestedAction = "Partial Fit"
)

// MaxRelevance is the score ceiling. 1.0 is reserved for a possible future
// exact-match sentinel and is never produced.
const MaxRelevance = 0.99

// Gap is a submitted business need awaiting classification.
type Gap struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	ProblemStatement string    `json:"problem_statement"`
	DesiredOutcome   *string   `json:"desired_outcome,omitempty"`
	ProcessArea      *string   `json:"process_area,omitempty"`
	SubFunctions     []string  `json:"sub_functions"`
	Urgency          *string   `json:"urgency,omitempty"`
	Status           GapStatus `json:"status"`
	RecommendedPath  *string   `json:"recommended_path,omitempty"`
	CreatedBy        *string   `json:"created_by,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Validate checks the fields a caller must supply when creating a gap.
func (g Gap) Validate() error {
	if g.Title == "" {
		return fmt.Errorf("title is required")
	}
	if g.ProblemStatement == "" {
		return fmt.Errorf("problem_statement is required")
	}
	return nil
}

// GapMatch links a gap to one catalog asset with a relevance score.
// TargetID always equals whichever of AgentID/WorkflowID/SkillID is set;
// (GapID, MatchType, TargetID) is unique so re-analysis upserts.
type GapMatch struct {
	ID              uuid.UUID       `json:"id"`
	GapID           uuid.UUID       `json:"gap_id"`
	MatchType       MatchType       `json:"match_type"`
	AgentID         *uuid.UUID      `json:"agent_id,omitempty"`
	WorkflowID      *uuid.UUID      `json:"workflow_id,omitempty"`
	SkillID         *uuid.UUID      `json:"skill_id,omitempty"`
	TargetID        uuid.UUID       `json:"-"`
	RelevanceScore  float64         `json:"relevance_score"`
	SuggestedAction SuggestedAction `json:"suggested_action"`
	GapReason       *string         `json:"gap_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ActionForScore derives the advisory action from an additive relevance
// score. Skills do not use this; their action comes from skill status.
func ActionForScore(score float64) SuggestedAction {
	switch {
	case score >= 0.7:
		return ActionReuse
	case score >= 0.5:
		return ActionExtend
	default:
		return ActionPartialFit
	}
}

// ClampRelevance caps an additive score at MaxRelevance and floors it at 0.
func ClampRelevance(score float64) float64 {
	if score > MaxRelevance {
		return MaxRelevance
	}
	if score < 0 {
		return 0
	}
	return score
}

// GapAnalysis is the result of one analysis run.
type GapAnalysis struct {
	Gap     Gap        `json:"gap"`
	Matches []GapMatch `json:"matches"`
	Skipped bool       `json:"skipped"` // true when existing matches were returned untouched
}
