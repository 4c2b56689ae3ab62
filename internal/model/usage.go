package model

import (
	"time"

	"github.com/google/uuid"
)

// Match confidence markers written onto snapshots.
const (
	ConfidenceAuto   = "Auto"
	ConfidenceManual = "Manual"
)

// DefaultDataSource labels rows imported from the adoption deck export.
const DefaultDataSource = "Adoption PPTX"

// RawUsageRow is one parsed CSV row before agent matching.
// Value arrives as text; unparseable numbers coerce to 0.
type RawUsageRow struct {
	Account         string  `json:"account"`
	AgentName       string  `json:"agent_name"`
	Metric          string  `json:"metric"`
	Value           float64 `json:"value"`
	TimeWindowStart string  `json:"time_window_start"`
	TimeWindowEnd   string  `json:"time_window_end"`
	DataSource      string  `json:"data_source,omitempty"`
	RawAgentSlug    *string `json:"raw_agent_slug,omitempty"`
	MatchConfidence *string `json:"match_confidence,omitempty"`
}

// UsageMetricsSnapshot is an append-only usage fact resolved to an agent.
type UsageMetricsSnapshot struct {
	ID              uuid.UUID  `json:"id"`
	Account         string     `json:"account"`
	AgentID         *uuid.UUID `json:"agent_id"`
	AgentName       *string    `json:"agent_name"`
	Metric          string     `json:"metric"`
	Value           float64    `json:"value"`
	TimeWindowStart string     `json:"time_window_start"`
	TimeWindowEnd   string     `json:"time_window_end"`
	DataSource      string     `json:"data_source"`
	Notes           *string    `json:"notes,omitempty"`
	RawAgentSlug    *string    `json:"raw_agent_slug,omitempty"`
	MatchConfidence *string    `json:"match_confidence,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// UnmatchedUsageRow is an import row whose agent name resolved to nothing.
// It is mutated exactly once, when a human resolves it.
type UnmatchedUsageRow struct {
	ID              uuid.UUID  `json:"id"`
	Account         string     `json:"account"`
	AgentName       string     `json:"agent_name"`
	Metric          string     `json:"metric"`
	Value           float64    `json:"value"`
	TimeWindowStart string     `json:"time_window_start"`
	TimeWindowEnd   string     `json:"time_window_end"`
	DataSource      string     `json:"data_source"`
	Notes           *string    `json:"notes,omitempty"`
	RawAgentSlug    *string    `json:"raw_agent_slug,omitempty"`
	MatchConfidence *string    `json:"match_confidence,omitempty"`
	Resolved        bool       `json:"resolved"`
	ResolvedAgentID *uuid.UUID `json:"resolved_agent_id,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      *string    `json:"resolved_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// AgentAlias maps a free-text name variant to a canonical agent.
// alias_name is unique; a duplicate insert is an ignorable conflict.
type AgentAlias struct {
	ID        uuid.UUID `json:"id"`
	AliasName string    `json:"alias_name"`
	AgentID   uuid.UUID `json:"agent_id"`
	CreatedBy *string   `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ImportResult reports how an import partitioned its rows.
type ImportResult struct {
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
}

// ImportRecord is one entry in the import history log.
type ImportRecord struct {
	ID              uuid.UUID `json:"id"`
	FileName        string    `json:"file_name"`
	RecordsImported int       `json:"records_imported"`
	RecordsFailed   int       `json:"records_failed"`
	ImportedBy      *string   `json:"imported_by,omitempty"`
	ImportNotes     *string   `json:"import_notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
