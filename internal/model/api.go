package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the envelope for all successful API responses.
type APIResponse struct {
	Data any          `json:"data"`
	Meta ResponseMeta `json:"meta"`
}

// ErrorResponse is the envelope for all API errors.
type ErrorResponse struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// CreateAgentRequest is the request body for POST /v1/agents.
type CreateAgentRequest struct {
	Name            string   `json:"name"`
	Description     *string  `json:"description,omitempty"`
	AgentType       string   `json:"agent_type,omitempty"`
	Platform        string   `json:"platform,omitempty"`
	HostedIn        *string  `json:"hosted_in,omitempty"`
	Status          string   `json:"status,omitempty"`
	FunctionDomains []string `json:"function_domains,omitempty"`
	SubFunctions    []string `json:"sub_functions,omitempty"`
	OwnerPrimary    *string  `json:"owner_primary,omitempty"`
	OwnerTeam       *string  `json:"owner_team,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// UpdateAgentRequest is the request body for PATCH /v1/agents/{id}.
// Nil fields are left unchanged.
type UpdateAgentRequest struct {
	Name            *string   `json:"name,omitempty"`
	Description     *string   `json:"description,omitempty"`
	Status          *string   `json:"status,omitempty"`
	FunctionDomains *[]string `json:"function_domains,omitempty"`
	SubFunctions    *[]string `json:"sub_functions,omitempty"`
	Tags            *[]string `json:"tags,omitempty"`
}

// CreateGapRequest is the request body for POST /v1/gaps.
type CreateGapRequest struct {
	Title            string   `json:"title"`
	ProblemStatement string   `json:"problem_statement"`
	DesiredOutcome   *string  `json:"desired_outcome,omitempty"`
	ProcessArea      *string  `json:"process_area,omitempty"`
	SubFunctions     []string `json:"sub_functions,omitempty"`
	Urgency          *string  `json:"urgency,omitempty"`
	CreatedBy        *string  `json:"created_by,omitempty"`
}

// UpdateGapRequest is the request body for PATCH /v1/gaps/{id}.
type UpdateGapRequest struct {
	Title            *string   `json:"title,omitempty"`
	ProblemStatement *string   `json:"problem_statement,omitempty"`
	DesiredOutcome   *string   `json:"desired_outcome,omitempty"`
	ProcessArea      *string   `json:"process_area,omitempty"`
	SubFunctions     *[]string `json:"sub_functions,omitempty"`
	Status           *string   `json:"status,omitempty"`
}

// ResolveUnmatchedRequest is the request body for
// POST /v1/usage/unmatched/{id}/resolve.
type ResolveUnmatchedRequest struct {
	AgentID     uuid.UUID `json:"agent_id"`
	AgentName   string    `json:"agent_name"`
	CreateAlias bool      `json:"create_alias"`
}

// ImportResponse is the response body for POST /v1/usage/import.
type ImportResponse struct {
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
}
