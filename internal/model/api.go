package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
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
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUpstream      = "UPSTREAM_ERROR"
)

// CreateProcessRequest is the request body for POST /v1/processes.
type CreateProcessRequest struct {
	OwnerID  string              `json:"owner_id"`
	Title    string              `json:"title"`
	Metadata *ManuscriptMetadata `json:"metadata,omitempty"`
}

// StartSearchRequest is the request body for POST /v1/processes/{id}/search.
// Keywords may be omitted when the process metadata already carries them.
type StartSearchRequest struct {
	Keywords       []string            `json:"keywords,omitempty"`
	MeshTerms      []string            `json:"mesh_terms,omitempty"`
	BooleanQueries map[SourceID]string `json:"boolean_queries,omitempty"`
}

// AddCandidateRequest is the request body for POST /v1/processes/{id}/candidates.
// AuthorID is a synthetic id from a prior manual search response.
type AddCandidateRequest struct {
	AuthorID string `json:"author_id"`
}

// ValidateRequest is the request body for POST /v1/processes/{id}/validate
// and /revalidate. Nil fields fall back to the process metadata and the
// server's configured defaults.
type ValidateRequest struct {
	Metadata *ManuscriptMetadata `json:"metadata,omitempty"`
	Config   *ValidationConfig   `json:"config,omitempty"`
}

// RecommendationQuery is the request body for
// POST /v1/processes/{id}/recommendations.
type RecommendationQuery struct {
	Filters Filters `json:"filters"`
	Sort    *Sort   `json:"sort,omitempty"`
	Page    int     `json:"page,omitempty"`
	Limit   int     `json:"limit,omitempty"`
}

// CreateShortlistRequest is the request body for
// POST /v1/processes/{id}/shortlists.
type CreateShortlistRequest struct {
	Name      string   `json:"name"`
	AuthorIDs []string `json:"author_ids"`
}

// ManualSearchResponse is the response for GET /v1/search/authors.
type ManualSearchResponse struct {
	Authors []Author `json:"authors"`
	Total   int      `json:"total"`
}

// ValidateResponse is the response for the validate endpoints.
type ValidateResponse struct {
	ProcessID uuid.UUID               `json:"process_id"`
	Result    ProcessValidationResult `json:"result"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status  string     `json:"status"`
	Version string     `json:"version"`
	Storage string     `json:"storage"` // "ok", "error", or "memory"
	Sources []SourceID `json:"sources"`
	Uptime  int64      `json:"uptime_seconds"`
}
