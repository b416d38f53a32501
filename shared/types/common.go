package types

import (
	"time"

	"github.com/google/uuid"
)

// TargetID is the primary key of a row in the relational store
type TargetID uuid.UUID

// RunID identifies one migration invocation
type RunID uuid.UUID

// String returns the string representation of TargetID
func (t TargetID) String() string {
	return uuid.UUID(t).String()
}

// UUID returns the underlying uuid
func (t TargetID) UUID() uuid.UUID {
	return uuid.UUID(t)
}

// String returns the string representation of RunID
func (r RunID) String() string {
	return uuid.UUID(r).String()
}

// targetNamespace seeds deterministic primary keys for replicated rows.
var targetNamespace = uuid.MustParse("6f1d3c52-8a4e-4f0b-9d57-2b6c1e7a9f30")

// NewTargetID derives the primary key for a replicated record. The same
// entity type and source id always yield the same key, so replaying a
// record never mints a second row identity.
func NewTargetID(entityType, sourceID string) TargetID {
	return TargetID(uuid.NewSHA1(targetNamespace, []byte(entityType+":"+sourceID)))
}

// NewRunID generates a new random run identifier
func NewRunID() RunID {
	return RunID(uuid.New())
}

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Version      string            `json:"version"`
	Uptime       string            `json:"uptime"`
	Dependencies map[string]string `json:"dependencies"`
}

// APIResponse represents a standard API response structure
type APIResponse struct {
	Success bool                   `json:"success"`
	Data    interface{}            `json:"data,omitempty"`
	Error   *APIError              `json:"error,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// APIError represents a standard API error structure
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
