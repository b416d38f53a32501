package http

import (
	"encoding/json"

	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
)

// FailuresResponseDTO reports the dual-write failure counters
type FailuresResponseDTO struct {
	Enabled    bool             `json:"enabled"`
	QueueDepth int              `json:"queue_depth"`
	Total      int64            `json:"total"`
	Failures   map[string]int64 `json:"failures"`
}

// DriftResponseDTO lists drift reports for the dual-write target
type DriftResponseDTO struct {
	Schema  string               `json:"schema"`
	Drifted bool                 `json:"drifted"`
	Reports []entity.DriftReport `json:"reports"`
}

// ReconcileRequestDTO asks for a bulk mutation to be reconciled. Filter is
// MongoDB extended JSON and selects records to re-upsert; DeletedIDs lists
// source ids removed by a bulk delete.
type ReconcileRequestDTO struct {
	Filter     json.RawMessage `json:"filter"`
	DeletedIDs []string        `json:"deleted_ids"`
}
