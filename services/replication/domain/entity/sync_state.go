package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// SyncStatus is the batch migration state of one entity type
type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusInProgress SyncStatus = "in_progress"
	SyncStatusCompleted  SyncStatus = "completed"
	SyncStatusPartial    SyncStatus = "partial"
)

// AllSyncStatuses lists every status
var AllSyncStatuses = []SyncStatus{
	SyncStatusPending,
	SyncStatusInProgress,
	SyncStatusCompleted,
	SyncStatusPartial,
}

// SyncState is the persisted progress of one entity type in one schema
type SyncState struct {
	Schema      string     `json:"schema" db:"schema_name"`
	EntityType  EntityType `json:"entity_type" db:"entity_type"`
	Status      SyncStatus `json:"status" db:"status"`
	SyncedCount int64      `json:"synced_count" db:"synced_count"`
	ErrorCount  int64      `json:"error_count" db:"error_count"`
	LastSyncAt  time.Time  `json:"last_sync_at" db:"last_sync_at"`
}

// CanSkip reports whether a non-forced run may skip this type
func (s *SyncState) CanSkip(sourceTotal int64) bool {
	if s == nil {
		return false
	}
	return s.Status == SyncStatusCompleted && s.SyncedCount == sourceTotal
}

// DriftReport compares source and target populations for one entity type
type DriftReport struct {
	EntityType  EntityType `json:"entity_type"`
	SourceCount int64      `json:"source_count"`
	TargetCount int64      `json:"target_count"`
	Match       bool       `json:"match"`
}

// NewDriftReport builds a report from two counts
func NewDriftReport(entityType EntityType, sourceCount, targetCount int64) DriftReport {
	return DriftReport{
		EntityType:  entityType,
		SourceCount: sourceCount,
		TargetCount: targetCount,
		Match:       sourceCount == targetCount,
	}
}

// CountFilter narrows a verification to a sub-population. Source is a
// MongoDB filter; Target maps column names to required values.
type CountFilter struct {
	Source bson.M
	Target map[string]interface{}
}
