package repository

import (
	"context"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
)

// SourceRepository reads the legacy document store
type SourceRepository interface {
	// Count returns the number of documents matching filter (nil for all).
	Count(ctx context.Context, entityType entity.EntityType, filter bson.M) (int64, error)
	// FindPage returns documents ordered by _id using skip/limit paging.
	FindPage(ctx context.Context, entityType entity.EntityType, filter bson.M, skip, limit int64) ([]entity.SourceRecord, error)
	// FindByID returns entity.ErrSourceNotFound when the document is gone.
	FindByID(ctx context.Context, entityType entity.EntityType, sourceID string) (entity.SourceRecord, error)
}

// TargetRepository writes the relational store
type TargetRepository interface {
	// Upsert inserts or updates by source id and replaces child sets.
	// A natural-key violation is reported as *entity.UniqueConflictError.
	Upsert(ctx context.Context, rec *entity.TargetRecord) (entity.WriteResult, error)
	// UpdateByNaturalKey updates the row matching rec.NaturalKey in place and
	// attaches rec.SourceID. It returns entity.ErrTargetRowMissing if no row matches.
	UpdateByNaturalKey(ctx context.Context, rec *entity.TargetRecord) (entity.WriteResult, error)
	// DeleteBySourceID hard-deletes a row; false when nothing was deleted.
	DeleteBySourceID(ctx context.Context, entityType entity.EntityType, sourceID string) (bool, error)
	// Count counts rows, optionally constrained by column equality.
	Count(ctx context.Context, entityType entity.EntityType, filter map[string]interface{}) (int64, error)
}

// IDTranslator maps source ids to target primary keys
type IDTranslator interface {
	// Resolve returns false without error when the source id is not replicated.
	Resolve(ctx context.Context, entityType entity.EntityType, sourceID string) (uuid.UUID, bool, error)
	Remember(ctx context.Context, entityType entity.EntityType, sourceID string, id uuid.UUID) error
	Forget(ctx context.Context, entityType entity.EntityType, sourceID string) error
}

// SyncStateRepository persists per-entity-type migration progress
type SyncStateRepository interface {
	Ensure(ctx context.Context) error
	// Get returns nil without error when no state exists yet.
	Get(ctx context.Context, schema string, entityType entity.EntityType) (*entity.SyncState, error)
	Save(ctx context.Context, state *entity.SyncState) error
	List(ctx context.Context, schema string) ([]entity.SyncState, error)
}
