package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/repository"
)

// UpsertWriter persists transformed records idempotently. A conflict on the
// record's natural key is resolved by updating the existing row in place.
type UpsertWriter struct {
	target repository.TargetRepository
	ids    repository.IDTranslator
	logger *logging.Logger
}

// NewUpsertWriter creates a new UpsertWriter
func NewUpsertWriter(target repository.TargetRepository, ids repository.IDTranslator, logger *logging.Logger) *UpsertWriter {
	if logger == nil {
		logger = logging.Wrap(nil, "replication")
	}
	return &UpsertWriter{
		target: target,
		ids:    ids,
		logger: logger.WithComponent("upsert_writer"),
	}
}

// maxRekeys bounds how often a record whose insert key is taken gets a new one
const maxRekeys = 3

// Write upserts rec keyed by its source id
func (w *UpsertWriter) Write(ctx context.Context, rec *entity.TargetRecord) (entity.WriteResult, error) {
	result, err := w.target.Upsert(ctx, rec)
	for attempt := 0; attempt < maxRekeys && primaryKeyConflict(err); attempt++ {
		// the deterministic key stayed with a row merged onto another source id
		taken := rec.ID
		rec = rec.Rekeyed()
		w.logger.Info("Insert key already taken, rekeying record",
			logging.String("entity_type", rec.EntityType.String()),
			logging.String("source_id", rec.SourceID),
			logging.String("taken_id", taken.String()),
			logging.String("target_id", rec.ID.String()),
		)
		result, err = w.target.Upsert(ctx, rec)
	}

	if err != nil {
		var conflict *entity.UniqueConflictError
		if !errors.As(err, &conflict) || !naturalKeyConflict(rec, conflict) {
			return entity.WriteResult{}, fmt.Errorf("failed to upsert %s %s: %w", rec.EntityType, rec.SourceID, err)
		}

		result, err = w.target.UpdateByNaturalKey(ctx, rec)
		if err != nil {
			return entity.WriteResult{}, fmt.Errorf("natural key fallback failed for %s %s on %s: %w",
				rec.EntityType, rec.SourceID, rec.NaturalKey.Column, err)
		}

		w.logger.Info("Merged record into existing row by natural key",
			logging.String("entity_type", rec.EntityType.String()),
			logging.String("source_id", rec.SourceID),
			logging.String("natural_key", rec.NaturalKey.Column),
			logging.String("target_id", result.TargetID.String()),
			logging.String("displaced_source_id", result.Displaced),
		)
		if result.Displaced != "" && result.Displaced != rec.SourceID {
			w.forget(ctx, rec.EntityType, result.Displaced)
		}
	}

	w.remember(ctx, rec.EntityType, rec.SourceID, result)
	return result, nil
}

// Delete hard-deletes the row replicated from sourceID
func (w *UpsertWriter) Delete(ctx context.Context, entityType entity.EntityType, sourceID string) (entity.WriteResult, error) {
	deleted, err := w.target.DeleteBySourceID(ctx, entityType, sourceID)
	if err != nil {
		return entity.WriteResult{}, fmt.Errorf("failed to delete %s %s: %w", entityType, sourceID, err)
	}

	w.forget(ctx, entityType, sourceID)

	if !deleted {
		return entity.WriteResult{Outcome: entity.OutcomeSkipped}, nil
	}
	return entity.WriteResult{Outcome: entity.OutcomeDeleted}, nil
}

// remember records the mapping for later reference lookups. The row itself
// is authoritative, so a failure here only costs a slower lookup.
func (w *UpsertWriter) remember(ctx context.Context, entityType entity.EntityType, sourceID string, result entity.WriteResult) {
	if w.ids == nil {
		return
	}
	if err := w.ids.Remember(ctx, entityType, sourceID, result.TargetID); err != nil {
		w.logger.Warn("Failed to record id mapping",
			logging.String("entity_type", entityType.String()),
			logging.String("source_id", sourceID),
			logging.Err(err),
		)
	}
}

func (w *UpsertWriter) forget(ctx context.Context, entityType entity.EntityType, sourceID string) {
	if w.ids == nil {
		return
	}
	if err := w.ids.Forget(ctx, entityType, sourceID); err != nil {
		w.logger.Warn("Failed to evict id mapping",
			logging.String("entity_type", entityType.String()),
			logging.String("source_id", sourceID),
			logging.Err(err),
		)
	}
}

func primaryKeyConflict(err error) bool {
	var conflict *entity.UniqueConflictError
	return errors.As(err, &conflict) && conflict.PrimaryKey()
}

func naturalKeyConflict(rec *entity.TargetRecord, conflict *entity.UniqueConflictError) bool {
	if rec.NaturalKey == nil {
		return false
	}
	if conflict.Constraint == "" || rec.NaturalKey.Constraint == "" {
		return true
	}
	return conflict.Constraint == rec.NaturalKey.Constraint
}
