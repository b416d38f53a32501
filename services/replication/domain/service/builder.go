package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/types"
)

// ReferenceResolver looks up the target key of an already replicated parent
type ReferenceResolver interface {
	Resolve(ctx context.Context, entityType entity.EntityType, sourceID string) (targetID uuid.UUID, found bool, err error)
}

// recordBuilder accumulates the columns of one TargetRecord
type recordBuilder struct {
	ctx    context.Context
	refs   ReferenceResolver
	source entity.SourceRecord
	f      fields
	rec    *entity.TargetRecord
}

func newRecordBuilder(ctx context.Context, src entity.SourceRecord, refs ReferenceResolver) *recordBuilder {
	return &recordBuilder{
		ctx:    ctx,
		refs:   refs,
		source: src,
		f:      newFields(src.Fields),
		rec: &entity.TargetRecord{
			EntityType: src.EntityType,
			Table:      src.EntityType.Table(),
			SourceID:   src.ID,
			ID:         types.NewTargetID(string(src.EntityType), src.ID).UUID(),
		},
	}
}

func (b *recordBuilder) set(column string, value interface{}) {
	b.rec.Columns = append(b.rec.Columns, entity.Column{Name: column, Value: value})
}

// timestamps sets created_at and updated_at from the document. created_at
// falls back to the ObjectID time and updated_at to created_at, so a replay
// of the same document writes identical values.
func (b *recordBuilder) timestamps() {
	created := b.createdAt()
	b.set("created_at", created)
	b.set("updated_at", b.f.Time("updatedAt", created))
}

func (b *recordBuilder) createdAt() time.Time {
	created := b.f.Time("createdAt", b.source.IDTime)
	if created.IsZero() {
		created = time.Unix(0, 0).UTC()
	}
	return created
}

// naturalKey registers column as the fallback identity. Blank values are
// not keys; the column is written as NULL so it never collides.
func (b *recordBuilder) naturalKey(column, constraint, value string) {
	if value == "" {
		b.set(column, nil)
		return
	}
	b.set(column, value)
	b.rec.NaturalKey = &entity.NaturalKey{Column: column, Value: value, Constraint: constraint}
}

func (b *recordBuilder) lookup(refType entity.EntityType, sourceID string) (uuid.UUID, bool, error) {
	if b.refs == nil {
		return uuid.Nil, false, nil
	}
	id, found, err := b.refs.Resolve(b.ctx, refType, sourceID)
	if err != nil {
		return id, false, fmt.Errorf("failed to resolve %s %s: %w", refType, sourceID, err)
	}
	return id, found, nil
}

// requiredRef resolves a mandatory parent. A missing or unreplicated parent
// defers the whole record.
func (b *recordBuilder) requiredRef(column, field string, refType entity.EntityType) error {
	refID := b.f.Ref(field)
	if refID == "" {
		return &entity.TransformError{
			EntityType: b.source.EntityType,
			SourceID:   b.source.ID,
			Field:      field,
			Reason:     "is a required reference but is empty",
		}
	}

	id, found, err := b.lookup(refType, refID)
	if err != nil {
		return err
	}
	if !found {
		return &entity.DeferredError{
			EntityType:  b.source.EntityType,
			SourceID:    b.source.ID,
			Field:       field,
			RefType:     refType,
			RefSourceID: refID,
		}
	}

	b.set(column, id.String())
	return nil
}

// optionalRef resolves a nullable parent; an unreplicated parent is written
// as NULL and noted as a warning.
func (b *recordBuilder) optionalRef(column, field string, refType entity.EntityType) error {
	refID := b.f.Ref(field)
	if refID == "" {
		b.set(column, nil)
		return nil
	}

	id, found, err := b.lookup(refType, refID)
	if err != nil {
		return err
	}
	if !found {
		b.rec.Warnings = append(b.rec.Warnings,
			fmt.Sprintf("%s references %s %q which is not replicated yet; stored as NULL", field, refType, refID))
		b.set(column, nil)
		return nil
	}

	b.set(column, id.String())
	return nil
}

func (b *recordBuilder) requireString(field string) (string, error) {
	v := b.f.String(field, "")
	if v == "" {
		return "", &entity.TransformError{
			EntityType: b.source.EntityType,
			SourceID:   b.source.ID,
			Field:      field,
			Reason:     "is required but missing",
		}
	}
	return v, nil
}

func (b *recordBuilder) build() *entity.TargetRecord {
	return b.rec
}
