package usecase

import (
	"context"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/service"
)

// RecordProcessor transforms a source record and hands it to the writer.
// Both the dispatcher and the batch driver replicate through it.
type RecordProcessor struct {
	registry *service.Registry
	refs     service.ReferenceResolver
	writer   *UpsertWriter
	logger   *logging.Logger
}

// NewRecordProcessor creates a new RecordProcessor
func NewRecordProcessor(registry *service.Registry, refs service.ReferenceResolver, writer *UpsertWriter, logger *logging.Logger) *RecordProcessor {
	if logger == nil {
		logger = logging.Wrap(nil, "replication")
	}
	return &RecordProcessor{
		registry: registry,
		refs:     refs,
		writer:   writer,
		logger:   logger.WithComponent("record_processor"),
	}
}

// Transform maps src without writing it
func (p *RecordProcessor) Transform(ctx context.Context, src entity.SourceRecord) (*entity.TargetRecord, error) {
	rec, err := p.registry.Transform(ctx, src, p.refs)
	if err != nil {
		return nil, err
	}
	for _, warning := range rec.Warnings {
		p.logger.Warn("Transform warning",
			logging.String("entity_type", src.EntityType.String()),
			logging.String("source_id", src.ID),
			logging.String("warning", warning),
		)
	}
	return rec, nil
}

// Process transforms and upserts src. Deferred records surface as an error
// matching entity.ErrDeferred and are not written.
func (p *RecordProcessor) Process(ctx context.Context, src entity.SourceRecord) (entity.WriteResult, error) {
	rec, err := p.Transform(ctx, src)
	if err != nil {
		return entity.WriteResult{}, err
	}
	return p.writer.Write(ctx, rec)
}

// Writer returns the underlying upsert writer
func (p *RecordProcessor) Writer() *UpsertWriter {
	return p.writer
}
