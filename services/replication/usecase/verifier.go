package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/pkg/metrics"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/repository"
)

// ReconcileResult summarises an explicit reconciliation
type ReconcileResult struct {
	EntityType entity.EntityType `json:"entity_type"`
	Processed  int64             `json:"processed"`
	Written    int64             `json:"written"`
	Deleted    int64             `json:"deleted"`
	Deferred   int64             `json:"deferred"`
	Failed     int64             `json:"failed"`
}

// Verifier compares source and target populations and repairs drift left
// by bulk mutations that are not mirrored live.
type Verifier struct {
	source    repository.SourceRepository
	target    repository.TargetRepository
	processor *RecordProcessor
	pageSize  int64
	logger    *logging.Logger
	metrics   *metrics.Collector
}

// NewVerifier creates a new Verifier. pageSize bounds reconciliation reads.
func NewVerifier(
	source repository.SourceRepository,
	target repository.TargetRepository,
	processor *RecordProcessor,
	pageSize int,
	logger *logging.Logger,
	collector *metrics.Collector,
) *Verifier {
	if pageSize <= 0 {
		pageSize = DefaultDriverConfig().BatchSize
	}
	if logger == nil {
		logger = logging.Wrap(nil, "replication")
	}
	return &Verifier{
		source:    source,
		target:    target,
		processor: processor,
		pageSize:  int64(pageSize),
		logger:    logger.WithComponent("verifier"),
		metrics:   collector,
	}
}

// Verify counts both stores for one entity type. filter may be nil.
func (v *Verifier) Verify(ctx context.Context, entityType entity.EntityType, filter *entity.CountFilter) (entity.DriftReport, error) {
	var sourceFilter bson.M
	var targetFilter map[string]interface{}
	if filter != nil {
		sourceFilter = filter.Source
		targetFilter = filter.Target
	}

	sourceCount, err := v.source.Count(ctx, entityType, sourceFilter)
	if err != nil {
		return entity.DriftReport{}, fmt.Errorf("failed to count source %s: %w", entityType, err)
	}
	targetCount, err := v.target.Count(ctx, entityType, targetFilter)
	if err != nil {
		return entity.DriftReport{}, fmt.Errorf("failed to count target %s: %w", entityType, err)
	}

	report := entity.NewDriftReport(entityType, sourceCount, targetCount)
	if filter == nil {
		v.metrics.RecordVerification(entityType.String(), sourceCount, targetCount)
	}

	if !report.Match {
		v.logger.Warn("Drift detected",
			logging.String("entity_type", entityType.String()),
			logging.Int64("source_count", sourceCount),
			logging.Int64("target_count", targetCount),
		)
	}
	return report, nil
}

// VerifyAll verifies every entity type in dependency order
func (v *Verifier) VerifyAll(ctx context.Context) ([]entity.DriftReport, error) {
	start := time.Now()
	reports := make([]entity.DriftReport, 0, len(entity.DependencyOrder))
	drifted := 0
	for _, entityType := range entity.DependencyOrder {
		report, err := v.Verify(ctx, entityType, nil)
		if err != nil {
			return reports, err
		}
		if !report.Match {
			drifted++
		}
		reports = append(reports, report)
	}
	v.logger.LogPerformance("verify_all", time.Since(start), logging.Int("drifted", drifted))
	return reports, nil
}

// ReconcileFiltered re-replicates every source record matching filter
func (v *Verifier) ReconcileFiltered(ctx context.Context, entityType entity.EntityType, filter bson.M) (ReconcileResult, error) {
	result := ReconcileResult{EntityType: entityType}
	logger := v.logger.WithEntity(entityType.String())

	for skip := int64(0); ; skip += v.pageSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := v.source.FindPage(ctx, entityType, filter, skip, v.pageSize)
		if err != nil {
			return result, fmt.Errorf("failed to read source page: %w", err)
		}

		for _, rec := range page {
			result.Processed++
			_, err := v.processor.Process(ctx, rec)
			switch {
			case err == nil:
				result.Written++
			case entity.IsDeferred(err):
				result.Deferred++
				v.logger.LogDeferred(entityType.String(), rec.ID, err)
			default:
				result.Failed++
				logger.Warn("Reconcile write failed", logging.String("source_id", rec.ID), logging.Err(err))
			}
		}

		if int64(len(page)) < v.pageSize {
			break
		}
	}

	logger.Info("Filtered reconciliation finished",
		logging.Int64("processed", result.Processed),
		logging.Int64("written", result.Written),
		logging.Int64("deferred", result.Deferred),
		logging.Int64("failed", result.Failed),
	)
	return result, nil
}

// ReconcileDeleted removes target rows whose source records no longer
// exist. IDs that still resolve in the source are left alone.
func (v *Verifier) ReconcileDeleted(ctx context.Context, entityType entity.EntityType, sourceIDs []string) (ReconcileResult, error) {
	result := ReconcileResult{EntityType: entityType}
	logger := v.logger.WithEntity(entityType.String())

	for _, sourceID := range sourceIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Processed++

		_, err := v.source.FindByID(ctx, entityType, sourceID)
		if err == nil {
			continue
		}
		if !errors.Is(err, entity.ErrSourceNotFound) {
			result.Failed++
			logger.Warn("Failed to check source record", logging.String("source_id", sourceID), logging.Err(err))
			continue
		}

		write, err := v.processor.Writer().Delete(ctx, entityType, sourceID)
		if err != nil {
			result.Failed++
			logger.Warn("Reconcile delete failed", logging.String("source_id", sourceID), logging.Err(err))
			continue
		}
		if write.Outcome == entity.OutcomeDeleted {
			result.Deleted++
		}
	}

	logger.Info("Delete reconciliation finished",
		logging.Int64("processed", result.Processed),
		logging.Int64("deleted", result.Deleted),
		logging.Int64("failed", result.Failed),
	)
	return result, nil
}
