package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/pkg/metrics"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/repository"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/common"
)

// DriverConfig configures batch migration
type DriverConfig struct {
	BatchSize        int     `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
	Workers          int     `json:"workers" yaml:"workers" mapstructure:"workers"`
	BatchesPerSecond float64 `json:"batches_per_second" yaml:"batches_per_second" mapstructure:"batches_per_second"`
	ErrorSampleSize  int     `json:"error_sample_size" yaml:"error_sample_size" mapstructure:"error_sample_size"`
}

// DefaultDriverConfig returns the default batch migration configuration
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		BatchSize:        500,
		Workers:          1,
		BatchesPerSecond: 0,
		ErrorSampleSize:  10,
	}
}

// MigrationOptions selects what a run does
type MigrationOptions struct {
	// DryRun transforms every record without writing rows or sync state.
	// Unresolved references are reported as deferred, not as errors.
	DryRun bool
	// Force ignores completed sync state.
	Force bool
	// Types restricts the run; empty means every type.
	Types []entity.EntityType
}

// ErrorSample is one recorded record-level failure
type ErrorSample struct {
	SourceID string `json:"source_id"`
	Message  string `json:"message"`
}

// EntitySummary is the outcome of migrating one entity type
type EntitySummary struct {
	EntityType   entity.EntityType `json:"entity_type"`
	Status       entity.SyncStatus `json:"status"`
	SourceCount  int64             `json:"source_count"`
	TargetCount  int64             `json:"target_count"`
	Synced       int64             `json:"synced"`
	Errors       int64             `json:"errors"`
	Deferred     int64             `json:"deferred"`
	Skipped      bool              `json:"skipped"`
	Duration     time.Duration     `json:"duration"`
	ErrorSamples []ErrorSample     `json:"error_samples,omitempty"`
}

// SchemaReport is the outcome of one run against one target schema
type SchemaReport struct {
	Schema   string          `json:"schema"`
	DryRun   bool            `json:"dry_run"`
	Entities []EntitySummary `json:"entities"`
	Fatal    error           `json:"-"`
	Duration time.Duration   `json:"duration"`
}

// HasErrors reports whether any record failed or the schema aborted
func (r *SchemaReport) HasErrors() bool {
	if r.Fatal != nil {
		return true
	}
	for _, e := range r.Entities {
		if e.Errors > 0 {
			return true
		}
	}
	return false
}

// errorTally counts failures and keeps the first few as diagnostics
type errorTally struct {
	mu       sync.Mutex
	limit    int
	count    int64
	deferred int64
	samples  []ErrorSample
}

func newErrorTally(limit int) *errorTally {
	return &errorTally{limit: limit}
}

func (t *errorTally) record(sourceID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++
	if entity.IsDeferred(err) {
		t.deferred++
	}
	if len(t.samples) < t.limit {
		t.samples = append(t.samples, ErrorSample{SourceID: sourceID, Message: err.Error()})
	}
}

// recordDeferral counts a dry-run deferral; it is not a failure
func (t *errorTally) recordDeferral() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deferred++
}

func (t *errorTally) snapshot() (int64, int64, []ErrorSample) {
	t.mu.Lock()
	defer t.mu.Unlock()
	samples := make([]ErrorSample, len(t.samples))
	copy(samples, t.samples)
	return t.count, t.deferred, samples
}

// MigrationDriver copies the full source population into one target schema,
// one entity type at a time in dependency order.
type MigrationDriver struct {
	schema    string
	source    repository.SourceRepository
	target    repository.TargetRepository
	states    repository.SyncStateRepository
	processor *RecordProcessor
	config    DriverConfig
	limiter   *rate.Limiter
	logger    *logging.Logger
	metrics   *metrics.Collector
}

// NewMigrationDriver creates a new MigrationDriver
func NewMigrationDriver(
	schema string,
	source repository.SourceRepository,
	target repository.TargetRepository,
	states repository.SyncStateRepository,
	processor *RecordProcessor,
	config DriverConfig,
	logger *logging.Logger,
	collector *metrics.Collector,
) *MigrationDriver {
	defaults := DefaultDriverConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.ErrorSampleSize <= 0 {
		config.ErrorSampleSize = defaults.ErrorSampleSize
	}
	if logger == nil {
		logger = logging.Wrap(nil, "replication")
	}

	var limiter *rate.Limiter
	if config.BatchesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.BatchesPerSecond), 1)
	}

	return &MigrationDriver{
		schema:    schema,
		source:    source,
		target:    target,
		states:    states,
		processor: processor,
		config:    config,
		limiter:   limiter,
		logger:    logger.WithComponent("migration_driver").WithSchema(schema),
		metrics:   collector,
	}
}

// Schema returns the target schema name
func (d *MigrationDriver) Schema() string {
	return d.schema
}

// Run migrates the selected entity types. Record-level failures never stop
// the run; a fatal error aborts the remaining types of this schema and is
// both stored on the report and returned.
func (d *MigrationDriver) Run(ctx context.Context, opts MigrationOptions) (*SchemaReport, error) {
	start := time.Now()
	report := &SchemaReport{Schema: d.schema, DryRun: opts.DryRun}
	defer func() { report.Duration = time.Since(start) }()

	if !opts.DryRun {
		if err := d.states.Ensure(ctx); err != nil {
			report.Fatal = err
			return report, err
		}
	}

	for _, entityType := range entity.OrderTypes(opts.Types) {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		summary, err := d.migrateType(ctx, entityType, opts)
		report.Entities = append(report.Entities, summary)
		if err == nil {
			continue
		}

		if common.IsFatal(err) {
			d.logger.Error("Fatal error, aborting schema",
				logging.String("entity_type", entityType.String()),
				logging.Err(err),
			)
			report.Fatal = err
			return report, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return report, err
		}
		d.logger.Error("Entity type migration failed",
			logging.String("entity_type", entityType.String()),
			logging.Err(err),
		)
	}

	d.logger.Info("Migration run finished",
		logging.Bool("dry_run", opts.DryRun),
		logging.Bool("errors", report.HasErrors()),
		logging.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func (d *MigrationDriver) migrateType(ctx context.Context, entityType entity.EntityType, opts MigrationOptions) (EntitySummary, error) {
	start := time.Now()
	logger := d.logger.WithEntity(entityType.String())
	summary := EntitySummary{EntityType: entityType, Status: entity.SyncStatusPending}

	total, err := d.source.Count(ctx, entityType, nil)
	if err != nil {
		summary.Status = entity.SyncStatusPartial
		summary.Errors = 1
		summary.ErrorSamples = []ErrorSample{{Message: err.Error()}}
		return summary, fmt.Errorf("failed to count source %s: %w", entityType, err)
	}
	summary.SourceCount = total

	if !opts.DryRun {
		state, err := d.states.Get(ctx, d.schema, entityType)
		if err != nil {
			return summary, err
		}
		if !opts.Force && state.CanSkip(total) {
			summary.Skipped = true
			summary.Status = entity.SyncStatusCompleted
			summary.Synced = state.SyncedCount
			summary.TargetCount = d.targetCount(ctx, entityType, logger)
			summary.Duration = time.Since(start)
			logger.Info("Entity type already completed, skipping",
				logging.Int64("source_count", total),
				logging.Int64("synced_count", state.SyncedCount),
			)
			return summary, nil
		}

		if err := d.saveState(ctx, entityType, entity.SyncStatusInProgress, 0, 0); err != nil {
			return summary, err
		}
	}

	logger.Info("Migrating entity type",
		logging.Int64("source_count", total),
		logging.Bool("dry_run", opts.DryRun),
		logging.Bool("force", opts.Force),
	)

	tally := newErrorTally(d.config.ErrorSampleSize)
	synced, fatal := d.copyAll(ctx, entityType, opts, tally)

	errCount, deferred, samples := tally.snapshot()
	status := entity.SyncStatusCompleted
	if errCount > 0 || fatal != nil || ctx.Err() != nil {
		status = entity.SyncStatusPartial
	}

	summary.Status = status
	summary.Synced = synced
	summary.Errors = errCount
	summary.Deferred = deferred
	summary.ErrorSamples = samples

	if !opts.DryRun {
		// persist even when the run was cancelled
		if err := d.saveState(context.WithoutCancel(ctx), entityType, status, synced, errCount); err != nil && fatal == nil {
			fatal = err
		}
	}

	summary.TargetCount = d.targetCount(ctx, entityType, logger)
	summary.Duration = time.Since(start)
	d.metrics.SetEntityStatus(d.schema, entityType.String(), string(status), syncStatusNames())

	logger.Info("Entity type finished",
		logging.String("status", string(status)),
		logging.Int64("synced", synced),
		logging.Int64("errors", errCount),
		logging.Int64("deferred", deferred),
		logging.Duration("duration", summary.Duration),
	)

	if fatal != nil {
		return summary, fatal
	}
	return summary, ctx.Err()
}

// copyAll pages through the source by _id until a short page is returned
func (d *MigrationDriver) copyAll(ctx context.Context, entityType entity.EntityType, opts MigrationOptions, tally *errorTally) (int64, error) {
	batchSize := int64(d.config.BatchSize)
	var synced int64

	for skip := int64(0); ; skip += batchSize {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return synced, nil
			}
		}
		if ctx.Err() != nil {
			return synced, nil
		}

		batchStart := time.Now()
		page, err := d.source.FindPage(ctx, entityType, nil, skip, batchSize)
		if err != nil {
			tally.record(fmt.Sprintf("batch@%d", skip), fmt.Errorf("failed to read source page: %w", err))
			return synced, nil
		}

		ok, failed, fatal := d.processBatch(ctx, page, opts.DryRun, tally)
		synced += ok
		duration := time.Since(batchStart)

		d.logger.LogBatch(entityType.String(), int(skip), len(page), int(ok), int(failed), duration)
		if !opts.DryRun {
			d.metrics.RecordBatch(d.schema, entityType.String(), int(ok), int(failed), duration)
		}

		if fatal != nil {
			return synced, fatal
		}
		if int64(len(page)) < batchSize {
			return synced, nil
		}
	}
}

// processBatch writes one page with a bounded worker pool. Only fatal
// errors are propagated; everything else goes to the tally.
func (d *MigrationDriver) processBatch(ctx context.Context, page []entity.SourceRecord, dryRun bool, tally *errorTally) (int64, int64, error) {
	var synced, failed int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.Workers)

	for _, rec := range page {
		rec := rec
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := d.processRecord(gctx, rec, dryRun)
			if err == nil {
				atomic.AddInt64(&synced, 1)
				return nil
			}
			if common.IsFatal(err) {
				return err
			}
			if gctx.Err() != nil && errors.Is(err, gctx.Err()) {
				return nil
			}

			if dryRun && entity.IsDeferred(err) {
				tally.recordDeferral()
				return nil
			}

			atomic.AddInt64(&failed, 1)
			tally.record(rec.ID, err)
			if entity.IsDeferred(err) {
				d.metrics.RecordDeferred(rec.EntityType.String(), "migration")
				d.logger.LogDeferred(rec.EntityType.String(), rec.ID, err)
			} else {
				d.logger.Warn("Record failed",
					logging.String("entity_type", rec.EntityType.String()),
					logging.String("source_id", rec.ID),
					logging.Err(err),
				)
			}
			return nil
		})
	}

	err := g.Wait()
	return synced, failed, err
}

func (d *MigrationDriver) processRecord(ctx context.Context, rec entity.SourceRecord, dryRun bool) error {
	if dryRun {
		_, err := d.processor.Transform(ctx, rec)
		return err
	}
	_, err := d.processor.Process(ctx, rec)
	return err
}

func (d *MigrationDriver) saveState(ctx context.Context, entityType entity.EntityType, status entity.SyncStatus, synced, errCount int64) error {
	return d.states.Save(ctx, &entity.SyncState{
		Schema:      d.schema,
		EntityType:  entityType,
		Status:      status,
		SyncedCount: synced,
		ErrorCount:  errCount,
		LastSyncAt:  time.Now().UTC(),
	})
}

func (d *MigrationDriver) targetCount(ctx context.Context, entityType entity.EntityType, logger *logging.Logger) int64 {
	n, err := d.target.Count(context.WithoutCancel(ctx), entityType, nil)
	if err != nil {
		logger.Warn("Failed to count target rows", logging.Err(err))
		return -1
	}
	return n
}

func syncStatusNames() []string {
	names := make([]string, len(entity.AllSyncStatuses))
	for i, s := range entity.AllSyncStatuses {
		names[i] = string(s)
	}
	return names
}
