package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/pkg/metrics"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
)

// ErrDispatcherClosed is returned by HandleChange after Close
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// DispatcherConfig configures live dual-write mirroring
type DispatcherConfig struct {
	Enabled     bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	QueueSize   int           `json:"queue_size" yaml:"queue_size" mapstructure:"queue_size"`
	Workers     int           `json:"workers" yaml:"workers" mapstructure:"workers"`
	TaskTimeout time.Duration `json:"task_timeout" yaml:"task_timeout" mapstructure:"task_timeout"`
}

// DefaultDispatcherConfig returns the default dispatcher configuration
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Enabled:     false,
		QueueSize:   1024,
		Workers:     4,
		TaskTimeout: 30 * time.Second,
	}
}

// AvailabilityGate reports whether the target store is accepting writes
type AvailabilityGate interface {
	Available() bool
}

type dispatchTask struct {
	entityType entity.EntityType
	operation  entity.Operation
	sourceID   string
	run        func(ctx context.Context) error
}

func (t dispatchTask) key() string {
	return entity.FailureKey(t.entityType, t.operation)
}

// Dispatcher mirrors source mutations into the target store off the
// caller's path. Hooks never block and never return errors; every task
// outcome is drained into the failure counter.
type Dispatcher struct {
	config    DispatcherConfig
	processor *RecordProcessor
	gate      AvailabilityGate
	failures  *FailureCounter
	logger    *logging.Logger
	metrics   *metrics.Collector

	enabled atomic.Bool
	queue   chan dispatchTask
	pending sync.WaitGroup
	workers sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewDispatcher creates a new Dispatcher. gate may be nil.
func NewDispatcher(
	config DispatcherConfig,
	processor *RecordProcessor,
	gate AvailabilityGate,
	failures *FailureCounter,
	logger *logging.Logger,
	collector *metrics.Collector,
) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = defaults.TaskTimeout
	}
	if failures == nil {
		failures = NewFailureCounter()
	}
	if logger == nil {
		logger = logging.Wrap(nil, "replication")
	}

	d := &Dispatcher{
		config:    config,
		processor: processor,
		gate:      gate,
		failures:  failures,
		logger:    logger.WithComponent("dispatcher"),
		metrics:   collector,
		queue:     make(chan dispatchTask, config.QueueSize),
	}
	d.enabled.Store(config.Enabled)
	return d
}

// Start launches the worker pool
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	d.baseCtx, d.cancel = context.WithCancel(ctx)

	for i := 0; i < d.config.Workers; i++ {
		d.workers.Add(1)
		go d.worker()
	}

	d.logger.Info("Dual-write dispatcher started",
		logging.Int("workers", d.config.Workers),
		logging.Int("queue_size", d.config.QueueSize),
		logging.Bool("enabled", d.enabled.Load()),
	)
}

// SetEnabled flips the dual-write feature flag at runtime
func (d *Dispatcher) SetEnabled(enabled bool) {
	d.enabled.Store(enabled)
	d.logger.Info("Dual-write flag changed", logging.Bool("enabled", enabled))
}

// Enabled reports the feature flag
func (d *Dispatcher) Enabled() bool {
	return d.enabled.Load()
}

// OnSave mirrors a single insert or update
func (d *Dispatcher) OnSave(entityType entity.EntityType, rec entity.SourceRecord) {
	d.dispatch(dispatchTask{
		entityType: entityType,
		operation:  entity.OperationSave,
		sourceID:   rec.ID,
		run:        d.upsertTask(entityType, rec),
	})
}

// OnInsertMany mirrors a multi-document insert, one task per record
func (d *Dispatcher) OnInsertMany(entityType entity.EntityType, recs []entity.SourceRecord) {
	for _, rec := range recs {
		d.dispatch(dispatchTask{
			entityType: entityType,
			operation:  entity.OperationInsertMany,
			sourceID:   rec.ID,
			run:        d.upsertTask(entityType, rec),
		})
	}
}

// OnDelete mirrors a hard delete
func (d *Dispatcher) OnDelete(entityType entity.EntityType, sourceID string) {
	d.dispatch(dispatchTask{
		entityType: entityType,
		operation:  entity.OperationDelete,
		sourceID:   sourceID,
		run: func(ctx context.Context) error {
			_, err := d.processor.Writer().Delete(ctx, entityType, sourceID)
			return err
		},
	})
}

// OnBulkUpdate is not mirrored. It flags that the affected sub-population
// needs Verifier.ReconcileFiltered.
func (d *Dispatcher) OnBulkUpdate(entityType entity.EntityType, filter bson.M) {
	d.reconcileRequired(entityType, entity.OperationBulkUpdate, filter)
}

// OnBulkDelete is not mirrored. It flags that the affected rows need
// Verifier.ReconcileDeleted.
func (d *Dispatcher) OnBulkDelete(entityType entity.EntityType, filter bson.M) {
	d.reconcileRequired(entityType, entity.OperationBulkDelete, filter)
}

// HandleChange routes a change signal from an adapter to the matching hook
func (d *Dispatcher) HandleChange(_ context.Context, ev entity.ChangeEvent) error {
	if !ev.EntityType.Valid() {
		return fmt.Errorf("%w: %s", entity.ErrUnknownEntityType, ev.EntityType)
	}
	if d.isClosed() {
		return ErrDispatcherClosed
	}

	switch ev.Operation {
	case entity.OperationSave:
		for _, rec := range ev.Records {
			d.OnSave(ev.EntityType, rec)
		}
	case entity.OperationInsertMany:
		d.OnInsertMany(ev.EntityType, ev.Records)
	case entity.OperationDelete:
		if ev.SourceID == "" {
			return entity.ErrMissingSourceID
		}
		d.OnDelete(ev.EntityType, ev.SourceID)
	case entity.OperationBulkUpdate:
		d.OnBulkUpdate(ev.EntityType, ev.Filter)
	case entity.OperationBulkDelete:
		d.OnBulkDelete(ev.EntityType, ev.Filter)
	default:
		return fmt.Errorf("unsupported change operation %q", ev.Operation)
	}
	return nil
}

// Failures returns a snapshot of the failure counters
func (d *Dispatcher) Failures() map[string]int64 {
	return d.failures.Snapshot()
}

// ResetFailures clears the failure counters
func (d *Dispatcher) ResetFailures() {
	d.failures.Reset()
}

// QueueDepth returns the number of tasks waiting for a worker
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// Flush waits until every accepted task has been drained. Callers must
// stop producing before flushing.
func (d *Dispatcher) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for the workers to drain the queue
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		for t := range d.queue {
			d.failures.Increment(t.key())
			d.pending.Done()
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info("Dual-write dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.cancel()
		return fmt.Errorf("dispatcher did not drain before shutdown: %w", ctx.Err())
	}
}

func (d *Dispatcher) upsertTask(entityType entity.EntityType, rec entity.SourceRecord) func(ctx context.Context) error {
	if rec.EntityType == "" {
		rec.EntityType = entityType
	}
	return func(ctx context.Context) error {
		_, err := d.processor.Process(ctx, rec)
		return err
	}
}

func (d *Dispatcher) reconcileRequired(entityType entity.EntityType, op entity.Operation, filter bson.M) {
	d.logger.Warn("Bulk mutation is not mirrored; reconciliation required",
		logging.String("entity_type", entityType.String()),
		logging.String("operation", string(op)),
		logging.Any("filter", filter),
	)
	d.metrics.RecordReconcileRequired(entityType.String(), string(op))
}

func (d *Dispatcher) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

func (d *Dispatcher) dispatch(t dispatchTask) {
	if !d.enabled.Load() {
		return
	}
	if d.gate != nil && !d.gate.Available() {
		d.logger.Debug("Target unavailable, skipping dual-write",
			logging.String("key", t.key()),
			logging.String("source_id", t.sourceID),
		)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.failures.Increment(t.key())
		d.metrics.RecordDispatch(t.entityType.String(), string(t.operation), "rejected", 0)
		return
	}

	d.pending.Add(1)
	select {
	case d.queue <- t:
		d.metrics.SetQueueDepth(len(d.queue))
	default:
		d.pending.Done()
		d.failures.Increment(t.key())
		d.metrics.RecordDispatch(t.entityType.String(), string(t.operation), "overflow", 0)
		d.logger.Warn("Dual-write queue full, task counted as failed",
			logging.String("key", t.key()),
			logging.String("source_id", t.sourceID),
			logging.Int("queue_size", d.config.QueueSize),
		)
	}
}

func (d *Dispatcher) worker() {
	defer d.workers.Done()
	for t := range d.queue {
		d.execute(t)
	}
}

func (d *Dispatcher) execute(t dispatchTask) {
	defer d.pending.Done()
	d.metrics.SetQueueDepth(len(d.queue))

	ctx, cancel := context.WithTimeout(d.baseCtx, d.config.TaskTimeout)
	defer cancel()

	start := time.Now()
	err := runTask(ctx, t)
	duration := time.Since(start)

	switch {
	case err == nil:
		d.metrics.RecordDispatch(t.entityType.String(), string(t.operation), "success", duration)
	case entity.IsDeferred(err):
		d.metrics.RecordDispatch(t.entityType.String(), string(t.operation), "deferred", duration)
		d.metrics.RecordDeferred(t.entityType.String(), "dual_write")
		d.logger.LogDeferred(t.entityType.String(), t.sourceID, err)
	default:
		d.failures.Increment(t.key())
		d.metrics.RecordDispatch(t.entityType.String(), string(t.operation), "failure", duration)
		d.logger.Error("Dual-write task failed",
			logging.String("key", t.key()),
			logging.String("source_id", t.sourceID),
			logging.Duration("duration", duration),
			logging.Err(err),
		)
	}
}

func runTask(ctx context.Context, t dispatchTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dual-write task panicked: %v", r)
		}
	}()
	return t.run(ctx)
}
