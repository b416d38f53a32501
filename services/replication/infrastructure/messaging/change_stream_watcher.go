package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/database/mongodb"
)

// ChangeStreamConfig configures the MongoDB change stream source
type ChangeStreamConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Collections  []string      `json:"collections" yaml:"collections" mapstructure:"collections"`
	MaxAwaitTime time.Duration `json:"max_await_time" yaml:"max_await_time" mapstructure:"max_await_time"`
	RetryDelay   time.Duration `json:"retry_delay" yaml:"retry_delay" mapstructure:"retry_delay"`
}

// DefaultChangeStreamConfig watches every replicated collection
func DefaultChangeStreamConfig() ChangeStreamConfig {
	collections := make([]string, 0, len(entity.DependencyOrder))
	for _, t := range entity.DependencyOrder {
		collections = append(collections, t.Collection())
	}
	return ChangeStreamConfig{
		Enabled:      false,
		Collections:  collections,
		MaxAwaitTime: time.Second,
		RetryDelay:   5 * time.Second,
	}
}

// streamDocument is the subset of a change stream event we consume
type streamDocument struct {
	OperationType string `bson:"operationType"`
	Namespace     struct {
		Collection string `bson:"coll"`
	} `bson:"ns"`
	DocumentKey  bson.M `bson:"documentKey"`
	FullDocument bson.M `bson:"fullDocument"`
}

// ChangeStreamWatcher tails a MongoDB change stream and forwards
// insert, update, replace and delete events to a ChangeHandler.
type ChangeStreamWatcher struct {
	client  *mongodb.Client
	handler ChangeHandler
	config  ChangeStreamConfig
	logger  *logging.Logger

	resumeToken bson.Raw
	received    atomic.Int64
	forwarded   atomic.Int64
}

// NewChangeStreamWatcher creates a new ChangeStreamWatcher
func NewChangeStreamWatcher(client *mongodb.Client, handler ChangeHandler, config ChangeStreamConfig, logger *logging.Logger) *ChangeStreamWatcher {
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultChangeStreamConfig().RetryDelay
	}
	return &ChangeStreamWatcher{
		client:  client,
		handler: handler,
		config:  config,
		logger:  logger.WithComponent("change_stream"),
	}
}

// Run watches until ctx is cancelled, reopening the stream from the last
// resume token after errors.
func (w *ChangeStreamWatcher) Run(ctx context.Context) error {
	w.logger.Info("Change stream watcher started", logging.Strings("collections", w.config.Collections))

	for {
		err := w.watch(ctx)
		if ctx.Err() != nil {
			w.logger.Info("Change stream watcher stopped",
				logging.Int64("received", w.received.Load()),
				logging.Int64("forwarded", w.forwarded.Load()))
			return nil
		}
		if errors.Is(err, errHandlerClosed) {
			return nil
		}

		w.logger.Warn("Change stream interrupted, reopening",
			logging.Err(err),
			logging.Duration("retry_delay", w.config.RetryDelay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.config.RetryDelay):
		}
	}
}

var errHandlerClosed = errors.New("change handler closed")

func (w *ChangeStreamWatcher) watch(ctx context.Context) error {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if w.config.MaxAwaitTime > 0 {
		opts.SetMaxAwaitTime(w.config.MaxAwaitTime)
	}
	if w.resumeToken != nil {
		opts.SetResumeAfter(w.resumeToken)
	}

	stream, err := w.client.Database().Watch(ctx, watchPipeline(w.config.Collections), opts)
	if err != nil {
		return fmt.Errorf("failed to open change stream: %w", err)
	}
	defer stream.Close(context.WithoutCancel(ctx))

	for stream.Next(ctx) {
		w.received.Add(1)

		var doc streamDocument
		if err := stream.Decode(&doc); err != nil {
			w.logger.Error("Failed to decode change event", logging.Err(err))
			w.resumeToken = stream.ResumeToken()
			continue
		}

		ev, ok, err := toChangeEvent(doc)
		switch {
		case err != nil:
			w.logger.Warn("Dropping change event",
				logging.String("collection", doc.Namespace.Collection),
				logging.String("operation_type", doc.OperationType),
				logging.Err(err))
		case ok:
			if err := w.handler.HandleChange(ctx, ev); err != nil {
				if isClosed(err) {
					return errHandlerClosed
				}
				w.logger.Warn("Change handler rejected event",
					logging.String("entity_type", ev.EntityType.String()),
					logging.Err(err))
			} else {
				w.forwarded.Add(1)
			}
		}
		w.resumeToken = stream.ResumeToken()
	}
	return stream.Err()
}

func watchPipeline(collections []string) mongo.Pipeline {
	match := bson.D{
		{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace", "delete"}}}},
	}
	if len(collections) > 0 {
		match = append(match, bson.E{Key: "ns.coll", Value: bson.D{{Key: "$in", Value: collections}}})
	}
	return mongo.Pipeline{{{Key: "$match", Value: match}}}
}

// toChangeEvent maps a change stream document to a ChangeEvent. ok is false
// for events that carry nothing to mirror.
func toChangeEvent(doc streamDocument) (entity.ChangeEvent, bool, error) {
	entityType, known := entity.EntityTypeForCollection(doc.Namespace.Collection)
	if !known {
		return entity.ChangeEvent{}, false, nil
	}

	switch doc.OperationType {
	case "insert", "update", "replace":
		// an update whose document was deleted before the lookup
		if doc.FullDocument == nil {
			return entity.ChangeEvent{}, false, nil
		}
		rec, err := entity.NewSourceRecord(entityType, doc.FullDocument)
		if err != nil {
			return entity.ChangeEvent{}, false, err
		}
		return entity.ChangeEvent{
			EntityType: entityType,
			Operation:  entity.OperationSave,
			SourceID:   rec.ID,
			Records:    []entity.SourceRecord{rec},
		}, true, nil
	case "delete":
		key, err := entity.NewSourceRecord(entityType, doc.DocumentKey)
		if err != nil {
			return entity.ChangeEvent{}, false, err
		}
		return entity.ChangeEvent{
			EntityType: entityType,
			Operation:  entity.OperationDelete,
			SourceID:   key.ID,
		}, true, nil
	}
	return entity.ChangeEvent{}, false, nil
}
