package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
)

// KafkaConfig configures the Kafka change signal source
type KafkaConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Brokers        []string      `json:"brokers" yaml:"brokers" mapstructure:"brokers"`
	Topic          string        `json:"topic" yaml:"topic" mapstructure:"topic"`
	GroupID        string        `json:"group_id" yaml:"group_id" mapstructure:"group_id"`
	MinBytes       int           `json:"min_bytes" yaml:"min_bytes" mapstructure:"min_bytes"`
	MaxBytes       int           `json:"max_bytes" yaml:"max_bytes" mapstructure:"max_bytes"`
	MaxWait        time.Duration `json:"max_wait" yaml:"max_wait" mapstructure:"max_wait"`
	SessionTimeout time.Duration `json:"session_timeout" yaml:"session_timeout" mapstructure:"session_timeout"`
	RetryDelay     time.Duration `json:"retry_delay" yaml:"retry_delay" mapstructure:"retry_delay"`
}

// DefaultKafkaConfig returns default Kafka consumer settings
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Enabled:        false,
		Brokers:        []string{"localhost:9092"},
		Topic:          "mobo.changes",
		GroupID:        "mobo-replication",
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		SessionTimeout: 30 * time.Second,
		RetryDelay:     time.Second,
	}
}

// changeMessage is the wire format published by the legacy application.
// Documents and filters are MongoDB extended JSON.
type changeMessage struct {
	EntityType string            `json:"entity_type"`
	Collection string            `json:"collection"`
	Operation  string            `json:"operation"`
	SourceID   string            `json:"source_id"`
	Document   json.RawMessage   `json:"document"`
	Documents  []json.RawMessage `json:"documents"`
	Filter     json.RawMessage   `json:"filter"`
}

// ConsumerStats holds consumer counters
type ConsumerStats struct {
	MessagesReceived  int64 `json:"messages_received"`
	MessagesProcessed int64 `json:"messages_processed"`
	MessagesRejected  int64 `json:"messages_rejected"`
}

// messageReader is the part of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaChangeConsumer reads change events from a Kafka topic and forwards
// them to a ChangeHandler. Offsets are committed after each message is handed
// off, including messages that fail to decode.
type KafkaChangeConsumer struct {
	reader  messageReader
	handler ChangeHandler
	config  KafkaConfig
	logger  *logging.Logger

	received  atomic.Int64
	processed atomic.Int64
	rejected  atomic.Int64
}

// NewKafkaChangeConsumer creates a consumer group reader for the configured topic
func NewKafkaChangeConsumer(config KafkaConfig, handler ChangeHandler, logger *logging.Logger) *KafkaChangeConsumer {
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultKafkaConfig().RetryDelay
	}

	consumer := &KafkaChangeConsumer{
		handler: handler,
		config:  config,
		logger:  logger.WithComponent("kafka_consumer"),
	}
	consumer.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		GroupID:        config.GroupID,
		Topic:          config.Topic,
		MinBytes:       config.MinBytes,
		MaxBytes:       config.MaxBytes,
		MaxWait:        config.MaxWait,
		SessionTimeout: config.SessionTimeout,
		StartOffset:    kafka.LastOffset,
		ErrorLogger:    kafka.LoggerFunc(consumer.logKafkaError),
	})
	return consumer
}

// Run consumes until ctx is cancelled or the handler is closed
func (c *KafkaChangeConsumer) Run(ctx context.Context) error {
	c.logger.Info("Kafka change consumer started",
		logging.Strings("brokers", c.config.Brokers),
		logging.String("topic", c.config.Topic),
		logging.String("group_id", c.config.GroupID))

	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("Failed to close Kafka reader", logging.Err(err))
		}
		c.logger.Info("Kafka change consumer stopped",
			logging.Int64("received", c.received.Load()),
			logging.Int64("processed", c.processed.Load()),
			logging.Int64("rejected", c.rejected.Load()))
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("Failed to fetch Kafka message", logging.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.config.RetryDelay):
			}
			continue
		}

		if err := c.handle(ctx, msg); errors.Is(err, errHandlerClosed) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn("Failed to commit Kafka offset",
				logging.Int("partition", msg.Partition),
				logging.Int64("offset", msg.Offset),
				logging.Err(err))
		}
	}
}

func (c *KafkaChangeConsumer) handle(ctx context.Context, msg kafka.Message) error {
	c.received.Add(1)

	ev, err := decodeChangeMessage(msg.Value)
	if err != nil {
		c.rejected.Add(1)
		c.logger.Warn("Dropping undecodable change message",
			logging.Int("partition", msg.Partition),
			logging.Int64("offset", msg.Offset),
			logging.Err(err))
		return nil
	}

	if err := c.handler.HandleChange(ctx, ev); err != nil {
		if isClosed(err) {
			return errHandlerClosed
		}
		c.rejected.Add(1)
		c.logger.Warn("Change handler rejected message",
			logging.String("entity_type", ev.EntityType.String()),
			logging.String("operation", string(ev.Operation)),
			logging.Err(err))
		return nil
	}

	c.processed.Add(1)
	return nil
}

// Stats returns the consumer counters
func (c *KafkaChangeConsumer) Stats() ConsumerStats {
	return ConsumerStats{
		MessagesReceived:  c.received.Load(),
		MessagesProcessed: c.processed.Load(),
		MessagesRejected:  c.rejected.Load(),
	}
}

func (c *KafkaChangeConsumer) logKafkaError(msg string, args ...interface{}) {
	c.logger.Error("Kafka reader error", logging.String("message", fmt.Sprintf(msg, args...)))
}

// decodeChangeMessage parses one Kafka message value into a ChangeEvent
func decodeChangeMessage(value []byte) (entity.ChangeEvent, error) {
	var msg changeMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return entity.ChangeEvent{}, fmt.Errorf("invalid change message: %w", err)
	}

	name := msg.EntityType
	if name == "" {
		name = msg.Collection
	}
	entityType, err := entity.ParseEntityType(name)
	if err != nil {
		return entity.ChangeEvent{}, err
	}

	ev := entity.ChangeEvent{
		EntityType: entityType,
		Operation:  entity.Operation(msg.Operation),
		SourceID:   strings.TrimSpace(msg.SourceID),
	}

	switch ev.Operation {
	case entity.OperationSave, entity.OperationInsertMany:
		raws := msg.Documents
		if len(msg.Document) > 0 {
			raws = append([]json.RawMessage{msg.Document}, raws...)
		}
		if len(raws) == 0 {
			return entity.ChangeEvent{}, fmt.Errorf("%s message for %s carries no document", ev.Operation, entityType)
		}
		for i, raw := range raws {
			doc, err := decodeExtJSON(raw)
			if err != nil {
				return entity.ChangeEvent{}, fmt.Errorf("document %d: %w", i, err)
			}
			rec, err := entity.NewSourceRecord(entityType, doc)
			if err != nil {
				return entity.ChangeEvent{}, fmt.Errorf("document %d: %w", i, err)
			}
			ev.Records = append(ev.Records, rec)
		}
		if ev.SourceID == "" && len(ev.Records) == 1 {
			ev.SourceID = ev.Records[0].ID
		}
	case entity.OperationDelete:
		if ev.SourceID == "" && len(msg.Document) > 0 {
			doc, err := decodeExtJSON(msg.Document)
			if err != nil {
				return entity.ChangeEvent{}, err
			}
			rec, err := entity.NewSourceRecord(entityType, doc)
			if err != nil {
				return entity.ChangeEvent{}, err
			}
			ev.SourceID = rec.ID
		}
		if ev.SourceID == "" {
			return entity.ChangeEvent{}, entity.ErrMissingSourceID
		}
	case entity.OperationBulkUpdate, entity.OperationBulkDelete:
		ev.Filter = bson.M{}
		if len(msg.Filter) > 0 {
			filter, err := decodeExtJSON(msg.Filter)
			if err != nil {
				return entity.ChangeEvent{}, fmt.Errorf("filter: %w", err)
			}
			ev.Filter = filter
		}
	default:
		return entity.ChangeEvent{}, fmt.Errorf("unsupported change operation %q", msg.Operation)
	}
	return ev, nil
}

func decodeExtJSON(raw json.RawMessage) (bson.M, error) {
	var doc bson.M
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, fmt.Errorf("invalid extended JSON: %w", err)
	}
	return doc, nil
}
