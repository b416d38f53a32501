package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/usecase"
)

func TestDecodeChangeMessage_Save(t *testing.T) {
	value := []byte(`{
		"entity_type": "Order",
		"operation": "save",
		"document": {"_id": {"$oid": "64b7f0a1c2d3e4f5a6b7c8d9"}, "totalPaise": {"$numberLong": "49900"}, "status": "Ordered"}
	}`)

	ev, err := decodeChangeMessage(value)
	require.NoError(t, err)
	assert.Equal(t, entity.EntityOrder, ev.EntityType)
	assert.Equal(t, entity.OperationSave, ev.Operation)
	assert.Equal(t, "64b7f0a1c2d3e4f5a6b7c8d9", ev.SourceID)
	require.Len(t, ev.Records, 1)

	rec := ev.Records[0]
	assert.IsType(t, primitive.ObjectID{}, rec.Fields["_id"])
	assert.Equal(t, int64(49900), rec.Fields["totalPaise"])
	assert.False(t, rec.IDTime.IsZero())
}

func TestDecodeChangeMessage_InsertManyByCollection(t *testing.T) {
	value := []byte(`{
		"collection": "wallets",
		"operation": "insertMany",
		"documents": [{"_id": "w1"}, {"_id": "w2"}]
	}`)

	ev, err := decodeChangeMessage(value)
	require.NoError(t, err)
	assert.Equal(t, entity.EntityWallet, ev.EntityType)
	require.Len(t, ev.Records, 2)
	assert.Equal(t, "w2", ev.Records[1].ID)
	assert.Empty(t, ev.SourceID)
}

func TestDecodeChangeMessage_Delete(t *testing.T) {
	ev, err := decodeChangeMessage([]byte(`{"entity_type": "user", "operation": "delete", "source_id": "u1"}`))
	require.NoError(t, err)
	assert.Equal(t, entity.EntityUser, ev.EntityType)
	assert.Equal(t, "u1", ev.SourceID)

	ev, err = decodeChangeMessage([]byte(`{"entity_type": "User", "operation": "delete", "document": {"_id": "u2"}}`))
	require.NoError(t, err)
	assert.Equal(t, "u2", ev.SourceID)

	_, err = decodeChangeMessage([]byte(`{"entity_type": "User", "operation": "delete"}`))
	assert.ErrorIs(t, err, entity.ErrMissingSourceID)
}

func TestDecodeChangeMessage_BulkFilter(t *testing.T) {
	ev, err := decodeChangeMessage([]byte(`{"entity_type": "Order", "operation": "bulkUpdate", "filter": {"brandUserId": "b1"}}`))
	require.NoError(t, err)
	assert.Equal(t, entity.OperationBulkUpdate, ev.Operation)
	assert.Equal(t, "b1", ev.Filter["brandUserId"])

	ev, err = decodeChangeMessage([]byte(`{"entity_type": "Order", "operation": "bulkDelete"}`))
	require.NoError(t, err)
	assert.Equal(t, bson.M{}, ev.Filter)
}

func TestDecodeChangeMessage_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":            `{`,
		"unknown type":        `{"entity_type": "Ticket", "operation": "save", "document": {"_id": "x"}}`,
		"no document":         `{"entity_type": "User", "operation": "save"}`,
		"document without id": `{"entity_type": "User", "operation": "save", "document": {"name": "x"}}`,
		"bad operation":       `{"entity_type": "User", "operation": "upsert", "source_id": "u1"}`,
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeChangeMessage([]byte(value))
			assert.Error(t, err)
		})
	}
}

func TestToChangeEvent(t *testing.T) {
	oid := primitive.NewObjectID()

	var insert streamDocument
	insert.OperationType = "insert"
	insert.Namespace.Collection = "users"
	insert.FullDocument = bson.M{"_id": oid, "mobile": "9000000001"}

	ev, ok, err := toChangeEvent(insert)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entity.EntityUser, ev.EntityType)
	assert.Equal(t, entity.OperationSave, ev.Operation)
	assert.Equal(t, oid.Hex(), ev.SourceID)

	var del streamDocument
	del.OperationType = "delete"
	del.Namespace.Collection = "orders"
	del.DocumentKey = bson.M{"_id": oid}

	ev, ok, err = toChangeEvent(del)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entity.OperationDelete, ev.Operation)
	assert.Equal(t, oid.Hex(), ev.SourceID)

	var vanished streamDocument
	vanished.OperationType = "update"
	vanished.Namespace.Collection = "orders"
	_, ok, err = toChangeEvent(vanished)
	require.NoError(t, err)
	assert.False(t, ok)

	var foreign streamDocument
	foreign.OperationType = "insert"
	foreign.Namespace.Collection = "sessions"
	foreign.FullDocument = bson.M{"_id": "s1"}
	_, ok, _ = toChangeEvent(foreign)
	assert.False(t, ok)
}

func TestWatchPipeline(t *testing.T) {
	pipeline := watchPipeline([]string{"users", "orders"})
	require.Len(t, pipeline, 1)
	assert.Equal(t, "$match", pipeline[0][0].Key)

	match := pipeline[0][0].Value.(bson.D)
	require.Len(t, match, 2)
	assert.Equal(t, "ns.coll", match[1].Key)

	assert.Len(t, watchPipeline(nil)[0][0].Value.(bson.D), 1)
}

type recordingHandler struct {
	mu     sync.Mutex
	events []entity.ChangeEvent
	err    error
}

func (h *recordingHandler) HandleChange(ctx context.Context, ev entity.ChangeEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.events = append(h.events, ev)
	return nil
}

// scriptedReader serves a fixed list of messages, then blocks until cancelled
type scriptedReader struct {
	messages  []kafka.Message
	committed []int64
	closed    bool
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.messages) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *scriptedReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *scriptedReader) Close() error {
	r.closed = true
	return nil
}

func newTestConsumer(t *testing.T, reader messageReader, handler ChangeHandler) *KafkaChangeConsumer {
	return &KafkaChangeConsumer{
		reader:  reader,
		handler: handler,
		config:  DefaultKafkaConfig(),
		logger:  logging.Wrap(zaptest.NewLogger(t), "replication"),
	}
}

func TestKafkaChangeConsumer_CommitsEveryMessage(t *testing.T) {
	reader := &scriptedReader{messages: []kafka.Message{
		{Offset: 1, Value: []byte(`{"entity_type": "User", "operation": "save", "document": {"_id": "u1"}}`)},
		{Offset: 2, Value: []byte(`garbage`)},
		{Offset: 3, Value: []byte(`{"entity_type": "User", "operation": "delete", "source_id": "u1"}`)},
	}}
	handler := &recordingHandler{}
	consumer := newTestConsumer(t, reader, handler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool {
		return consumer.Stats().MessagesReceived == 3
	}, testTimeout, testTick)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3}, reader.committed)
	assert.True(t, reader.closed)
	assert.Len(t, handler.events, 2)
	assert.Equal(t, ConsumerStats{MessagesReceived: 3, MessagesProcessed: 2, MessagesRejected: 1}, consumer.Stats())
}

func TestKafkaChangeConsumer_StopsWhenHandlerCloses(t *testing.T) {
	reader := &scriptedReader{messages: []kafka.Message{
		{Offset: 7, Value: []byte(`{"entity_type": "User", "operation": "delete", "source_id": "u1"}`)},
	}}
	handler := &recordingHandler{err: usecase.ErrDispatcherClosed}
	consumer := newTestConsumer(t, reader, handler)

	require.NoError(t, consumer.Run(context.Background()))
	assert.Empty(t, reader.committed, "the message is redelivered to the next consumer")
	assert.True(t, reader.closed)
}

func TestKafkaChangeConsumer_RejectedEventsAreCommitted(t *testing.T) {
	reader := &scriptedReader{messages: []kafka.Message{
		{Offset: 4, Value: []byte(`{"entity_type": "User", "operation": "delete", "source_id": "u1"}`)},
	}}
	handler := &recordingHandler{err: errors.New("queue rejected")}
	consumer := newTestConsumer(t, reader, handler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool {
		return consumer.Stats().MessagesRejected == 1
	}, testTimeout, testTick)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []int64{4}, reader.committed)
}

const (
	testTimeout = 2 * time.Second
	testTick    = 10 * time.Millisecond
)
