package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/common"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/database/mongodb"
)

// MongoSourceRepository implements repository.SourceRepository over the legacy MongoDB
type MongoSourceRepository struct {
	client       *mongodb.Client
	queryTimeout time.Duration
	logger       *logging.Logger
}

// NewMongoSourceRepository creates a new MongoDB source repository
func NewMongoSourceRepository(client *mongodb.Client, queryTimeout time.Duration, logger *logging.Logger) *MongoSourceRepository {
	if queryTimeout <= 0 {
		queryTimeout = 60 * time.Second
	}
	return &MongoSourceRepository{
		client:       client,
		queryTimeout: queryTimeout,
		logger:       logger.WithComponent("mongo_source"),
	}
}

func (r *MongoSourceRepository) collection(entityType entity.EntityType) (*mongo.Collection, error) {
	if !entityType.Valid() {
		return nil, fmt.Errorf("%w: %s", entity.ErrUnknownEntityType, entityType)
	}
	return r.client.Collection(entityType.Collection()), nil
}

// Count returns the number of documents matching filter
func (r *MongoSourceRepository) Count(ctx context.Context, entityType entity.EntityType, filter bson.M) (int64, error) {
	coll, err := r.collection(entityType)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	var count int64
	err = r.client.Execute(func() error {
		var countErr error
		count, countErr = coll.CountDocuments(ctx, nonNilFilter(filter))
		return countErr
	})
	if err != nil {
		return 0, common.WrapError(err, common.ErrCodeDatabaseQuery, fmt.Sprintf("failed to count %s", coll.Name()))
	}
	return count, nil
}

// FindPage returns one page ordered by _id
func (r *MongoSourceRepository) FindPage(ctx context.Context, entityType entity.EntityType, filter bson.M, skip, limit int64) ([]entity.SourceRecord, error) {
	coll, err := r.collection(entityType)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	findOpts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(skip).
		SetLimit(limit)

	var docs []bson.M
	err = r.client.Execute(func() error {
		cursor, err := coll.Find(ctx, nonNilFilter(filter), findOpts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &docs)
	})
	if err != nil {
		return nil, common.WrapError(err, common.ErrCodeDatabaseQuery, fmt.Sprintf("failed to read %s page", coll.Name()))
	}

	records := make([]entity.SourceRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := entity.NewSourceRecord(entityType, doc)
		if err != nil {
			r.logger.Warn("Skipping document without usable _id",
				logging.String("collection", coll.Name()),
				logging.Any("_id", doc["_id"]),
			)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// FindByID loads one document by its source id
func (r *MongoSourceRepository) FindByID(ctx context.Context, entityType entity.EntityType, sourceID string) (entity.SourceRecord, error) {
	coll, err := r.collection(entityType)
	if err != nil {
		return entity.SourceRecord{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	var doc bson.M
	err = r.client.Execute(func() error {
		return coll.FindOne(ctx, idFilter(sourceID)).Decode(&doc)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return entity.SourceRecord{}, entity.ErrSourceNotFound
		}
		return entity.SourceRecord{}, common.WrapError(err, common.ErrCodeDatabaseQuery, fmt.Sprintf("failed to load %s %s", entityType, sourceID))
	}

	return entity.NewSourceRecord(entityType, doc)
}

// idFilter matches a source id stored either as an ObjectID or a plain string
func idFilter(sourceID string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(sourceID); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, sourceID}}}
	}
	return bson.M{"_id": sourceID}
}

func nonNilFilter(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}
