package database

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/common"
)

func sampleRecord() *entity.TargetRecord {
	return &entity.TargetRecord{
		EntityType: entity.EntityUser,
		Table:      "users",
		SourceID:   "abc",
		ID:         uuid.MustParse("7f1b7e2c-4a55-5d55-9a55-000000000001"),
		Columns: []entity.Column{
			{Name: "mobile", Value: "9000000001"},
			{Name: "roles", Value: []string{"shopper"}},
			{Name: "created_at", Value: time.Unix(0, 0).UTC()},
		},
		NaturalKey: &entity.NaturalKey{Column: "mobile", Value: "9000000001", Constraint: "users_mobile_key"},
	}
}

func TestBuildUpsert(t *testing.T) {
	query, args := buildUpsert(sampleRecord())

	assert.Equal(t,
		`INSERT INTO "users" AS t (id, mongo_id, "mobile", "roles", "created_at") VALUES ($1, $2, $3, $4, $5)`+
			` ON CONFLICT (mongo_id) DO UPDATE SET "mobile" = EXCLUDED."mobile", "roles" = EXCLUDED."roles", "created_at" = EXCLUDED."created_at"`+
			` WHERE (t."mobile", t."roles", t."created_at") IS DISTINCT FROM (EXCLUDED."mobile", EXCLUDED."roles", EXCLUDED."created_at")`+
			` RETURNING id, (xmax = 0) AS inserted`,
		query)
	require.Len(t, args, 5)
	assert.Equal(t, "abc", args[1])
	assert.IsType(t, pq.Array([]string{}), args[3])
}

func TestBuildNaturalKeyUpdate(t *testing.T) {
	query, args := buildNaturalKeyUpdate(sampleRecord())

	assert.Equal(t,
		`UPDATE "users" AS t SET mongo_id = $1, "mobile" = $2, "roles" = $3, "created_at" = $4`+
			` FROM (SELECT id, mongo_id FROM "users" WHERE "mobile" = $5 FOR UPDATE) AS prev`+
			` WHERE t.id = prev.id RETURNING t.id, prev.mongo_id`,
		query)
	require.Len(t, args, 5)
	assert.Equal(t, "abc", args[0])
	assert.Equal(t, "9000000001", args[4])
}

func TestBuildChildInsert(t *testing.T) {
	parent := uuid.New()
	query, args := buildChildInsert(entity.ChildSet{
		Table:        "order_items",
		ParentColumn: "order_id",
		Columns:      []string{"position", "product_id"},
		Rows:         [][]interface{}{{0, "P1"}, {1, "P2"}},
	}, parent)

	assert.Equal(t,
		`INSERT INTO "order_items" ("order_id", "position", "product_id") VALUES ($1, $2, $3), ($4, $5, $6)`,
		query)
	assert.Equal(t, []interface{}{parent, 0, "P1", parent, 1, "P2"}, args)
}

func TestBuildCount(t *testing.T) {
	query, args := buildCount("orders", nil)
	assert.Equal(t, `SELECT COUNT(*) FROM "orders"`, query)
	assert.Empty(t, args)

	query, args = buildCount("orders", map[string]interface{}{
		"workflow_status": "APPROVED",
		"brand_user_id":   nil,
		"is_deleted":      false,
	})
	assert.Equal(t, `SELECT COUNT(*) FROM "orders" WHERE "brand_user_id" IS NULL AND "is_deleted" = $1 AND "workflow_status" = $2`, query)
	assert.Equal(t, []interface{}{false, "APPROVED"}, args)
}

func TestClassify(t *testing.T) {
	unique := classify("users", &pq.Error{Code: "23505", Constraint: "users_mobile_key"})
	var conflict *entity.UniqueConflictError
	require.ErrorAs(t, unique, &conflict)
	assert.Equal(t, "users_mobile_key", conflict.Constraint)
	assert.Equal(t, "users", conflict.Table)

	assert.False(t, conflict.PrimaryKey())

	pkey := classify("users", &pq.Error{Code: "23505", Constraint: "users_pkey"})
	require.ErrorAs(t, pkey, &conflict)
	assert.True(t, conflict.PrimaryKey())

	privileges := classify("users", &pq.Error{Code: "42501"})
	assert.True(t, common.IsFatal(privileges))

	fk := classify("wallets", &pq.Error{Code: "23503"})
	assert.True(t, common.HasErrorCode(fk, common.ErrCodeDatabaseConstraint))

	transient := classify("users", &pq.Error{Code: "40001"})
	assert.True(t, common.HasErrorCode(transient, common.ErrCodeDatabaseQuery))
	var pqErr *pq.Error
	assert.True(t, errors.As(transient, &pqErr), "driver error stays in the chain")

	assert.Nil(t, classify("users", nil))
}

func TestIDFilter(t *testing.T) {
	oid := primitive.NewObjectID()
	assert.Equal(t, bson.M{"_id": bson.M{"$in": bson.A{oid, oid.Hex()}}}, idFilter(oid.Hex()))
	assert.Equal(t, bson.M{"_id": "legacy-42"}, idFilter("legacy-42"))
	assert.Equal(t, bson.M{}, nonNilFilter(nil))
}
