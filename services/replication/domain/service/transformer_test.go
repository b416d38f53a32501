package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
)

type mapResolver map[string]uuid.UUID

func (m mapResolver) Resolve(_ context.Context, t entity.EntityType, id string) (uuid.UUID, bool, error) {
	v, ok := m[string(t)+":"+id]
	return v, ok, nil
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, entity.EntityType, string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, errors.New("connection reset")
}

func sourceRecord(t *testing.T, entityType entity.EntityType, doc bson.M) entity.SourceRecord {
	t.Helper()
	rec, err := entity.NewSourceRecord(entityType, doc)
	require.NoError(t, err)
	return rec
}

func column(t *testing.T, rec *entity.TargetRecord, name string) interface{} {
	t.Helper()
	v, ok := rec.Value(name)
	require.True(t, ok, "column %s not set", name)
	return v
}

func TestUserTransformer_DefaultsAndFlattening(t *testing.T) {
	oid := primitive.NewObjectIDFromTimestamp(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	src := sourceRecord(t, entity.EntityUser, bson.M{
		"_id":    oid,
		"name":   "Asha",
		"mobile": "+91 98765-43210",
		"role":   "MEDIATOR",
		"status": "unknown-status",
		"email":  nil,
		"bankDetails": bson.M{
			"accountNumber": "001122",
			"ifsc":          "hdfc0001",
		},
	})

	rec, err := UserTransformer{}.Transform(context.Background(), src, nil)
	require.NoError(t, err)

	assert.Equal(t, "users", rec.Table)
	assert.Equal(t, oid.Hex(), rec.SourceID)
	assert.Equal(t, "9876543210", column(t, rec, "mobile"))
	assert.Equal(t, "mediator", column(t, rec, "role"))
	assert.Equal(t, []string{"mediator"}, column(t, rec, "roles"))
	assert.Equal(t, "active", column(t, rec, "status"))
	assert.Equal(t, "none", column(t, rec, "kyc_status"))
	assert.Nil(t, column(t, rec, "email"))
	assert.Equal(t, "001122", column(t, rec, "bank_account_number"))
	assert.Equal(t, "HDFC0001", column(t, rec, "bank_ifsc"))
	assert.Equal(t, "", column(t, rec, "bank_name"))
	assert.Equal(t, false, column(t, rec, "is_deleted"))
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), column(t, rec, "created_at"))
	assert.Equal(t, column(t, rec, "created_at"), column(t, rec, "updated_at"))

	require.NotNil(t, rec.NaturalKey)
	assert.Equal(t, "mobile", rec.NaturalKey.Column)
	assert.Equal(t, "users_mobile_key", rec.NaturalKey.Constraint)
}

func TestUserTransformer_IsDeterministic(t *testing.T) {
	doc := bson.M{"_id": primitive.NewObjectID(), "name": "Ravi", "mobile": "9000000001"}

	first, err := UserTransformer{}.Transform(context.Background(), sourceRecord(t, entity.EntityUser, doc), nil)
	require.NoError(t, err)
	second, err := UserTransformer{}.Transform(context.Background(), sourceRecord(t, entity.EntityUser, doc), nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestUserTransformer_MissingMobile(t *testing.T) {
	src := sourceRecord(t, entity.EntityUser, bson.M{"_id": "u1", "name": "No Phone"})

	_, err := UserTransformer{}.Transform(context.Background(), src, nil)

	var transformErr *entity.TransformError
	require.ErrorAs(t, err, &transformErr)
	assert.Equal(t, "mobile", transformErr.Field)
}

func TestWalletTransformer_DefersUnresolvedOwner(t *testing.T) {
	src := sourceRecord(t, entity.EntityWallet, bson.M{
		"_id":         "w1",
		"ownerUserId": primitive.NewObjectID(),
	})

	rec, err := WalletTransformer{}.Transform(context.Background(), src, mapResolver{})

	assert.Nil(t, rec)
	assert.True(t, entity.IsDeferred(err))
	var deferred *entity.DeferredError
	require.ErrorAs(t, err, &deferred)
	assert.Equal(t, entity.EntityUser, deferred.RefType)
}

func TestWalletTransformer_ResolvedOwner(t *testing.T) {
	owner := primitive.NewObjectID()
	ownerID := uuid.New()
	src := sourceRecord(t, entity.EntityWallet, bson.M{
		"_id":            "w1",
		"ownerUserId":    owner,
		"availablePaise": int32(1500),
		"pendingPaise":   "250",
		"currency":       "usd",
	})

	rec, err := WalletTransformer{}.Transform(context.Background(), src,
		mapResolver{"User:" + owner.Hex(): ownerID})
	require.NoError(t, err)

	assert.Equal(t, ownerID.String(), column(t, rec, "owner_user_id"))
	assert.Equal(t, int64(1500), column(t, rec, "available_paise"))
	assert.Equal(t, int64(250), column(t, rec, "pending_paise"))
	assert.Equal(t, int64(0), column(t, rec, "locked_paise"))
	assert.Equal(t, "INR", column(t, rec, "currency"))
	require.NotNil(t, rec.NaturalKey)
	assert.Equal(t, ownerID.String(), rec.NaturalKey.Value)
}

func TestTransform_ResolverErrorIsNotDeferral(t *testing.T) {
	src := sourceRecord(t, entity.EntityWallet, bson.M{"_id": "w1", "ownerUserId": "u1"})

	_, err := WalletTransformer{}.Transform(context.Background(), src, failingResolver{})

	require.Error(t, err)
	assert.False(t, entity.IsDeferred(err))
}

func TestOrderTransformer_ChildrenAndOptionalRefs(t *testing.T) {
	buyer := primitive.NewObjectID()
	buyerID := uuid.New()
	src := sourceRecord(t, entity.EntityOrder, bson.M{
		"_id":            primitive.NewObjectID(),
		"userId":         buyer,
		"managerUserId":  primitive.NewObjectID(),
		"workflowStatus": "proof_submitted",
		"screenshots":    bson.M{"order": "https://img/1.png"},
		"items": primitive.A{
			bson.M{"productId": "P1", "priceAtPurchasePaise": int64(49900), "quantity": int32(2), "dealType": "review"},
			bson.M{"productId": "P2", "priceAtPurchasePaise": 100.4},
			"not-a-document",
		},
	})

	rec, err := OrderTransformer{}.Transform(context.Background(), src,
		mapResolver{"User:" + buyer.Hex(): buyerID})
	require.NoError(t, err)

	assert.Equal(t, buyerID.String(), column(t, rec, "user_id"))
	assert.Nil(t, column(t, rec, "manager_user_id"))
	assert.Nil(t, column(t, rec, "brand_user_id"))
	assert.Len(t, rec.Warnings, 1)
	assert.Equal(t, "PROOF_SUBMITTED", column(t, rec, "workflow_status"))
	assert.Equal(t, "Pending", column(t, rec, "payment_status"))
	assert.Equal(t, "Unchecked", column(t, rec, "affiliate_status"))
	assert.Equal(t, "https://img/1.png", column(t, rec, "screenshot_order"))
	assert.Nil(t, column(t, rec, "screenshot_payment"))
	assert.Equal(t, int64(49900*2+100), column(t, rec, "total_paise"))
	assert.Nil(t, rec.NaturalKey)

	require.Len(t, rec.Children, 1)
	items := rec.Children[0]
	assert.Equal(t, "order_items", items.Table)
	assert.Equal(t, "order_id", items.ParentColumn)
	require.Len(t, items.Rows, 2)
	assert.Equal(t, "Review", items.Rows[0][5])
	assert.Equal(t, int64(2), items.Rows[0][9])
	assert.Equal(t, int64(1), items.Rows[1][9])
}

func TestOrderTransformer_EmptyItemsStillReplacesChildren(t *testing.T) {
	buyer := primitive.NewObjectID()
	src := sourceRecord(t, entity.EntityOrder, bson.M{"_id": "o1", "userId": buyer})

	rec, err := OrderTransformer{}.Transform(context.Background(), src,
		mapResolver{"User:" + buyer.Hex(): uuid.New()})
	require.NoError(t, err)

	require.Len(t, rec.Children, 1)
	assert.Empty(t, rec.Children[0].Rows)
}

func TestInviteTransformer(t *testing.T) {
	_, err := InviteTransformer{}.Transform(context.Background(),
		sourceRecord(t, entity.EntityInvite, bson.M{"_id": "i1"}), nil)
	var transformErr *entity.TransformError
	require.ErrorAs(t, err, &transformErr)

	rec, err := InviteTransformer{}.Transform(context.Background(),
		sourceRecord(t, entity.EntityInvite, bson.M{"_id": "i2", "code": "abc123", "maxUses": int32(0)}), nil)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", column(t, rec, "code"))
	assert.Equal(t, int64(1), column(t, rec, "max_uses"))
	assert.Nil(t, column(t, rec, "expires_at"))
	assert.Equal(t, "invites_code_key", rec.NaturalKey.Constraint)
}

func TestTransactionTransformer_BlankIdempotencyKeyIsNotNaturalKey(t *testing.T) {
	wallet := primitive.NewObjectID()
	src := sourceRecord(t, entity.EntityTransaction, bson.M{
		"_id":         "t1",
		"walletId":    wallet,
		"amountPaise": int64(-500),
		"type":        "bogus",
	})

	rec, err := TransactionTransformer{}.Transform(context.Background(), src,
		mapResolver{"Wallet:" + wallet.Hex(): uuid.New()})
	require.NoError(t, err)

	assert.Nil(t, rec.NaturalKey)
	assert.Nil(t, column(t, rec, "idempotency_key"))
	assert.Equal(t, int64(500), column(t, rec, "amount_paise"))
	assert.Equal(t, "adjustment", column(t, rec, "type"))
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	for _, et := range entity.DependencyOrder {
		_, ok := registry.Lookup(et)
		assert.True(t, ok, "missing transformer for %s", et)
	}

	_, err := registry.Transform(context.Background(), entity.SourceRecord{EntityType: "Ghost", ID: "x"}, nil)
	assert.ErrorIs(t, err, entity.ErrUnknownEntityType)
}

func TestFields_Paise(t *testing.T) {
	decimal, err := primitive.ParseDecimal128("12.34")
	require.NoError(t, err)

	tests := []struct {
		name string
		doc  bson.M
		want int64
	}{
		{"paise integer", bson.M{"amountPaise": int64(49900)}, 49900},
		{"paise float rounds", bson.M{"amountPaise": 100.4}, 100},
		{"rupee float", bson.M{"amount": 12.34}, 1234},
		{"rupee string", bson.M{"amount": " 499.5 "}, 49950},
		{"rupee decimal", bson.M{"amount": decimal}, 1234},
		{"rupee integer", bson.M{"amount": int32(7)}, 700},
		{"paise wins over rupees", bson.M{"amountPaise": int64(5), "amount": 9.0}, 5},
		{"missing", bson.M{}, 0},
		{"not a number", bson.M{"amount": "free"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, newFields(tt.doc).Paise("amountPaise", "amount"))
		})
	}
}

func TestTransformers_RupeeAmounts(t *testing.T) {
	owner := primitive.NewObjectID()
	balance, err := primitive.ParseDecimal128("1250.75")
	require.NoError(t, err)

	wallet, err := WalletTransformer{}.Transform(context.Background(),
		sourceRecord(t, entity.EntityWallet, bson.M{"_id": "w1", "ownerUserId": owner, "availableBalance": balance}),
		mapResolver{"User:" + owner.Hex(): uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, int64(125075), column(t, wallet, "available_paise"))

	order, err := OrderTransformer{}.Transform(context.Background(),
		sourceRecord(t, entity.EntityOrder, bson.M{
			"_id":    "o1",
			"userId": owner,
			"items": primitive.A{
				bson.M{"productId": "P1", "priceAtPurchase": "499.99", "quantity": int32(2)},
			},
		}),
		mapResolver{"User:" + owner.Hex(): uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, int64(99998), column(t, order, "total_paise"))
	require.Len(t, order.Children[0].Rows, 1)
	assert.Equal(t, int64(49999), order.Children[0].Rows[0][7])
}
