package service

import (
	"context"

	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
)

var (
	orderWorkflowStatuses = []string{
		"CREATED", "ORDERED", "PROOF_SUBMITTED", "UNDER_REVIEW",
		"APPROVED", "REJECTED", "REWARD_PENDING", "COMPLETED", "FAILED",
	}
	orderPaymentStatuses   = []string{"Pending", "Paid", "Refunded", "Failed"}
	orderAffiliateStatuses = []string{
		"Unchecked", "Pending_Cooling", "Approved_Settled", "Rejected",
		"Fraud_Alert", "Cap_Exceeded", "Frozen_Disputed",
	}
)

// orderItemColumns is the column order of order_items rows
var orderItemColumns = []string{
	"position",
	"product_id",
	"title",
	"image",
	"platform",
	"deal_type",
	"campaign_source_id",
	"price_at_purchase_paise",
	"commission_paise",
	"quantity",
}

// OrderTransformer maps buyer orders. Line items are a child set replaced
// in full on every write; proof screenshots and the rejection sub-document
// are flattened into prefixed columns.
type OrderTransformer struct{}

func (OrderTransformer) EntityType() entity.EntityType { return entity.EntityOrder }

func (OrderTransformer) Transform(ctx context.Context, src entity.SourceRecord, refs ReferenceResolver) (*entity.TargetRecord, error) {
	b := newRecordBuilder(ctx, src, refs)
	f := b.f

	if err := b.requiredRef("user_id", "userId", entity.EntityUser); err != nil {
		return nil, err
	}
	if err := b.optionalRef("brand_user_id", "brandUserId", entity.EntityUser); err != nil {
		return nil, err
	}
	if err := b.optionalRef("manager_user_id", "managerUserId", entity.EntityUser); err != nil {
		return nil, err
	}

	b.naturalKey("external_order_id", "orders_external_order_id_key", f.String("externalOrderId", ""))
	b.set("manager_name", f.String("managerName", ""))
	b.set("agency_name", f.String("agencyName", ""))
	b.set("buyer_name", f.String("buyerName", ""))
	b.set("buyer_mobile", normalizePhone(f.String("buyerMobile", "")))
	b.set("workflow_status", enum(f.String("workflowStatus", ""), orderWorkflowStatuses, "CREATED"))
	b.set("payment_status", enum(f.String("paymentStatus", ""), orderPaymentStatuses, "Pending"))
	b.set("affiliate_status", enum(f.String("affiliateStatus", ""), orderAffiliateStatuses, "Unchecked"))
	b.set("review_link", f.String("reviewLink", ""))
	b.set("total_paise", orderTotal(f))

	shots := f.Sub("screenshots")
	b.set("screenshot_order", shots.OptionalString("order"))
	b.set("screenshot_payment", shots.OptionalString("payment"))
	b.set("screenshot_review", shots.OptionalString("review"))
	b.set("screenshot_rating", shots.OptionalString("rating"))

	rejection := f.Sub("rejection")
	b.set("rejection_type", rejection.OptionalString("type"))
	b.set("rejection_reason", rejection.OptionalString("reason"))
	b.set("rejected_at", rejection.OptionalTime("rejectedAt"))

	b.set("settled_at", f.OptionalTime("settledAt"))
	b.set("expected_settlement_date", f.OptionalTime("expectedSettlementDate"))
	b.set("is_deleted", f.Bool("isDeleted", false))
	b.timestamps()

	b.rec.Children = append(b.rec.Children, entity.ChildSet{
		Table:        "order_items",
		ParentColumn: "order_id",
		Columns:      orderItemColumns,
		Rows:         orderItemRows(f),
	})

	return b.build(), nil
}

func orderItemRows(f fields) [][]interface{} {
	rows := [][]interface{}{}
	for i, item := range f.Docs("items") {
		quantity := item.Int64("quantity", 1)
		if quantity < 1 {
			quantity = 1
		}
		rows = append(rows, []interface{}{
			i,
			item.String("productId", ""),
			item.String("title", ""),
			item.String("image", ""),
			enum(item.String("platform", ""), platforms, "Other"),
			enum(item.String("dealType", ""), dealTypes, "Discount"),
			item.OptionalString("campaignId"),
			item.Paise("priceAtPurchasePaise", "priceAtPurchase"),
			item.Paise("commissionPaise", "commission"),
			quantity,
		})
	}
	return rows
}

// orderTotal prefers the stored total and otherwise sums the line items
func orderTotal(f fields) int64 {
	if f.HasMoney("totalPaise", "total") {
		return f.Paise("totalPaise", "total")
	}
	var total int64
	for _, item := range f.Docs("items") {
		quantity := item.Int64("quantity", 1)
		if quantity < 1 {
			quantity = 1
		}
		total += item.Paise("priceAtPurchasePaise", "priceAtPurchase") * quantity
	}
	return total
}
