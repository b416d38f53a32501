package service

import (
	"context"

	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
)

var (
	transactionTypes    = []string{"credit", "debit", "commission", "payout", "refund", "adjustment"}
	transactionStatuses = []string{"pending", "completed", "failed", "reversed"}
	payoutStatuses      = []string{"requested", "processing", "paid", "failed", "canceled"}
	payoutProviders     = []string{"manual", "razorpay", "cashfree"}
)

// TransactionTransformer maps wallet ledger entries. The idempotency key,
// when present, is the natural key.
type TransactionTransformer struct{}

func (TransactionTransformer) EntityType() entity.EntityType { return entity.EntityTransaction }

func (TransactionTransformer) Transform(ctx context.Context, src entity.SourceRecord, refs ReferenceResolver) (*entity.TargetRecord, error) {
	b := newRecordBuilder(ctx, src, refs)
	f := b.f

	if err := b.requiredRef("wallet_id", "walletId", entity.EntityWallet); err != nil {
		return nil, err
	}
	if err := b.optionalRef("order_id", "orderId", entity.EntityOrder); err != nil {
		return nil, err
	}
	if err := b.optionalRef("from_user_id", "fromUserId", entity.EntityUser); err != nil {
		return nil, err
	}
	if err := b.optionalRef("to_user_id", "toUserId", entity.EntityUser); err != nil {
		return nil, err
	}

	b.naturalKey("idempotency_key", "transactions_idempotency_key_key", f.String("idempotencyKey", ""))
	b.set("type", enum(f.String("type", ""), transactionTypes, "adjustment"))
	b.set("status", enum(f.String("status", ""), transactionStatuses, "pending"))

	amount := f.Paise("amountPaise", "amount")
	if amount < 0 {
		amount = -amount
	}
	b.set("amount_paise", amount)
	b.set("currency", enum(f.String("currency", ""), currencyCodes, "INR"))
	b.set("description", f.String("description", ""))
	b.set("reference", f.OptionalString("reference"))
	b.timestamps()

	return b.build(), nil
}

// PayoutTransformer maps withdrawal requests
type PayoutTransformer struct{}

func (PayoutTransformer) EntityType() entity.EntityType { return entity.EntityPayout }

func (PayoutTransformer) Transform(ctx context.Context, src entity.SourceRecord, refs ReferenceResolver) (*entity.TargetRecord, error) {
	b := newRecordBuilder(ctx, src, refs)
	f := b.f

	if err := b.requiredRef("beneficiary_user_id", "beneficiaryUserId", entity.EntityUser); err != nil {
		return nil, err
	}
	if err := b.requiredRef("wallet_id", "walletId", entity.EntityWallet); err != nil {
		return nil, err
	}

	b.naturalKey("provider_ref", "payouts_provider_ref_key", f.String("providerRef", ""))
	b.set("amount_paise", f.Paise("amountPaise", "amount"))
	b.set("status", enum(f.String("status", ""), payoutStatuses, "requested"))
	b.set("provider", enum(f.String("provider", ""), payoutProviders, "manual"))
	b.set("failure_reason", f.String("failureReason", ""))

	b.set("requested_at", f.Time("requestedAt", b.createdAt()))
	b.set("processed_at", f.OptionalTime("processedAt"))
	b.timestamps()

	return b.build(), nil
}
