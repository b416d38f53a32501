package service

import (
	"context"
	"strings"

	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
)

var (
	campaignStatuses = []string{"draft", "active", "paused", "completed"}
	dealTypes        = []string{"Discount", "Review", "Rating"}
	platforms        = []string{"Amazon", "Flipkart", "Myntra", "Meesho", "Ajio", "Nykaa", "Other"}
)

// CampaignTransformer maps brand campaigns
type CampaignTransformer struct{}

func (CampaignTransformer) EntityType() entity.EntityType { return entity.EntityCampaign }

func (CampaignTransformer) Transform(ctx context.Context, src entity.SourceRecord, refs ReferenceResolver) (*entity.TargetRecord, error) {
	b := newRecordBuilder(ctx, src, refs)
	f := b.f

	if err := b.requiredRef("brand_user_id", "brandUserId", entity.EntityUser); err != nil {
		return nil, err
	}

	b.set("title", f.String("title", ""))
	b.set("brand_name", f.String("brandName", ""))
	b.set("platform", enum(f.String("platform", ""), platforms, "Other"))
	b.set("status", enum(f.String("status", ""), campaignStatuses, "draft"))
	b.set("deal_type", enum(f.String("dealType", ""), dealTypes, "Discount"))
	b.set("image", f.String("image", ""))
	b.set("product_url", f.String("productUrl", ""))
	b.set("original_price_paise", f.Paise("originalPricePaise", "originalPrice"))
	b.set("price_paise", f.Paise("pricePaise", "price"))
	b.set("payout_paise", f.Paise("payoutPaise", "payout"))

	totalSlots := f.Int64("totalSlots", 0)
	usedSlots := f.Int64("usedSlots", 0)
	if usedSlots > totalSlots && totalSlots > 0 {
		usedSlots = totalSlots
	}
	b.set("total_slots", totalSlots)
	b.set("used_slots", usedSlots)
	b.set("allowed_agency_codes", f.Strings("allowedAgencyCodes"))
	b.set("is_deleted", f.Bool("isDeleted", false))
	b.timestamps()

	return b.build(), nil
}

// DealTransformer maps mediator deals published from a campaign
type DealTransformer struct{}

func (DealTransformer) EntityType() entity.EntityType { return entity.EntityDeal }

func (DealTransformer) Transform(ctx context.Context, src entity.SourceRecord, refs ReferenceResolver) (*entity.TargetRecord, error) {
	b := newRecordBuilder(ctx, src, refs)
	f := b.f

	if err := b.requiredRef("campaign_id", "campaignId", entity.EntityCampaign); err != nil {
		return nil, err
	}
	if err := b.optionalRef("mediator_user_id", "mediatorUserId", entity.EntityUser); err != nil {
		return nil, err
	}

	b.naturalKey("deal_code", "deals_deal_code_key", strings.ToUpper(f.String("dealCode", "")))
	b.set("mediator_code", f.String("mediatorCode", ""))
	b.set("title", f.String("title", ""))
	b.set("deal_type", enum(f.String("dealType", ""), dealTypes, "Discount"))
	b.set("platform", enum(f.String("platform", ""), platforms, "Other"))
	b.set("price_paise", f.Paise("pricePaise", "price"))
	b.set("commission_paise", f.Paise("commissionPaise", "commission"))
	b.set("payout_paise", f.Paise("payoutPaise", "payout"))
	b.set("active", f.Bool("active", true))
	b.set("is_deleted", f.Bool("isDeleted", false))
	b.timestamps()

	return b.build(), nil
}
