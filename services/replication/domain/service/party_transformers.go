package service

import (
	"context"
	"strings"

	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
)

var (
	userRoles     = []string{"shopper", "mediator", "agency", "brand", "admin", "ops"}
	userStatuses  = []string{"active", "suspended", "pending", "blocked"}
	kycStatuses   = []string{"none", "pending", "verified", "rejected"}
	inviteStatus  = []string{"active", "used", "revoked", "expired"}
	currencyCodes = []string{"INR"}
)

// UserTransformer maps users. The normalised mobile number is the natural key.
type UserTransformer struct{}

func (UserTransformer) EntityType() entity.EntityType { return entity.EntityUser }

func (UserTransformer) Transform(ctx context.Context, src entity.SourceRecord, refs ReferenceResolver) (*entity.TargetRecord, error) {
	b := newRecordBuilder(ctx, src, refs)
	f := b.f

	mobile := normalizePhone(f.String("mobile", f.String("phone", "")))
	if mobile == "" {
		return nil, &entity.TransformError{
			EntityType: src.EntityType,
			SourceID:   src.ID,
			Field:      "mobile",
			Reason:     "is required but missing",
		}
	}

	b.set("name", f.String("name", ""))
	b.naturalKey("mobile", "users_mobile_key", mobile)
	b.set("email", f.OptionalString("email"))
	b.set("role", enum(f.String("role", ""), userRoles, "shopper"))
	b.set("roles", userRoleList(f))
	b.set("status", enum(f.String("status", ""), userStatuses, "active"))
	b.set("mediator_code", f.OptionalString("mediatorCode"))
	b.set("parent_code", f.OptionalString("parentCode"))
	b.set("brand_code", f.OptionalString("brandCode"))
	b.set("kyc_status", enum(f.String("kycStatus", ""), kycStatuses, "none"))
	b.set("upi_id", f.OptionalString("upiId"))

	bank := f.Sub("bankDetails")
	b.set("bank_account_number", bank.OptionalString("accountNumber"))
	b.set("bank_ifsc", strings.ToUpper(bank.String("ifsc", "")))
	b.set("bank_name", bank.String("bankName", ""))
	b.set("bank_holder_name", bank.String("holderName", ""))

	b.set("is_verified_by_mediator", f.Bool("isVerifiedByMediator", false))
	b.set("is_deleted", f.Bool("isDeleted", false))
	b.timestamps()

	return b.build(), nil
}

// userRoleList keeps the valid entries of roles[], falling back to the primary role
func userRoleList(f fields) []string {
	var roles []string
	seen := make(map[string]bool)
	for _, r := range f.Strings("roles") {
		canonical := enum(r, userRoles, "")
		if canonical != "" && !seen[canonical] {
			seen[canonical] = true
			roles = append(roles, canonical)
		}
	}
	if len(roles) == 0 {
		roles = []string{enum(f.String("role", ""), userRoles, "shopper")}
	}
	return roles
}

// WalletTransformer maps wallets. Each user owns at most one wallet, so the
// owner column doubles as the natural key.
type WalletTransformer struct{}

func (WalletTransformer) EntityType() entity.EntityType { return entity.EntityWallet }

func (WalletTransformer) Transform(ctx context.Context, src entity.SourceRecord, refs ReferenceResolver) (*entity.TargetRecord, error) {
	b := newRecordBuilder(ctx, src, refs)
	f := b.f

	if err := b.requiredRef("owner_user_id", "ownerUserId", entity.EntityUser); err != nil {
		return nil, err
	}
	if owner, ok := b.rec.Value("owner_user_id"); ok {
		b.rec.NaturalKey = &entity.NaturalKey{
			Column:     "owner_user_id",
			Value:      owner,
			Constraint: "wallets_owner_user_id_key",
		}
	}

	b.set("currency", enum(f.String("currency", ""), currencyCodes, "INR"))
	b.set("available_paise", f.Paise("availablePaise", "availableBalance"))
	b.set("pending_paise", f.Paise("pendingPaise", "pendingBalance"))
	b.set("locked_paise", f.Paise("lockedPaise", "lockedBalance"))
	b.set("version", f.Int64("version", 0))
	b.set("is_deleted", f.Bool("isDeleted", false))
	b.timestamps()

	return b.build(), nil
}

// InviteTransformer maps invite codes; the code is the natural key.
type InviteTransformer struct{}

func (InviteTransformer) EntityType() entity.EntityType { return entity.EntityInvite }

func (InviteTransformer) Transform(ctx context.Context, src entity.SourceRecord, refs ReferenceResolver) (*entity.TargetRecord, error) {
	b := newRecordBuilder(ctx, src, refs)
	f := b.f

	code, err := b.requireString("code")
	if err != nil {
		return nil, err
	}
	b.naturalKey("code", "invites_code_key", strings.ToUpper(code))
	b.set("role", enum(f.String("role", ""), userRoles, "shopper"))
	b.set("status", enum(f.String("status", ""), inviteStatus, "active"))
	b.set("label", f.String("label", ""))
	b.set("parent_code", f.OptionalString("parentCode"))

	if err := b.optionalRef("created_by", "createdBy", entity.EntityUser); err != nil {
		return nil, err
	}
	if err := b.optionalRef("used_by", "usedBy", entity.EntityUser); err != nil {
		return nil, err
	}

	maxUses := f.Int64("maxUses", 1)
	if maxUses < 1 {
		maxUses = 1
	}
	b.set("max_uses", maxUses)
	b.set("use_count", f.Int64("useCount", 0))
	b.set("expires_at", f.OptionalTime("expiresAt"))
	b.set("used_at", f.OptionalTime("usedAt"))
	b.timestamps()

	return b.build(), nil
}
