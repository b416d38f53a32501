package entity

import (
	"fmt"
	"strings"
)

// EntityType names a replicated entity
type EntityType string

const (
	EntityUser        EntityType = "User"
	EntityWallet      EntityType = "Wallet"
	EntityCampaign    EntityType = "Campaign"
	EntityDeal        EntityType = "Deal"
	EntityOrder       EntityType = "Order"
	EntityTransaction EntityType = "Transaction"
	EntityPayout      EntityType = "Payout"
	EntityInvite      EntityType = "Invite"
)

// DependencyOrder lists entity types parents first. Batch migration walks
// it strictly in this order.
var DependencyOrder = []EntityType{
	EntityUser,
	EntityWallet,
	EntityCampaign,
	EntityDeal,
	EntityOrder,
	EntityTransaction,
	EntityPayout,
	EntityInvite,
}

var storage = map[EntityType]struct {
	collection string
	table      string
}{
	EntityUser:        {"users", "users"},
	EntityWallet:      {"wallets", "wallets"},
	EntityCampaign:    {"campaigns", "campaigns"},
	EntityDeal:        {"deals", "deals"},
	EntityOrder:       {"orders", "orders"},
	EntityTransaction: {"transactions", "transactions"},
	EntityPayout:      {"payouts", "payouts"},
	EntityInvite:      {"invites", "invites"},
}

// ParseEntityType resolves a name case-insensitively, accepting either the
// type name or its source collection name.
func ParseEntityType(name string) (EntityType, error) {
	trimmed := strings.TrimSpace(name)
	for t, s := range storage {
		if strings.EqualFold(string(t), trimmed) || strings.EqualFold(s.collection, trimmed) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntityType, name)
}

// EntityTypeForCollection maps a source collection name to its entity type
func EntityTypeForCollection(collection string) (EntityType, bool) {
	for t, s := range storage {
		if s.collection == collection {
			return t, true
		}
	}
	return "", false
}

// Valid reports whether t is a known entity type
func (t EntityType) Valid() bool {
	_, ok := storage[t]
	return ok
}

// Collection returns the source collection name
func (t EntityType) Collection() string {
	return storage[t].collection
}

// Table returns the target table name
func (t EntityType) Table() string {
	return storage[t].table
}

func (t EntityType) String() string {
	return string(t)
}

// OrderTypes filters DependencyOrder down to the requested types, keeping
// dependency order. An empty request selects every type.
func OrderTypes(requested []EntityType) []EntityType {
	if len(requested) == 0 {
		out := make([]EntityType, len(DependencyOrder))
		copy(out, DependencyOrder)
		return out
	}

	wanted := make(map[EntityType]bool, len(requested))
	for _, t := range requested {
		wanted[t] = true
	}

	var out []EntityType
	for _, t := range DependencyOrder {
		if wanted[t] {
			out = append(out, t)
		}
	}
	return out
}
