package service

import (
	"context"
	"fmt"

	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
)

// Transformer maps one source document to its target row. Implementations
// extract every column explicitly and own the default policy for it.
type Transformer interface {
	EntityType() entity.EntityType
	Transform(ctx context.Context, src entity.SourceRecord, refs ReferenceResolver) (*entity.TargetRecord, error)
}

// Registry holds one transformer per entity type
type Registry struct {
	transformers map[entity.EntityType]Transformer
}

// NewRegistry returns a registry with every built-in transformer
func NewRegistry() *Registry {
	r := &Registry{transformers: make(map[entity.EntityType]Transformer)}
	r.Register(UserTransformer{})
	r.Register(WalletTransformer{})
	r.Register(CampaignTransformer{})
	r.Register(DealTransformer{})
	r.Register(OrderTransformer{})
	r.Register(TransactionTransformer{})
	r.Register(PayoutTransformer{})
	r.Register(InviteTransformer{})
	return r
}

// Register adds or replaces the transformer for its entity type
func (r *Registry) Register(t Transformer) {
	r.transformers[t.EntityType()] = t
}

// Transform dispatches to the transformer registered for src.EntityType
func (r *Registry) Transform(ctx context.Context, src entity.SourceRecord, refs ReferenceResolver) (*entity.TargetRecord, error) {
	t, ok := r.transformers[src.EntityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrUnknownEntityType, src.EntityType)
	}
	return t.Transform(ctx, src, refs)
}

// Lookup returns the transformer for an entity type
func (r *Registry) Lookup(entityType entity.EntityType) (Transformer, bool) {
	t, ok := r.transformers[entityType]
	return t, ok
}
