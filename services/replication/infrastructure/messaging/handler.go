package messaging

import (
	"context"
	"errors"

	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/usecase"
)

// ChangeHandler consumes normalized change signals
type ChangeHandler interface {
	HandleChange(ctx context.Context, ev entity.ChangeEvent) error
}

// isClosed reports whether the handler has stopped accepting work
func isClosed(err error) bool {
	return errors.Is(err, usecase.ErrDispatcherClosed)
}
