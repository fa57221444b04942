package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
)

// OutboxRepository is the slice of outbox storage pkg/worker needs.
type OutboxRepository interface {
	GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	Lease(ctx context.Context, ids []uuid.UUID, until time.Time) error
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, errorMessage string, retryAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Transactor runs fn in one transaction; repositories called with the ctx
// passed to fn join it.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
