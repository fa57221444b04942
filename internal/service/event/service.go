package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

// Emitter hands domain events to the notification pipeline.
type Emitter interface {
	// Emit enqueues evt. It returns repository.ErrDuplicateEvent when an
	// event with the same dedup key was already enqueued.
	Emit(ctx context.Context, evt *model.DomainEvent) error
}

// OutboxEmitter writes events to the transactional outbox. Called with a
// transaction-carrying ctx, the event commits or rolls back with it.
type OutboxEmitter struct {
	outboxRepo repository.OutboxRepository
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

func NewOutboxEmitter(outboxRepo repository.OutboxRepository, m *metrics.Metrics, log *logger.Logger) *OutboxEmitter {
	return &OutboxEmitter{
		outboxRepo: outboxRepo,
		metrics:    m,
		logger:     log,
	}
}

func (e *OutboxEmitter) Emit(ctx context.Context, evt *model.DomainEvent) error {
	outboxEvent, err := model.NewOutboxEvent(evt)
	if err != nil {
		return err
	}

	if err := e.outboxRepo.Create(ctx, outboxEvent); err != nil {
		if errors.Is(err, repository.ErrDuplicateEvent) {
			return err
		}
		return fmt.Errorf("failed to enqueue %s event: %w", evt.Kind, err)
	}

	e.metrics.EventEmitted(string(evt.Kind))
	e.logger.Debug("event enqueued",
		"event_id", evt.ID.String(),
		"kind", string(evt.Kind),
		"provider_id", evt.ProviderID.String(),
	)
	return nil
}
