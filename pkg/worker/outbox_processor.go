package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
	"github.com/jwalitptl/consult-api/pkg/repository"
)

// Handler delivers one decoded event. A returned error schedules a retry.
type Handler func(ctx context.Context, evt *model.DomainEvent) error

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	// RetryDelay is the first backoff; it doubles with every retry.
	RetryDelay time.Duration
	// Retention is how long processed events are kept. Zero keeps them.
	Retention       time.Duration
	CleanupInterval time.Duration
	// Lease is how long a claimed event stays hidden from other pollers
	// while it is being delivered.
	Lease time.Duration
}

type OutboxProcessor struct {
	repo    repository.OutboxRepository
	tx      repository.Transactor
	handler Handler
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	tx repository.Transactor,
	handler Handler,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	// Config validation instead of defaults
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}
	if config.Lease <= 0 {
		config.Lease = 5 * time.Minute
	}

	return &OutboxProcessor{
		repo:    repo,
		tx:      tx,
		handler: handler,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()
	cleanup := time.NewTicker(p.config.CleanupInterval)
	defer cleanup.Stop()

	p.logger.Info("Starting outbox processor",
		"batch_size", p.config.BatchSize,
		"poll_interval", p.config.PollInterval.String(),
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		case <-cleanup.C:
			if _, err := p.Cleanup(ctx); err != nil {
				p.logger.Error(err, "Failed to clean up processed events")
			}
		}
	}
}

// ProcessBatch claims up to BatchSize due events and delivers them. Only the
// claim runs in a transaction; delivery happens outside it under a lease. It
// returns how many events were claimed.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	events, err := p.claim(ctx)
	if err != nil {
		return 0, err
	}
	p.metrics.OutboxBatch(len(events))

	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			return len(events), err
		}
	}
	return len(events), nil
}

func (p *OutboxProcessor) claim(ctx context.Context) ([]*model.OutboxEvent, error) {
	var events []*model.OutboxEvent
	err := p.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		events, err = p.repo.GetPendingEventsWithLock(ctx, p.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to get pending events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(events))
		for i, event := range events {
			ids[i] = event.ID
		}
		return p.repo.Lease(ctx, ids, p.now().Add(p.config.Lease))
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// processEvent only returns storage errors; delivery failures are recorded
// on the event.
func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	start := p.now()

	evt, err := event.DomainEvent()
	if err != nil {
		p.metrics.OutboxFailed()
		p.logger.Error(err, "Dropping undecodable event", "event_id", event.ID.String())
		return p.repo.MarkFailed(ctx, event.ID, err.Error())
	}

	if err := p.handler(ctx, evt); err != nil {
		return p.handleError(ctx, event, err)
	}

	if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
		return fmt.Errorf("failed to mark event %s processed: %w", event.ID, err)
	}
	p.metrics.OutboxProcessed(p.now().Sub(start))
	return nil
}

func (p *OutboxProcessor) handleError(ctx context.Context, event *model.OutboxEvent, cause error) error {
	attempt := event.RetryCount + 1
	if attempt >= p.config.RetryAttempts {
		p.metrics.OutboxFailed()
		p.logger.Error(cause, "Event delivery failed permanently",
			"event_id", event.ID.String(),
			"event_type", event.EventType,
			"attempts", attempt,
		)
		return p.repo.MarkFailed(ctx, event.ID, cause.Error())
	}

	retryAt := p.now().Add(p.backoff(event.RetryCount))
	p.metrics.OutboxRetry(event.EventType)
	p.logger.Warn("Event delivery failed, will retry",
		"event_id", event.ID.String(),
		"event_type", event.EventType,
		"attempt", attempt,
		"retry_at", retryAt.Format(time.RFC3339),
		"error", cause.Error(),
	)
	return p.repo.MarkRetry(ctx, event.ID, cause.Error(), retryAt)
}

func (p *OutboxProcessor) backoff(retries int) time.Duration {
	d := p.config.RetryDelay
	for i := 0; i < retries && d < time.Hour; i++ {
		d *= 2
	}
	return d
}

// Cleanup deletes processed events older than the retention window.
func (p *OutboxProcessor) Cleanup(ctx context.Context) (int64, error) {
	if p.config.Retention <= 0 {
		return 0, nil
	}
	n, err := p.repo.DeleteProcessedBefore(ctx, p.now().Add(-p.config.Retention))
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}
	if n > 0 {
		p.logger.Info("Deleted processed outbox events", "count", n)
	}
	return n, nil
}
