package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	query := `
		INSERT INTO notifications (
			id, event_id, provider_id, type, message, email_status, last_error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	_, err := r.conn(ctx).ExecContext(ctx, query,
		n.ID,
		n.EventID,
		n.ProviderID,
		n.Type,
		n.Message,
		n.EmailStatus,
		n.LastError,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) ListByProvider(ctx context.Context, providerID uuid.UUID, limit int) ([]*model.Notification, error) {
	query := `
		SELECT id, event_id, provider_id, type, message, email_status, last_error, created_at
		FROM notifications
		WHERE provider_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	var notifications []*model.Notification
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &notifications, query, providerID, limit); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}
