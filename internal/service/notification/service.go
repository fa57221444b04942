package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/email"
	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/repository"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/messaging"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

var subjects = map[model.EventKind]string{
	model.EventKindBooked:            "New Consultation Scheduled",
	model.EventKindRescheduled:       "Consultation Rescheduled",
	model.EventKindMissed:            "Consultation Marked as Missed",
	model.EventKindCompleted:         "Consultation Completed",
	model.EventKindCanceled:          "Consultation Canceled",
	model.EventKindReminder:          "Upcoming Consultation Reminder",
	model.EventKindDocumentSubmitted: "New Patient Document Submitted",
	model.EventKindLicenseExpired:    "Urgent: Your Medical License Has Expired",
	model.EventKindDailySummary:      "Your Consultation Summary",
}

var bodyTemplate = template.Must(template.New("body").Option("missingkey=zero").Parse(
	`Hello Dr. {{.ProviderName}},

{{.Message}}
{{- with .Context.date}}

Date: {{.}}{{end}}
{{- with .Context.time}}
Time: {{.}}{{end}}
{{- with .Context.priority}}
Priority: {{.}}{{end}}

Best regards,
Your Consultation Team
`))

type bodyData struct {
	ProviderName string
	Message      string
	Context      map[string]string
}

// Dispatcher turns domain events into an in-app notification and an email to
// the provider.
type Dispatcher struct {
	providers     repository.ProviderRepository
	notifications repository.NotificationRepository
	sender        email.Sender
	broker        messaging.Broker
	channel       string
	metrics       *metrics.Metrics
	logger        *logger.Logger
}

type Option func(*Dispatcher)

// WithBroker also publishes every stored notification on channel.
func WithBroker(b messaging.Broker, channel string) Option {
	return func(d *Dispatcher) {
		d.broker = b
		d.channel = channel
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(store *repository.Store, sender email.Sender, log *logger.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		providers:     store.Providers,
		notifications: store.Notifications,
		sender:        sender,
		logger:        log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle delivers evt. Every attempt leaves a notification row recording
// the email outcome; a failed send is returned as DependencyFailure so the
// caller can retry.
func (d *Dispatcher) Handle(ctx context.Context, evt *model.DomainEvent) error {
	provider, err := d.providers.Get(ctx, evt.ProviderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("provider", err)
		}
		return err
	}

	msg, err := render(provider, evt)
	if err != nil {
		return err
	}

	n := &model.Notification{
		ID:          uuid.New(),
		EventID:     evt.ID,
		ProviderID:  provider.ID,
		Type:        evt.Kind,
		Message:     evt.Message,
		EmailStatus: model.NotificationStatusSent,
		CreatedAt:   time.Now().UTC(),
	}

	sendErr := d.sender.Send(ctx, msg)
	if sendErr != nil {
		reason := sendErr.Error()
		n.EmailStatus = model.NotificationStatusFailed
		n.LastError = &reason
	}
	d.metrics.Notification(string(n.EmailStatus))

	if err := d.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to store notification for event %s: %w", evt.ID, err)
	}
	d.publish(ctx, n)

	if sendErr != nil {
		d.logger.Warn("notification email failed",
			"event_id", evt.ID.String(),
			"kind", string(evt.Kind),
			"provider_id", provider.ID.String(),
			"error", sendErr.Error(),
		)
		return apperrors.DependencyFailure("email delivery", sendErr)
	}
	return nil
}

// List returns the provider's most recent notifications, newest first.
func (d *Dispatcher) List(ctx context.Context, providerID uuid.UUID, limit int) ([]*model.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return d.notifications.ListByProvider(ctx, providerID, limit)
}

func (d *Dispatcher) publish(ctx context.Context, n *model.Notification) {
	if d.broker == nil {
		return
	}
	err := d.broker.Publish(ctx, d.channel, messaging.Message{Type: string(n.Type), Payload: n})
	if err != nil {
		d.logger.Warn("failed to publish notification", "notification_id", n.ID.String(), "error", err.Error())
	}
}

func render(provider *model.Provider, evt *model.DomainEvent) (email.Message, error) {
	subject, ok := subjects[evt.Kind]
	if !ok {
		subject = "Consultation Update"
	}

	var body bytes.Buffer
	err := bodyTemplate.Execute(&body, bodyData{
		ProviderName: provider.Name,
		Message:      evt.Message,
		Context:      evt.Context,
	})
	if err != nil {
		return email.Message{}, fmt.Errorf("failed to render %s email: %w", evt.Kind, err)
	}

	return email.Message{
		To:      provider.Email,
		ToName:  provider.Name,
		Subject: subject,
		Body:    body.String(),
	}, nil
}
