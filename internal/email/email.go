package email

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/jwalitptl/consult-api/internal/config"
	"github.com/jwalitptl/consult-api/pkg/logger"
)

// Sender delivers one message. Implementations are swappable by config.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

// NewSender builds the sender named by cfg.Driver.
func NewSender(ctx context.Context, cfg config.EmailConfig, log *logger.Logger) (Sender, error) {
	switch cfg.Driver {
	case config.EmailDriverSMTP:
		return NewSMTPSender(cfg.SMTP, cfg.From, cfg.FromName, log), nil
	case config.EmailDriverSendGrid:
		return NewSendGridSender(cfg.SendGrid.APIKey, cfg.From, cfg.FromName, log), nil
	case config.EmailDriverSES:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SES.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		return NewSESSender(sesv2.NewFromConfig(awsCfg), cfg.From, cfg.FromName, log), nil
	case config.EmailDriverStub, "":
		return NewStubSender(log), nil
	default:
		return nil, fmt.Errorf("unknown email driver %q", cfg.Driver)
	}
}

// StubSender logs messages instead of sending them.
type StubSender struct {
	logger *logger.Logger
}

func NewStubSender(log *logger.Logger) *StubSender {
	return &StubSender{logger: log}
}

func (s *StubSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("stub email sender: would send email", "to", msg.To, "subject", msg.Subject)
	return nil
}

func formatFrom(name, address string) string {
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}
