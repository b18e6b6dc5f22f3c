package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// EmailServiceConfig holds email service configuration
type EmailServiceConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// EmailService sends transactional email through SendGrid
type EmailService struct {
	logger *zap.Logger
	config EmailServiceConfig
	client *sendgrid.Client
}

// NewEmailService creates a new email service
func NewEmailService(logger *zap.Logger, config EmailServiceConfig) (*EmailService, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if strings.TrimSpace(config.FromEmail) == "" {
		return nil, fmt.Errorf("email from address is required")
	}

	return &EmailService{
		logger: logger,
		config: config,
		client: sendgrid.NewSendClient(config.APIKey),
	}, nil
}

// Send delivers a plain text email to a single recipient
func (e *EmailService) Send(ctx context.Context, to, subject, body string) error {
	from := mail.NewEmail(e.config.FromName, e.config.FromEmail)
	recipient := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, recipient, body, "")

	response, err := e.client.SendWithContext(ctx, message)
	if err != nil {
		e.logger.Error("Failed to send email",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		e.logger.Error("Email service returned error",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Int("status_code", response.StatusCode))
		return fmt.Errorf("email service returned status %d", response.StatusCode)
	}

	return nil
}
