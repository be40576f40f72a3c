// Package email delivers formatted newsletters through SendGrid.
package email

import (
	"context"
	"fmt"
	"log"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/srthkdev/newsletter-ai-sub000/config"
)

// Sender delivers one newsletter to one recipient.
type Sender interface {
	Send(ctx context.Context, to string, subject string, htmlBody string, plainBody string) error
}

// SendGridSender implements Sender using the SendGrid v3 API.
type SendGridSender struct {
	client      *sendgrid.Client
	fromName    string
	fromAddress string
	logger      *log.Logger
}

func NewSendGridSender(cfg config.EmailConfig, logger *log.Logger) *SendGridSender {
	if logger == nil {
		logger = log.New(log.Writer(), "[EMAIL] ", log.LstdFlags)
	}
	return &SendGridSender{
		client:      sendgrid.NewSendClient(cfg.APIKey),
		fromName:    cfg.FromName,
		fromAddress: cfg.FromAddress,
		logger:      logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, to, subject, htmlBody, plainBody string) error {
	if to == "" {
		return fmt.Errorf("recipient address required")
	}
	if plainBody == "" {
		plainBody = subject
	}
	if htmlBody == "" {
		htmlBody = plainBody
	}
	from := mail.NewEmail(s.fromName, s.fromAddress)
	msg := mail.NewSingleEmail(from, subject, mail.NewEmail("", to), plainBody, htmlBody)
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d", resp.StatusCode)
	}
	s.logger.Printf("email sent to %s (status: %d)", to, resp.StatusCode)
	return nil
}

// NopSender discards outgoing mail. Used when no delivery credentials are
// configured so the rest of the pipeline still runs.
type NopSender struct{}

func (NopSender) Send(ctx context.Context, to, subject, htmlBody, plainBody string) error {
	return nil
}
