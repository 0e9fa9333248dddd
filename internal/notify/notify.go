// Package notify sends transactional email about account changes.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/sheetsmith/sheetsmith/internal/model"
)

// Notifier delivers account notices. Callers log failures and carry on.
type Notifier interface {
	BetaApproved(ctx context.Context, p *model.Profile) error
	BetaRevoked(ctx context.Context, p *model.Profile) error
	AccountDeleted(ctx context.Context, email, displayName string) error
}

// Sender is the slice of the SendGrid client the notifier uses.
type Sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridNotifier sends notices through SendGrid.
type SendGridNotifier struct {
	sender   Sender
	fromName string
	fromAddr string
	logger   *slog.Logger
}

// NewSendGrid returns a notifier backed by the SendGrid API.
func NewSendGrid(apiKey, fromAddr, fromName string, logger *slog.Logger) *SendGridNotifier {
	return NewWithSender(sendgrid.NewSendClient(apiKey), fromAddr, fromName, logger)
}

// NewWithSender wires an arbitrary Sender.
func NewWithSender(sender Sender, fromAddr, fromName string, logger *slog.Logger) *SendGridNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SendGridNotifier{
		sender:   sender,
		fromName: fromName,
		fromAddr: fromAddr,
		logger:   logger.With("component", "notify"),
	}
}

// BetaApproved tells the user their beta access is live.
func (n *SendGridNotifier) BetaApproved(ctx context.Context, p *model.Profile) error {
	if !p.EmailVerified {
		n.logger.Debug("skipping beta notice for unverified address", "profile_id", p.ID)
		return nil
	}
	return n.send(ctx, p.Email, p.DisplayName, "Your Sheetsmith beta access is ready",
		fmt.Sprintf("Hi %s,\n\nYour beta access has been approved. Your monthly allowance is now %s operations.\n\nOpen the add-on in Google Sheets to start using the new features.\n",
			greeting(p.DisplayName), p.OperationsLimit))
}

// BetaRevoked tells the user they are back on the free tier.
func (n *SendGridNotifier) BetaRevoked(ctx context.Context, p *model.Profile) error {
	if !p.EmailVerified {
		return nil
	}
	return n.send(ctx, p.Email, p.DisplayName, "Your Sheetsmith beta access has ended",
		fmt.Sprintf("Hi %s,\n\nYour beta access has ended and your account is back on the free plan with %s operations per month.\n",
			greeting(p.DisplayName), p.OperationsLimit))
}

// AccountDeleted confirms an account deletion.
func (n *SendGridNotifier) AccountDeleted(ctx context.Context, email, displayName string) error {
	return n.send(ctx, email, displayName, "Your Sheetsmith account has been deleted",
		fmt.Sprintf("Hi %s,\n\nYour Sheetsmith account and its usage history have been deleted. If this wasn't you, reply to this email.\n",
			greeting(displayName)))
}

func (n *SendGridNotifier) send(ctx context.Context, toAddr, toName, subject, body string) error {
	msg := mail.NewSingleEmail(
		mail.NewEmail(n.fromName, n.fromAddr),
		subject,
		mail.NewEmail(toName, toAddr),
		body,
		"",
	)

	resp, err := n.sender.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("send %q: %w", subject, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("send %q: sendgrid status %d", subject, resp.StatusCode)
	}

	n.logger.Info("notice sent", "subject", subject, "status", resp.StatusCode)
	return nil
}

func greeting(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

// Noop discards notices. It is used when no SendGrid key is configured.
type Noop struct{}

func (Noop) BetaApproved(context.Context, *model.Profile) error   { return nil }
func (Noop) BetaRevoked(context.Context, *model.Profile) error    { return nil }
func (Noop) AccountDeleted(context.Context, string, string) error { return nil }
