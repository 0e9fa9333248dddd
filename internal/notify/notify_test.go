package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/sheetsmith/sheetsmith/internal/entitlement"
	"github.com/sheetsmith/sheetsmith/internal/model"
)

type fakeSender struct {
	sent   []*mail.SGMailV3
	status int
	err    error
}

func (f *fakeSender) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, m)
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

var _ Notifier = (*SendGridNotifier)(nil)
var _ Notifier = Noop{}

func betaProfile(verified bool) *model.Profile {
	p := model.NewProfile("u1", "ada@example.com", verified, time.Now())
	p.DisplayName = "Ada"
	p.State = entitlement.ApproveBeta(p.State, time.Now())
	return p
}

func TestBetaApproved_Sends(t *testing.T) {
	s := &fakeSender{status: 202}
	n := NewWithSender(s, "hello@sheetsmith.app", "Sheetsmith", nil)

	if err := n.BetaApproved(context.Background(), betaProfile(true)); err != nil {
		t.Fatalf("BetaApproved failed: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent %d messages", len(s.sent))
	}

	m := s.sent[0]
	if m.From.Address != "hello@sheetsmith.app" {
		t.Errorf("from = %v", m.From)
	}
	to := m.Personalizations[0].To[0]
	if to.Address != "ada@example.com" || to.Name != "Ada" {
		t.Errorf("to = %+v", to)
	}
	if !strings.Contains(m.Content[0].Value, "1000 operations") {
		t.Errorf("body = %q", m.Content[0].Value)
	}
}

func TestBetaApproved_SkipsUnverified(t *testing.T) {
	s := &fakeSender{status: 202}
	n := NewWithSender(s, "hello@sheetsmith.app", "Sheetsmith", nil)

	if err := n.BetaApproved(context.Background(), betaProfile(false)); err != nil {
		t.Fatalf("BetaApproved failed: %v", err)
	}
	if len(s.sent) != 0 {
		t.Error("unverified address should not be mailed")
	}
}

func TestSend_Errors(t *testing.T) {
	ctx := context.Background()

	rejected := NewWithSender(&fakeSender{status: 401}, "a@b.c", "x", nil)
	if err := rejected.AccountDeleted(ctx, "u@example.com", ""); err == nil {
		t.Error("expected error for 4xx response")
	}

	broken := NewWithSender(&fakeSender{err: errors.New("dial tcp: timeout")}, "a@b.c", "x", nil)
	if err := broken.AccountDeleted(ctx, "u@example.com", ""); err == nil {
		t.Error("expected transport error")
	}
}
