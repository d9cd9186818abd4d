package notify

import (
	"context"

	"go.uber.org/zap"
)

// Message is a customer-facing notification. Email and Phone are both optional;
// a Mailer delivers on whichever channel it supports.
type Message struct {
	OrderNumber string
	Email       string
	Phone       string
	Subject     string
	Body        string
}

type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// LogMailer writes messages to the log instead of delivering them.
type LogMailer struct{ Log *zap.Logger }

func (l LogMailer) Send(_ context.Context, m Message) error {
	l.Log.Info("notification",
		zap.String("order", m.OrderNumber),
		zap.String("email", m.Email),
		zap.String("phone", m.Phone),
		zap.String("subject", m.Subject))
	return nil
}
