package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	kafkax "github.com/ariefcatur/go-pharmacy-orders/internal/kafka"
	"github.com/ariefcatur/go-pharmacy-orders/internal/orders"
	"github.com/ariefcatur/go-pharmacy-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Service turns order lifecycle events into customer notifications.
type Service struct {
	Redis       redis.Cmdable
	Mailer      Mailer
	ServiceName string
	Log         *zap.Logger
}

// HandleEvent is installed as the consumer handler. Each event id is processed
// at most once; a failed send gives the id back so the redelivery can retry.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// Poison message: log and commit past it.
		s.Log.Error("decode envelope", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}

	msg, ok, err := render(env)
	if err != nil {
		s.Log.Error("decode payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	key := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	won, err := redisx.Claim(ctx, s.Redis, key, redisx.TTLDedup)
	if err != nil {
		return fmt.Errorf("claim %s: %w", env.EventID, err)
	}
	if !won {
		s.Log.Debug("duplicate event", zap.String("event_id", env.EventID))
		return nil
	}

	if err := s.Mailer.Send(ctx, msg); err != nil {
		if derr := s.Redis.Del(context.WithoutCancel(ctx), key).Err(); derr != nil {
			s.Log.Warn("release dedup key", zap.String("key", key), zap.Error(derr))
		}
		return fmt.Errorf("send %s: %w", env.EventID, err)
	}
	return nil
}

// render builds the message for an event. ok is false for events that notify nobody.
func render(env orders.Envelope) (Message, bool, error) {
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return Message{}, false, err
		}
		body := fmt.Sprintf("We received order %s (%d items, total %s).", p.Number, len(p.Items), money(p.TotalCents))
		if p.PrescriptionStatus == string(orders.PrescriptionPending) {
			body += " A pharmacist will review your prescription before we confirm it."
		}
		return Message{
			OrderNumber: p.Number,
			Email:       p.Email,
			Phone:       p.Phone,
			Subject:     "Order " + p.Number + " received",
			Body:        body,
		}, p.Email != "" || p.Phone != "", nil

	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return Message{}, false, err
		}
		body := fmt.Sprintf("Order %s is now %s.", p.Number, humanize(p.ToStatus))
		if p.Notes != "" {
			body += " " + p.Notes
		}
		return Message{
			OrderNumber: p.Number,
			Email:       p.Email,
			Phone:       p.Phone,
			Subject:     fmt.Sprintf("Order %s: %s", p.Number, humanize(p.ToStatus)),
			Body:        body,
		}, p.Email != "" || p.Phone != "", nil
	}
	return Message{}, false, nil
}

func humanize(status string) string { return strings.ReplaceAll(status, "_", " ") }

func money(cents int64) string { return fmt.Sprintf("%d.%02d", cents/100, cents%100) }
