package orders

import (
	"context"
	"time"

	kafkax "github.com/ariefcatur/go-pharmacy-orders/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Notifier receives lifecycle events. Delivery (email etc.) happens downstream.
type Notifier interface {
	OrderCreated(ctx context.Context, o *Order) error
	StatusChanged(ctx context.Context, o *Order, from Status) error
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type KafkaNotifier struct {
	Created     Publisher
	Changed     Publisher
	ServiceName string
}

func (n *KafkaNotifier) OrderCreated(ctx context.Context, o *Order) error {
	return n.publish(ctx, n.Created, EventOrderCreated, o.ID, createdPayload(o))
}

func (n *KafkaNotifier) StatusChanged(ctx context.Context, o *Order, from Status) error {
	return n.publish(ctx, n.Changed, EventOrderStatusChanged, o.ID, statusChangedPayload(o, from))
}

func (n *KafkaNotifier) publish(ctx context.Context, p Publisher, eventType, orderID string, payload any) error {
	body, err := kafkax.Marshal(payload)
	if err != nil {
		return err
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      n.ServiceName,
		CorrelationID: orderID,
		Payload:       body,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		ev.TraceID = sc.TraceID().String()
	}
	value, err := kafkax.Marshal(ev)
	if err != nil {
		return err
	}
	p.Publish(PartitionKey(orderID), value,
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return nil
}

// LogNotifier is used when no broker is configured.
type LogNotifier struct{ Log *zap.Logger }

func (n LogNotifier) OrderCreated(_ context.Context, o *Order) error {
	n.Log.Info("order created", zap.String("order_id", o.ID), zap.String("number", o.Number))
	return nil
}

func (n LogNotifier) StatusChanged(_ context.Context, o *Order, from Status) error {
	n.Log.Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(o.Status)))
	return nil
}
