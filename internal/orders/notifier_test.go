package orders_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ariefcatur/go-pharmacy-orders/internal/cart"
	"github.com/ariefcatur/go-pharmacy-orders/internal/orders"
	mock_orders "github.com/ariefcatur/go-pharmacy-orders/internal/orders/mocks"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestKafkaNotifier_StatusChanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	created := mock_orders.NewMockPublisher(ctrl)
	changed := mock_orders.NewMockPublisher(ctrl)
	n := &orders.KafkaNotifier{Created: created, Changed: changed, ServiceName: "pharmacy-api"}

	o := &orders.Order{
		ID:      "o-7",
		Number:  "ORD-00000007",
		Owner:   cart.Owner{GuestToken: "g"},
		Contact: orders.Contact{Email: "a@b.c", Phone: "0812"},
		Status:  orders.StatusConfirmed,
		StatusHistory: []orders.HistoryEntry{
			{Status: orders.StatusPending, Actor: "guest:g", At: time.Now()},
			{Status: orders.StatusConfirmed, Actor: "staff-1", At: time.Now(), Notes: "stock checked"},
		},
	}

	changed.EXPECT().
		Publish([]byte("o-7"), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_, value []byte, headers ...kafka.Header) {
			require.Len(t, headers, 2)
			assert.Equal(t, "x-event-type", headers[0].Key)
			assert.Equal(t, orders.EventOrderStatusChanged, string(headers[0].Value))

			var env orders.Envelope
			require.NoError(t, json.Unmarshal(value, &env))
			assert.Equal(t, "pharmacy-api", env.Producer)
			assert.Equal(t, "o-7", env.CorrelationID)
			assert.NotEmpty(t, env.EventID)

			var p orders.OrderStatusChangedPayload
			require.NoError(t, json.Unmarshal(env.Payload, &p))
			assert.Equal(t, "pending", p.FromStatus)
			assert.Equal(t, "confirmed", p.ToStatus)
			assert.Equal(t, "staff-1", p.Actor)
			assert.Equal(t, "stock checked", p.Notes)
		})

	require.NoError(t, n.StatusChanged(context.Background(), o, orders.StatusPending))
}

func TestKafkaNotifier_OrderCreated(t *testing.T) {
	ctrl := gomock.NewController(t)
	created := mock_orders.NewMockPublisher(ctrl)
	n := &orders.KafkaNotifier{Created: created, Changed: mock_orders.NewMockPublisher(ctrl)}

	o := &orders.Order{
		ID:                 "o-8",
		Number:             "ORD-00000008",
		Owner:              cart.Owner{AccountID: "acc"},
		Items:              []orders.Item{{ProductID: "vit", Name: "Vitamin C", Granularity: "package", Quantity: 2, LineTotalCents: 200}},
		Pricing:            orders.Pricing{TotalCents: 250},
		PaymentMethod:      orders.PaymentCard,
		PrescriptionStatus: orders.PrescriptionNotRequired,
	}

	var got orders.OrderCreatedPayload
	created.EXPECT().
		Publish([]byte("o-8"), gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(_, value []byte, _ ...kafka.Header) {
			var env orders.Envelope
			require.NoError(t, json.Unmarshal(value, &env))
			assert.Equal(t, orders.EventOrderCreated, env.EventType)
			require.NoError(t, json.Unmarshal(env.Payload, &got))
		})

	require.NoError(t, n.OrderCreated(context.Background(), o))
	assert.Equal(t, "acct:acc", got.OwnerKey)
	assert.Equal(t, int64(250), got.TotalCents)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Qty)
}
