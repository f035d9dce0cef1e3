package notifications_test

import (
	"encoding/json"
	"errors"
	"testing"

	"meronepal/internal/models"
	"meronepal/internal/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturePublisher stores published bodies; failWith makes Publish fail.
type capturePublisher struct {
	bodies   [][]byte
	failWith error
}

func (p *capturePublisher) Publish(body []byte) error {
	if p.failWith != nil {
		return p.failWith
	}
	p.bodies = append(p.bodies, body)
	return nil
}

func TestAMQPNotifier_Events(t *testing.T) {
	pub := &capturePublisher{}
	notifier := notifications.NewAMQPNotifier(pub)

	order := &models.Order{ID: "order-1", OrderNumber: "MN-2026-000001", BuyerID: "buyer-1"}

	require.NoError(t, notifier.OrderCreated(order))
	require.NoError(t, notifier.SellerNewOrder(order, "seller-1"))
	require.NoError(t, notifier.OrderShipped(order))
	require.NoError(t, notifier.OrderDelivered(order))
	require.Len(t, pub.bodies, 4)

	wantTypes := []string{
		notifications.EventOrderCreated,
		notifications.EventSellerNewOrder,
		notifications.EventOrderShipped,
		notifications.EventOrderDelivered,
	}
	for i, body := range pub.bodies {
		var event notifications.Event
		require.NoError(t, json.Unmarshal(body, &event))
		assert.Equal(t, wantTypes[i], event.Type)
		require.NotNil(t, event.Order)
		assert.Equal(t, "MN-2026-000001", event.Order.OrderNumber)
		assert.False(t, event.SentAt.IsZero())
	}

	// The seller event carries the seller it addresses.
	var sellerEvent notifications.Event
	require.NoError(t, json.Unmarshal(pub.bodies[1], &sellerEvent))
	assert.Equal(t, "seller-1", sellerEvent.SellerID)
}

func TestAMQPNotifier_PublishError(t *testing.T) {
	pub := &capturePublisher{failWith: errors.New("channel closed")}
	notifier := notifications.NewAMQPNotifier(pub)

	err := notifier.OrderCreated(&models.Order{ID: "order-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}

func TestNopNotifier(t *testing.T) {
	var n notifications.NopNotifier
	order := &models.Order{ID: "order-1"}
	assert.NoError(t, n.OrderCreated(order))
	assert.NoError(t, n.SellerNewOrder(order, "seller-1"))
	assert.NoError(t, n.OrderShipped(order))
	assert.NoError(t, n.OrderDelivered(order))
}
