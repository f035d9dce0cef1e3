// Package notifications is the boundary to the external email/notification
// collaborator. Dispatch is fire-and-forget: every send failure is reported
// as an error to the caller, who logs and swallows it, so a notification
// outage can never fail the order or payment mutation that triggered it.
package notifications

import (
	"encoding/json"
	"fmt"
	"time"

	"meronepal/internal/models"
)

// Event types published to the notification queue.
const (
	EventOrderCreated   = "order.created"
	EventSellerNewOrder = "order.seller_new_order"
	EventOrderShipped   = "order.shipped"
	EventOrderDelivered = "order.delivered"
)

// Event carries the order snapshot to the notification worker.
type Event struct {
	Type     string        `json:"type"`
	SellerID string        `json:"seller_id,omitempty"`
	Order    *models.Order `json:"order"`
	SentAt   time.Time     `json:"sent_at"`
}

// Notifier dispatches order lifecycle events to the notification sink.
type Notifier interface {
	OrderCreated(order *models.Order) error
	SellerNewOrder(order *models.Order, sellerID string) error
	OrderShipped(order *models.Order) error
	OrderDelivered(order *models.Order) error
}

// Publisher is the message transport the AMQP notifier writes to.
type Publisher interface {
	Publish(body []byte) error
}

// AMQPNotifier publishes events to RabbitMQ for the notification worker.
type AMQPNotifier struct {
	pub Publisher
}

// NewAMQPNotifier creates a notifier backed by the given publisher.
func NewAMQPNotifier(pub Publisher) *AMQPNotifier {
	return &AMQPNotifier{pub: pub}
}

func (n *AMQPNotifier) publish(eventType string, order *models.Order, sellerID string) error {
	body, err := json.Marshal(Event{
		Type:     eventType,
		SellerID: sellerID,
		Order:    order,
		SentAt:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	if err := n.pub.Publish(body); err != nil {
		return fmt.Errorf("failed to publish %s event for order %s: %w", eventType, order.ID, err)
	}
	return nil
}

// OrderCreated sends the buyer's order confirmation event.
func (n *AMQPNotifier) OrderCreated(order *models.Order) error {
	return n.publish(EventOrderCreated, order, "")
}

// SellerNewOrder tells a seller one of their products was ordered.
func (n *AMQPNotifier) SellerNewOrder(order *models.Order, sellerID string) error {
	return n.publish(EventSellerNewOrder, order, sellerID)
}

// OrderShipped sends the shipping notification.
func (n *AMQPNotifier) OrderShipped(order *models.Order) error {
	return n.publish(EventOrderShipped, order, "")
}

// OrderDelivered sends the delivery notification.
func (n *AMQPNotifier) OrderDelivered(order *models.Order) error {
	return n.publish(EventOrderDelivered, order, "")
}

// NopNotifier discards all events. Used when no broker is configured.
type NopNotifier struct{}

func (NopNotifier) OrderCreated(*models.Order) error           { return nil }
func (NopNotifier) SellerNewOrder(*models.Order, string) error { return nil }
func (NopNotifier) OrderShipped(*models.Order) error           { return nil }
func (NopNotifier) OrderDelivered(*models.Order) error         { return nil }
