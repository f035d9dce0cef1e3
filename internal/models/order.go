package models

import (
	"fmt"
	"time"
)

// OrderStatus is the buyer-facing fulfillment stage of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// PaymentStatus tracks whether funds have been captured for an order,
// independent of the order's fulfillment status.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// PaymentMethod is how the buyer chose to pay.
type PaymentMethod string

const (
	MethodCOD    PaymentMethod = "cod"
	MethodEsewa  PaymentMethod = "esewa"
	MethodKhalti PaymentMethod = "khalti"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCOD, MethodEsewa, MethodKhalti:
		return true
	}
	return false
}

// Address is the shipping destination snapshotted onto an order.
type Address struct {
	FullName string `json:"full_name" validate:"required"`
	Line1    string `json:"line1" validate:"required"`
	City     string `json:"city" validate:"required"`
	District string `json:"district"`
	Phone    string `json:"phone" validate:"required"`
}

// OrderItem is a frozen snapshot of a product at order time. Title, unit
// price and seller are copied from the live product so later catalog edits
// cannot change historical orders.
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	SellerID  string  `json:"seller_id"`
}

// Order represents a buyer order. Once created it is mutated only through
// the order service's status transitions; it is never deleted (cancellation
// is a status, not a deletion).
type Order struct {
	ID              string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderNumber     string        `json:"order_number" gorm:"uniqueIndex;type:varchar(20)"`
	BuyerID         string        `json:"buyer_id" gorm:"index;type:varchar(36)"`
	Items           []OrderItem   `json:"items" gorm:"serializer:json"`
	ShippingAddress Address       `json:"shipping_address" gorm:"serializer:json"`
	PaymentMethod   PaymentMethod `json:"payment_method" gorm:"type:varchar(16)"`
	PaymentStatus   PaymentStatus `json:"payment_status" gorm:"type:varchar(16)"`
	Subtotal        float64       `json:"subtotal"`
	ShippingCost    float64       `json:"shipping_cost"`
	TotalAmount     float64       `json:"total_amount"`
	Status          OrderStatus   `json:"status" gorm:"type:varchar(16);index"`
	TrackingCode    string        `json:"tracking_code,omitempty"`
	ConfirmedAt     *time.Time    `json:"confirmed_at,omitempty"`
	ShippedAt       *time.Time    `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time    `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// HasSeller reports whether at least one line item belongs to the seller.
func (o *Order) HasSeller(sellerID string) bool {
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}

// SellerIDs returns the distinct sellers with a line item on the order.
func (o *Order) SellerIDs() []string {
	seen := make(map[string]bool, len(o.Items))
	var ids []string
	for _, item := range o.Items {
		if item.SellerID != "" && !seen[item.SellerID] {
			seen[item.SellerID] = true
			ids = append(ids, item.SellerID)
		}
	}
	return ids
}

// OrderCounter backs the per-year order numbering sequence.
type OrderCounter struct {
	Year int   `gorm:"primaryKey"`
	Seq  int64 `gorm:"not null;default:0"`
}

// FormatOrderNumber renders the human-readable order code, e.g. MN-2024-000007.
func FormatOrderNumber(year int, seq int64) string {
	return fmt.Sprintf("MN-%04d-%06d", year, seq)
}
