package models

import "time"

// PaymentAttempt is one gateway-facing try to collect payment for an order.
// An order may accumulate several attempts (e.g. a retried payment); the
// most recent one governs reconciliation. Attempts are created by the
// payment service at initiation and mutated only on verification.
type PaymentAttempt struct {
	ID              string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID         string        `json:"order_id" gorm:"index;type:varchar(36)"`
	Gateway         PaymentMethod `json:"gateway" gorm:"type:varchar(16)"`
	TransactionRef  string        `json:"transaction_ref" gorm:"index;type:varchar(64)"`
	Amount          float64       `json:"amount"`
	Status          PaymentStatus `json:"status" gorm:"type:varchar(16)"`
	GatewayResponse string        `json:"gateway_response,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Terminal reports whether the attempt has reached a final outcome.
// Re-verifying a terminal attempt replays the stored outcome instead of
// contacting the gateway again.
func (a *PaymentAttempt) Terminal() bool {
	return a.Status == PaymentCompleted || a.Status == PaymentFailed || a.Status == PaymentRefunded
}
