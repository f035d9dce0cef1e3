// Package gateways contains the external payment provider adapters. The two
// providers share one contract but differ in wire encoding, so each gets its
// own implementation behind the Gateway interface and the reconciliation
// logic never branches on the provider.
package gateways

import (
	"meronepal/internal/models"
)

// Session is the result of initiating a payment with a provider: the URL the
// buyer is redirected to and the transaction reference that identifies the
// attempt from initiation through callback.
type Session struct {
	PaymentURL     string `json:"payment_url"`
	TransactionRef string `json:"transaction_ref"`
}

// Verification is the structured outcome of a provider verification call.
// Callers inspect Verified instead of inferring the outcome from errors.
type Verification struct {
	Verified       bool    `json:"verified"`
	TransactionRef string  `json:"transaction_ref"`
	Amount         float64 `json:"amount"`
	Status         string  `json:"status"`
	Reason         string  `json:"reason,omitempty"`
	RawResponse    string  `json:"-"`
}

// Gateway is the provider contract. Verify performs a network call with a
// bounded timeout; a transport error is returned as err and is treated by
// the caller the same as a provider-reported failure.
type Gateway interface {
	Name() models.PaymentMethod
	Initiate(order *models.Order) (*Session, error)
	Verify(orderID, transactionRef string, amount float64) (*Verification, error)
	// ParseCallback maps the provider's callback parameter naming onto the
	// canonical (orderID, transactionRef) pair, rejecting callbacks that
	// are missing required parameters.
	ParseCallback(params map[string]string) (orderID, transactionRef string, err error)
}
