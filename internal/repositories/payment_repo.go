package repositories

import (
	"meronepal/internal/models"
)

// PaymentRepository defines the interface for payment attempt data access.
type PaymentRepository interface {
	Create(attempt *models.PaymentAttempt) error
	Update(attempt *models.PaymentAttempt) error
	// FindByTransaction looks up an attempt by the canonical
	// (orderID, gateway, transactionRef) triple delivered by a callback.
	FindByTransaction(orderID string, gateway models.PaymentMethod, transactionRef string) (*models.PaymentAttempt, error)
	// LatestByOrder returns the most recent attempt for an order, which is
	// the one governing reconciliation.
	LatestByOrder(orderID string) (*models.PaymentAttempt, error)
}
