package repositories

import (
	"meronepal/internal/models"
)

// OrderRepository defines the interface for order data access. Orders are
// never deleted; cancellation is a status change saved through Update.
type OrderRepository interface {
	GetByID(id string) (*models.Order, error)
	GetByBuyer(buyerID string) ([]models.Order, error)
	Create(order *models.Order) error
	Update(order *models.Order) error
	// UpdateFromStatus persists the order only if its stored status still
	// equals from, so two racing transitions cannot both win. Returns
	// apperrors.ErrInvalidTransition when the guard fails.
	UpdateFromStatus(order *models.Order, from models.OrderStatus) error
}

// CounterRepository hands out the per-year order numbering sequence.
// Next must be an atomic increment-and-read at the storage layer: an
// in-process counter would break as soon as a second service instance runs.
type CounterRepository interface {
	Next(year int) (int64, error)
}
