package repositories

import (
	"meronepal/internal/models"
)

// ProductRepository defines the interface for product data access.
// ReserveStock and RestoreStock are the inventory ledger operations: both
// must be atomic conditional updates at the storage layer so that two
// concurrent checkouts for the same product can never lose an update or
// drive stock negative.
type ProductRepository interface {
	GetAll() ([]models.Product, error)
	GetByID(id string) (*models.Product, error)
	Create(product *models.Product) error
	Update(product *models.Product) error
	Delete(id string) error
	// ReserveStock atomically decrements stock by qty and increments the
	// purchase counter, but only if stock >= qty. Returns
	// apperrors.ErrInsufficientStock when the guard fails.
	ReserveStock(productID string, qty int) error
	// RestoreStock reverses a prior reservation exactly, including the
	// purchase counter.
	RestoreStock(productID string, qty int) error
}
