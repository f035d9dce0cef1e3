package repositories

import (
	"fmt"
	"sync"

	"meronepal/internal/apperrors"
	"meronepal/internal/models"

	"github.com/google/uuid"
)

// MockProductRepository is an in-memory implementation of ProductRepository,
// used when the service runs without a database.
type MockProductRepository struct {
	products map[string]models.Product
	mu       sync.RWMutex
}

// NewMockProductRepository creates a new instance of MockProductRepository.
func NewMockProductRepository() *MockProductRepository {
	return &MockProductRepository{
		products: make(map[string]models.Product),
	}
}

// GetAll returns all products.
func (r *MockProductRepository) GetAll() ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	productList := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		productList = append(productList, p)
	}
	return productList, nil
}

// GetByID returns a product by its ID.
func (r *MockProductRepository) GetByID(id string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, apperrors.ErrProductNotFound)
	}
	return &product, nil
}

// Create adds a new product.
func (r *MockProductRepository) Create(product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if product.VerificationStatus == "" {
		product.VerificationStatus = models.VerificationPending
	}
	r.products[product.ID] = *product
	return nil
}

// Update modifies an existing product.
func (r *MockProductRepository) Update(product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.products[product.ID]
	if !ok {
		return fmt.Errorf("product %s: %w", product.ID, apperrors.ErrProductNotFound)
	}
	r.products[product.ID] = *product
	return nil
}

// Delete removes a product by its ID.
func (r *MockProductRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.products[id]
	if !ok {
		return fmt.Errorf("product %s: %w", id, apperrors.ErrProductNotFound)
	}
	delete(r.products, id)
	return nil
}

// ReserveStock decrements stock under the repository lock, mirroring the
// guarded UPDATE of the GORM implementation.
func (r *MockProductRepository) ReserveStock(productID string, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, apperrors.ErrProductNotFound)
	}
	if product.Stock < qty {
		return fmt.Errorf("product %s: %w", productID, apperrors.ErrInsufficientStock)
	}
	product.Stock -= qty
	product.PurchaseCount += qty
	r.products[productID] = product
	return nil
}

// RestoreStock reverses a reservation.
func (r *MockProductRepository) RestoreStock(productID string, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, apperrors.ErrProductNotFound)
	}
	product.Stock += qty
	product.PurchaseCount -= qty
	r.products[productID] = product
	return nil
}
