package repositories

import (
	"fmt"
	"sync"
	"time"

	"meronepal/internal/apperrors"
	"meronepal/internal/models"

	"github.com/google/uuid"
)

// MockPaymentRepository is an in-memory implementation of PaymentRepository.
type MockPaymentRepository struct {
	attempts map[string]models.PaymentAttempt
	mu       sync.RWMutex
}

// NewMockPaymentRepository creates a new instance of MockPaymentRepository.
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		attempts: make(map[string]models.PaymentAttempt),
	}
}

// Create adds a new payment attempt.
func (r *MockPaymentRepository) Create(attempt *models.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	attempt.CreatedAt = time.Now()
	attempt.UpdatedAt = time.Now()
	r.attempts[attempt.ID] = *attempt
	return nil
}

// Update replaces a stored payment attempt.
func (r *MockPaymentRepository) Update(attempt *models.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.attempts[attempt.ID]; !ok {
		return fmt.Errorf("payment attempt %s: %w", attempt.ID, apperrors.ErrPaymentNotFound)
	}
	attempt.UpdatedAt = time.Now()
	r.attempts[attempt.ID] = *attempt
	return nil
}

// FindByTransaction looks up an attempt by order, gateway and transaction
// reference.
func (r *MockPaymentRepository) FindByTransaction(orderID string, gateway models.PaymentMethod, transactionRef string) (*models.PaymentAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, attempt := range r.attempts {
		if attempt.OrderID == orderID && attempt.Gateway == gateway && attempt.TransactionRef == transactionRef {
			a := attempt
			return &a, nil
		}
	}
	return nil, fmt.Errorf("transaction %s for order %s: %w", transactionRef, orderID, apperrors.ErrPaymentNotFound)
}

// LatestByOrder returns the newest attempt for an order.
func (r *MockPaymentRepository) LatestByOrder(orderID string) (*models.PaymentAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.PaymentAttempt
	for _, attempt := range r.attempts {
		if attempt.OrderID != orderID {
			continue
		}
		a := attempt
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			latest = &a
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, apperrors.ErrPaymentNotFound)
	}
	return latest, nil
}
