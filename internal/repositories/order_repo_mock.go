package repositories

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"meronepal/internal/apperrors"
	"meronepal/internal/models"

	"github.com/google/uuid"
)

// MockOrderRepository is an in-memory implementation of OrderRepository.
type MockOrderRepository struct {
	orders map[string]models.Order
	mu     sync.RWMutex
}

// NewMockOrderRepository creates a new instance of MockOrderRepository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]models.Order),
	}
}

// GetByID returns an order by its ID.
func (r *MockOrderRepository) GetByID(id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, apperrors.ErrOrderNotFound)
	}
	return &order, nil
}

// GetByBuyer returns the buyer's orders, newest first.
func (r *MockOrderRepository) GetByBuyer(buyerID string) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orders []models.Order
	for _, order := range r.orders {
		if order.BuyerID == buyerID {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// Create adds a new order.
func (r *MockOrderRepository) Create(order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()
	r.orders[order.ID] = *order
	return nil
}

// Update replaces a stored order.
func (r *MockOrderRepository) Update(order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; !ok {
		return fmt.Errorf("order %s: %w", order.ID, apperrors.ErrOrderNotFound)
	}
	order.UpdatedAt = time.Now()
	r.orders[order.ID] = *order
	return nil
}

// UpdateFromStatus replaces a stored order only if its status still equals from.
func (r *MockOrderRepository) UpdateFromStatus(order *models.Order, from models.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	if !ok {
		return fmt.Errorf("order %s: %w", order.ID, apperrors.ErrOrderNotFound)
	}
	if stored.Status != from {
		return fmt.Errorf("order %s is no longer %s: %w", order.ID, from, apperrors.ErrInvalidTransition)
	}
	order.UpdatedAt = time.Now()
	r.orders[order.ID] = *order
	return nil
}

// MockCounterRepository is an in-memory implementation of CounterRepository.
type MockCounterRepository struct {
	seqs map[int]int64
	mu   sync.Mutex
}

// NewMockCounterRepository creates a new instance of MockCounterRepository.
func NewMockCounterRepository() *MockCounterRepository {
	return &MockCounterRepository{
		seqs: make(map[int]int64),
	}
}

// Next increments and returns the sequence for the year under the lock.
func (r *MockCounterRepository) Next(year int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seqs[year]++
	return r.seqs[year], nil
}
