package repositories

import (
	"fmt"

	"meronepal/internal/apperrors"
	"meronepal/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{
		db: db,
	}
}

// GetByID retrieves a single order by its ID from the database.
func (r *GORMOrderRepository) GetByID(id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.First(&order, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("order %s: %w", id, apperrors.ErrOrderNotFound)
		}
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, err)
	}
	return &order, nil
}

// GetByBuyer retrieves all orders placed by a buyer, newest first.
func (r *GORMOrderRepository) GetByBuyer(buyerID string) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.Where("buyer_id = ?", buyerID).Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to get orders for buyer %s: %w", buyerID, err)
	}
	return orders, nil
}

// Create creates a new order in the database.
func (r *GORMOrderRepository) Create(order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if err := r.db.Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// Update persists an order mutated by a status transition.
func (r *GORMOrderRepository) Update(order *models.Order) error {
	res := r.db.Save(order)
	if res.Error != nil {
		return fmt.Errorf("failed to update order %s: %w", order.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order %s: %w", order.ID, apperrors.ErrOrderNotFound)
	}
	return nil
}

// UpdateFromStatus persists a status transition guarded on the status the
// caller read, as a single conditional UPDATE. A concurrent transition that
// got there first leaves zero rows matching and the write is refused.
func (r *GORMOrderRepository) UpdateFromStatus(order *models.Order, from models.OrderStatus) error {
	res := r.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, from).
		Updates(map[string]interface{}{
			"status":         order.Status,
			"payment_status": order.PaymentStatus,
			"confirmed_at":   order.ConfirmedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update order %s: %w", order.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order %s is no longer %s: %w", order.ID, from, apperrors.ErrInvalidTransition)
	}
	return nil
}

// GORMCounterRepository is a GORM implementation of CounterRepository.
type GORMCounterRepository struct {
	db *gorm.DB
}

// NewGORMCounterRepository creates a new instance of GORMCounterRepository.
func NewGORMCounterRepository(db *gorm.DB) *GORMCounterRepository {
	return &GORMCounterRepository{
		db: db,
	}
}

// Next atomically increments and reads the sequence for the given year. The
// increment and read happen in one UPDATE ... RETURNING statement, so two
// concurrent order creations can never observe the same value, even across
// service instances.
func (r *GORMCounterRepository) Next(year int) (int64, error) {
	// Make sure the row for this year exists; DoNothing keeps this safe
	// under concurrent first-order-of-the-year races.
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.OrderCounter{Year: year}).Error; err != nil {
		return 0, fmt.Errorf("failed to ensure counter row for year %d: %w", year, err)
	}

	var seq int64
	err := r.db.Raw(
		"UPDATE order_counters SET seq = seq + 1 WHERE year = ? RETURNING seq",
		year,
	).Scan(&seq).Error
	if err != nil {
		return 0, fmt.Errorf("failed to advance order counter for year %d: %w", year, err)
	}
	return seq, nil
}
