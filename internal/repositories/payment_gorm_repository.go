package repositories

import (
	"fmt"

	"meronepal/internal/apperrors"
	"meronepal/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMPaymentRepository is a GORM implementation of PaymentRepository.
type GORMPaymentRepository struct {
	db *gorm.DB
}

// NewGORMPaymentRepository creates a new instance of GORMPaymentRepository.
func NewGORMPaymentRepository(db *gorm.DB) *GORMPaymentRepository {
	return &GORMPaymentRepository{
		db: db,
	}
}

// Create persists a new payment attempt.
func (r *GORMPaymentRepository) Create(attempt *models.PaymentAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	if err := r.db.Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create payment attempt: %w", err)
	}
	return nil
}

// Update persists a verification outcome on an attempt.
func (r *GORMPaymentRepository) Update(attempt *models.PaymentAttempt) error {
	res := r.db.Save(attempt)
	if res.Error != nil {
		return fmt.Errorf("failed to update payment attempt %s: %w", attempt.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("payment attempt %s: %w", attempt.ID, apperrors.ErrPaymentNotFound)
	}
	return nil
}

// FindByTransaction looks up an attempt by order, gateway and transaction
// reference.
func (r *GORMPaymentRepository) FindByTransaction(orderID string, gateway models.PaymentMethod, transactionRef string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.First(&attempt,
		"order_id = ? AND gateway = ? AND transaction_ref = ?",
		orderID, gateway, transactionRef,
	).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("transaction %s for order %s: %w", transactionRef, orderID, apperrors.ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("failed to find payment attempt for order %s: %w", orderID, err)
	}
	return &attempt, nil
}

// LatestByOrder returns the newest attempt for an order.
func (r *GORMPaymentRepository) LatestByOrder(orderID string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.Where("order_id = ?", orderID).Order("created_at DESC").First(&attempt).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("order %s: %w", orderID, apperrors.ErrPaymentNotFound)
		}
		return nil, fmt.Errorf("failed to find latest payment attempt for order %s: %w", orderID, err)
	}
	return &attempt, nil
}
