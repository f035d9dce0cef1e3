package repositories

import "meronepal/internal/models"

// UserRepository defines the interface for marketplace account data access.
// Lookups return apperrors.ErrUserNotFound when no account matches, so
// callers can tell a missing account from a storage failure.
type UserRepository interface {
	Create(user *models.User) error
	GetByUsername(username string) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByID(id string) (*models.User, error)
}
