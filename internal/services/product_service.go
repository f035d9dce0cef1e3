package services

import (
	"fmt"

	"meronepal/internal/apperrors"
	"meronepal/internal/models"
	"meronepal/internal/repositories"
)

// ProductService handles business logic related to products.
type ProductService struct {
	repo repositories.ProductRepository
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository) *ProductService {
	return &ProductService{
		repo: repo,
	}
}

// GetAllProducts retrieves all products.
func (s *ProductService) GetAllProducts() ([]models.Product, error) {
	return s.repo.GetAll()
}

// GetProductByID retrieves a single product by its ID.
func (s *ProductService) GetProductByID(id string) (*models.Product, error) {
	return s.repo.GetByID(id)
}

// CreateProduct creates a new listing for the seller. New listings start
// active but unverified; they become orderable once an admin approves them.
func (s *ProductService) CreateProduct(product *models.Product, sellerID string) error {
	product.SellerID = sellerID
	product.IsActive = true
	product.VerificationStatus = models.VerificationPending
	return s.repo.Create(product)
}

// UpdateProduct updates an existing product on behalf of its seller.
func (s *ProductService) UpdateProduct(product *models.Product, sellerID string) error {
	existing, err := s.repo.GetByID(product.ID)
	if err != nil {
		return err
	}
	if existing.SellerID != sellerID {
		return fmt.Errorf("product %s belongs to another seller: %w", product.ID, apperrors.ErrUnauthorized)
	}
	// Stock and the purchase counter are only adjusted through the guarded
	// ledger operations, never through a listing edit.
	product.SellerID = existing.SellerID
	product.Stock = existing.Stock
	product.PurchaseCount = existing.PurchaseCount
	product.VerificationStatus = existing.VerificationStatus
	return s.repo.Update(product)
}

// SetVerification moves a listing through admin review.
func (s *ProductService) SetVerification(id string, status models.VerificationStatus) (*models.Product, error) {
	product, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	product.VerificationStatus = status
	if err := s.repo.Update(product); err != nil {
		return nil, err
	}
	return product, nil
}

// DeleteProduct deletes a product by its ID.
func (s *ProductService) DeleteProduct(id string, sellerID string, role models.Role) error {
	existing, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}
	if role != models.RoleAdmin && existing.SellerID != sellerID {
		return fmt.Errorf("product %s belongs to another seller: %w", id, apperrors.ErrUnauthorized)
	}
	return s.repo.Delete(id)
}
