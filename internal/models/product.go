package models

import "gorm.io/gorm"

// VerificationStatus is the admin review state of a product listing.
// Only approved listings can be ordered.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// Product represents a seller listing. Stock is the product's inventory
// ledger: it is only ever adjusted through the repository's guarded
// reserve/restore operations, never by plain field writes.
type Product struct {
	ID                 string             `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	SellerID           string             `json:"seller_id" gorm:"index;type:varchar(36)"`
	Name               string             `json:"name" validate:"required,min=3,max=100"`
	Description        string             `json:"description" validate:"omitempty,max=500"`
	Price              float64            `json:"price" validate:"required,gt=0"`
	Stock              int                `json:"stock" validate:"gte=0"`
	PurchaseCount      int                `json:"purchase_count"`
	IsActive           bool               `json:"is_active"`
	VerificationStatus VerificationStatus `json:"verification_status" gorm:"type:varchar(16)"`
	gorm.Model                            // Embed gorm.Model for CreatedAt, UpdatedAt, DeletedAt
}

// Orderable reports whether the product can appear in a new order.
func (p *Product) Orderable() bool {
	return p.IsActive && p.VerificationStatus == VerificationApproved
}
