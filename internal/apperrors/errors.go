// Package apperrors defines the sentinel errors shared by the order and
// payment services. Each carries a stable machine-readable code so HTTP
// handlers (and API clients) can tell the rejection cases apart without
// matching on message text.
package apperrors

import "errors"

// AppError is a sentinel error with a stable code.
type AppError struct {
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

// New creates a sentinel AppError. Wrap call sites with fmt.Errorf("...: %w", err)
// to add context while keeping errors.Is comparisons working.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

var (
	// Validation errors: rejected synchronously, never persisted.
	ErrEmptyCart          = New("EMPTY_CART", "order must contain at least one item")
	ErrInvalidQuantity    = New("INVALID_QUANTITY", "item quantity must be greater than zero")
	ErrUnsupportedMethod  = New("UNSUPPORTED_PAYMENT_METHOD", "unsupported payment method")
	ErrAmountMismatch     = New("AMOUNT_MISMATCH", "payment amount does not match order total")
	ErrInvalidCallback    = New("INVALID_CALLBACK", "payment callback is missing required parameters")
	ErrInvalidOrderStatus = New("INVALID_ORDER_STATUS", "unknown order status")

	// Conflict errors: each has its own code so callers can react differently.
	ErrInsufficientStock = New("INSUFFICIENT_INVENTORY", "insufficient inventory for requested quantity")
	ErrInvalidTransition = New("INVALID_STATUS_TRANSITION", "order status transition not allowed")
	ErrUnauthorized      = New("UNAUTHORIZED", "actor is not allowed to perform this transition")
	ErrPaymentCompleted  = New("PAYMENT_ALREADY_COMPLETED", "payment for this order is already completed")
	ErrProductUnavailable = New("PRODUCT_UNAVAILABLE", "product is not available for ordering")

	// Not-found errors.
	ErrOrderNotFound   = New("ORDER_NOT_FOUND", "order not found")
	ErrProductNotFound = New("PRODUCT_NOT_FOUND", "product not found")
	ErrPaymentNotFound = New("PAYMENT_NOT_FOUND", "payment attempt not found")
	ErrUserNotFound    = New("USER_NOT_FOUND", "account not found")
)

// CodeOf extracts the stable code from err, or "INTERNAL" for anything that
// is not (or does not wrap) an AppError.
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return "INTERNAL"
}
