package handlers

import (
	"meronepal/internal/apperrors"

	"github.com/gofiber/fiber/v2"
)

// statusForCode maps the service error taxonomy onto HTTP statuses.
// Validation errors are 400, authorization 403, missing resources 404, and
// state conflicts (inventory, transitions, double payment) 409.
var statusForCode = map[string]int{
	"EMPTY_CART":                 fiber.StatusBadRequest,
	"INVALID_QUANTITY":           fiber.StatusBadRequest,
	"UNSUPPORTED_PAYMENT_METHOD": fiber.StatusBadRequest,
	"AMOUNT_MISMATCH":            fiber.StatusBadRequest,
	"INVALID_CALLBACK":           fiber.StatusBadRequest,
	"INVALID_ORDER_STATUS":       fiber.StatusBadRequest,
	"UNAUTHORIZED":               fiber.StatusForbidden,
	"ORDER_NOT_FOUND":            fiber.StatusNotFound,
	"PRODUCT_NOT_FOUND":          fiber.StatusNotFound,
	"PAYMENT_NOT_FOUND":          fiber.StatusNotFound,
	"USER_NOT_FOUND":             fiber.StatusNotFound,
	"INSUFFICIENT_INVENTORY":     fiber.StatusConflict,
	"INVALID_STATUS_TRANSITION":  fiber.StatusConflict,
	"PRODUCT_UNAVAILABLE":        fiber.StatusConflict,
	"PAYMENT_ALREADY_COMPLETED":  fiber.StatusConflict,
}

// respondError writes a service error as JSON with its stable code so API
// clients can react to the specific rejection case.
func respondError(c *fiber.Ctx, message string, err error) error {
	code := apperrors.CodeOf(err)
	status, ok := statusForCode[code]
	if !ok {
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(fiber.Map{
		"message": message,
		"code":    code,
		"error":   err.Error(),
	})
}
