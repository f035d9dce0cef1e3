package handlers

import (
	"log"

	"meronepal/internal/models"
	"meronepal/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// PaymentHandler handles HTTP requests for payment initiation, provider
// callbacks and manual verification.
type PaymentHandler struct {
	service  *services.PaymentService
	validate *validator.Validate
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(service *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes registers the authenticated payment routes.
func (h *PaymentHandler) RegisterRoutes(router fiber.Router) {
	paymentRoutes := router.Group("/payments")
	paymentRoutes.Post("/initiate", h.HandleInitiatePayment)
	paymentRoutes.Post("/verify", h.HandleVerifyPayment)
}

// RegisterCallbackRoutes registers the provider-facing callback route. It
// must stay outside the auth middleware: the provider redirects the buyer's
// browser here without our bearer token.
func (h *PaymentHandler) RegisterCallbackRoutes(router fiber.Router) {
	router.Get("/payments/:gateway/callback", h.HandleCallback)
}

// HandleInitiatePayment starts a payment session for an order.
func (h *PaymentHandler) HandleInitiatePayment(c *fiber.Ctx) error {
	var req struct {
		OrderID string  `json:"order_id" validate:"required"`
		Amount  float64 `json:"amount" validate:"required,gt=0"`
	}
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing payment initiation body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return respondValidationErrors(c, err)
	}

	session, err := h.service.InitiatePayment(req.OrderID, req.Amount)
	if err != nil {
		log.Printf("Error initiating payment for order %s: %v", req.OrderID, err)
		return respondError(c, "Could not initiate payment", err)
	}
	return c.JSON(session)
}

// HandleVerifyPayment reconciles a payment attempt on demand, e.g. when the
// client polls after returning from the provider.
func (h *PaymentHandler) HandleVerifyPayment(c *fiber.Ctx) error {
	var req struct {
		OrderID        string               `json:"order_id" validate:"required"`
		Gateway        models.PaymentMethod `json:"gateway" validate:"required,oneof=esewa khalti"`
		TransactionRef string               `json:"transaction_ref" validate:"required"`
	}
	if err := c.BodyParser(&req); err != nil {
		log.Printf("Error parsing payment verification body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return respondValidationErrors(c, err)
	}

	result, err := h.service.VerifyPayment(req.Gateway, req.OrderID, req.TransactionRef)
	if err != nil {
		log.Printf("Error verifying payment for order %s: %v", req.OrderID, err)
		return respondError(c, "Could not verify payment", err)
	}
	return c.JSON(result)
}

// HandleCallback receives a provider redirect, maps its parameters onto the
// canonical pair and reconciles the attempt.
func (h *PaymentHandler) HandleCallback(c *fiber.Ctx) error {
	gateway := models.PaymentMethod(c.Params("gateway"))

	params := make(map[string]string)
	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		params[string(key)] = string(value)
	})

	result, err := h.service.HandleCallback(gateway, params)
	if err != nil {
		log.Printf("Error handling %s callback: %v", gateway, err)
		return respondError(c, "Could not process payment callback", err)
	}
	return c.JSON(result)
}
