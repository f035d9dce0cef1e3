package services

import (
	"errors"
	"fmt"
	"log"
	"math"

	"meronepal/internal/apperrors"
	"meronepal/internal/gateways"
	"meronepal/internal/models"
	"meronepal/internal/repositories"
)

// amountEpsilon is the tolerance used when comparing monetary amounts.
const amountEpsilon = 0.01

// orderTransitions is the slice of the order service the payment service
// drives: confirming an order once its payment verifies, or recording a
// failed capture.
type orderTransitions interface {
	ConfirmPayment(orderID string) error
	MarkPaymentFailed(orderID string) error
}

// PaymentService is the reconciliation coordinator. It owns the mapping
// from payment attempts to orders, persists attempt records, and matches
// asynchronous gateway results back to the right order.
type PaymentService struct {
	paymentRepo repositories.PaymentRepository
	orderRepo   repositories.OrderRepository
	orders      orderTransitions
	gateways    map[models.PaymentMethod]gateways.Gateway
}

// NewPaymentService creates a new PaymentService. Adapters are selected by
// the order's payment method tag; cash on delivery has no adapter and is
// rejected at initiation.
func NewPaymentService(
	paymentRepo repositories.PaymentRepository,
	orderRepo repositories.OrderRepository,
	orders orderTransitions,
	adapters ...gateways.Gateway,
) *PaymentService {
	byMethod := make(map[models.PaymentMethod]gateways.Gateway, len(adapters))
	for _, gw := range adapters {
		byMethod[gw.Name()] = gw
	}
	return &PaymentService{
		paymentRepo: paymentRepo,
		orderRepo:   orderRepo,
		orders:      orders,
		gateways:    byMethod,
	}
}

// InitiatePayment starts a payment session for an order. The amount the
// client intends to pay must match the order's stored total within a small
// tolerance; anything else is rejected so a client cannot pay a different
// amount than billed.
func (s *PaymentService) InitiatePayment(orderID string, amount float64) (*gateways.Session, error) {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}

	gw, ok := s.gateways[order.PaymentMethod]
	if !ok {
		return nil, fmt.Errorf("payment method %q: %w", order.PaymentMethod, apperrors.ErrUnsupportedMethod)
	}
	if order.PaymentStatus == models.PaymentCompleted {
		return nil, fmt.Errorf("order %s: %w", orderID, apperrors.ErrPaymentCompleted)
	}
	if order.Status != models.OrderPending {
		return nil, fmt.Errorf("order %s is %s, payment can only be initiated while pending: %w",
			orderID, order.Status, apperrors.ErrInvalidTransition)
	}
	if math.Abs(amount-order.TotalAmount) > amountEpsilon {
		return nil, fmt.Errorf("got %.2f, order total is %.2f: %w", amount, order.TotalAmount, apperrors.ErrAmountMismatch)
	}

	session, err := gw.Initiate(order)
	if err != nil {
		return nil, fmt.Errorf("failed to initiate %s payment for order %s: %w", gw.Name(), orderID, err)
	}

	attempt := &models.PaymentAttempt{
		OrderID:        order.ID,
		Gateway:        gw.Name(),
		TransactionRef: session.TransactionRef,
		Amount:         order.TotalAmount,
		Status:         models.PaymentPending,
	}
	if err := s.paymentRepo.Create(attempt); err != nil {
		return nil, err
	}
	return session, nil
}

// VerifyPayment reconciles a gateway result with the order. Once an attempt
// has reached a terminal outcome, re-invocation with the same transaction
// reference replays the stored outcome without contacting the provider
// again; external callbacks are commonly delivered more than once.
//
// Provider-reported failures and transport errors alike are captured into
// the attempt's failure state and returned as a structured "not verified"
// result, never as a bare error.
func (s *PaymentService) VerifyPayment(gateway models.PaymentMethod, orderID, transactionRef string) (*gateways.Verification, error) {
	gw, ok := s.gateways[gateway]
	if !ok {
		return nil, fmt.Errorf("payment method %q: %w", gateway, apperrors.ErrUnsupportedMethod)
	}

	attempt, err := s.paymentRepo.FindByTransaction(orderID, gateway, transactionRef)
	if err != nil {
		return nil, err
	}
	if attempt.Terminal() {
		return &gateways.Verification{
			Verified:       attempt.Status == models.PaymentCompleted,
			TransactionRef: attempt.TransactionRef,
			Amount:         attempt.Amount,
			Status:         string(attempt.Status),
			Reason:         attempt.ErrorMessage,
			RawResponse:    attempt.GatewayResponse,
		}, nil
	}

	result, err := gw.Verify(orderID, transactionRef, attempt.Amount)
	if err != nil {
		// Unreachable gateway or timeout: treated identically to a
		// gateway-reported failure.
		result = &gateways.Verification{
			TransactionRef: transactionRef,
			Amount:         attempt.Amount,
			Status:         "error",
			Reason:         err.Error(),
		}
	}

	if result.Verified {
		attempt.Status = models.PaymentCompleted
		attempt.GatewayResponse = result.RawResponse
		if err := s.orders.ConfirmPayment(orderID); err != nil {
			// The provider captured the funds but the order can no longer
			// accept them, e.g. it was cancelled while the buyer sat on the
			// payment page. Keep the capture on record with the mismatch so
			// the attempt is flagged for a manual refund.
			attempt.ErrorMessage = fmt.Sprintf("payment captured but order not confirmed: %v", err)
			if uerr := s.paymentRepo.Update(attempt); uerr != nil {
				log.Printf("Failed to record captured-but-unconfirmed attempt %s for order %s: %v", transactionRef, orderID, uerr)
			}
			return nil, err
		}
		if err := s.paymentRepo.Update(attempt); err != nil {
			return nil, err
		}
		return result, nil
	}

	attempt.Status = models.PaymentFailed
	attempt.ErrorMessage = result.Reason
	attempt.GatewayResponse = result.RawResponse
	if err := s.paymentRepo.Update(attempt); err != nil {
		return nil, err
	}
	if err := s.orders.MarkPaymentFailed(orderID); err != nil {
		// A stale failure callback must not clobber an order that was
		// already paid through a newer attempt.
		if errors.Is(err, apperrors.ErrPaymentCompleted) {
			log.Printf("Ignoring failed attempt %s for already-paid order %s", transactionRef, orderID)
		} else {
			return nil, err
		}
	}
	return result, nil
}

// HandleCallback maps a provider's callback parameters onto the canonical
// (orderID, transactionRef) pair and delegates to VerifyPayment. Callbacks
// missing required parameters are rejected before any verification.
func (s *PaymentService) HandleCallback(gateway models.PaymentMethod, params map[string]string) (*gateways.Verification, error) {
	gw, ok := s.gateways[gateway]
	if !ok {
		return nil, fmt.Errorf("payment method %q: %w", gateway, apperrors.ErrUnsupportedMethod)
	}
	orderID, transactionRef, err := gw.ParseCallback(params)
	if err != nil {
		return nil, err
	}
	return s.VerifyPayment(gateway, orderID, transactionRef)
}
