package services

import (
	"fmt"
	"log"
	"time"

	"meronepal/internal/apperrors"
	"meronepal/internal/models"
	"meronepal/internal/notifications"
	"meronepal/internal/repositories"

	"github.com/google/uuid"
)

// statusTransitions is the order state machine. delivered and cancelled are
// terminal: they have no entry.
var statusTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:   {models.OrderConfirmed, models.OrderCancelled},
	models.OrderConfirmed: {models.OrderShipped, models.OrderCancelled},
	models.OrderShipped:   {models.OrderDelivered},
}

// canTransition reports whether from -> to is an allowed move.
func canTransition(from, to models.OrderStatus) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CartItem is one requested line of a new order.
type CartItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// CreateOrderInput is the full checkout request.
type CreateOrderInput struct {
	Items           []CartItem           `json:"items" validate:"required,min=1,dive"`
	ShippingAddress models.Address       `json:"shipping_address" validate:"required"`
	PaymentMethod   models.PaymentMethod `json:"payment_method" validate:"required"`
	ShippingCost    float64              `json:"shipping_cost" validate:"gte=0"`
}

// OrderService owns the order lifecycle: it creates orders against live
// product state, reserves inventory, and enforces the status state machine
// with its authorization rules.
type OrderService struct {
	orderRepo   repositories.OrderRepository
	productRepo repositories.ProductRepository
	counterRepo repositories.CounterRepository
	notifier    notifications.Notifier
}

// NewOrderService creates a new OrderService.
func NewOrderService(
	orderRepo repositories.OrderRepository,
	productRepo repositories.ProductRepository,
	counterRepo repositories.CounterRepository,
	notifier notifications.Notifier,
) *OrderService {
	if notifier == nil {
		notifier = notifications.NopNotifier{}
	}
	return &OrderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		counterRepo: counterRepo,
		notifier:    notifier,
	}
}

// GetOrderByID retrieves a single order by its ID.
func (s *OrderService) GetOrderByID(id string) (*models.Order, error) {
	return s.orderRepo.GetByID(id)
}

// GetOrdersByBuyer retrieves the buyer's orders.
func (s *OrderService) GetOrdersByBuyer(buyerID string) ([]models.Order, error) {
	return s.orderRepo.GetByBuyer(buyerID)
}

// CreateOrder turns a cart into a durable pending order. Prices and seller
// references are snapshotted from the live products (never from the client),
// inventory is reserved per line with a compensating rollback if a later
// line fails, and the order number comes from the race-safe yearly counter.
func (s *OrderService) CreateOrder(buyerID string, input CreateOrderInput) (*models.Order, error) {
	if len(input.Items) == 0 {
		return nil, apperrors.ErrEmptyCart
	}
	if !input.PaymentMethod.Valid() {
		return nil, fmt.Errorf("payment method %q: %w", input.PaymentMethod, apperrors.ErrUnsupportedMethod)
	}

	// 1. Resolve every product and build the frozen line-item snapshots.
	// Each line is checked independently against the product's own stock.
	var subtotal float64
	items := make([]models.OrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, apperrors.ErrInvalidQuantity)
		}
		product, err := s.productRepo.GetByID(item.ProductID)
		if err != nil {
			return nil, err
		}
		if !product.Orderable() {
			return nil, fmt.Errorf("product %s: %w", product.ID, apperrors.ErrProductUnavailable)
		}
		if product.Stock < item.Quantity {
			return nil, fmt.Errorf("product %s (requested %d, available %d): %w",
				product.ID, item.Quantity, product.Stock, apperrors.ErrInsufficientStock)
		}
		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Title:     product.Name,
			UnitPrice: product.Price, // price at the time of order
			Quantity:  item.Quantity,
			SellerID:  product.SellerID,
		})
		subtotal += product.Price * float64(item.Quantity)
	}

	// 2. Reserve inventory. The decrement itself is an atomic guarded
	// update; if a later line fails, everything reserved so far is
	// restored so no partial reservation survives.
	reserved := make([]models.OrderItem, 0, len(items))
	rollback := func() {
		for _, item := range reserved {
			if err := s.productRepo.RestoreStock(item.ProductID, item.Quantity); err != nil {
				log.Printf("Failed to roll back reservation of %d x %s: %v", item.Quantity, item.ProductID, err)
			}
		}
	}
	for _, item := range items {
		if err := s.productRepo.ReserveStock(item.ProductID, item.Quantity); err != nil {
			rollback()
			return nil, err
		}
		reserved = append(reserved, item)
	}

	// 3. Draw the next order number for the current year.
	now := time.Now()
	seq, err := s.counterRepo.Next(now.Year())
	if err != nil {
		rollback()
		return nil, fmt.Errorf("failed to generate order number: %w", err)
	}

	newOrder := &models.Order{
		ID:              uuid.New().String(),
		OrderNumber:     models.FormatOrderNumber(now.Year(), seq),
		BuyerID:         buyerID,
		Items:           items,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   models.PaymentPending,
		Subtotal:        subtotal,
		ShippingCost:    input.ShippingCost,
		TotalAmount:     subtotal + input.ShippingCost,
		Status:          models.OrderPending,
	}

	// 4. Persist the order.
	if err := s.orderRepo.Create(newOrder); err != nil {
		rollback()
		return nil, fmt.Errorf("failed to create order in repository: %w", err)
	}

	// 5. Best-effort notifications: buyer confirmation plus one event per
	// seller. Failures are logged, never surfaced to the caller.
	if err := s.notifier.OrderCreated(newOrder); err != nil {
		log.Printf("Warning: failed to send order confirmation for %s: %v", newOrder.OrderNumber, err)
	}
	for _, sellerID := range newOrder.SellerIDs() {
		if err := s.notifier.SellerNewOrder(newOrder, sellerID); err != nil {
			log.Printf("Warning: failed to notify seller %s for %s: %v", sellerID, newOrder.OrderNumber, err)
		}
	}

	return newOrder, nil
}

// UpdateOrderStatus drives the order through its state machine on behalf of
// an actor. Authorization is checked before the transition itself so an
// actor who may not touch the order gets UNAUTHORIZED, not a transition
// error. trackingCode is only consulted when transitioning to shipped.
func (s *OrderService) UpdateOrderStatus(orderID string, newStatus models.OrderStatus, trackingCode, actorID string, role models.Role) (*models.Order, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("status %q: %w", newStatus, apperrors.ErrInvalidOrderStatus)
	}

	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}

	if err := authorizeTransition(order, newStatus, actorID, role); err != nil {
		return nil, err
	}

	if !canTransition(order.Status, newStatus) {
		return nil, fmt.Errorf("%s -> %s: %w", order.Status, newStatus, apperrors.ErrInvalidTransition)
	}

	// Stamp the transition. Each timestamp is set at most once, by the one
	// transition that reaches its state.
	now := time.Now()
	switch newStatus {
	case models.OrderConfirmed:
		order.ConfirmedAt = &now
	case models.OrderShipped:
		order.ShippedAt = &now
		if trackingCode != "" {
			order.TrackingCode = trackingCode
		}
	case models.OrderDelivered:
		order.DeliveredAt = &now
	case models.OrderCancelled:
		order.CancelledAt = &now
	}
	order.Status = newStatus

	if newStatus == models.OrderCancelled {
		if err := s.cancelWithRestore(order); err != nil {
			return nil, err
		}
	} else if err := s.orderRepo.Update(order); err != nil {
		return nil, err
	}

	// Best-effort notifications after the transition is durable.
	switch newStatus {
	case models.OrderShipped:
		if err := s.notifier.OrderShipped(order); err != nil {
			log.Printf("Warning: failed to send shipping notification for %s: %v", order.OrderNumber, err)
		}
	case models.OrderDelivered:
		if err := s.notifier.OrderDelivered(order); err != nil {
			log.Printf("Warning: failed to send delivery notification for %s: %v", order.OrderNumber, err)
		}
	}

	return order, nil
}

// cancelWithRestore reverses the order's reservation exactly, including the
// purchase counter, and persists the cancellation. The restore and the status
// write succeed or fail together: if either a later line's restore or the
// order update fails, everything restored so far is re-reserved, so a caller
// retry starts from the same ledger state it saw the first time.
func (s *OrderService) cancelWithRestore(order *models.Order) error {
	restored := make([]models.OrderItem, 0, len(order.Items))
	reReserve := func() {
		for _, item := range restored {
			if err := s.productRepo.ReserveStock(item.ProductID, item.Quantity); err != nil {
				log.Printf("Failed to re-reserve %d x %s after aborted cancellation of %s: %v",
					item.Quantity, item.ProductID, order.ID, err)
			}
		}
	}

	for _, item := range order.Items {
		if err := s.productRepo.RestoreStock(item.ProductID, item.Quantity); err != nil {
			reReserve()
			return fmt.Errorf("failed to restore inventory for order %s: %w", order.ID, err)
		}
		restored = append(restored, item)
	}

	if err := s.orderRepo.Update(order); err != nil {
		reReserve()
		return err
	}
	return nil
}

// authorizeTransition applies the role rules: buyers may only cancel their
// own orders, sellers may act only on orders carrying one of their line
// items, admins may do anything the state machine allows.
func authorizeTransition(order *models.Order, newStatus models.OrderStatus, actorID string, role models.Role) error {
	switch role {
	case models.RoleAdmin:
		return nil
	case models.RoleSeller:
		if !order.HasSeller(actorID) {
			return fmt.Errorf("seller %s has no line item on order %s: %w", actorID, order.ID, apperrors.ErrUnauthorized)
		}
		return nil
	case models.RoleBuyer:
		if order.BuyerID != actorID {
			return fmt.Errorf("buyer %s does not own order %s: %w", actorID, order.ID, apperrors.ErrUnauthorized)
		}
		if newStatus != models.OrderCancelled {
			return fmt.Errorf("buyers may only cancel: %w", apperrors.ErrUnauthorized)
		}
		return nil
	default:
		return fmt.Errorf("role %q: %w", role, apperrors.ErrUnauthorized)
	}
}

// ConfirmPayment marks the order paid and moves it pending -> confirmed.
// Called by the payment service once a gateway verifies an attempt. It is
// idempotent: a repeated confirmation of an already-confirmed, paid order
// is a no-op.
func (s *OrderService) ConfirmPayment(orderID string) error {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return err
	}
	if order.PaymentStatus == models.PaymentCompleted && order.Status == models.OrderConfirmed {
		return nil
	}
	if order.Status != models.OrderPending {
		return fmt.Errorf("%s -> %s: %w", order.Status, models.OrderConfirmed, apperrors.ErrInvalidTransition)
	}

	now := time.Now()
	order.PaymentStatus = models.PaymentCompleted
	order.Status = models.OrderConfirmed
	order.ConfirmedAt = &now
	// Guarded on pending so a cancellation that lands between our read and
	// this write refuses the confirmation instead of being overwritten.
	return s.orderRepo.UpdateFromStatus(order, models.OrderPending)
}

// MarkPaymentFailed records a failed capture on the order. The order status
// itself is left untouched: a payment failure does not auto-cancel, a human
// or a retried attempt decides what happens next.
func (s *OrderService) MarkPaymentFailed(orderID string) error {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return err
	}
	if order.PaymentStatus == models.PaymentCompleted {
		return fmt.Errorf("order %s: %w", orderID, apperrors.ErrPaymentCompleted)
	}
	order.PaymentStatus = models.PaymentFailed
	return s.orderRepo.Update(order)
}
