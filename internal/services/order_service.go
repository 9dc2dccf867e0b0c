package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/platform/pagination"
	"github.com/brightcart/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix   = "ord_"
	paymentIDPrefix = "pay_"
	historyIDPrefix = "osh_"

	defaultShippingMethod = "standard"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates duplicates or concurrent-write conflicts.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderForbidden indicates the caller is neither the owner nor staff.
	ErrOrderForbidden = errors.New("order: forbidden")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending: {
		domain.OrderStatusProcessing,
		domain.OrderStatusCancelled,
		domain.OrderStatusRefunded,
	},
	domain.OrderStatusProcessing: {
		domain.OrderStatusConfirmed,
		domain.OrderStatusReadyToShip,
		domain.OrderStatusShipped,
		domain.OrderStatusCancelled,
		domain.OrderStatusRefunded,
	},
	domain.OrderStatusConfirmed: {
		domain.OrderStatusReadyToShip,
		domain.OrderStatusShipped,
		domain.OrderStatusRefunded,
	},
	domain.OrderStatusReadyToShip: {
		domain.OrderStatusShipped,
		domain.OrderStatusRefunded,
	},
	domain.OrderStatusShipped: {
		domain.OrderStatusDelivered,
		domain.OrderStatusRefunded,
	},
}

var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusProcessing,
}

var labelEligibleStatuses = []domain.OrderStatus{
	domain.OrderStatusProcessing,
	domain.OrderStatusConfirmed,
	domain.OrderStatusReadyToShip,
}

var staffRoles = []string{"admin", "manager"}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Carts         repositories.CartRepository
	ShippingRates map[string]int64
	TaxRate       float64
	Clock         func() time.Time
	IDGenerator   func() string
	Events        OrderEventPublisher
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	carts         repositories.CartRepository
	shippingRates map[string]int64
	taxRate       float64
	clock         func() time.Time
	newID         func() string
	events        OrderEventPublisher
	logger        func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}

	rates := maps.Clone(deps.ShippingRates)
	if len(rates) == 0 {
		rates = map[string]int64{defaultShippingMethod: 500}
	}

	taxRate := deps.TaxRate
	if taxRate <= 0 {
		taxRate = domain.DefaultTaxRate
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:        deps.Orders,
		carts:         deps.Carts,
		shippingRates: rates,
		taxRate:       taxRate,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if cmd.ShippingAddress == nil {
		return CheckoutResult{}, fmt.Errorf("%w: shipping address is required", ErrOrderInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return CheckoutResult{}, s.mapRepositoryError(err)
	}
	if len(cart.Items) == 0 {
		return CheckoutResult{}, fmt.Errorf("%w: cart is empty", ErrOrderInvalidInput)
	}
	currency := strings.TrimSpace(cart.Currency)
	if currency == "" {
		return CheckoutResult{}, fmt.Errorf("%w: cart currency is required", ErrOrderInvalidInput)
	}

	method := strings.TrimSpace(cmd.ShippingMethod)
	if method == "" {
		method = defaultShippingMethod
	}
	shippingBase, ok := s.shippingRates[method]
	if !ok {
		return CheckoutResult{}, fmt.Errorf("%w: unknown shipping method %q", ErrOrderInvalidInput, method)
	}

	billing := cmd.BillingAddress
	if billing == nil {
		billing = cmd.ShippingAddress
	}

	now := s.now()
	orderID := orderIDPrefix + s.newID()

	items := buildOrderLineItems(cart.Items)
	totals := domain.ComputeTotals(pricingLines(items), shippingBase, s.taxRate)

	history := domain.OrderStatusHistoryEntry{
		ID:        historyIDPrefix + s.newID(),
		OrderID:   orderID,
		Status:    domain.OrderStatusPending,
		Note:      "order placed",
		ActorID:   strings.TrimSpace(cmd.ActorID),
		CreatedAt: now,
	}

	order := Order{
		ID:              orderID,
		OrderNumber:     s.generateOrderNumber(now),
		UserID:          userID,
		Status:          domain.OrderStatusPending,
		Currency:        currency,
		Totals:          totals,
		Items:           items,
		History:         []OrderStatusHistoryEntry{history},
		ShippingAddress: cloneAddress(cmd.ShippingAddress),
		BillingAddress:  cloneAddress(billing),
		ShippingMethod:  method,
		PaymentMethod:   strings.TrimSpace(cmd.PaymentMethod),
		Notes:           strings.TrimSpace(cmd.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	payment := Payment{
		ID:        paymentIDPrefix + s.newID(),
		OrderID:   orderID,
		UserID:    userID,
		Amount:    totals.Total,
		Currency:  currency,
		Method:    order.PaymentMethod,
		Status:    domain.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	cartID := strings.TrimSpace(cart.ID)
	if cartID == "" {
		cartID = userID
	}

	result, err := s.orders.Checkout(ctx, repositories.CheckoutRequest{
		Order:       order,
		Payment:     payment,
		StockLines:  stockLines(items),
		ClearCartID: cartID,
		Now:         now,
	})
	if err != nil {
		return CheckoutResult{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       result.Order.ID,
		OrderNumber:   result.Order.OrderNumber,
		CurrentStatus: string(result.Order.Status),
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"total":    result.Order.Totals.Total,
			"currency": result.Order.Currency,
		},
	})

	return CheckoutResult{Order: result.Order, Payment: result.Payment}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if opts.IncludeHistory {
		history, err := s.orders.ListHistory(ctx, orderID)
		if err != nil {
			return Order{}, s.mapRepositoryError(err)
		}
		order.History = history
	}

	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListHistory(ctx context.Context, orderID string) ([]OrderStatusHistoryEntry, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	history, err := s.orders.ListHistory(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return history, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := domain.OrderStatus(strings.TrimSpace(string(cmd.TargetStatus)))
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	// Cancellation always returns the reserved stock, no matter which caller
	// drives the transition.
	var releaseLines []InventoryLine
	if target == domain.OrderStatusCancelled {
		releaseLines = stockLines(order.Items)
	}

	return s.transition(ctx, order, target, cmd.ActorID, cmd.Note, releaseLines)
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	role := strings.TrimSpace(strings.ToLower(cmd.ActorRole))
	if !slices.Contains(staffRoles, role) && order.UserID != strings.TrimSpace(cmd.ActorID) {
		return Order{}, fmt.Errorf("%w: only the order owner or staff may cancel", ErrOrderForbidden)
	}

	if !slices.Contains(cancellableStatuses, order.Status) {
		return Order{}, fmt.Errorf("%w: order status %q cannot be cancelled", ErrOrderInvalidState, order.Status)
	}

	note := "cancelled by " + defaultRole(role)
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		note += ": " + reason
	}

	return s.transition(ctx, order, domain.OrderStatusCancelled, cmd.ActorID, note, stockLines(order.Items))
}

// transition validates legality against the single transition table and applies
// the status write, history append, and any inventory releases in one
// repository transaction.
func (s *orderService) transition(ctx context.Context, order Order, target domain.OrderStatus, actorID, note string, releaseLines []InventoryLine) (Order, error) {
	if !canTransition(order.Status, target) {
		return Order{}, fmt.Errorf("%w: cannot move from %q to %q", ErrOrderInvalidState, order.Status, target)
	}

	now := s.now()
	prev := order.Status

	req := repositories.OrderTransitionRequest{
		OrderID: order.ID,
		Status:  target,
		History: domain.OrderStatusHistoryEntry{
			ID:        historyIDPrefix + s.newID(),
			OrderID:   order.ID,
			Status:    target,
			Note:      strings.TrimSpace(note),
			ActorID:   strings.TrimSpace(actorID),
			CreatedAt: now,
		},
		ReleaseLines: releaseLines,
		Now:          now,
	}

	switch target {
	case domain.OrderStatusCancelled:
		req.CancelledAt = &now
	case domain.OrderStatusDelivered:
		req.DeliveredAt = &now
	}

	updated, err := s.orders.ApplyTransition(ctx, req)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(prev),
		CurrentStatus:  string(updated.Status),
		ActorID:        actorID,
		OccurredAt:     now,
		Metadata:       transitionMetadata(note, releaseLines),
	})

	return updated, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		return mapInventoryError(invErr)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

// generateOrderNumber derives the human-readable order number from the
// checkout timestamp plus a short random suffix taken from ID entropy.
func (s *orderService) generateOrderNumber(now time.Time) string {
	id := s.newID()
	suffix := strings.ToUpper(id)
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return fmt.Sprintf("BC-%s-%s", now.Format("20060102150405"), suffix)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func buildOrderLineItems(items []CartItem) []OrderLineItem {
	lines := make([]OrderLineItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, OrderLineItem{
			VariantID:   strings.TrimSpace(item.VariantID),
			SKU:         strings.TrimSpace(item.SKU),
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			Total:       domain.LineTotal(item.UnitPrice, item.Quantity),
			WeightGrams: item.WeightGrams,
		})
	}
	return lines
}

func pricingLines(items []OrderLineItem) []domain.PricingLine {
	lines := make([]domain.PricingLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, domain.PricingLine{UnitPrice: item.UnitPrice, Quantity: item.Quantity})
	}
	return lines
}

func stockLines(items []OrderLineItem) []InventoryLine {
	lines := make([]InventoryLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, InventoryLine{
			VariantID: item.VariantID,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
		})
	}
	return lines
}

func transitionMetadata(note string, releaseLines []InventoryLine) map[string]any {
	metadata := map[string]any{}
	if note = strings.TrimSpace(note); note != "" {
		metadata["note"] = note
	}
	if len(releaseLines) > 0 {
		metadata["releasedLines"] = len(releaseLines)
	}
	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

func defaultRole(role string) string {
	if role == "" {
		return "customer"
	}
	return role
}

func cloneAddress(addr *Address) *Address {
	if addr == nil {
		return nil
	}
	cloned := *addr
	return &cloned
}

func valuePtr[T any](v T) *T {
	return &v
}

func canTransition(current, target domain.OrderStatus) bool {
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
