package services

import (
	"context"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination              = domain.Pagination
	SortOrder               = domain.SortOrder
	Order                   = domain.Order
	OrderStatus             = domain.OrderStatus
	OrderTotals             = domain.OrderTotals
	OrderLineItem           = domain.OrderLineItem
	OrderStatusHistoryEntry = domain.OrderStatusHistoryEntry
	Payment                 = domain.Payment
	PaymentStatus           = domain.PaymentStatus
	Invoice                 = domain.Invoice
	InvoiceStatus           = domain.InvoiceStatus
	Shipment                = domain.Shipment
	ShipmentEvent           = domain.ShipmentEvent
	InventoryRecord         = domain.InventoryRecord
	InventoryLine           = domain.InventoryLine
	Cart                    = domain.Cart
	CartItem                = domain.CartItem
	Address                 = domain.Address
	RateQuote               = domain.RateQuote
	SystemHealthReport      = domain.SystemHealthReport
)

// OrderService owns the order lifecycle: checkout from a cart, the status
// state machine, cancellation, and read surfaces.
type OrderService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
	GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	ListHistory(ctx context.Context, orderID string) ([]OrderStatusHistoryEntry, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// CartService manages the mutable cart that checkout consumes.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	ReplaceItems(ctx context.Context, cmd ReplaceCartItemsCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// InventoryService centralizes stock reservation, release, and admin adjustment.
type InventoryService interface {
	Reserve(ctx context.Context, cmd InventoryReserveCommand) ([]InventoryRecord, error)
	Release(ctx context.Context, cmd InventoryReleaseCommand) ([]InventoryRecord, error)
	GetStock(ctx context.Context, variantID string) (InventoryRecord, error)
	Adjust(ctx context.Context, cmd InventoryAdjustCommand) (InventoryRecord, error)
	ListLowStock(ctx context.Context, filter InventoryLowStockFilter) (domain.CursorPage[InventoryRecord], error)
}

// PaymentService reconciles gateway state with the local payment record and
// drives payment-triggered order transitions.
type PaymentService interface {
	InitiateGatewayOrder(ctx context.Context, cmd InitiatePaymentCommand) (PaymentInstructions, error)
	VerifyCallback(ctx context.Context, cmd VerifyPaymentCommand) (Payment, error)
	HandleWebhook(ctx context.Context, cmd PaymentWebhookCommand)
	Refund(ctx context.Context, cmd RefundPaymentCommand) (Payment, error)
	GetByOrder(ctx context.Context, orderID string) (Payment, error)
}

// InvoiceService issues at most one invoice per order and manages its status.
type InvoiceService interface {
	Create(ctx context.Context, cmd CreateInvoiceCommand) (Invoice, error)
	UpdateStatus(ctx context.Context, cmd InvoiceStatusCommand) (Invoice, error)
	Get(ctx context.Context, invoiceID string) (Invoice, error)
	GetByOrder(ctx context.Context, orderID string) (Invoice, error)
}

// ShippingService purchases labels, refreshes carrier tracking, and quotes rates.
type ShippingService interface {
	CreateLabel(ctx context.Context, cmd CreateLabelCommand) (Shipment, error)
	RefreshTracking(ctx context.Context, trackingNumber string) (Shipment, error)
	QuoteRate(ctx context.Context, cmd RateQuoteCommand) (RateQuote, error)
	ListByOrder(ctx context.Context, orderID string) ([]Shipment, error)
}

// SystemService aggregates utility endpoints (health checks, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// Command and DTO definitions ------------------------------------------------

type OrderListFilter = repositories.OrderListFilter

// CheckoutCommand carries everything needed to convert a user's cart into an order.
type CheckoutCommand struct {
	UserID          string
	ActorID         string
	ShippingAddress *Address
	BillingAddress  *Address
	ShippingMethod  string
	PaymentMethod   string
	Notes           string
}

// CheckoutResult returns the persisted order and its pending payment.
type CheckoutResult struct {
	Order   Order
	Payment Payment
}

type OrderReadOptions struct {
	IncludeHistory bool
}

type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
	Note         string
}

type CancelOrderCommand struct {
	OrderID   string
	ActorID   string
	ActorRole string
	Reason    string
}

type ReplaceCartItemsCommand struct {
	UserID   string
	Currency string
	Items    []CartItem
}

type InventoryReserveCommand struct {
	Lines []InventoryLine
}

type InventoryReleaseCommand struct {
	Lines  []InventoryLine
	Reason string
}

type InventoryAdjustCommand struct {
	VariantID        string
	SKU              *string
	OnHand           *int
	ReorderThreshold *int
	ReorderQuantity  *int
	ActorID          string
}

type InventoryLowStockFilter struct {
	Pagination Pagination
}

type InitiatePaymentCommand struct {
	OrderID string
	UserID  string
	Gateway string
}

// PaymentInstructions is the client-facing payload for completing a gateway
// payment in the browser. It never carries the secret key.
type PaymentInstructions struct {
	PaymentID      string
	GatewayOrderID string
	Gateway        string
	KeyID          string
	Amount         int64
	Currency       string
}

type VerifyPaymentCommand struct {
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Gateway          string
}

type PaymentWebhookCommand struct {
	Gateway   string
	Payload   []byte
	Signature string
}

type RefundPaymentCommand struct {
	PaymentID string
	ActorID   string
	Amount    *int64
	Reason    string
}

type CreateInvoiceCommand struct {
	OrderID string
	ActorID string
}

type InvoiceStatusCommand struct {
	InvoiceID string
	Status    InvoiceStatus
	ActorID   string
}

type CreateLabelCommand struct {
	OrderID string
	ActorID string
	Service string
}

type RateQuoteCommand struct {
	Service     string
	WeightGrams int64
	Destination Address
}

type CounterCommand struct {
	CounterID string
	Step      int64
}
