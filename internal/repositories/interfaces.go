package repositories

import (
	"context"
	"time"

	domain "github.com/brightcart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Inventory() InventoryRepository
	Payments() PaymentRepository
	Invoices() InvoiceRepository
	Shipments() ShipmentRepository
	Carts() CartRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order aggregates. The multi-document write paths
// (checkout, transitions) execute inside a single storage transaction so the
// aggregate, its history, and any inventory movements commit or abort together.
type OrderRepository interface {
	// Checkout atomically decrements stock for every line, creates the order
	// with its items and initial history entry, creates the pending payment,
	// and clears the originating cart. Insufficient stock on any line aborts
	// the whole operation.
	Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error)
	// ApplyTransition writes the new status, appends exactly one history
	// entry, and applies any inventory releases in the same transaction.
	ApplyTransition(ctx context.Context, req OrderTransitionRequest) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListHistory(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error)
}

// CheckoutRequest bundles all documents the checkout transaction writes.
type CheckoutRequest struct {
	Order       domain.Order
	Payment     domain.Payment
	StockLines  []domain.InventoryLine
	ClearCartID string
	Now         time.Time
}

// CheckoutResult returns the persisted aggregate and payment.
type CheckoutResult struct {
	Order   domain.Order
	Payment domain.Payment
}

// OrderTransitionRequest describes a status transition write.
type OrderTransitionRequest struct {
	OrderID      string
	Status       domain.OrderStatus
	History      domain.OrderStatusHistoryEntry
	ReleaseLines []domain.InventoryLine
	CancelledAt  *time.Time
	DeliveredAt  *time.Time
	Now          time.Time
}

// InventoryRepository manages per-variant stock levels with transactional guarantees.
type InventoryRepository interface {
	// Reserve decrements on-hand for every line in one transaction. Any line
	// with insufficient stock aborts the whole batch.
	Reserve(ctx context.Context, lines []domain.InventoryLine, now time.Time) ([]domain.InventoryRecord, error)
	// Release restores previously decremented quantities.
	Release(ctx context.Context, lines []domain.InventoryLine, now time.Time) ([]domain.InventoryRecord, error)
	Get(ctx context.Context, variantID string) (domain.InventoryRecord, error)
	// Adjust overwrites the absolute stock figures for a variant.
	Adjust(ctx context.Context, req InventoryAdjustRequest) (domain.InventoryRecord, error)
	ListLowStock(ctx context.Context, query InventoryLowStockQuery) (domain.CursorPage[domain.InventoryRecord], error)
}

// InventoryAdjustRequest carries absolute corrections for a stock record.
type InventoryAdjustRequest struct {
	VariantID        string
	SKU              *string
	OnHand           *int
	ReorderThreshold *int
	ReorderQuantity  *int
	Now              time.Time
}

// InventoryLowStockQuery controls pagination for low stock listings.
type InventoryLowStockQuery struct {
	PageSize  int
	PageToken string
}

// PaymentRepository stores payment records. One payment exists per order.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (domain.Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (domain.Payment, error)
}

// InvoiceRepository stores invoices. Insert must reject a second invoice for
// the same order with a conflict error.
type InvoiceRepository interface {
	Insert(ctx context.Context, invoice domain.Invoice) error
	Update(ctx context.Context, invoice domain.Invoice) error
	FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error)
	FindByOrderID(ctx context.Context, orderID string) (domain.Invoice, error)
}

// ShipmentRepository stores carrier tracking records for orders.
type ShipmentRepository interface {
	Insert(ctx context.Context, shipment domain.Shipment) error
	Update(ctx context.Context, shipment domain.Shipment) error
	FindByID(ctx context.Context, shipmentID string) (domain.Shipment, error)
	FindByTrackingNumber(ctx context.Context, trackingNumber string) (domain.Shipment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Shipment, error)
}

// CartRepository owns cart header + items persistence.
type CartRepository interface {
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	UserID     string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
