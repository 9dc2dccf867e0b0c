package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed and awaits payment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates payment completed and fulfilment can begin.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusConfirmed indicates the order was manually confirmed by operations.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusReadyToShip indicates the order is packed and awaits carrier handoff.
	OrderStatusReadyToShip OrderStatus = "ready_to_ship"
	// OrderStatusShipped indicates a shipping label exists and the parcel left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the carrier reported delivery.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before shipment.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded indicates the payment was returned to the customer.
	OrderStatusRefunded OrderStatus = "refunded"
)

// PaymentStatus enumerates lifecycle states for payments.
type PaymentStatus string

const (
	// PaymentStatusPending indicates the payment row exists but no capture happened.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusProcessing indicates a gateway order was created and awaits the customer.
	PaymentStatusProcessing PaymentStatus = "processing"
	// PaymentStatusCompleted indicates the gateway captured the funds.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed indicates capture or verification failed.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the captured amount was returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// InvoiceStatus enumerates lifecycle states for invoices.
type InvoiceStatus string

const (
	// InvoiceStatusIssued indicates the invoice was generated and sent.
	InvoiceStatusIssued InvoiceStatus = "issued"
	// InvoiceStatusPaid indicates the invoice was settled.
	InvoiceStatusPaid InvoiceStatus = "paid"
	// InvoiceStatusCancelled indicates the invoice was voided.
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
	// InvoiceStatusRefunded indicates the settled amount was returned.
	InvoiceStatusRefunded InvoiceStatus = "refunded"
)

// Order captures the order aggregate header returned to handlers/services.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Status          OrderStatus
	Currency        string
	Totals          OrderTotals
	Items           []OrderLineItem
	History         []OrderStatusHistoryEntry
	ShippingAddress *Address
	BillingAddress  *Address
	ShippingMethod  string
	PaymentMethod   string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CancelledAt     *time.Time
	DeliveredAt     *time.Time
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
type OrderTotals struct {
	Subtotal int64
	Shipping int64
	Tax      int64
	Total    int64
}

// OrderLineItem is an immutable snapshot of a cart line at checkout time.
type OrderLineItem struct {
	VariantID   string
	SKU         string
	ProductName string
	VariantName string
	UnitPrice   int64
	Quantity    int
	Total       int64
	WeightGrams int
}

// OrderStatusHistoryEntry records a single status transition. Entries are
// append-only; one is written per transition including the initial pending.
type OrderStatusHistoryEntry struct {
	ID        string
	OrderID   string
	Status    OrderStatus
	Note      string
	ActorID   string
	CreatedAt time.Time
}

// Payment encapsulates settlement status and gateway references for an order.
// At most one payment exists per order.
type Payment struct {
	ID            string
	OrderID       string
	UserID        string
	Amount        int64
	Currency      string
	Method        string
	Status        PaymentStatus
	TransactionID string
	Details       map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Invoice represents the billing document issued for an order.
type Invoice struct {
	ID            string
	InvoiceNumber string
	OrderID       string
	Status        InvoiceStatus
	Amount        int64
	Tax           int64
	Total         int64
	Currency      string
	IssuedAt      time.Time
	DueAt         time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Shipment represents a carrier tracking record for an order.
type Shipment struct {
	ID                string
	OrderID           string
	Carrier           string
	TrackingNumber    string
	Status            string
	LabelURL          string
	EstimatedDelivery *time.Time
	Events            []ShipmentEvent
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ShipmentEvent stores timestamped updates from carriers.
type ShipmentEvent struct {
	Status     string
	Location   string
	OccurredAt time.Time
}

// InventoryRecord tracks per-variant stock levels. OnHand never goes negative.
type InventoryRecord struct {
	VariantID        string
	SKU              string
	OnHand           int
	Reserved         int
	Available        int
	ReorderThreshold int
	ReorderQuantity  int
	UpdatedAt        time.Time
}

// InventoryLine stores a per-variant quantity for reserve/release operations.
type InventoryLine struct {
	VariantID string
	SKU       string
	Quantity  int
}

// Cart aggregates the mutable shopping cart state for a user.
type Cart struct {
	ID              string
	UserID          string
	Currency        string
	Items           []CartItem
	ShippingAddress *Address
	BillingAddress  *Address
	UpdatedAt       time.Time
}

// CartItem stores a single variant entry within a cart.
type CartItem struct {
	VariantID   string
	SKU         string
	ProductName string
	VariantName string
	UnitPrice   int64
	Quantity    int
	WeightGrams int
	AddedAt     time.Time
}

// Address represents postal address snapshots shared by cart and order layers.
type Address struct {
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
	Phone      *string
}

// RateQuote is a carrier shipping cost estimate for a parcel.
type RateQuote struct {
	Carrier      string
	Service      string
	Amount       int64
	Currency     string
	EstimatedDay int
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
