package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/platform/auth"
	"github.com/brightcart/api/internal/platform/httpx"
	"github.com/brightcart/api/internal/services"
)

var errBodyTooLarge = errors.New("request body too large")

// requireIdentity extracts the authenticated identity or writes a 401.
func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func primaryRole(identity *auth.Identity) string {
	if identity == nil || len(identity.Roles) == 0 {
		return auth.RoleCustomer
	}
	if identity.IsStaff() {
		if identity.HasRole(auth.RoleAdmin) {
			return auth.RoleAdmin
		}
		return auth.RoleManager
	}
	return identity.Roles[0]
}

// decodeJSONBody reads a bounded JSON body into dst, writing the error
// response itself when decoding fails. A missing body is rejected.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

// readLimitedBody drains at most limit bytes and rejects anything larger.
func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	return body, nil
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return formatTime(*ts)
}

func parseTimeParam(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, raw)
}

// parseFilterValues splits repeated and comma-separated query values.
func parseFilterValues(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parsePageSize(raw string, fallback, max int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, true
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	switch {
	case size <= 0:
		return fallback, true
	case size > max:
		return max, true
	default:
		return size, true
	}
}

type addressPayload struct {
	Recipient  string  `json:"recipient"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      *string `json:"state,omitempty"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

func (p *addressPayload) toDomain() *domain.Address {
	if p == nil {
		return nil
	}
	return &domain.Address{
		Recipient:  strings.TrimSpace(p.Recipient),
		Line1:      strings.TrimSpace(p.Line1),
		Line2:      p.Line2,
		City:       strings.TrimSpace(p.City),
		State:      p.State,
		PostalCode: strings.TrimSpace(p.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(p.Country)),
		Phone:      p.Phone,
	}
}

func buildAddressPayload(addr domain.Address) addressPayload {
	return addressPayload{
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

type orderPayload struct {
	ID              string                `json:"id"`
	OrderNumber     string                `json:"order_number"`
	UserID          string                `json:"user_id"`
	Status          string                `json:"status"`
	Currency        string                `json:"currency"`
	Totals          orderTotalsPayload    `json:"totals"`
	Items           []orderItemPayload    `json:"items"`
	History         []orderHistoryPayload `json:"history,omitempty"`
	ShippingAddress *addressPayload       `json:"shipping_address,omitempty"`
	BillingAddress  *addressPayload       `json:"billing_address,omitempty"`
	ShippingMethod  string                `json:"shipping_method,omitempty"`
	PaymentMethod   string                `json:"payment_method,omitempty"`
	Notes           string                `json:"notes,omitempty"`
	CreatedAt       string                `json:"created_at"`
	UpdatedAt       string                `json:"updated_at,omitempty"`
	CancelledAt     string                `json:"cancelled_at,omitempty"`
	DeliveredAt     string                `json:"delivered_at,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

type orderItemPayload struct {
	VariantID   string `json:"variant_id"`
	SKU         string `json:"sku"`
	ProductName string `json:"product_name,omitempty"`
	VariantName string `json:"variant_name,omitempty"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	Total       int64  `json:"total"`
}

type orderHistoryPayload struct {
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Currency:    strings.ToUpper(order.Currency),
		Totals: orderTotalsPayload{
			Subtotal: order.Totals.Subtotal,
			Shipping: order.Totals.Shipping,
			Tax:      order.Totals.Tax,
			Total:    order.Totals.Total,
		},
		Items:          make([]orderItemPayload, 0, len(order.Items)),
		ShippingMethod: order.ShippingMethod,
		PaymentMethod:  order.PaymentMethod,
		Notes:          order.Notes,
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
		CancelledAt:    formatTimePtr(order.CancelledAt),
		DeliveredAt:    formatTimePtr(order.DeliveredAt),
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			VariantID:   item.VariantID,
			SKU:         item.SKU,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			Total:       item.Total,
		})
	}

	for _, entry := range order.History {
		payload.History = append(payload.History, buildHistoryPayload(entry))
	}

	if order.ShippingAddress != nil {
		addr := buildAddressPayload(*order.ShippingAddress)
		payload.ShippingAddress = &addr
	}
	if order.BillingAddress != nil {
		addr := buildAddressPayload(*order.BillingAddress)
		payload.BillingAddress = &addr
	}

	return payload
}

func buildHistoryPayload(entry services.OrderStatusHistoryEntry) orderHistoryPayload {
	return orderHistoryPayload{
		Status:    string(entry.Status),
		Note:      entry.Note,
		ActorID:   entry.ActorID,
		CreatedAt: formatTime(entry.CreatedAt),
	}
}

type paymentPayload struct {
	ID            string `json:"id"`
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Method        string `json:"method,omitempty"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

func buildPaymentPayload(payment services.Payment) paymentPayload {
	return paymentPayload{
		ID:            payment.ID,
		OrderID:       payment.OrderID,
		Amount:        payment.Amount,
		Currency:      strings.ToUpper(payment.Currency),
		Method:        payment.Method,
		Status:        string(payment.Status),
		TransactionID: payment.TransactionID,
		CreatedAt:     formatTime(payment.CreatedAt),
		UpdatedAt:     formatTime(payment.UpdatedAt),
	}
}

type invoicePayload struct {
	ID            string `json:"id"`
	InvoiceNumber string `json:"invoice_number"`
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Tax           int64  `json:"tax"`
	Total         int64  `json:"total"`
	Currency      string `json:"currency"`
	IssuedAt      string `json:"issued_at"`
	DueAt         string `json:"due_at"`
}

func buildInvoicePayload(invoice services.Invoice) invoicePayload {
	return invoicePayload{
		ID:            invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		OrderID:       invoice.OrderID,
		Status:        string(invoice.Status),
		Amount:        invoice.Amount,
		Tax:           invoice.Tax,
		Total:         invoice.Total,
		Currency:      strings.ToUpper(invoice.Currency),
		IssuedAt:      formatTime(invoice.IssuedAt),
		DueAt:         formatTime(invoice.DueAt),
	}
}

type shipmentPayload struct {
	ID                string                 `json:"id"`
	OrderID           string                 `json:"order_id"`
	Carrier           string                 `json:"carrier"`
	TrackingNumber    string                 `json:"tracking_number"`
	Status            string                 `json:"status"`
	LabelURL          string                 `json:"label_url,omitempty"`
	EstimatedDelivery string                 `json:"estimated_delivery,omitempty"`
	Events            []shipmentEventPayload `json:"events,omitempty"`
	CreatedAt         string                 `json:"created_at"`
	UpdatedAt         string                 `json:"updated_at,omitempty"`
}

type shipmentEventPayload struct {
	Status     string `json:"status"`
	Location   string `json:"location,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

func buildShipmentPayload(shipment services.Shipment) shipmentPayload {
	payload := shipmentPayload{
		ID:                shipment.ID,
		OrderID:           shipment.OrderID,
		Carrier:           shipment.Carrier,
		TrackingNumber:    shipment.TrackingNumber,
		Status:            shipment.Status,
		LabelURL:          shipment.LabelURL,
		EstimatedDelivery: formatTimePtr(shipment.EstimatedDelivery),
		CreatedAt:         formatTime(shipment.CreatedAt),
		UpdatedAt:         formatTime(shipment.UpdatedAt),
	}
	for _, event := range shipment.Events {
		payload.Events = append(payload.Events, shipmentEventPayload{
			Status:     event.Status,
			Location:   event.Location,
			OccurredAt: formatTime(event.OccurredAt),
		})
	}
	return payload
}

type inventoryRecordPayload struct {
	VariantID        string `json:"variant_id"`
	SKU              string `json:"sku,omitempty"`
	OnHand           int    `json:"on_hand"`
	Reserved         int    `json:"reserved"`
	Available        int    `json:"available"`
	ReorderThreshold int    `json:"reorder_threshold"`
	ReorderQuantity  int    `json:"reorder_quantity"`
	UpdatedAt        string `json:"updated_at,omitempty"`
}

func buildInventoryRecordPayload(record services.InventoryRecord) inventoryRecordPayload {
	return inventoryRecordPayload{
		VariantID:        record.VariantID,
		SKU:              record.SKU,
		OnHand:           record.OnHand,
		Reserved:         record.Reserved,
		Available:        record.Available,
		ReorderThreshold: record.ReorderThreshold,
		ReorderQuantity:  record.ReorderQuantity,
		UpdatedAt:        formatTime(record.UpdatedAt),
	}
}
