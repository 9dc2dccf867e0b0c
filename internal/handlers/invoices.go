package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/platform/auth"
	"github.com/brightcart/api/internal/platform/httpx"
	"github.com/brightcart/api/internal/services"
)

const maxInvoiceBodySize = 16 * 1024

var knownInvoiceStatuses = map[domain.InvoiceStatus]struct{}{
	domain.InvoiceStatusIssued:    {},
	domain.InvoiceStatusPaid:      {},
	domain.InvoiceStatusCancelled: {},
	domain.InvoiceStatusRefunded:  {},
}

type invoiceStatusRequest struct {
	Status string `json:"status"`
}

type invoiceResponse struct {
	Invoice invoicePayload `json:"invoice"`
}

// InvoiceHandlers exposes invoice generation and the staff-only status update.
type InvoiceHandlers struct {
	authn    *auth.Authenticator
	invoices services.InvoiceService
}

// NewInvoiceHandlers constructs a new InvoiceHandlers instance.
func NewInvoiceHandlers(authn *auth.Authenticator, invoices services.InvoiceService) *InvoiceHandlers {
	return &InvoiceHandlers{
		authn:    authn,
		invoices: invoices,
	}
}

// Routes registers the /invoices endpoints.
func (h *InvoiceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/{invoiceID}", h.getInvoice)
	r.Put("/{invoiceID}/status", h.updateStatus)
}

// OrderRoutes registers invoice endpoints nested under /orders. The caller
// mounts these inside the order group so they share its auth middleware.
func (h *InvoiceHandlers) OrderRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{orderID}/invoice", h.createForOrder)
	r.Get("/{orderID}/invoice", h.getForOrder)
}

func (h *InvoiceHandlers) createForOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	invoice, err := h.invoices.Create(ctx, services.CreateInvoiceCommand{
		OrderID: orderID,
		ActorID: identity.UID,
	})
	if err != nil {
		writeInvoiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, invoiceResponse{Invoice: buildInvoicePayload(invoice)})
}

func (h *InvoiceHandlers) getForOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	invoice, err := h.invoices.GetByOrder(ctx, orderID)
	if err != nil {
		writeInvoiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, invoiceResponse{Invoice: buildInvoicePayload(invoice)})
}

func (h *InvoiceHandlers) getInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	invoiceID := strings.TrimSpace(chi.URLParam(r, "invoiceID"))
	if invoiceID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invoice id is required", http.StatusBadRequest))
		return
	}

	invoice, err := h.invoices.Get(ctx, invoiceID)
	if err != nil {
		writeInvoiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, invoiceResponse{Invoice: buildInvoicePayload(invoice)})
}

func (h *InvoiceHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !identity.IsStaff() {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "staff role required", http.StatusForbidden))
		return
	}

	invoiceID := strings.TrimSpace(chi.URLParam(r, "invoiceID"))
	if invoiceID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invoice id is required", http.StatusBadRequest))
		return
	}

	var req invoiceStatusRequest
	if !decodeJSONBody(ctx, w, r, maxInvoiceBodySize, &req) {
		return
	}

	status := domain.InvoiceStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if _, known := knownInvoiceStatuses[status]; !known {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid invoice status", http.StatusBadRequest))
		return
	}

	invoice, err := h.invoices.UpdateStatus(ctx, services.InvoiceStatusCommand{
		InvoiceID: invoiceID,
		Status:    status,
		ActorID:   identity.UID,
	})
	if err != nil {
		writeInvoiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, invoiceResponse{Invoice: buildInvoicePayload(invoice)})
}

func writeInvoiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInvoiceInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvoiceNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_not_found", "invoice not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInvoiceConflict):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_conflict", "an invoice already exists for this order", http.StatusConflict))
	case errors.Is(err, services.ErrInvoiceInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_invalid_state", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invoice_error", "failed to process invoice request", http.StatusInternalServerError))
	}
}
