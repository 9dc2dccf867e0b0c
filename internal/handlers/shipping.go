package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/brightcart/api/internal/platform/auth"
	"github.com/brightcart/api/internal/platform/httpx"
	"github.com/brightcart/api/internal/services"
)

const maxShippingBodySize = 32 * 1024

type createLabelRequest struct {
	Service string `json:"service"`
}

type rateQuoteRequest struct {
	Service     string          `json:"service"`
	WeightGrams int64           `json:"weight_grams"`
	Destination *addressPayload `json:"destination"`
}

type shipmentResponse struct {
	Shipment shipmentPayload `json:"shipment"`
}

type rateQuoteResponse struct {
	Carrier      string `json:"carrier"`
	Service      string `json:"service"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	EstimatedDay int    `json:"estimated_days,omitempty"`
}

// ShippingHandlers exposes label purchase, tracking, and rate quoting.
type ShippingHandlers struct {
	authn    *auth.Authenticator
	shipping services.ShippingService
}

// NewShippingHandlers constructs a new ShippingHandlers instance.
func NewShippingHandlers(authn *auth.Authenticator, shipping services.ShippingService) *ShippingHandlers {
	return &ShippingHandlers{
		authn:    authn,
		shipping: shipping,
	}
}

// Routes registers the /shipping endpoints.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/track/{trackingNumber}", h.track)
	r.Post("/rates", h.quoteRate)
}

// OrderRoutes registers shipping endpoints nested under /orders. The caller
// mounts these inside the order group so they share its auth middleware.
func (h *ShippingHandlers) OrderRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{orderID}/shipping/label", h.createLabel)
	r.Get("/{orderID}/shipments", h.listByOrder)
}

func (h *ShippingHandlers) createLabel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_service_unavailable", "shipping service unavailable", http.StatusServiceUnavailable))
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

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req createLabelRequest
	body, err := readLimitedBody(r, maxShippingBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	shipment, err := h.shipping.CreateLabel(ctx, services.CreateLabelCommand{
		OrderID: orderID,
		ActorID: identity.UID,
		Service: strings.TrimSpace(req.Service),
	})
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, shipmentResponse{Shipment: buildShipmentPayload(shipment)})
}

func (h *ShippingHandlers) track(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_service_unavailable", "shipping service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	trackingNumber := strings.TrimSpace(chi.URLParam(r, "trackingNumber"))
	if trackingNumber == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "tracking number is required", http.StatusBadRequest))
		return
	}

	shipment, err := h.shipping.RefreshTracking(ctx, trackingNumber)
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, shipmentResponse{Shipment: buildShipmentPayload(shipment)})
}

func (h *ShippingHandlers) quoteRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_service_unavailable", "shipping service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	var req rateQuoteRequest
	if !decodeJSONBody(ctx, w, r, maxShippingBodySize, &req) {
		return
	}
	if req.Destination == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "destination is required", http.StatusBadRequest))
		return
	}

	quote, err := h.shipping.QuoteRate(ctx, services.RateQuoteCommand{
		Service:     strings.TrimSpace(req.Service),
		WeightGrams: req.WeightGrams,
		Destination: *req.Destination.toDomain(),
	})
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, rateQuoteResponse{
		Carrier:      quote.Carrier,
		Service:      quote.Service,
		Amount:       quote.Amount,
		Currency:     strings.ToUpper(quote.Currency),
		EstimatedDay: quote.EstimatedDay,
	})
}

func (h *ShippingHandlers) listByOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_service_unavailable", "shipping service unavailable", http.StatusServiceUnavailable))
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

	shipments, err := h.shipping.ListByOrder(ctx, orderID)
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}

	items := make([]shipmentPayload, 0, len(shipments))
	for _, shipment := range shipments {
		items = append(items, buildShipmentPayload(shipment))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func writeShippingError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrShipmentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrShipmentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("shipment_not_found", "shipment not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrShipmentInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("shipment_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrShipmentCarrierFailure):
		httpx.WriteError(ctx, w, httpx.NewError("carrier_failure", "carrier unavailable", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("shipping_error", "failed to process shipping request", http.StatusInternalServerError))
	}
}
