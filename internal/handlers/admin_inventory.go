package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/brightcart/api/internal/platform/auth"
	"github.com/brightcart/api/internal/platform/httpx"
	"github.com/brightcart/api/internal/services"
)

const (
	maxInventoryBodySize     = 16 * 1024
	defaultInventoryPageSize = 50
	maxInventoryPageSize     = 200
)

type inventoryAdjustRequest struct {
	SKU              *string `json:"sku"`
	OnHand           *int    `json:"on_hand"`
	ReorderThreshold *int    `json:"reorder_threshold"`
	ReorderQuantity  *int    `json:"reorder_quantity"`
}

type inventoryRecordResponse struct {
	Record inventoryRecordPayload `json:"record"`
}

type inventoryListResponse struct {
	Items         []inventoryRecordPayload `json:"items"`
	NextPageToken string                   `json:"next_page_token,omitempty"`
}

// AdminInventoryHandlers exposes staff-only stock management endpoints.
type AdminInventoryHandlers struct {
	authn     *auth.Authenticator
	inventory services.InventoryService
}

// NewAdminInventoryHandlers constructs a new AdminInventoryHandlers instance.
func NewAdminInventoryHandlers(authn *auth.Authenticator, inventory services.InventoryService) *AdminInventoryHandlers {
	return &AdminInventoryHandlers{
		authn:     authn,
		inventory: inventory,
	}
}

// Routes registers the /admin endpoints. The whole group is gated on staff
// roles at the middleware level.
func (h *AdminInventoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin, auth.RoleManager))
	}
	r.Get("/inventory/low-stock", h.listLowStock)
	r.Get("/inventory/{variantID}", h.getStock)
	r.Put("/inventory/{variantID}", h.adjust)
}

func (h *AdminInventoryHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	query := r.URL.Query()
	pageSize, valid := parsePageSize(query.Get("page_size"), defaultInventoryPageSize, maxInventoryPageSize)
	if !valid {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	page, err := h.inventory.ListLowStock(ctx, services.InventoryLowStockFilter{
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	items := make([]inventoryRecordPayload, 0, len(page.Items))
	for _, record := range page.Items {
		items = append(items, buildInventoryRecordPayload(record))
	}

	httpx.WriteJSON(w, http.StatusOK, inventoryListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminInventoryHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	variantID := strings.TrimSpace(chi.URLParam(r, "variantID"))
	if variantID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "variant id is required", http.StatusBadRequest))
		return
	}

	record, err := h.inventory.GetStock(ctx, variantID)
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, inventoryRecordResponse{Record: buildInventoryRecordPayload(record)})
}

func (h *AdminInventoryHandlers) adjust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	variantID := strings.TrimSpace(chi.URLParam(r, "variantID"))
	if variantID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "variant id is required", http.StatusBadRequest))
		return
	}

	var req inventoryAdjustRequest
	if !decodeJSONBody(ctx, w, r, maxInventoryBodySize, &req) {
		return
	}

	record, err := h.inventory.Adjust(ctx, services.InventoryAdjustCommand{
		VariantID:        variantID,
		SKU:              req.SKU,
		OnHand:           req.OnHand,
		ReorderThreshold: req.ReorderThreshold,
		ReorderQuantity:  req.ReorderQuantity,
		ActorID:          identity.UID,
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, inventoryRecordResponse{Record: buildInventoryRecordPayload(record)})
}

func writeInventoryError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInventoryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("stock_not_found", "stock record not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInventoryInsufficient):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "failed to process inventory request", http.StatusInternalServerError))
	}
}
