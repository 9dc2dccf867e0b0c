package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/services"
)

type stubInventoryHandlerService struct {
	reserveFn  func(context.Context, services.InventoryReserveCommand) ([]services.InventoryRecord, error)
	releaseFn  func(context.Context, services.InventoryReleaseCommand) ([]services.InventoryRecord, error)
	getFn      func(context.Context, string) (services.InventoryRecord, error)
	adjustFn   func(context.Context, services.InventoryAdjustCommand) (services.InventoryRecord, error)
	lowStockFn func(context.Context, services.InventoryLowStockFilter) (domain.CursorPage[services.InventoryRecord], error)
}

func (s *stubInventoryHandlerService) Reserve(ctx context.Context, cmd services.InventoryReserveCommand) ([]services.InventoryRecord, error) {
	if s.reserveFn != nil {
		return s.reserveFn(ctx, cmd)
	}
	return nil, errors.New("unexpected Reserve call")
}

func (s *stubInventoryHandlerService) Release(ctx context.Context, cmd services.InventoryReleaseCommand) ([]services.InventoryRecord, error) {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, cmd)
	}
	return nil, errors.New("unexpected Release call")
}

func (s *stubInventoryHandlerService) GetStock(ctx context.Context, variantID string) (services.InventoryRecord, error) {
	if s.getFn != nil {
		return s.getFn(ctx, variantID)
	}
	return services.InventoryRecord{}, errors.New("unexpected GetStock call")
}

func (s *stubInventoryHandlerService) Adjust(ctx context.Context, cmd services.InventoryAdjustCommand) (services.InventoryRecord, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, cmd)
	}
	return services.InventoryRecord{}, errors.New("unexpected Adjust call")
}

func (s *stubInventoryHandlerService) ListLowStock(ctx context.Context, filter services.InventoryLowStockFilter) (domain.CursorPage[services.InventoryRecord], error) {
	if s.lowStockFn != nil {
		return s.lowStockFn(ctx, filter)
	}
	return domain.CursorPage[services.InventoryRecord]{}, errors.New("unexpected ListLowStock call")
}

func newAdminRouter(service services.InventoryService) chi.Router {
	handler := NewAdminInventoryHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/admin", handler.Routes)
	return router
}

func sampleRecord() services.InventoryRecord {
	return services.InventoryRecord{
		VariantID:        "var-1",
		SKU:              "SKU-1",
		OnHand:           3,
		Reserved:         1,
		Available:        2,
		ReorderThreshold: 5,
		ReorderQuantity:  20,
		UpdatedAt:        time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC),
	}
}

func TestAdminInventoryHandlersListLowStock(t *testing.T) {
	var captured services.InventoryLowStockFilter
	service := &stubInventoryHandlerService{
		lowStockFn: func(ctx context.Context, filter services.InventoryLowStockFilter) (domain.CursorPage[services.InventoryRecord], error) {
			captured = filter
			return domain.CursorPage[services.InventoryRecord]{
				Items:         []services.InventoryRecord{sampleRecord()},
				NextPageToken: "tok-next",
			}, nil
		},
	}
	router := newAdminRouter(service)

	req := asAdmin(httptest.NewRequest(http.MethodGet, "/admin/inventory/low-stock?page_size=25&page_token=tok1", nil), "admin-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Pagination.PageSize != 25 || captured.Pagination.PageToken != "tok1" {
		t.Fatalf("unexpected pagination %#v", captured.Pagination)
	}

	var resp inventoryListResponse
	decodeData(t, rr, &resp)
	if len(resp.Items) != 1 || resp.Items[0].VariantID != "var-1" {
		t.Fatalf("unexpected low stock payload %#v", resp.Items)
	}
	if resp.Items[0].Available != 2 {
		t.Fatalf("expected available 2, got %d", resp.Items[0].Available)
	}
	if resp.NextPageToken != "tok-next" {
		t.Fatalf("expected next page token tok-next, got %s", resp.NextPageToken)
	}
}

func TestAdminInventoryHandlersAdjust(t *testing.T) {
	var captured services.InventoryAdjustCommand
	service := &stubInventoryHandlerService{
		adjustFn: func(ctx context.Context, cmd services.InventoryAdjustCommand) (services.InventoryRecord, error) {
			captured = cmd
			record := sampleRecord()
			record.OnHand = *cmd.OnHand
			return record, nil
		},
	}
	router := newAdminRouter(service)

	req := asAdmin(httptest.NewRequest(http.MethodPut, "/admin/inventory/var-1", bytes.NewBufferString(`{"on_hand":50,"reorder_threshold":10}`)), "admin-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.VariantID != "var-1" || captured.ActorID != "admin-1" {
		t.Fatalf("unexpected adjust command %#v", captured)
	}
	if captured.OnHand == nil || *captured.OnHand != 50 {
		t.Fatalf("expected on_hand 50, got %#v", captured.OnHand)
	}
	if captured.ReorderThreshold == nil || *captured.ReorderThreshold != 10 {
		t.Fatalf("expected reorder_threshold 10, got %#v", captured.ReorderThreshold)
	}
	if captured.ReorderQuantity != nil {
		t.Fatalf("expected untouched reorder_quantity, got %#v", captured.ReorderQuantity)
	}
}

func TestAdminInventoryHandlersAdjustUnknownVariant(t *testing.T) {
	service := &stubInventoryHandlerService{
		adjustFn: func(ctx context.Context, cmd services.InventoryAdjustCommand) (services.InventoryRecord, error) {
			return services.InventoryRecord{}, services.ErrInventoryNotFound
		},
	}
	router := newAdminRouter(service)

	req := asAdmin(httptest.NewRequest(http.MethodPut, "/admin/inventory/var-404", bytes.NewBufferString(`{"on_hand":1}`)), "admin-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	expectErrorCode(t, rr, http.StatusNotFound, "stock_not_found")
}

func TestAdminInventoryHandlersGetStock(t *testing.T) {
	service := &stubInventoryHandlerService{
		getFn: func(ctx context.Context, variantID string) (services.InventoryRecord, error) {
			if variantID != "var-1" {
				t.Fatalf("unexpected variant id %s", variantID)
			}
			return sampleRecord(), nil
		},
	}
	router := newAdminRouter(service)

	req := asAdmin(httptest.NewRequest(http.MethodGet, "/admin/inventory/var-1", nil), "admin-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp inventoryRecordResponse
	decodeData(t, rr, &resp)
	if resp.Record.SKU != "SKU-1" || resp.Record.ReorderQuantity != 20 {
		t.Fatalf("unexpected record payload %#v", resp.Record)
	}
}
