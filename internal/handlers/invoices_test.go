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

type stubInvoiceHandlerService struct {
	createFn  func(context.Context, services.CreateInvoiceCommand) (services.Invoice, error)
	updateFn  func(context.Context, services.InvoiceStatusCommand) (services.Invoice, error)
	getFn     func(context.Context, string) (services.Invoice, error)
	byOrderFn func(context.Context, string) (services.Invoice, error)
}

func (s *stubInvoiceHandlerService) Create(ctx context.Context, cmd services.CreateInvoiceCommand) (services.Invoice, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Invoice{}, errors.New("unexpected Create call")
}

func (s *stubInvoiceHandlerService) UpdateStatus(ctx context.Context, cmd services.InvoiceStatusCommand) (services.Invoice, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Invoice{}, errors.New("unexpected UpdateStatus call")
}

func (s *stubInvoiceHandlerService) Get(ctx context.Context, invoiceID string) (services.Invoice, error) {
	if s.getFn != nil {
		return s.getFn(ctx, invoiceID)
	}
	return services.Invoice{}, errors.New("unexpected Get call")
}

func (s *stubInvoiceHandlerService) GetByOrder(ctx context.Context, orderID string) (services.Invoice, error) {
	if s.byOrderFn != nil {
		return s.byOrderFn(ctx, orderID)
	}
	return services.Invoice{}, errors.New("unexpected GetByOrder call")
}

func newInvoiceRouter(service services.InvoiceService) chi.Router {
	handler := NewInvoiceHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/invoices", handler.Routes)
	router.Route("/orders", handler.OrderRoutes)
	return router
}

func sampleInvoice(status domain.InvoiceStatus) services.Invoice {
	now := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	return services.Invoice{
		ID:            "inv-1",
		InvoiceNumber: "INV-2025-000042",
		OrderID:       "ord-1",
		Status:        status,
		Amount:        6000,
		Tax:           550,
		Total:         6550,
		Currency:      "eur",
		IssuedAt:      now,
		DueAt:         now.Add(30 * 24 * time.Hour),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestInvoiceHandlersCreateForOrder(t *testing.T) {
	var captured services.CreateInvoiceCommand
	service := &stubInvoiceHandlerService{
		createFn: func(ctx context.Context, cmd services.CreateInvoiceCommand) (services.Invoice, error) {
			captured = cmd
			return sampleInvoice(domain.InvoiceStatusIssued), nil
		},
	}
	router := newInvoiceRouter(service)

	req := asCustomer(httptest.NewRequest(http.MethodPost, "/orders/ord-1/invoice", nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord-1" || captured.ActorID != "user-1" {
		t.Fatalf("unexpected create command %#v", captured)
	}

	var resp invoiceResponse
	decodeData(t, rr, &resp)
	if resp.Invoice.InvoiceNumber != "INV-2025-000042" || resp.Invoice.Total != 6550 {
		t.Fatalf("unexpected invoice payload %#v", resp.Invoice)
	}
	if resp.Invoice.Currency != "EUR" {
		t.Fatalf("expected currency uppercased, got %s", resp.Invoice.Currency)
	}
}

func TestInvoiceHandlersCreateDuplicate(t *testing.T) {
	service := &stubInvoiceHandlerService{
		createFn: func(ctx context.Context, cmd services.CreateInvoiceCommand) (services.Invoice, error) {
			return services.Invoice{}, services.ErrInvoiceConflict
		},
	}
	router := newInvoiceRouter(service)

	req := asCustomer(httptest.NewRequest(http.MethodPost, "/orders/ord-1/invoice", nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	expectErrorCode(t, rr, http.StatusConflict, "invoice_conflict")
}

func TestInvoiceHandlersCreateUnknownOrder(t *testing.T) {
	service := &stubInvoiceHandlerService{
		createFn: func(ctx context.Context, cmd services.CreateInvoiceCommand) (services.Invoice, error) {
			return services.Invoice{}, services.ErrOrderNotFound
		},
	}
	router := newInvoiceRouter(service)

	req := asCustomer(httptest.NewRequest(http.MethodPost, "/orders/ord-404/invoice", nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	expectErrorCode(t, rr, http.StatusNotFound, "order_not_found")
}

func TestInvoiceHandlersUpdateStatusRequiresStaff(t *testing.T) {
	router := newInvoiceRouter(&stubInvoiceHandlerService{})

	req := asCustomer(httptest.NewRequest(http.MethodPut, "/invoices/inv-1/status", bytes.NewBufferString(`{"status":"paid"}`)), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	expectErrorCode(t, rr, http.StatusForbidden, "insufficient_role")
}

func TestInvoiceHandlersUpdateStatus(t *testing.T) {
	var captured services.InvoiceStatusCommand
	service := &stubInvoiceHandlerService{
		updateFn: func(ctx context.Context, cmd services.InvoiceStatusCommand) (services.Invoice, error) {
			captured = cmd
			return sampleInvoice(cmd.Status), nil
		},
	}
	router := newInvoiceRouter(service)

	req := asAdmin(httptest.NewRequest(http.MethodPut, "/invoices/inv-1/status", bytes.NewBufferString(`{"status":"Paid"}`)), "admin-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.InvoiceID != "inv-1" || captured.Status != domain.InvoiceStatusPaid || captured.ActorID != "admin-1" {
		t.Fatalf("unexpected status command %#v", captured)
	}

	var resp invoiceResponse
	decodeData(t, rr, &resp)
	if resp.Invoice.Status != "paid" {
		t.Fatalf("unexpected invoice status %q", resp.Invoice.Status)
	}
}

func TestInvoiceHandlersUpdateStatusIllegalTransition(t *testing.T) {
	service := &stubInvoiceHandlerService{
		updateFn: func(ctx context.Context, cmd services.InvoiceStatusCommand) (services.Invoice, error) {
			return services.Invoice{}, services.ErrInvoiceInvalidState
		},
	}
	router := newInvoiceRouter(service)

	req := asAdmin(httptest.NewRequest(http.MethodPut, "/invoices/inv-1/status", bytes.NewBufferString(`{"status":"refunded"}`)), "admin-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	expectErrorCode(t, rr, http.StatusConflict, "invoice_invalid_state")
}

func TestInvoiceHandlersUpdateStatusRejectsUnknownStatus(t *testing.T) {
	router := newInvoiceRouter(&stubInvoiceHandlerService{})

	req := asAdmin(httptest.NewRequest(http.MethodPut, "/invoices/inv-1/status", bytes.NewBufferString(`{"status":"shredded"}`)), "admin-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	expectErrorCode(t, rr, http.StatusBadRequest, "invalid_request")
}

func TestInvoiceHandlersGetForOrder(t *testing.T) {
	service := &stubInvoiceHandlerService{
		byOrderFn: func(ctx context.Context, orderID string) (services.Invoice, error) {
			if orderID != "ord-1" {
				t.Fatalf("unexpected order id %s", orderID)
			}
			return sampleInvoice(domain.InvoiceStatusIssued), nil
		},
	}
	router := newInvoiceRouter(service)

	req := asCustomer(httptest.NewRequest(http.MethodGet, "/orders/ord-1/invoice", nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp invoiceResponse
	decodeData(t, rr, &resp)
	if resp.Invoice.ID != "inv-1" {
		t.Fatalf("unexpected invoice payload %#v", resp.Invoice)
	}
}
