package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/repositories"
)

type stubInvoiceRepository struct {
	insertFn        func(ctx context.Context, invoice domain.Invoice) error
	updateFn        func(ctx context.Context, invoice domain.Invoice) error
	findByIDFn      func(ctx context.Context, invoiceID string) (domain.Invoice, error)
	findByOrderIDFn func(ctx context.Context, orderID string) (domain.Invoice, error)
}

func (s *stubInvoiceRepository) Insert(ctx context.Context, invoice domain.Invoice) error {
	if s.insertFn == nil {
		return errors.New("unexpected Insert call")
	}
	return s.insertFn(ctx, invoice)
}

func (s *stubInvoiceRepository) Update(ctx context.Context, invoice domain.Invoice) error {
	if s.updateFn == nil {
		return errors.New("unexpected Update call")
	}
	return s.updateFn(ctx, invoice)
}

func (s *stubInvoiceRepository) FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	if s.findByIDFn == nil {
		return domain.Invoice{}, errors.New("unexpected FindByID call")
	}
	return s.findByIDFn(ctx, invoiceID)
}

func (s *stubInvoiceRepository) FindByOrderID(ctx context.Context, orderID string) (domain.Invoice, error) {
	if s.findByOrderIDFn == nil {
		return domain.Invoice{}, errors.New("unexpected FindByOrderID call")
	}
	return s.findByOrderIDFn(ctx, orderID)
}

type stubCounterRepository struct {
	nextFn      func(ctx context.Context, counterID string, step int64) (int64, error)
	configureFn func(ctx context.Context, counterID string, cfg repositories.CounterConfig) error
}

func (s *stubCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn == nil {
		return 0, errors.New("unexpected Next call")
	}
	return s.nextFn(ctx, counterID, step)
}

func (s *stubCounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	if s.configureFn == nil {
		return errors.New("unexpected Configure call")
	}
	return s.configureFn(ctx, counterID, cfg)
}

func invoiceTestOrder() domain.Order {
	return domain.Order{
		ID:       "ord_1",
		UserID:   "user_1",
		Status:   domain.OrderStatusProcessing,
		Currency: "USD",
		Totals:   domain.OrderTotals{Subtotal: 5500, Shipping: 500, Tax: 550, Total: 6550},
	}
}

func newTestInvoiceService(t *testing.T, deps InvoiceServiceDeps) InvoiceService {
	t.Helper()
	if deps.Invoices == nil {
		deps.Invoices = &stubInvoiceRepository{}
	}
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepository{}
	}
	if deps.Payments == nil {
		deps.Payments = &stubPaymentRepository{}
	}
	if deps.Counters == nil {
		deps.Counters = &stubCounterRepository{}
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = sequentialIDs()
	}
	svc, err := NewInvoiceService(deps)
	if err != nil {
		t.Fatalf("NewInvoiceService returned error: %v", err)
	}
	return svc
}

func TestInvoiceServiceCreate(t *testing.T) {
	orders := &stubOrderRepository{
		findByIDFn: func(context.Context, string) (domain.Order, error) { return invoiceTestOrder(), nil },
	}
	counters := &stubCounterRepository{
		nextFn: func(_ context.Context, counterID string, step int64) (int64, error) {
			if counterID != "invoices" || step != 1 {
				t.Fatalf("unexpected counter call %q step %d", counterID, step)
			}
			return 42, nil
		},
	}
	var inserted domain.Invoice
	invoices := &stubInvoiceRepository{
		insertFn: func(_ context.Context, invoice domain.Invoice) error {
			inserted = invoice
			return nil
		},
	}
	svc := newTestInvoiceService(t, InvoiceServiceDeps{Invoices: invoices, Orders: orders, Counters: counters})

	invoice, err := svc.Create(context.Background(), CreateInvoiceCommand{OrderID: "ord_1", ActorID: "admin_1"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if want := "INV-2025-000042"; invoice.InvoiceNumber != want {
		t.Fatalf("expected invoice number %q, got %q", want, invoice.InvoiceNumber)
	}
	if invoice.Status != domain.InvoiceStatusIssued {
		t.Fatalf("expected issued invoice, got %q", invoice.Status)
	}
	if invoice.Amount != 6000 || invoice.Tax != 550 || invoice.Total != 6550 {
		t.Fatalf("unexpected invoice amounts: %+v", invoice)
	}
	if want := testNow.Add(30 * 24 * time.Hour); !invoice.DueAt.Equal(want) {
		t.Fatalf("expected due at %v, got %v", want, invoice.DueAt)
	}
	if inserted.OrderID != "ord_1" {
		t.Fatalf("unexpected persisted invoice: %+v", inserted)
	}
}

func TestInvoiceServiceCreateDuplicateConflicts(t *testing.T) {
	orders := &stubOrderRepository{
		findByIDFn: func(context.Context, string) (domain.Order, error) { return invoiceTestOrder(), nil },
	}
	counters := &stubCounterRepository{
		nextFn: func(context.Context, string, int64) (int64, error) { return 43, nil },
	}
	invoices := &stubInvoiceRepository{
		insertFn: func(context.Context, domain.Invoice) error { return stubRepoError{conflict: true} },
	}
	svc := newTestInvoiceService(t, InvoiceServiceDeps{Invoices: invoices, Orders: orders, Counters: counters})

	_, err := svc.Create(context.Background(), CreateInvoiceCommand{OrderID: "ord_1"})
	if !errors.Is(err, ErrInvoiceConflict) {
		t.Fatalf("expected conflict for duplicate invoice, got %v", err)
	}
}

func TestInvoiceServiceCreateUnknownOrder(t *testing.T) {
	orders := &stubOrderRepository{
		findByIDFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{}, stubRepoError{notFound: true}
		},
	}
	svc := newTestInvoiceService(t, InvoiceServiceDeps{Orders: orders})

	_, err := svc.Create(context.Background(), CreateInvoiceCommand{OrderID: "ord_missing"})
	if !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInvoiceServiceUpdateStatusPaidCascadesPendingPayment(t *testing.T) {
	issued := domain.Invoice{ID: "inv_1", OrderID: "ord_1", Status: domain.InvoiceStatusIssued}
	var saved domain.Invoice
	invoices := &stubInvoiceRepository{
		findByIDFn: func(context.Context, string) (domain.Invoice, error) { return issued, nil },
		updateFn: func(_ context.Context, invoice domain.Invoice) error {
			saved = invoice
			return nil
		},
	}
	var cascaded domain.Payment
	paymentsRepo := &stubPaymentRepository{
		findByOrderIDFn: func(context.Context, string) (domain.Payment, error) {
			return domain.Payment{ID: "pay_1", OrderID: "ord_1", Status: domain.PaymentStatusPending}, nil
		},
		updateFn: func(_ context.Context, payment domain.Payment) error {
			cascaded = payment
			return nil
		},
	}
	svc := newTestInvoiceService(t, InvoiceServiceDeps{Invoices: invoices, Payments: paymentsRepo})

	invoice, err := svc.UpdateStatus(context.Background(), InvoiceStatusCommand{
		InvoiceID: "inv_1",
		Status:    domain.InvoiceStatusPaid,
		ActorID:   "admin_1",
	})
	if err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if invoice.Status != domain.InvoiceStatusPaid || saved.Status != domain.InvoiceStatusPaid {
		t.Fatalf("invoice should be paid, got %q / %q", invoice.Status, saved.Status)
	}
	if cascaded.Status != domain.PaymentStatusCompleted {
		t.Fatalf("pending payment should cascade to completed, got %q", cascaded.Status)
	}
	if cascaded.Details["settledByInvoice"] != "inv_1" {
		t.Fatalf("cascade should record the settling invoice, got %+v", cascaded.Details)
	}
}

func TestInvoiceServiceUpdateStatusPaidSkipsNonPendingPayment(t *testing.T) {
	invoices := &stubInvoiceRepository{
		findByIDFn: func(context.Context, string) (domain.Invoice, error) {
			return domain.Invoice{ID: "inv_1", OrderID: "ord_1", Status: domain.InvoiceStatusIssued}, nil
		},
		updateFn: func(context.Context, domain.Invoice) error { return nil },
	}
	paymentsRepo := &stubPaymentRepository{
		findByOrderIDFn: func(context.Context, string) (domain.Payment, error) {
			return domain.Payment{ID: "pay_1", Status: domain.PaymentStatusCompleted, TransactionID: "gw_pay_1"}, nil
		},
		// No updateFn: a completed payment must not be touched.
	}
	svc := newTestInvoiceService(t, InvoiceServiceDeps{Invoices: invoices, Payments: paymentsRepo})

	if _, err := svc.UpdateStatus(context.Background(), InvoiceStatusCommand{
		InvoiceID: "inv_1",
		Status:    domain.InvoiceStatusPaid,
	}); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
}

func TestInvoiceServiceUpdateStatusRejectsIllegalTransitions(t *testing.T) {
	cases := []struct {
		name    string
		current domain.InvoiceStatus
		target  domain.InvoiceStatus
	}{
		{"issued to refunded", domain.InvoiceStatusIssued, domain.InvoiceStatusRefunded},
		{"paid to cancelled", domain.InvoiceStatusPaid, domain.InvoiceStatusCancelled},
		{"cancelled to paid", domain.InvoiceStatusCancelled, domain.InvoiceStatusPaid},
		{"refunded to issued", domain.InvoiceStatusRefunded, domain.InvoiceStatusIssued},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			invoices := &stubInvoiceRepository{
				findByIDFn: func(context.Context, string) (domain.Invoice, error) {
					return domain.Invoice{ID: "inv_1", Status: tc.current}, nil
				},
				// No updateFn: illegal moves must not write.
			}
			svc := newTestInvoiceService(t, InvoiceServiceDeps{Invoices: invoices})

			_, err := svc.UpdateStatus(context.Background(), InvoiceStatusCommand{InvoiceID: "inv_1", Status: tc.target})
			if !errors.Is(err, ErrInvoiceInvalidState) {
				t.Fatalf("expected invalid state, got %v", err)
			}
		})
	}
}

func TestInvoiceServiceGetByOrderMapsNotFound(t *testing.T) {
	invoices := &stubInvoiceRepository{
		findByOrderIDFn: func(context.Context, string) (domain.Invoice, error) {
			return domain.Invoice{}, stubRepoError{notFound: true}
		},
	}
	svc := newTestInvoiceService(t, InvoiceServiceDeps{Invoices: invoices})

	if _, err := svc.GetByOrder(context.Background(), "ord_1"); !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
