package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/repositories"
)

const (
	invoiceIDPrefix   = "inv_"
	invoiceDueTerm    = 30 * 24 * time.Hour
	invoiceCounterKey = "invoices"
)

var (
	// ErrInvoiceInvalidInput signals malformed invoice input.
	ErrInvoiceInvalidInput = errors.New("invoice: invalid input")
	// ErrInvoiceNotFound indicates the invoice could not be located.
	ErrInvoiceNotFound = errors.New("invoice: not found")
	// ErrInvoiceConflict indicates an invoice already exists for the order.
	ErrInvoiceConflict = errors.New("invoice: conflict")
	// ErrInvoiceInvalidState indicates an illegal invoice status transition.
	ErrInvoiceInvalidState = errors.New("invoice: invalid status transition")
)

var invoiceStatusTransitions = map[domain.InvoiceStatus][]domain.InvoiceStatus{
	domain.InvoiceStatusIssued: {domain.InvoiceStatusPaid, domain.InvoiceStatusCancelled},
	domain.InvoiceStatusPaid:   {domain.InvoiceStatusRefunded},
}

// InvoiceServiceDeps bundles collaborators for the invoice service.
type InvoiceServiceDeps struct {
	Invoices    repositories.InvoiceRepository
	Orders      repositories.OrderRepository
	Payments    repositories.PaymentRepository
	Counters    repositories.CounterRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type invoiceService struct {
	invoices repositories.InvoiceRepository
	orders   repositories.OrderRepository
	payments repositories.PaymentRepository
	counters repositories.CounterRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewInvoiceService wires dependencies into a concrete InvoiceService implementation.
func NewInvoiceService(deps InvoiceServiceDeps) (InvoiceService, error) {
	if deps.Invoices == nil {
		return nil, errors.New("invoice service: invoice repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("invoice service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("invoice service: payment repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("invoice service: counter repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &invoiceService{
		invoices: deps.Invoices,
		orders:   deps.Orders,
		payments: deps.Payments,
		counters: deps.Counters,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Create issues the single invoice for an order. A second creation attempt for
// the same order is rejected with a conflict and leaves the first untouched.
func (s *invoiceService) Create(ctx context.Context, cmd CreateInvoiceCommand) (Invoice, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Invoice{}, fmt.Errorf("%w: order id is required", ErrInvoiceInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Invoice{}, s.mapRepositoryError(err)
	}

	number, err := s.generateInvoiceNumber(ctx)
	if err != nil {
		return Invoice{}, err
	}

	now := s.clock()
	invoice := Invoice{
		ID:            invoiceIDPrefix + s.newID(),
		InvoiceNumber: number,
		OrderID:       order.ID,
		Status:        domain.InvoiceStatusIssued,
		Amount:        order.Totals.Subtotal + order.Totals.Shipping,
		Tax:           order.Totals.Tax,
		Total:         order.Totals.Total,
		Currency:      order.Currency,
		IssuedAt:      now,
		DueAt:         now.Add(invoiceDueTerm),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.invoices.Insert(ctx, invoice); err != nil {
		return Invoice{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "invoice.issued", map[string]any{
		"invoice": invoice.ID,
		"number":  invoice.InvoiceNumber,
		"order":   order.ID,
		"actor":   strings.TrimSpace(cmd.ActorID),
	})

	return invoice, nil
}

// UpdateStatus applies a legal invoice status change. Marking an invoice paid
// cascades an outstanding pending payment to completed.
func (s *invoiceService) UpdateStatus(ctx context.Context, cmd InvoiceStatusCommand) (Invoice, error) {
	invoiceID := strings.TrimSpace(cmd.InvoiceID)
	if invoiceID == "" {
		return Invoice{}, fmt.Errorf("%w: invoice id is required", ErrInvoiceInvalidInput)
	}
	target := domain.InvoiceStatus(strings.TrimSpace(string(cmd.Status)))
	if target == "" {
		return Invoice{}, fmt.Errorf("%w: target status is required", ErrInvoiceInvalidInput)
	}

	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return Invoice{}, s.mapRepositoryError(err)
	}

	if !slices.Contains(invoiceStatusTransitions[invoice.Status], target) {
		return Invoice{}, fmt.Errorf("%w: cannot move from %q to %q", ErrInvoiceInvalidState, invoice.Status, target)
	}

	now := s.clock()
	invoice.Status = target
	invoice.UpdatedAt = now

	if err := s.invoices.Update(ctx, invoice); err != nil {
		return Invoice{}, s.mapRepositoryError(err)
	}

	if target == domain.InvoiceStatusPaid {
		s.cascadePaymentCompleted(ctx, invoice, cmd.ActorID, now)
	}

	return invoice, nil
}

func (s *invoiceService) Get(ctx context.Context, invoiceID string) (Invoice, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return Invoice{}, fmt.Errorf("%w: invoice id is required", ErrInvoiceInvalidInput)
	}

	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return Invoice{}, s.mapRepositoryError(err)
	}
	return invoice, nil
}

func (s *invoiceService) GetByOrder(ctx context.Context, orderID string) (Invoice, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Invoice{}, fmt.Errorf("%w: order id is required", ErrInvoiceInvalidInput)
	}

	invoice, err := s.invoices.FindByOrderID(ctx, orderID)
	if err != nil {
		return Invoice{}, s.mapRepositoryError(err)
	}
	return invoice, nil
}

// cascadePaymentCompleted settles the order's pending payment when the invoice
// is marked paid outside the gateway flow (e.g. bank transfer).
func (s *invoiceService) cascadePaymentCompleted(ctx context.Context, invoice Invoice, actorID string, now time.Time) {
	payment, err := s.payments.FindByOrderID(ctx, invoice.OrderID)
	if err != nil {
		s.logger(ctx, "invoice.paid.payment_lookup_failed", map[string]any{
			"invoice": invoice.ID,
			"order":   invoice.OrderID,
			"error":   err.Error(),
		})
		return
	}

	if payment.Status != domain.PaymentStatusPending {
		return
	}

	payment.Status = domain.PaymentStatusCompleted
	payment.Details = withDetail(payment.Details, "settledByInvoice", invoice.ID)
	payment.UpdatedAt = now

	if err := s.payments.Update(ctx, payment); err != nil {
		s.logger(ctx, "invoice.paid.payment_cascade_failed", map[string]any{
			"invoice": invoice.ID,
			"payment": payment.ID,
			"actor":   strings.TrimSpace(actorID),
			"error":   err.Error(),
		})
	}
}

func (s *invoiceService) generateInvoiceNumber(ctx context.Context) (string, error) {
	seq, err := s.counters.Next(ctx, invoiceCounterKey, 1)
	if err != nil {
		return "", fmt.Errorf("invoice: counter: %w", err)
	}
	return fmt.Sprintf("INV-%04d-%06d", s.clock().Year(), seq), nil
}

func (s *invoiceService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrInvoiceNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrInvoiceConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("invoice: repository unavailable: %w", err)
		}
	}

	return err
}
