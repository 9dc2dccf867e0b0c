package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/brightcart/api/internal/domain"
	pfirestore "github.com/brightcart/api/internal/platform/firestore"
	"github.com/brightcart/api/internal/repositories"
)

const (
	invoiceCollection      = "invoices"
	invoiceIndexCollection = "invoicesByOrder"
)

// InvoiceRepository stores invoices. Uniqueness per order is enforced with an
// index document keyed by order ID created in the same transaction as the
// invoice itself.
type InvoiceRepository struct {
	provider *pfirestore.Provider
	invoices *pfirestore.Collection[invoiceDocument]
	index    *pfirestore.Collection[invoiceIndexDocument]
}

// NewInvoiceRepository constructs a Firestore-backed invoice repository.
func NewInvoiceRepository(provider *pfirestore.Provider) (*InvoiceRepository, error) {
	if provider == nil {
		return nil, errors.New("invoice repository requires firestore provider")
	}
	invoices := pfirestore.NewCollection[invoiceDocument](provider, invoiceCollection)
	index := pfirestore.NewCollection[invoiceIndexDocument](provider, invoiceIndexCollection)
	return &InvoiceRepository{provider: provider, invoices: invoices, index: index}, nil
}

var _ repositories.InvoiceRepository = (*InvoiceRepository)(nil)

// Insert creates the invoice and its per-order index entry atomically. A
// second invoice for the same order fails with a conflict.
func (r *InvoiceRepository) Insert(ctx context.Context, invoice domain.Invoice) error {
	if r == nil || r.provider == nil {
		return errors.New("invoice repository not initialised")
	}
	if strings.TrimSpace(invoice.ID) == "" {
		return errors.New("invoice repository: invoice id is required")
	}
	orderID := strings.TrimSpace(invoice.OrderID)
	if orderID == "" {
		return errors.New("invoice repository: order id is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		indexRef, err := r.index.Doc(ctx, orderID)
		if err != nil {
			return err
		}
		invoiceRef, err := r.invoices.Doc(ctx, invoice.ID)
		if err != nil {
			return err
		}

		if err := tx.Create(indexRef, invoiceIndexDocument{InvoiceID: invoice.ID, CreatedAt: invoice.CreatedAt.UTC()}); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return pfirestore.NewConflictError("invoices.insert", fmt.Errorf("invoice for order %s already exists", orderID))
			}
			return err
		}
		if err := tx.Create(invoiceRef, newInvoiceDocument(invoice)); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return pfirestore.NewConflictError("invoices.insert", fmt.Errorf("invoice %s already exists", invoice.ID))
			}
			return err
		}
		return nil
	})
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) {
			return repoErr
		}
		return pfirestore.WrapError("invoices.insert", err)
	}
	return nil
}

// Update overwrites the invoice record.
func (r *InvoiceRepository) Update(ctx context.Context, invoice domain.Invoice) error {
	if r == nil || r.invoices == nil {
		return errors.New("invoice repository not initialised")
	}
	if strings.TrimSpace(invoice.ID) == "" {
		return errors.New("invoice repository: invoice id is required")
	}

	_, err := r.invoices.Set(ctx, invoice.ID, newInvoiceDocument(invoice))
	return err
}

// FindByID loads an invoice by its identifier.
func (r *InvoiceRepository) FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	if r == nil || r.invoices == nil {
		return domain.Invoice{}, errors.New("invoice repository not initialised")
	}
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return domain.Invoice{}, errors.New("invoice repository: invoice id is required")
	}

	doc, err := r.invoices.Get(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByOrderID resolves the invoice issued for the given order.
func (r *InvoiceRepository) FindByOrderID(ctx context.Context, orderID string) (domain.Invoice, error) {
	if r == nil || r.index == nil {
		return domain.Invoice{}, errors.New("invoice repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Invoice{}, errors.New("invoice repository: order id is required")
	}

	entry, err := r.index.Get(ctx, orderID)
	if err != nil {
		return domain.Invoice{}, err
	}
	return r.FindByID(ctx, entry.Data.InvoiceID)
}

type invoiceDocument struct {
	InvoiceNumber string    `firestore:"invoiceNumber"`
	OrderID       string    `firestore:"orderId"`
	Status        string    `firestore:"status"`
	Amount        int64     `firestore:"amount"`
	Tax           int64     `firestore:"tax"`
	Total         int64     `firestore:"total"`
	Currency      string    `firestore:"currency"`
	IssuedAt      time.Time `firestore:"issuedAt"`
	DueAt         time.Time `firestore:"dueAt"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

type invoiceIndexDocument struct {
	InvoiceID string    `firestore:"invoiceId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newInvoiceDocument(invoice domain.Invoice) invoiceDocument {
	return invoiceDocument{
		InvoiceNumber: strings.TrimSpace(invoice.InvoiceNumber),
		OrderID:       strings.TrimSpace(invoice.OrderID),
		Status:        string(invoice.Status),
		Amount:        invoice.Amount,
		Tax:           invoice.Tax,
		Total:         invoice.Total,
		Currency:      strings.ToUpper(strings.TrimSpace(invoice.Currency)),
		IssuedAt:      invoice.IssuedAt.UTC(),
		DueAt:         invoice.DueAt.UTC(),
		CreatedAt:     invoice.CreatedAt.UTC(),
		UpdatedAt:     invoice.UpdatedAt.UTC(),
	}
}

func (d invoiceDocument) toDomain(id string) domain.Invoice {
	return domain.Invoice{
		ID:            id,
		InvoiceNumber: d.InvoiceNumber,
		OrderID:       d.OrderID,
		Status:        domain.InvoiceStatus(d.Status),
		Amount:        d.Amount,
		Tax:           d.Tax,
		Total:         d.Total,
		Currency:      d.Currency,
		IssuedAt:      d.IssuedAt,
		DueAt:         d.DueAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
