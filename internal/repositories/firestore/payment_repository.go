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
	paymentCollection      = "payments"
	paymentIndexCollection = "paymentsByOrder"
)

// PaymentRepository stores payment records. A per-order index document keeps
// the one-payment-per-order rule enforced inside Firestore itself rather than
// relying on callers to check first.
type PaymentRepository struct {
	provider *pfirestore.Provider
	payments *pfirestore.Collection[paymentDocument]
	index    *pfirestore.Collection[paymentIndexDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	payments := pfirestore.NewCollection[paymentDocument](provider, paymentCollection)
	index := pfirestore.NewCollection[paymentIndexDocument](provider, paymentIndexCollection)
	return &PaymentRepository{provider: provider, payments: payments, index: index}, nil
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)

// Insert creates a payment record, failing with a conflict when the ID exists.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.provider == nil {
		return errors.New("payment repository not initialised")
	}
	if strings.TrimSpace(payment.ID) == "" {
		return errors.New("payment repository: payment id is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return r.insertInTx(ctx, tx, payment)
	})
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) {
			return repoErr
		}
		return pfirestore.WrapError("payments.insert", err)
	}
	return nil
}

func (r *PaymentRepository) insertInTx(ctx context.Context, tx *firestore.Transaction, payment domain.Payment) error {
	orderID := strings.TrimSpace(payment.OrderID)
	if orderID == "" {
		return errors.New("payment repository: order id is required")
	}

	indexRef, err := r.index.Doc(ctx, orderID)
	if err != nil {
		return err
	}
	ref, err := r.payments.Doc(ctx, payment.ID)
	if err != nil {
		return err
	}

	if err := tx.Create(indexRef, paymentIndexDocument{PaymentID: payment.ID, CreatedAt: payment.CreatedAt.UTC()}); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return pfirestore.NewConflictError("payments.insert", fmt.Errorf("payment for order %s already exists", orderID))
		}
		return err
	}
	if err := tx.Create(ref, newPaymentDocument(payment)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return pfirestore.NewConflictError("payments.insert", fmt.Errorf("payment %s already exists", payment.ID))
		}
		return err
	}
	return nil
}

// Update overwrites the payment record.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.payments == nil {
		return errors.New("payment repository not initialised")
	}
	if strings.TrimSpace(payment.ID) == "" {
		return errors.New("payment repository: payment id is required")
	}

	_, err := r.payments.Set(ctx, payment.ID, newPaymentDocument(payment))
	return err
}

// FindByID loads a payment by its identifier.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if r == nil || r.payments == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return domain.Payment{}, errors.New("payment repository: payment id is required")
	}

	doc, err := r.payments.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByOrderID loads the payment that settles the given order.
func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	return r.findOne(ctx, "payments.findByOrder", "orderId", orderID)
}

// FindByTransactionID resolves a gateway transaction reference to its payment.
func (r *PaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (domain.Payment, error) {
	return r.findOne(ctx, "payments.findByTransaction", "transactionId", transactionID)
}

func (r *PaymentRepository) findOne(ctx context.Context, op, field, value string) (domain.Payment, error) {
	if r == nil || r.payments == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.Payment{}, fmt.Errorf("payment repository: %s is required", field)
	}

	docs, err := r.payments.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value).Limit(1)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if len(docs) == 0 {
		return domain.Payment{}, pfirestore.NewNotFoundError(op, fmt.Errorf("payment with %s %s not found", field, value))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

type paymentIndexDocument struct {
	PaymentID string    `firestore:"paymentId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type paymentDocument struct {
	OrderID       string         `firestore:"orderId"`
	UserID        string         `firestore:"userId"`
	Amount        int64          `firestore:"amount"`
	Currency      string         `firestore:"currency"`
	Method        string         `firestore:"method,omitempty"`
	Status        string         `firestore:"status"`
	TransactionID string         `firestore:"transactionId,omitempty"`
	Details       map[string]any `firestore:"details,omitempty"`
	CreatedAt     time.Time      `firestore:"createdAt"`
	UpdatedAt     time.Time      `firestore:"updatedAt"`
}

func newPaymentDocument(payment domain.Payment) paymentDocument {
	return paymentDocument{
		OrderID:       strings.TrimSpace(payment.OrderID),
		UserID:        strings.TrimSpace(payment.UserID),
		Amount:        payment.Amount,
		Currency:      strings.ToUpper(strings.TrimSpace(payment.Currency)),
		Method:        strings.TrimSpace(payment.Method),
		Status:        string(payment.Status),
		TransactionID: strings.TrimSpace(payment.TransactionID),
		Details:       payment.Details,
		CreatedAt:     payment.CreatedAt.UTC(),
		UpdatedAt:     payment.UpdatedAt.UTC(),
	}
}

func (d paymentDocument) toDomain(id string) domain.Payment {
	return domain.Payment{
		ID:            id,
		OrderID:       d.OrderID,
		UserID:        d.UserID,
		Amount:        d.Amount,
		Currency:      d.Currency,
		Method:        d.Method,
		Status:        domain.PaymentStatus(d.Status),
		TransactionID: d.TransactionID,
		Details:       d.Details,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
