package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/brightcart/api/internal/domain"
	pfirestore "github.com/brightcart/api/internal/platform/firestore"
	"github.com/brightcart/api/internal/platform/pagination"
	"github.com/brightcart/api/internal/repositories"
)

const (
	orderCollection        = "orders"
	orderHistoryCollection = "history"
)

// OrderRepository persists order aggregates. Multi-document write paths run
// inside a single Firestore transaction so the order, its history, stock
// movements, and the pending payment commit or abort together.
type OrderRepository struct {
	provider  *pfirestore.Provider
	orders    *pfirestore.Collection[orderDocument]
	inventory *InventoryRepository
	payments  *PaymentRepository
	carts     *CartRepository
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider, inventory *InventoryRepository, payments *PaymentRepository, carts *CartRepository) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	if inventory == nil || payments == nil || carts == nil {
		return nil, errors.New("order repository requires inventory, payment and cart repositories")
	}
	orders := pfirestore.NewCollection[orderDocument](provider, orderCollection)
	return &OrderRepository{
		provider:  provider,
		orders:    orders,
		inventory: inventory,
		payments:  payments,
		carts:     carts,
	}, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// Checkout atomically decrements stock for every line, creates the order with
// its initial history entry and pending payment, and clears the originating
// cart. Insufficient stock on any line aborts the whole operation.
func (r *OrderRepository) Checkout(ctx context.Context, req repositories.CheckoutRequest) (repositories.CheckoutResult, error) {
	if r == nil || r.provider == nil {
		return repositories.CheckoutResult{}, errors.New("order repository not initialised")
	}
	order := req.Order
	if strings.TrimSpace(order.ID) == "" {
		return repositories.CheckoutResult{}, errors.New("order checkout: order id is required")
	}
	if len(order.Items) == 0 {
		return repositories.CheckoutResult{}, errors.New("order checkout: at least one line item is required")
	}
	if strings.TrimSpace(req.Payment.ID) == "" {
		return repositories.CheckoutResult{}, errors.New("order checkout: payment id is required")
	}

	now := req.Now.UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	payment := req.Payment
	payment.CreatedAt = now
	payment.UpdatedAt = now

	var result repositories.CheckoutResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := r.inventory.decrementInTx(ctx, tx, req.StockLines, now); err != nil {
			return err
		}

		orderRef, err := r.orders.Doc(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return pfirestore.NewConflictError("orders.checkout", fmt.Errorf("order %s already exists", order.ID))
			}
			return err
		}

		for _, entry := range order.History {
			historyRef := orderRef.Collection(orderHistoryCollection).Doc(entry.ID)
			if err := tx.Create(historyRef, newHistoryDocument(entry)); err != nil {
				return err
			}
		}

		if err := r.payments.insertInTx(ctx, tx, payment); err != nil {
			return err
		}

		if cartID := strings.TrimSpace(req.ClearCartID); cartID != "" {
			cartRef, err := r.carts.base.Doc(ctx, cartID)
			if err != nil {
				return err
			}
			if err := tx.Delete(cartRef); err != nil {
				return err
			}
		}

		result = repositories.CheckoutResult{Order: order, Payment: payment}
		return nil
	})
	if err != nil {
		return repositories.CheckoutResult{}, wrapOrderError("orders.checkout", err)
	}
	return result, nil
}

// ApplyTransition writes the new status, appends exactly one history entry,
// and applies any inventory releases in the same transaction.
func (r *OrderRepository) ApplyTransition(ctx context.Context, req repositories.OrderTransitionRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order transition: order id is required")
	}
	if strings.TrimSpace(req.History.ID) == "" {
		return domain.Order{}, errors.New("order transition: history entry id is required")
	}

	now := req.Now.UTC()
	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.Doc(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return pfirestore.NewNotFoundError("orders.transition", fmt.Errorf("order %s not found", orderID))
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		if len(req.ReleaseLines) > 0 {
			if err := r.inventory.restoreInTx(ctx, tx, req.ReleaseLines, now); err != nil {
				return err
			}
		}

		doc.Status = string(req.Status)
		doc.UpdatedAt = now
		if req.CancelledAt != nil {
			t := req.CancelledAt.UTC()
			doc.CancelledAt = &t
		}
		if req.DeliveredAt != nil {
			t := req.DeliveredAt.UTC()
			doc.DeliveredAt = &t
		}
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}

		historyRef := orderRef.Collection(orderHistoryCollection).Doc(req.History.ID)
		if err := tx.Create(historyRef, newHistoryDocument(req.History)); err != nil {
			return err
		}

		updated = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.transition", err)
	}
	return updated, nil
}

// FindByID loads a single order aggregate without its history entries.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByOrderNumber resolves the human-facing order number to its aggregate.
func (r *OrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, errors.New("order repository: order number is required")
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", "==", orderNumber).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NewNotFoundError("orders.findByNumber", fmt.Errorf("order %s not found", orderNumber))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// List pages orders filtered by user, status set, and creation window, newest
// first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := pagination.ClampPageSize(filter.Pagination.PageSize, 20, 100)

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
	}

	query := client.Collection(orderCollection).Query
	if uid := strings.TrimSpace(filter.UserID); uid != "" {
		query = query.Where("userId", "==", uid)
	}
	if len(filter.Status) > 0 {
		query = query.Where("status", "in", filter.Status)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(pageSize + 1)

	var cursor orderPageToken
	if ok, err := pagination.DecodeCursor(filter.Pagination.PageToken, &cursor); err != nil {
		return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
	} else if ok {
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := pagination.EncodeCursor(orderPageToken{ID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

// ListHistory returns status transitions for an order in chronological order.
func (r *OrderRepository) ListHistory(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("order repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, wrapOrderError("orders.history", err)
	}

	iter := client.Collection(orderCollection).Doc(orderID).
		Collection(orderHistoryCollection).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var entries []domain.OrderStatusHistoryEntry
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapOrderError("orders.history", err)
		}
		var doc historyDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode order history %s: %w", snap.Ref.ID, err)
		}
		entries = append(entries, doc.toDomain(snap.Ref.ID, orderID))
	}
	return entries, nil
}

// Document structures -------------------------------------------------------

type orderDocument struct {
	OrderNumber     string             `firestore:"orderNumber"`
	UserID          string             `firestore:"userId"`
	Status          string             `firestore:"status"`
	Currency        string             `firestore:"currency"`
	Subtotal        int64              `firestore:"subtotal"`
	Shipping        int64              `firestore:"shipping"`
	Tax             int64              `firestore:"tax"`
	Total           int64              `firestore:"total"`
	Items           []lineItemDocument `firestore:"items"`
	ShippingAddress *addressDocument   `firestore:"shippingAddress,omitempty"`
	BillingAddress  *addressDocument   `firestore:"billingAddress,omitempty"`
	ShippingMethod  string             `firestore:"shippingMethod,omitempty"`
	PaymentMethod   string             `firestore:"paymentMethod,omitempty"`
	Notes           string             `firestore:"notes,omitempty"`
	CreatedAt       time.Time          `firestore:"createdAt"`
	UpdatedAt       time.Time          `firestore:"updatedAt"`
	CancelledAt     *time.Time         `firestore:"cancelledAt,omitempty"`
	DeliveredAt     *time.Time         `firestore:"deliveredAt,omitempty"`
}

type lineItemDocument struct {
	VariantID   string `firestore:"variantId"`
	SKU         string `firestore:"sku"`
	ProductName string `firestore:"productName"`
	VariantName string `firestore:"variantName,omitempty"`
	UnitPrice   int64  `firestore:"unitPrice"`
	Quantity    int    `firestore:"qty"`
	Total       int64  `firestore:"total"`
	WeightGrams int    `firestore:"weightGrams,omitempty"`
}

type addressDocument struct {
	Recipient  string  `firestore:"recipient"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city"`
	State      *string `firestore:"state,omitempty"`
	PostalCode string  `firestore:"postalCode"`
	Country    string  `firestore:"country"`
	Phone      *string `firestore:"phone,omitempty"`
}

type historyDocument struct {
	Status    string    `firestore:"status"`
	Note      string    `firestore:"note,omitempty"`
	ActorID   string    `firestore:"actorId,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:    strings.TrimSpace(order.OrderNumber),
		UserID:         strings.TrimSpace(order.UserID),
		Status:         string(order.Status),
		Currency:       strings.ToUpper(strings.TrimSpace(order.Currency)),
		Subtotal:       order.Totals.Subtotal,
		Shipping:       order.Totals.Shipping,
		Tax:            order.Totals.Tax,
		Total:          order.Totals.Total,
		ShippingMethod: strings.TrimSpace(order.ShippingMethod),
		PaymentMethod:  strings.TrimSpace(order.PaymentMethod),
		Notes:          strings.TrimSpace(order.Notes),
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
		CancelledAt:    order.CancelledAt,
		DeliveredAt:    order.DeliveredAt,
	}
	doc.Items = make([]lineItemDocument, len(order.Items))
	for i, item := range order.Items {
		doc.Items[i] = lineItemDocument{
			VariantID:   strings.TrimSpace(item.VariantID),
			SKU:         strings.TrimSpace(item.SKU),
			ProductName: strings.TrimSpace(item.ProductName),
			VariantName: strings.TrimSpace(item.VariantName),
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			Total:       item.Total,
			WeightGrams: item.WeightGrams,
		}
	}
	doc.ShippingAddress = newAddressDocument(order.ShippingAddress)
	doc.BillingAddress = newAddressDocument(order.BillingAddress)
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		UserID:      d.UserID,
		Status:      domain.OrderStatus(d.Status),
		Currency:    d.Currency,
		Totals: domain.OrderTotals{
			Subtotal: d.Subtotal,
			Shipping: d.Shipping,
			Tax:      d.Tax,
			Total:    d.Total,
		},
		ShippingMethod: d.ShippingMethod,
		PaymentMethod:  d.PaymentMethod,
		Notes:          d.Notes,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		CancelledAt:    d.CancelledAt,
		DeliveredAt:    d.DeliveredAt,
	}
	order.Items = make([]domain.OrderLineItem, len(d.Items))
	for i, item := range d.Items {
		order.Items[i] = domain.OrderLineItem{
			VariantID:   item.VariantID,
			SKU:         item.SKU,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			Total:       item.Total,
			WeightGrams: item.WeightGrams,
		}
	}
	order.ShippingAddress = d.ShippingAddress.toDomain()
	order.BillingAddress = d.BillingAddress.toDomain()
	return order
}

func newAddressDocument(addr *domain.Address) *addressDocument {
	if addr == nil {
		return nil
	}
	return &addressDocument{
		Recipient:  strings.TrimSpace(addr.Recipient),
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      addr.Line2,
		City:       strings.TrimSpace(addr.City),
		State:      addr.State,
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(addr.Country)),
		Phone:      addr.Phone,
	}
}

func (d *addressDocument) toDomain() *domain.Address {
	if d == nil {
		return nil
	}
	return &domain.Address{
		Recipient:  d.Recipient,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
		Phone:      d.Phone,
	}
}

func newHistoryDocument(entry domain.OrderStatusHistoryEntry) historyDocument {
	return historyDocument{
		Status:    string(entry.Status),
		Note:      strings.TrimSpace(entry.Note),
		ActorID:   strings.TrimSpace(entry.ActorID),
		CreatedAt: entry.CreatedAt.UTC(),
	}
}

func (d historyDocument) toDomain(id, orderID string) domain.OrderStatusHistoryEntry {
	return domain.OrderStatusHistoryEntry{
		ID:        id,
		OrderID:   orderID,
		Status:    domain.OrderStatus(d.Status),
		Note:      d.Note,
		ActorID:   d.ActorID,
		CreatedAt: d.CreatedAt,
	}
}

type orderPageToken struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		return invErr
	}
	var repoErr *pfirestore.Error
	if errors.As(err, &repoErr) {
		return repoErr
	}
	return pfirestore.WrapError(op, err)
}
