package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/brightcart/api/internal/domain"
	pfirestore "github.com/brightcart/api/internal/platform/firestore"
	"github.com/brightcart/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists carts as single documents keyed by user ID.
type CartRepository struct {
	base     *pfirestore.Collection[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewCollection[cartDocument](provider, cartCollection)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// UpsertCart persists the full cart document using the user ID as identifier.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}

	cartID := strings.TrimSpace(firstCartID(cart))
	if cartID == "" {
		return domain.Cart{}, errors.New("cart repository: cart id is required")
	}

	now := time.Now().UTC()
	if !cart.UpdatedAt.IsZero() {
		now = cart.UpdatedAt.UTC()
	}

	doc := newCartDocument(cart, now)
	writeTime, err := r.base.Set(ctx, cartID, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := doc.toDomain(cartID)
	saved.UpdatedAt = writeTime
	return saved, nil
}

// GetCart loads the cart for the given user ID. A missing document yields an
// empty cart rather than an error.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Cart{ID: uid, UserID: uid, Items: []domain.CartItem{}}, nil
		}
		return domain.Cart{}, err
	}

	cart := doc.Data.toDomain(doc.ID)
	if !doc.UpdateTime.IsZero() {
		cart.UpdatedAt = doc.UpdateTime
	}
	return cart, nil
}

// ReplaceItems swaps the cart's line items while leaving addresses untouched.
func (r *CartRepository) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}

	cart, err := r.GetCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Items = items
	cart.UpdatedAt = time.Now().UTC()
	return r.UpsertCart(ctx, cart)
}

// Clear removes the cart document entirely.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}

	err := r.base.Delete(ctx, uid)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil
		}
	}
	return err
}

func firstCartID(cart domain.Cart) string {
	if strings.TrimSpace(cart.ID) != "" {
		return strings.TrimSpace(cart.ID)
	}
	return strings.TrimSpace(cart.UserID)
}

type cartDocument struct {
	Currency        string             `firestore:"currency"`
	Items           []cartItemDocument `firestore:"items"`
	ShippingAddress *addressDocument   `firestore:"shippingAddress,omitempty"`
	BillingAddress  *addressDocument   `firestore:"billingAddress,omitempty"`
	UpdatedAt       time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	VariantID   string    `firestore:"variantId"`
	SKU         string    `firestore:"sku"`
	ProductName string    `firestore:"productName"`
	VariantName string    `firestore:"variantName,omitempty"`
	UnitPrice   int64     `firestore:"unitPrice"`
	Quantity    int       `firestore:"qty"`
	WeightGrams int       `firestore:"weightGrams,omitempty"`
	AddedAt     time.Time `firestore:"addedAt"`
}

func newCartDocument(cart domain.Cart, now time.Time) cartDocument {
	doc := cartDocument{
		Currency:        strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:           make([]cartItemDocument, len(cart.Items)),
		ShippingAddress: newAddressDocument(cart.ShippingAddress),
		BillingAddress:  newAddressDocument(cart.BillingAddress),
		UpdatedAt:       now,
	}
	for i, item := range cart.Items {
		doc.Items[i] = cartItemDocument{
			VariantID:   strings.TrimSpace(item.VariantID),
			SKU:         strings.TrimSpace(item.SKU),
			ProductName: strings.TrimSpace(item.ProductName),
			VariantName: strings.TrimSpace(item.VariantName),
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			WeightGrams: item.WeightGrams,
			AddedAt:     item.AddedAt.UTC(),
		}
	}
	return doc
}

func (d cartDocument) toDomain(id string) domain.Cart {
	cart := domain.Cart{
		ID:              id,
		UserID:          id,
		Currency:        d.Currency,
		Items:           make([]domain.CartItem, len(d.Items)),
		ShippingAddress: d.ShippingAddress.toDomain(),
		BillingAddress:  d.BillingAddress.toDomain(),
		UpdatedAt:       d.UpdatedAt,
	}
	for i, item := range d.Items {
		cart.Items[i] = domain.CartItem{
			VariantID:   item.VariantID,
			SKU:         item.SKU,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			WeightGrams: item.WeightGrams,
			AddedAt:     item.AddedAt,
		}
	}
	return cart
}
