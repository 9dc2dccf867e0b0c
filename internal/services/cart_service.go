package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brightcart/api/internal/repositories"
)

const defaultCartCurrency = "USD"

// ErrCartInvalidInput indicates the caller supplied invalid cart input.
var ErrCartInvalidInput = errors.New("cart: invalid input")

// CartServiceDeps bundles collaborators for the cart service.
type CartServiceDeps struct {
	Carts           repositories.CartRepository
	DefaultCurrency string
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts           repositories.CartRepository
	defaultCurrency string
	clock           func() time.Time
	logger          func(context.Context, string, map[string]any)
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = defaultCartCurrency
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:           deps.Carts,
		defaultCurrency: currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	if cart.ID == "" {
		cart.ID = userID
	}
	if cart.UserID == "" {
		cart.UserID = userID
	}
	if cart.Currency == "" {
		cart.Currency = s.defaultCurrency
	}
	return cart, nil
}

// ReplaceItems swaps the full item set. Quantities merge upstream in the
// storefront; the backend stores the resolved snapshot.
func (s *cartService) ReplaceItems(ctx context.Context, cmd ReplaceCartItemsCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	now := s.clock()
	items := make([]CartItem, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		if strings.TrimSpace(item.VariantID) == "" {
			return Cart{}, fmt.Errorf("%w: item variant id is required", ErrCartInvalidInput)
		}
		if item.Quantity <= 0 {
			return Cart{}, fmt.Errorf("%w: item quantity must be positive", ErrCartInvalidInput)
		}
		if item.UnitPrice < 0 {
			return Cart{}, fmt.Errorf("%w: item unit price cannot be negative", ErrCartInvalidInput)
		}
		if item.AddedAt.IsZero() {
			item.AddedAt = now
		}
		item.VariantID = strings.TrimSpace(item.VariantID)
		item.SKU = strings.TrimSpace(item.SKU)
		items = append(items, item)
	}

	cart, err := s.GetOrCreateCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	cart.Items = items
	if currency := strings.ToUpper(strings.TrimSpace(cmd.Currency)); currency != "" {
		cart.Currency = currency
	}
	cart.UpdatedAt = now

	return s.carts.UpsertCart(ctx, cart)
}

func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	return s.carts.Clear(ctx, userID)
}
