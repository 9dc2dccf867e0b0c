package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/brightcart/api/internal/domain"
)

func newTestCartService(t *testing.T, carts *stubCartRepository) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{Carts: carts, Clock: fixedClock})
	if err != nil {
		t.Fatalf("NewCartService returned error: %v", err)
	}
	return svc
}

func TestCartServiceGetOrCreateCartFillsDefaults(t *testing.T) {
	carts := &stubCartRepository{
		getCartFn: func(context.Context, string) (domain.Cart, error) {
			// Missing carts come back empty rather than as an error.
			return domain.Cart{}, nil
		},
	}
	svc := newTestCartService(t, carts)

	cart, err := svc.GetOrCreateCart(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("GetOrCreateCart returned error: %v", err)
	}
	if cart.ID != "user_1" || cart.UserID != "user_1" || cart.Currency != "USD" {
		t.Fatalf("expected defaults to be filled, got %+v", cart)
	}

	if _, err := svc.GetOrCreateCart(context.Background(), "  "); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCartServiceReplaceItems(t *testing.T) {
	var upserted domain.Cart
	carts := &stubCartRepository{
		getCartFn: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{ID: "user_1", UserID: "user_1", Currency: "USD"}, nil
		},
		upsertCartFn: func(_ context.Context, cart domain.Cart) (domain.Cart, error) {
			upserted = cart
			return cart, nil
		},
	}
	svc := newTestCartService(t, carts)

	cart, err := svc.ReplaceItems(context.Background(), ReplaceCartItemsCommand{
		UserID:   "user_1",
		Currency: "eur",
		Items: []CartItem{
			{VariantID: " var_a ", SKU: "SKU-A", UnitPrice: 1000, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("ReplaceItems returned error: %v", err)
	}
	if cart.Currency != "EUR" {
		t.Fatalf("currency should be uppercased, got %q", cart.Currency)
	}
	if len(upserted.Items) != 1 || upserted.Items[0].VariantID != "var_a" {
		t.Fatalf("unexpected items: %+v", upserted.Items)
	}
	if !upserted.Items[0].AddedAt.Equal(testNow) {
		t.Fatalf("AddedAt should default to the clock, got %v", upserted.Items[0].AddedAt)
	}
	if !upserted.UpdatedAt.Equal(testNow) {
		t.Fatalf("UpdatedAt should be the clock time, got %v", upserted.UpdatedAt)
	}
}

func TestCartServiceReplaceItemsValidation(t *testing.T) {
	svc := newTestCartService(t, &stubCartRepository{})

	cases := []struct {
		name string
		cmd  ReplaceCartItemsCommand
	}{
		{"missing user", ReplaceCartItemsCommand{Items: []CartItem{{VariantID: "var_a", Quantity: 1}}}},
		{"missing variant", ReplaceCartItemsCommand{UserID: "user_1", Items: []CartItem{{Quantity: 1}}}},
		{"zero quantity", ReplaceCartItemsCommand{UserID: "user_1", Items: []CartItem{{VariantID: "var_a"}}}},
		{"negative price", ReplaceCartItemsCommand{UserID: "user_1", Items: []CartItem{{VariantID: "var_a", Quantity: 1, UnitPrice: -5}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.ReplaceItems(context.Background(), tc.cmd); !errors.Is(err, ErrCartInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestCartServiceClearCart(t *testing.T) {
	var cleared string
	carts := &stubCartRepository{
		clearFn: func(_ context.Context, userID string) error {
			cleared = userID
			return nil
		},
	}
	svc := newTestCartService(t, carts)

	if err := svc.ClearCart(context.Background(), "user_1"); err != nil {
		t.Fatalf("ClearCart returned error: %v", err)
	}
	if cleared != "user_1" {
		t.Fatalf("expected clear for user_1, got %q", cleared)
	}
	if err := svc.ClearCart(context.Background(), ""); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
