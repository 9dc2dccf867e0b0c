package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/brightcart/api/internal/platform/firestore"
	"github.com/brightcart/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider  *pfirestore.Provider
	orders    *OrderRepository
	inventory *InventoryRepository
	payments  *PaymentRepository
	invoices  *InvoiceRepository
	shipments *ShipmentRepository
	carts     *CartRepository
	counters  *CounterRepository
	health    repositories.HealthRepository
}

// RegistryDeps carries optional overrides for registry construction.
type RegistryDeps struct {
	Health repositories.HealthRepository
}

// NewRegistry builds all repositories over a shared provider.
func NewRegistry(provider *pfirestore.Provider, deps RegistryDeps) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	inventory, err := NewInventoryRepository(provider)
	if err != nil {
		return nil, err
	}
	payments, err := NewPaymentRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider, inventory, payments, carts)
	if err != nil {
		return nil, err
	}
	invoices, err := NewInvoiceRepository(provider)
	if err != nil {
		return nil, err
	}
	shipments, err := NewShipmentRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		orders:    orders,
		inventory: inventory,
		payments:  payments,
		invoices:  invoices,
		shipments: shipments,
		carts:     carts,
		counters:  counters,
		health:    deps.Health,
	}, nil
}

var _ repositories.Registry = (*Registry)(nil)

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository        { return r.orders }
func (r *Registry) Inventory() repositories.InventoryRepository { return r.inventory }
func (r *Registry) Payments() repositories.PaymentRepository    { return r.payments }
func (r *Registry) Invoices() repositories.InvoiceRepository    { return r.invoices }
func (r *Registry) Shipments() repositories.ShipmentRepository  { return r.shipments }
func (r *Registry) Carts() repositories.CartRepository          { return r.carts }
func (r *Registry) Counters() repositories.CounterRepository    { return r.counters }
func (r *Registry) Health() repositories.HealthRepository       { return r.health }

// RunInTx executes fn directly. Multi-document atomicity lives inside the
// repository write paths, which open their own Firestore transactions.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}
