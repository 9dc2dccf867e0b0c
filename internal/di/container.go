package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brightcart/api/internal/platform/config"
	"github.com/brightcart/api/internal/repositories"
	"github.com/brightcart/api/internal/services"
)

// Services bundles the service-layer contracts the handlers rely upon.
// Concrete implementations are assembled in NewContainer.
type Services struct {
	Orders    services.OrderService
	Cart      services.CartService
	Inventory services.InventoryService
	Payments  services.PaymentService
	Invoices  services.InvoiceService
	Shipping  services.ShippingService
	System    services.SystemService
}

// Collaborators carries the external adapters the service layer depends on:
// gateway clients, carrier client, event publisher, and structured logging.
// All fields except Gateways, Callback, and Carrier are optional.
type Collaborators struct {
	Gateways services.GatewayManager
	Callback services.CallbackVerifier
	Webhook  services.WebhookVerifier
	Carrier  services.Carrier
	Events   services.OrderEventPublisher
	Logger   func(ctx context.Context, event string, fields map[string]any)
	Build    services.BuildInfo
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependency graph. Tests can supply
// in-memory registries and stub collaborators.
func NewContainer(cfg config.Config, reg repositories.Registry, collab Collaborators) (*Container, error) {
	if reg == nil {
		return nil, errors.New("di: repositories registry is required")
	}

	svc, err := buildServices(cfg, reg, collab)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients and other held resources.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, collab Collaborators) (Services, error) {
	var svc Services

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: reg.Inventory(),
		Clock:     time.Now,
		Logger:    collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:           reg.Carts(),
		DefaultCurrency: cfg.Gateway.Currency,
		Clock:           time.Now,
		Logger:          collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        reg.Orders(),
		Carts:         reg.Carts(),
		ShippingRates: cfg.Pricing.ShippingPrices,
		TaxRate:       cfg.Pricing.TaxRate,
		Clock:         time.Now,
		Events:        collab.Events,
		Logger:        collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Payments:    reg.Payments(),
		Orders:      orderSvc,
		Gateways:    collab.Gateways,
		Callback:    collab.Callback,
		Webhook:     collab.Webhook,
		ClientKeyID: cfg.Gateway.KeyID,
		Clock:       time.Now,
		Logger:      collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	invoiceSvc, err := services.NewInvoiceService(services.InvoiceServiceDeps{
		Invoices: reg.Invoices(),
		Orders:   reg.Orders(),
		Payments: reg.Payments(),
		Counters: reg.Counters(),
		Clock:    time.Now,
		Logger:   collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build invoice service: %w", err)
	}
	svc.Invoices = invoiceSvc

	shippingSvc, err := services.NewShippingService(services.ShippingServiceDeps{
		Shipments: reg.Shipments(),
		Orders:    orderSvc,
		Carrier:   collab.Carrier,
		Clock:     time.Now,
		Logger:    collab.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping service: %w", err)
	}
	svc.Shipping = shippingSvc

	build := collab.Build
	if build.Environment == "" {
		build.Environment = cfg.Environment
	}
	if build.StartedAt.IsZero() {
		build.StartedAt = time.Now().UTC()
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Counters:         reg.Counters(),
		Clock:            time.Now,
		Build:            build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}
