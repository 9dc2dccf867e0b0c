package di

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/payments"
	"github.com/brightcart/api/internal/platform/config"
	"github.com/brightcart/api/internal/repositories"
	"github.com/brightcart/api/internal/shipping"
)

var errNotImplemented = errors.New("not implemented")

type stubOrderRepo struct{}

func (stubOrderRepo) Checkout(context.Context, repositories.CheckoutRequest) (repositories.CheckoutResult, error) {
	return repositories.CheckoutResult{}, errNotImplemented
}
func (stubOrderRepo) ApplyTransition(context.Context, repositories.OrderTransitionRequest) (domain.Order, error) {
	return domain.Order{}, errNotImplemented
}
func (stubOrderRepo) FindByID(context.Context, string) (domain.Order, error) {
	return domain.Order{}, errNotImplemented
}
func (stubOrderRepo) FindByOrderNumber(context.Context, string) (domain.Order, error) {
	return domain.Order{}, errNotImplemented
}
func (stubOrderRepo) List(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	return domain.CursorPage[domain.Order]{}, errNotImplemented
}
func (stubOrderRepo) ListHistory(context.Context, string) ([]domain.OrderStatusHistoryEntry, error) {
	return nil, errNotImplemented
}

type stubInventoryRepo struct{}

func (stubInventoryRepo) Reserve(context.Context, []domain.InventoryLine, time.Time) ([]domain.InventoryRecord, error) {
	return nil, errNotImplemented
}
func (stubInventoryRepo) Release(context.Context, []domain.InventoryLine, time.Time) ([]domain.InventoryRecord, error) {
	return nil, errNotImplemented
}
func (stubInventoryRepo) Get(context.Context, string) (domain.InventoryRecord, error) {
	return domain.InventoryRecord{}, errNotImplemented
}
func (stubInventoryRepo) Adjust(context.Context, repositories.InventoryAdjustRequest) (domain.InventoryRecord, error) {
	return domain.InventoryRecord{}, errNotImplemented
}
func (stubInventoryRepo) ListLowStock(context.Context, repositories.InventoryLowStockQuery) (domain.CursorPage[domain.InventoryRecord], error) {
	return domain.CursorPage[domain.InventoryRecord]{}, errNotImplemented
}

type stubPaymentRepo struct{}

func (stubPaymentRepo) Insert(context.Context, domain.Payment) error { return errNotImplemented }
func (stubPaymentRepo) Update(context.Context, domain.Payment) error { return errNotImplemented }
func (stubPaymentRepo) FindByID(context.Context, string) (domain.Payment, error) {
	return domain.Payment{}, errNotImplemented
}
func (stubPaymentRepo) FindByOrderID(context.Context, string) (domain.Payment, error) {
	return domain.Payment{}, errNotImplemented
}
func (stubPaymentRepo) FindByTransactionID(context.Context, string) (domain.Payment, error) {
	return domain.Payment{}, errNotImplemented
}

type stubInvoiceRepo struct{}

func (stubInvoiceRepo) Insert(context.Context, domain.Invoice) error { return errNotImplemented }
func (stubInvoiceRepo) Update(context.Context, domain.Invoice) error { return errNotImplemented }
func (stubInvoiceRepo) FindByID(context.Context, string) (domain.Invoice, error) {
	return domain.Invoice{}, errNotImplemented
}
func (stubInvoiceRepo) FindByOrderID(context.Context, string) (domain.Invoice, error) {
	return domain.Invoice{}, errNotImplemented
}

type stubShipmentRepo struct{}

func (stubShipmentRepo) Insert(context.Context, domain.Shipment) error { return errNotImplemented }
func (stubShipmentRepo) Update(context.Context, domain.Shipment) error { return errNotImplemented }
func (stubShipmentRepo) FindByID(context.Context, string) (domain.Shipment, error) {
	return domain.Shipment{}, errNotImplemented
}
func (stubShipmentRepo) FindByTrackingNumber(context.Context, string) (domain.Shipment, error) {
	return domain.Shipment{}, errNotImplemented
}
func (stubShipmentRepo) ListByOrder(context.Context, string) ([]domain.Shipment, error) {
	return nil, errNotImplemented
}

type stubCartRepo struct{}

func (stubCartRepo) UpsertCart(context.Context, domain.Cart) (domain.Cart, error) {
	return domain.Cart{}, errNotImplemented
}
func (stubCartRepo) GetCart(context.Context, string) (domain.Cart, error) {
	return domain.Cart{}, errNotImplemented
}
func (stubCartRepo) ReplaceItems(context.Context, string, []domain.CartItem) (domain.Cart, error) {
	return domain.Cart{}, errNotImplemented
}
func (stubCartRepo) Clear(context.Context, string) error { return errNotImplemented }

type stubCounterRepo struct{}

func (stubCounterRepo) Next(context.Context, string, int64) (int64, error) {
	return 0, errNotImplemented
}
func (stubCounterRepo) Configure(context.Context, string, repositories.CounterConfig) error {
	return errNotImplemented
}

type stubHealthRepo struct{}

func (stubHealthRepo) Collect(context.Context) (domain.SystemHealthReport, error) {
	return domain.SystemHealthReport{Status: domain.HealthStatusOK}, nil
}

type stubRegistry struct{}

func (stubRegistry) Close(context.Context) error                 { return nil }
func (stubRegistry) Orders() repositories.OrderRepository        { return stubOrderRepo{} }
func (stubRegistry) Inventory() repositories.InventoryRepository { return stubInventoryRepo{} }
func (stubRegistry) Payments() repositories.PaymentRepository    { return stubPaymentRepo{} }
func (stubRegistry) Invoices() repositories.InvoiceRepository    { return stubInvoiceRepo{} }
func (stubRegistry) Shipments() repositories.ShipmentRepository  { return stubShipmentRepo{} }
func (stubRegistry) Carts() repositories.CartRepository          { return stubCartRepo{} }
func (stubRegistry) Counters() repositories.CounterRepository    { return stubCounterRepo{} }
func (stubRegistry) Health() repositories.HealthRepository       { return stubHealthRepo{} }
func (stubRegistry) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type stubGatewayManager struct{}

func (stubGatewayManager) CreateOrder(context.Context, string, payments.OrderRequest) (payments.GatewayOrder, error) {
	return payments.GatewayOrder{}, errNotImplemented
}
func (stubGatewayManager) FetchPayment(context.Context, string, string) (payments.GatewayPayment, error) {
	return payments.GatewayPayment{}, errNotImplemented
}
func (stubGatewayManager) CreateRefund(context.Context, string, payments.RefundRequest) (payments.GatewayRefund, error) {
	return payments.GatewayRefund{}, errNotImplemented
}

type stubCallbackVerifier struct{}

func (stubCallbackVerifier) VerifyCallback(string, string, string) error { return nil }

type stubCarrier struct{}

func (stubCarrier) Name() string { return "stub" }
func (stubCarrier) CreateShipment(context.Context, shipping.ShipmentRequest) (shipping.ShipmentResponse, error) {
	return shipping.ShipmentResponse{}, errNotImplemented
}
func (stubCarrier) TrackShipment(context.Context, string) (shipping.TrackingResponse, error) {
	return shipping.TrackingResponse{}, errNotImplemented
}
func (stubCarrier) CalculateRate(context.Context, shipping.RateRequest) (shipping.RateResponse, error) {
	return shipping.RateResponse{}, errNotImplemented
}

func testConfig() config.Config {
	return config.Config{
		Environment: "test",
		Gateway:     config.GatewayConfig{Currency: "EUR", KeyID: "key_test"},
		Pricing: config.PricingConfig{
			TaxRate:        0.19,
			ShippingPrices: map[string]int64{"standard": 500},
			InvoiceDueDays: 30,
		},
	}
}

func testCollaborators() Collaborators {
	return Collaborators{
		Gateways: stubGatewayManager{},
		Callback: stubCallbackVerifier{},
		Carrier:  stubCarrier{},
	}
}

func TestNewContainerBuildsAllServices(t *testing.T) {
	container, err := NewContainer(testConfig(), stubRegistry{}, testCollaborators())
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}

	svc := container.Services
	if svc.Orders == nil || svc.Cart == nil || svc.Inventory == nil {
		t.Fatal("expected core services to be built")
	}
	if svc.Payments == nil || svc.Invoices == nil || svc.Shipping == nil || svc.System == nil {
		t.Fatal("expected payment, invoice, shipping, and system services to be built")
	}

	report, err := svc.System.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok report, got %q", report.Status)
	}
	if report.Environment != "test" {
		t.Fatalf("expected environment from config, got %q", report.Environment)
	}
}

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(testConfig(), nil, testCollaborators()); err == nil {
		t.Fatal("expected error for nil registry")
	}
}

func TestContainerCloseWithoutRegistry(t *testing.T) {
	var container *Container
	if err := container.Close(context.Background()); err != nil {
		t.Fatalf("Close on nil container: %v", err)
	}
}
