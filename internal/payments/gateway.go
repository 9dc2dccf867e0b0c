package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised remote payment states shared across gateways.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusAuthorized indicates funds are reserved but not yet captured.
	StatusAuthorized Status = "authorized"
	// StatusCaptured indicates the gateway reports the payment as successfully captured.
	StatusCaptured Status = "captured"
	// StatusFailed indicates the gateway reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been refunded.
	StatusRefunded Status = "refunded"
)

// ErrUnsupportedGateway is returned when the manager cannot locate a gateway.
var ErrUnsupportedGateway = errors.New("payments: unsupported gateway")

// OrderRequest captures the payload required to open a remote gateway order.
type OrderRequest struct {
	Amount         int64
	Currency       string
	Receipt        string
	Notes          map[string]string
	IdempotencyKey string
}

// GatewayOrder represents the remote order the customer pays against.
type GatewayOrder struct {
	ID        string
	Gateway   string
	Amount    int64
	Currency  string
	Status    Status
	CreatedAt time.Time
	Raw       map[string]any
}

// GatewayPayment normalises gateway-specific payment fields for reconciliation.
type GatewayPayment struct {
	ID         string
	OrderID    string
	Gateway    string
	Status     Status
	Amount     int64
	Currency   string
	Method     string
	ErrorText  string
	CapturedAt *time.Time
	Raw        map[string]any
}

// RefundRequest defines a gateway refund attempt.
type RefundRequest struct {
	PaymentID      string
	Amount         *int64
	Reason         string
	Notes          map[string]string
	IdempotencyKey string
}

// GatewayRefund reports the outcome of a refund attempt.
type GatewayRefund struct {
	ID        string
	PaymentID string
	Amount    int64
	Status    Status
	CreatedAt time.Time
	Raw       map[string]any
}

// Gateway defines the contract payment gateway adapters implement.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (GatewayPayment, error)
	CreateRefund(ctx context.Context, req RefundRequest) (GatewayRefund, error)
}

// Manager coordinates gateway selection by name.
type Manager struct {
	gateways       map[string]Gateway
	defaultGateway string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultGateway overrides the gateway used when no explicit name is given.
func WithDefaultGateway(name string) ManagerOption {
	return func(m *Manager) {
		m.defaultGateway = strings.TrimSpace(strings.ToLower(name))
	}
}

// NewManager constructs a Manager over the supplied gateways.
func NewManager(gateways map[string]Gateway, opts ...ManagerOption) (*Manager, error) {
	if len(gateways) == 0 {
		return nil, errors.New("payments: at least one gateway is required")
	}
	copyMap := make(map[string]Gateway, len(gateways))
	for k, v := range gateways {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid gateway registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{gateways: copyMap}
	if _, ok := copyMap["stripe"]; ok {
		m.defaultGateway = "stripe"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Resolve returns the gateway registered under name, or the default when name is empty.
func (m *Manager) Resolve(name string) (string, Gateway, error) {
	if m == nil || len(m.gateways) == 0 {
		return "", nil, errors.New("payments: no gateways registered")
	}
	key := strings.TrimSpace(strings.ToLower(name))
	if key == "" {
		key = m.defaultGateway
	}
	if key == "" && len(m.gateways) == 1 {
		for k, g := range m.gateways {
			return k, g, nil
		}
	}
	if gateway, ok := m.gateways[key]; ok {
		return key, gateway, nil
	}
	return "", nil, ErrUnsupportedGateway
}

// CreateOrder delegates to the resolved gateway.
func (m *Manager) CreateOrder(ctx context.Context, name string, req OrderRequest) (GatewayOrder, error) {
	key, gateway, err := m.Resolve(name)
	if err != nil {
		return GatewayOrder{}, err
	}
	order, err := gateway.CreateOrder(ctx, req)
	if err != nil {
		return GatewayOrder{}, err
	}
	order.Gateway = key
	return order, nil
}

// FetchPayment delegates to the resolved gateway.
func (m *Manager) FetchPayment(ctx context.Context, name string, paymentID string) (GatewayPayment, error) {
	key, gateway, err := m.Resolve(name)
	if err != nil {
		return GatewayPayment{}, err
	}
	payment, err := gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		return GatewayPayment{}, err
	}
	payment.Gateway = key
	return payment, nil
}

// CreateRefund delegates to the resolved gateway.
func (m *Manager) CreateRefund(ctx context.Context, name string, req RefundRequest) (GatewayRefund, error) {
	_, gateway, err := m.Resolve(name)
	if err != nil {
		return GatewayRefund{}, err
	}
	return gateway.CreateRefund(ctx, req)
}
