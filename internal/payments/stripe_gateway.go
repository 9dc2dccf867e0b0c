package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe gateway operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeChargeAPI interface {
	Get(id string, params *stripe.ChargeParams) (*stripe.Charge, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	charges stripeChargeAPI
	refunds stripeRefundAPI
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	Clients   *stripeClients
}

// StripeGateway implements the Gateway interface using Stripe APIs. A remote
// gateway order maps to a PaymentIntent; a remote payment maps to its charge.
type StripeGateway struct {
	api     stripeClients
	account string
	clock   func() time.Time
	logger  StripeLogger
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway constructs a Stripe Gateway using the given configuration.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			charges: sc.Charges,
			refunds: sc.Refunds,
		}
	}

	if clients.intents == nil || clients.charges == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeGateway{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateOrder opens a PaymentIntent for the given amount.
func (g *StripeGateway) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if g == nil {
		return GatewayOrder{}, errors.New("stripe: gateway is nil")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}

	metadata := make(map[string]string, len(req.Notes)+1)
	for k, v := range req.Notes {
		metadata[k] = v
	}
	if receipt := strings.TrimSpace(req.Receipt); receipt != "" {
		metadata["receipt"] = receipt
	}
	if len(metadata) > 0 {
		params.Metadata = metadata
	}

	intent, err := g.api.intents.New(params)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	g.logger(ctx, "payments.stripe.order.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})

	createdAt := g.clock()
	if intent.Created != 0 {
		createdAt = time.Unix(intent.Created, 0).UTC()
	}

	return GatewayOrder{
		ID:        intent.ID,
		Gateway:   "stripe",
		Amount:    intent.Amount,
		Currency:  strings.ToUpper(string(intent.Currency)),
		Status:    stripeIntentStatus(intent.Status),
		CreatedAt: createdAt,
		Raw:       stripeRaw(intent),
	}, nil
}

// FetchPayment retrieves the charge identified by paymentID, falling back to
// PaymentIntent lookup when the identifier names an intent.
func (g *StripeGateway) FetchPayment(ctx context.Context, paymentID string) (GatewayPayment, error) {
	if g == nil {
		return GatewayPayment{}, errors.New("stripe: gateway is nil")
	}

	id := strings.TrimSpace(paymentID)
	if id == "" {
		return GatewayPayment{}, errors.New("stripe: payment id is required")
	}

	if strings.HasPrefix(id, "pi_") {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		if g.account != "" {
			params.SetStripeAccount(g.account)
		}
		intent, err := g.api.intents.Get(id, params)
		if err != nil {
			return GatewayPayment{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
		}
		return stripeIntentPayment(intent), nil
	}

	params := &stripe.ChargeParams{}
	params.Context = ctx
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	charge, err := g.api.charges.Get(id, params)
	if err != nil {
		return GatewayPayment{}, fmt.Errorf("stripe: lookup charge: %w", err)
	}
	return stripeChargePayment(charge), nil
}

// CreateRefund issues a refund against the charge or intent named by PaymentID.
func (g *StripeGateway) CreateRefund(ctx context.Context, req RefundRequest) (GatewayRefund, error) {
	if g == nil {
		return GatewayRefund{}, errors.New("stripe: gateway is nil")
	}

	params := &stripe.RefundParams{}
	params.Context = ctx
	if strings.HasPrefix(req.PaymentID, "pi_") {
		params.PaymentIntent = stripe.String(req.PaymentID)
	} else {
		params.Charge = stripe.String(req.PaymentID)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	if len(req.Notes) > 0 {
		params.Metadata = make(map[string]string, len(req.Notes))
		for k, v := range req.Notes {
			params.Metadata[k] = v
		}
	}

	refund, err := g.api.refunds.New(params)
	if err != nil {
		return GatewayRefund{}, fmt.Errorf("stripe: create refund: %w", err)
	}

	g.logger(ctx, "payments.stripe.refund.created", map[string]any{
		"refund":  refund.ID,
		"payment": req.PaymentID,
		"amount":  refund.Amount,
	})

	status := StatusPending
	switch refund.Status {
	case stripe.RefundStatusSucceeded:
		status = StatusRefunded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		status = StatusFailed
	}

	createdAt := g.clock()
	if refund.Created != 0 {
		createdAt = time.Unix(refund.Created, 0).UTC()
	}

	return GatewayRefund{
		ID:        refund.ID,
		PaymentID: req.PaymentID,
		Amount:    refund.Amount,
		Status:    status,
		CreatedAt: createdAt,
		Raw:       stripeRaw(refund),
	}, nil
}

func stripeIntentStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusCaptured
	case stripe.PaymentIntentStatusRequiresCapture:
		return StatusAuthorized
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}

func stripeIntentPayment(intent *stripe.PaymentIntent) GatewayPayment {
	if intent == nil {
		return GatewayPayment{}
	}

	payment := GatewayPayment{
		ID:       intent.ID,
		OrderID:  intent.ID,
		Gateway:  "stripe",
		Status:   stripeIntentStatus(intent.Status),
		Amount:   intent.Amount,
		Currency: strings.ToUpper(string(intent.Currency)),
		Raw:      stripeRaw(intent),
	}

	if charge := intent.LatestCharge; charge != nil {
		payment.ID = charge.ID
		if charge.Paid || charge.Captured {
			t := time.Unix(charge.Created, 0).UTC()
			payment.CapturedAt = &t
		}
		if charge.Refunded {
			payment.Status = StatusRefunded
		}
		if charge.FailureMessage != "" {
			payment.ErrorText = charge.FailureMessage
		}
		if charge.PaymentMethodDetails != nil {
			payment.Method = string(charge.PaymentMethodDetails.Type)
		}
	}

	if intent.LastPaymentError != nil && payment.ErrorText == "" {
		payment.ErrorText = intent.LastPaymentError.Msg
		payment.Status = StatusFailed
	}

	return payment
}

func stripeChargePayment(charge *stripe.Charge) GatewayPayment {
	if charge == nil {
		return GatewayPayment{}
	}

	payment := GatewayPayment{
		ID:       charge.ID,
		Gateway:  "stripe",
		Status:   StatusPending,
		Amount:   charge.Amount,
		Currency: strings.ToUpper(string(charge.Currency)),
		Raw:      stripeRaw(charge),
	}
	if charge.PaymentIntent != nil {
		payment.OrderID = charge.PaymentIntent.ID
	}
	if charge.Paid || charge.Captured {
		payment.Status = StatusCaptured
		t := time.Unix(charge.Created, 0).UTC()
		payment.CapturedAt = &t
	}
	if charge.Refunded {
		payment.Status = StatusRefunded
	}
	if charge.FailureMessage != "" {
		payment.Status = StatusFailed
		payment.ErrorText = charge.FailureMessage
	}
	if charge.PaymentMethodDetails != nil {
		payment.Method = string(charge.PaymentMethodDetails.Type)
	}
	return payment
}

func stripeRaw(value any) map[string]any {
	raw := map[string]any{}
	if data, err := json.Marshal(value); err == nil {
		_ = json.Unmarshal(data, &raw)
	}
	return raw
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
