package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/payments"
	"github.com/brightcart/api/internal/repositories"
)

const (
	detailGateway        = "gateway"
	detailGatewayOrderID = "gatewayOrderId"
	detailGatewayPayment = "gatewayPaymentId"
	detailPaymentMethod  = "method"
	detailFailureReason  = "failureReason"
	detailRefundID       = "refundId"
	detailRefundAmount   = "refundAmount"
	detailRefundReason   = "refundReason"
)

const (
	webhookEventCaptured   = "payment.captured"
	webhookEventAuthorized = "payment.authorized"
	webhookEventFailed     = "payment.failed"
	webhookEventRefunded   = "refund.processed"
)

var (
	// ErrPaymentInvalidInput signals malformed payment input.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotFound indicates no payment record could be located.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentInvalidState indicates the payment status forbids the operation.
	ErrPaymentInvalidState = errors.New("payment: invalid state")
	// ErrPaymentVerificationFailed indicates callback signature or capture verification failed.
	ErrPaymentVerificationFailed = errors.New("payment: verification failed")
	// ErrPaymentMissingGatewayRef indicates no gateway payment id is stored for the payment.
	ErrPaymentMissingGatewayRef = errors.New("payment: missing gateway reference")
	// ErrPaymentGatewayFailure indicates the remote gateway call failed.
	ErrPaymentGatewayFailure = errors.New("payment: gateway failure")
)

// GatewayManager abstracts gateway selection and remote calls for testing.
type GatewayManager interface {
	CreateOrder(ctx context.Context, gateway string, req payments.OrderRequest) (payments.GatewayOrder, error)
	FetchPayment(ctx context.Context, gateway string, paymentID string) (payments.GatewayPayment, error)
	CreateRefund(ctx context.Context, gateway string, req payments.RefundRequest) (payments.GatewayRefund, error)
}

// CallbackVerifier checks the HMAC signature the gateway attaches to browser callbacks.
type CallbackVerifier interface {
	VerifyCallback(orderID, paymentID, signature string) error
}

// WebhookVerifier checks the HMAC signature over the raw webhook body.
type WebhookVerifier interface {
	VerifyWebhook(body []byte, signature string) error
}

// PaymentServiceDeps bundles collaborators for the payment service.
type PaymentServiceDeps struct {
	Payments repositories.PaymentRepository
	Orders   OrderService
	Gateways GatewayManager
	Callback CallbackVerifier
	// Webhook is optional; when nil webhook signatures are not enforced.
	Webhook     WebhookVerifier
	ClientKeyID string
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	payments    repositories.PaymentRepository
	orders      OrderService
	gateways    GatewayManager
	callback    CallbackVerifier
	webhook     WebhookVerifier
	clientKeyID string
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment service: order service is required")
	}
	if deps.Gateways == nil {
		return nil, errors.New("payment service: gateway manager is required")
	}
	if deps.Callback == nil {
		return nil, errors.New("payment service: callback verifier is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		payments:    deps.Payments,
		orders:      deps.Orders,
		gateways:    deps.Gateways,
		callback:    deps.Callback,
		webhook:     deps.Webhook,
		clientKeyID: strings.TrimSpace(deps.ClientKeyID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// InitiateGatewayOrder opens a remote gateway order for the local pending
// payment. The remote call happens outside any storage transaction; the
// outcome is applied with a follow-up update.
func (s *paymentService) InitiateGatewayOrder(ctx context.Context, cmd InitiatePaymentCommand) (PaymentInstructions, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentInstructions{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	payment, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return PaymentInstructions{}, s.mapRepositoryError(err)
	}

	if userID := strings.TrimSpace(cmd.UserID); userID != "" && payment.UserID != userID {
		return PaymentInstructions{}, fmt.Errorf("%w: payment does not belong to caller", ErrPaymentNotFound)
	}

	switch payment.Status {
	case domain.PaymentStatusPending, domain.PaymentStatusProcessing:
	default:
		return PaymentInstructions{}, fmt.Errorf("%w: payment is %q", ErrPaymentInvalidState, payment.Status)
	}

	// Re-use an existing remote order instead of opening a second one.
	if remote := detailString(payment.Details, detailGatewayOrderID); remote != "" {
		return PaymentInstructions{
			PaymentID:      payment.ID,
			GatewayOrderID: remote,
			Gateway:        detailString(payment.Details, detailGateway),
			KeyID:          s.clientKeyID,
			Amount:         payment.Amount,
			Currency:       payment.Currency,
		}, nil
	}

	remote, err := s.gateways.CreateOrder(ctx, cmd.Gateway, payments.OrderRequest{
		Amount:   payment.Amount,
		Currency: payment.Currency,
		Receipt:  payment.OrderID,
		Notes: map[string]string{
			"orderId":   payment.OrderID,
			"paymentId": payment.ID,
		},
		IdempotencyKey: payment.ID,
	})
	if err != nil {
		return PaymentInstructions{}, fmt.Errorf("%w: %v", ErrPaymentGatewayFailure, err)
	}

	now := s.clock()
	payment.Status = domain.PaymentStatusProcessing
	payment.Details = withDetail(payment.Details, detailGateway, remote.Gateway)
	payment.Details = withDetail(payment.Details, detailGatewayOrderID, remote.ID)
	payment.UpdatedAt = now

	if err := s.payments.Update(ctx, payment); err != nil {
		return PaymentInstructions{}, s.mapRepositoryError(err)
	}

	return PaymentInstructions{
		PaymentID:      payment.ID,
		GatewayOrderID: remote.ID,
		Gateway:        remote.Gateway,
		KeyID:          s.clientKeyID,
		Amount:         payment.Amount,
		Currency:       payment.Currency,
	}, nil
}

// VerifyCallback checks the gateway's callback signature, fetches the
// authoritative payment, and on success completes the payment and drives the
// order into processing. A gateway fetch failure on this path leaves the
// payment in its prior status.
func (s *paymentService) VerifyCallback(ctx context.Context, cmd VerifyPaymentCommand) (Payment, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	remoteOrderID := strings.TrimSpace(cmd.GatewayOrderID)
	remotePaymentID := strings.TrimSpace(cmd.GatewayPaymentID)

	if orderID == "" || remoteOrderID == "" || remotePaymentID == "" {
		return Payment{}, fmt.Errorf("%w: order id, gateway order id and gateway payment id are required", ErrPaymentInvalidInput)
	}

	payment, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}

	if stored := detailString(payment.Details, detailGatewayOrderID); stored != "" && stored != remoteOrderID {
		return s.failVerification(ctx, payment, "gateway order id mismatch")
	}

	if err := s.callback.VerifyCallback(remoteOrderID, remotePaymentID, cmd.Signature); err != nil {
		return s.failVerification(ctx, payment, "signature mismatch")
	}

	gateway := strings.TrimSpace(cmd.Gateway)
	if gateway == "" {
		gateway = detailString(payment.Details, detailGateway)
	}

	remote, err := s.gateways.FetchPayment(ctx, gateway, remotePaymentID)
	if err != nil {
		// Possibly a transient gateway outage over a captured payment; an
		// operator resolves the ambiguity from logs.
		s.logger(ctx, "payment.verify.gateway_unreachable", map[string]any{
			"payment": payment.ID,
			"order":   payment.OrderID,
			"error":   err.Error(),
		})
		return Payment{}, fmt.Errorf("%w: %v", ErrPaymentGatewayFailure, err)
	}

	switch remote.Status {
	case payments.StatusCaptured, payments.StatusAuthorized:
		return s.completePayment(ctx, payment, remotePaymentID, remote.Method)
	default:
		reason := remote.ErrorText
		if reason == "" {
			reason = fmt.Sprintf("gateway reported status %q", remote.Status)
		}
		return s.failVerification(ctx, payment, reason)
	}
}

// HandleWebhook ingests a gateway-initiated event. Processing is idempotent
// and best-effort: every internal failure is logged and swallowed so the
// gateway never sees an error and retry-storms us.
func (s *paymentService) HandleWebhook(ctx context.Context, cmd PaymentWebhookCommand) {
	if s.webhook != nil {
		if err := s.webhook.VerifyWebhook(cmd.Payload, cmd.Signature); err != nil {
			s.logger(ctx, "payment.webhook.signature_rejected", map[string]any{
				"gateway": cmd.Gateway,
			})
			return
		}
	}

	var event webhookEvent
	if err := json.Unmarshal(cmd.Payload, &event); err != nil {
		s.logger(ctx, "payment.webhook.malformed", map[string]any{
			"gateway": cmd.Gateway,
			"error":   err.Error(),
		})
		return
	}

	switch event.Event {
	case webhookEventCaptured, webhookEventAuthorized:
		s.webhookComplete(ctx, event)
	case webhookEventFailed:
		s.webhookFail(ctx, event)
	case webhookEventRefunded:
		s.webhookRefund(ctx, event)
	default:
		s.logger(ctx, "payment.webhook.ignored", map[string]any{
			"gateway": cmd.Gateway,
			"event":   event.Event,
		})
	}
}

// Refund issues a gateway refund for a completed payment and drives the order
// to refunded.
func (s *paymentService) Refund(ctx context.Context, cmd RefundPaymentCommand) (Payment, error) {
	paymentID := strings.TrimSpace(cmd.PaymentID)
	if paymentID == "" {
		return Payment{}, fmt.Errorf("%w: payment id is required", ErrPaymentInvalidInput)
	}
	if cmd.Amount != nil && *cmd.Amount <= 0 {
		return Payment{}, fmt.Errorf("%w: refund amount must be positive", ErrPaymentInvalidInput)
	}

	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}

	if payment.Status != domain.PaymentStatusCompleted {
		return Payment{}, fmt.Errorf("%w: refund is only valid for completed payments, payment is %q", ErrPaymentInvalidState, payment.Status)
	}

	gatewayRef := strings.TrimSpace(payment.TransactionID)
	if gatewayRef == "" {
		gatewayRef = detailString(payment.Details, detailGatewayPayment)
	}
	if gatewayRef == "" {
		return Payment{}, fmt.Errorf("%w: payment %s has no gateway payment id", ErrPaymentMissingGatewayRef, payment.ID)
	}

	refund, err := s.gateways.CreateRefund(ctx, detailString(payment.Details, detailGateway), payments.RefundRequest{
		PaymentID:      gatewayRef,
		Amount:         cmd.Amount,
		Reason:         strings.TrimSpace(cmd.Reason),
		IdempotencyKey: payment.ID + ":refund",
	})
	if err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrPaymentGatewayFailure, err)
	}

	now := s.clock()
	payment.Status = domain.PaymentStatusRefunded
	payment.Details = withDetail(payment.Details, detailRefundID, refund.ID)
	payment.Details = withDetail(payment.Details, detailRefundAmount, refund.Amount)
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		payment.Details = withDetail(payment.Details, detailRefundReason, reason)
	}
	payment.UpdatedAt = now

	if err := s.payments.Update(ctx, payment); err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}

	// The money has already moved; an order that cannot transition is logged
	// for an operator rather than failing the refund.
	if _, err := s.orders.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      payment.OrderID,
		TargetStatus: domain.OrderStatusRefunded,
		ActorID:      cmd.ActorID,
		Note:         "payment refunded",
	}); err != nil {
		s.logger(ctx, "payment.refund.order_transition_failed", map[string]any{
			"payment": payment.ID,
			"order":   payment.OrderID,
			"error":   err.Error(),
		})
	}

	return payment, nil
}

func (s *paymentService) GetByOrder(ctx context.Context, orderID string) (Payment, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Payment{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	payment, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}
	return payment, nil
}

func (s *paymentService) completePayment(ctx context.Context, payment Payment, gatewayPaymentID, method string) (Payment, error) {
	now := s.clock()
	payment.Status = domain.PaymentStatusCompleted
	payment.TransactionID = gatewayPaymentID
	payment.Details = withDetail(payment.Details, detailGatewayPayment, gatewayPaymentID)
	if method != "" {
		payment.Details = withDetail(payment.Details, detailPaymentMethod, method)
	}
	payment.UpdatedAt = now

	if err := s.payments.Update(ctx, payment); err != nil {
		return Payment{}, s.mapRepositoryError(err)
	}

	if _, err := s.orders.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      payment.OrderID,
		TargetStatus: domain.OrderStatusProcessing,
		Note:         "payment completed",
	}); err != nil && !errors.Is(err, ErrOrderInvalidState) {
		s.logger(ctx, "payment.complete.order_transition_failed", map[string]any{
			"payment": payment.ID,
			"order":   payment.OrderID,
			"error":   err.Error(),
		})
	}

	return payment, nil
}

func (s *paymentService) failVerification(ctx context.Context, payment Payment, reason string) (Payment, error) {
	now := s.clock()
	payment.Status = domain.PaymentStatusFailed
	payment.Details = withDetail(payment.Details, detailFailureReason, reason)
	payment.UpdatedAt = now

	if err := s.payments.Update(ctx, payment); err != nil {
		s.logger(ctx, "payment.verify.fail_update_failed", map[string]any{
			"payment": payment.ID,
			"error":   err.Error(),
		})
	}

	return payment, fmt.Errorf("%w: %s", ErrPaymentVerificationFailed, reason)
}

func (s *paymentService) webhookComplete(ctx context.Context, event webhookEvent) {
	payment, err := s.resolveWebhookPayment(ctx, event)
	if err != nil {
		s.logger(ctx, "payment.webhook.payment_unresolved", map[string]any{
			"event": event.Event,
			"error": err.Error(),
		})
		return
	}

	switch payment.Status {
	case domain.PaymentStatusCompleted, domain.PaymentStatusRefunded:
		// Redelivery of an event we already applied.
		return
	}

	if _, err := s.completePayment(ctx, payment, strings.TrimSpace(event.Payload.PaymentID), event.Payload.Method); err != nil {
		s.logger(ctx, "payment.webhook.complete_failed", map[string]any{
			"payment": payment.ID,
			"error":   err.Error(),
		})
	}
}

func (s *paymentService) webhookFail(ctx context.Context, event webhookEvent) {
	payment, err := s.resolveWebhookPayment(ctx, event)
	if err != nil {
		s.logger(ctx, "payment.webhook.payment_unresolved", map[string]any{
			"event": event.Event,
			"error": err.Error(),
		})
		return
	}

	switch payment.Status {
	case domain.PaymentStatusCompleted, domain.PaymentStatusRefunded, domain.PaymentStatusFailed:
		return
	}

	reason := strings.TrimSpace(event.Payload.ErrorDescription)
	if reason == "" {
		reason = "gateway reported failure"
	}

	payment.Status = domain.PaymentStatusFailed
	payment.Details = withDetail(payment.Details, detailFailureReason, reason)
	payment.UpdatedAt = s.clock()

	if err := s.payments.Update(ctx, payment); err != nil {
		s.logger(ctx, "payment.webhook.fail_update_failed", map[string]any{
			"payment": payment.ID,
			"error":   err.Error(),
		})
	}
}

func (s *paymentService) webhookRefund(ctx context.Context, event webhookEvent) {
	payment, err := s.resolveWebhookPayment(ctx, event)
	if err != nil {
		s.logger(ctx, "payment.webhook.payment_unresolved", map[string]any{
			"event": event.Event,
			"error": err.Error(),
		})
		return
	}

	if payment.Status == domain.PaymentStatusRefunded {
		return
	}

	payment.Status = domain.PaymentStatusRefunded
	if refundID := strings.TrimSpace(event.Payload.RefundID); refundID != "" {
		payment.Details = withDetail(payment.Details, detailRefundID, refundID)
	}
	payment.UpdatedAt = s.clock()

	if err := s.payments.Update(ctx, payment); err != nil {
		s.logger(ctx, "payment.webhook.refund_update_failed", map[string]any{
			"payment": payment.ID,
			"error":   err.Error(),
		})
	}
}

// resolveWebhookPayment cross-references the local ids the checkout flow put
// into the gateway notes, falling back to the gateway transaction id.
func (s *paymentService) resolveWebhookPayment(ctx context.Context, event webhookEvent) (Payment, error) {
	if id := strings.TrimSpace(event.Payload.Notes.PaymentID); id != "" {
		return s.payments.FindByID(ctx, id)
	}
	if id := strings.TrimSpace(event.Payload.Notes.OrderID); id != "" {
		return s.payments.FindByOrderID(ctx, id)
	}
	if id := strings.TrimSpace(event.Payload.PaymentID); id != "" {
		return s.payments.FindByTransactionID(ctx, id)
	}
	return Payment{}, errors.New("webhook event carries no payment reference")
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("payment: conflict: %w", err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}

	return err
}

// webhookEvent is the subset of the gateway's webhook body we act on.
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		PaymentID        string `json:"paymentId"`
		OrderID          string `json:"orderId"`
		RefundID         string `json:"refundId"`
		Method           string `json:"method"`
		ErrorDescription string `json:"errorDescription"`
		Notes            struct {
			OrderID   string `json:"orderId"`
			PaymentID string `json:"paymentId"`
		} `json:"notes"`
	} `json:"payload"`
}

func detailString(details map[string]any, key string) string {
	if details == nil {
		return ""
	}
	if val, ok := details[key].(string); ok {
		return strings.TrimSpace(val)
	}
	return ""
}

func withDetail(details map[string]any, key string, value any) map[string]any {
	if details == nil {
		details = map[string]any{}
	}
	details[key] = value
	return details
}
