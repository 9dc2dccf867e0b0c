package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightcart/api/internal/platform/httpx"
	"github.com/brightcart/api/internal/services"
)

const (
	maxWebhookBodySize     = 256 * 1024
	webhookSignatureHeader = "X-Webhook-Signature"

	defaultWebhookRateLimit  = 120
	defaultWebhookRateWindow = time.Minute
)

// WebhookHandlers receives gateway callbacks. Processing is best-effort: the
// gateway always gets a 200 so it stops retrying, even for payloads we reject.
type WebhookHandlers struct {
	payments services.PaymentService
	limiter  rateLimiter
}

// WebhookOption customises webhook handler construction.
type WebhookOption func(*WebhookHandlers)

// WithWebhookRateLimiter overrides the default per-gateway rate limiter.
// Passing nil disables limiting.
func WithWebhookRateLimiter(limiter rateLimiter) WebhookOption {
	return func(h *WebhookHandlers) {
		h.limiter = limiter
	}
}

// WithWebhookRateLimit sizes the built-in limiter. A non-positive limit
// disables limiting.
func WithWebhookRateLimit(limit int, window time.Duration) WebhookOption {
	return func(h *WebhookHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, time.Now)
	}
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(payments services.PaymentService, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{
		payments: payments,
		limiter:  newSimpleRateLimiter(defaultWebhookRateLimit, defaultWebhookRateWindow, time.Now),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{gateway}", h.receive)
}

func (h *WebhookHandlers) receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gateway := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "gateway")))

	acknowledge := func() {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"received": true})
	}

	if h.limiter != nil && !h.limiter.Allow(gateway+"|"+r.RemoteAddr) {
		acknowledge()
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil || gateway == "" || h.payments == nil {
		acknowledge()
		return
	}

	h.payments.HandleWebhook(ctx, services.PaymentWebhookCommand{
		Gateway:   gateway,
		Payload:   body,
		Signature: strings.TrimSpace(r.Header.Get(webhookSignatureHeader)),
	})

	acknowledge()
}
