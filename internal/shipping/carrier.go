package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout = 8 * time.Second
	apiKeyHeader   = "X-Api-Key"
)

// ErrMissingTrackingNumber is returned when a tracking lookup has no identifier.
var ErrMissingTrackingNumber = errors.New("shipping: missing tracking number")

// CarrierClient talks to the external carrier's JSON API for labels, tracking
// and rate quotes.
type CarrierClient struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
}

// CarrierConfig configures the carrier client.
type CarrierConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Client  *http.Client
}

// ShipmentRequest describes a label purchase for an order.
type ShipmentRequest struct {
	OrderID     string
	Service     string
	WeightGrams int64
	Destination DestinationAddress
}

// DestinationAddress carries the fields the carrier needs to route a parcel.
type DestinationAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// ShipmentResponse reports the purchased label and tracking assignment.
type ShipmentResponse struct {
	Carrier           string
	TrackingNumber    string
	LabelURL          string
	EstimatedDelivery time.Time
}

// TrackingEvent is a single scan in the carrier's tracking history.
type TrackingEvent struct {
	Status      string
	Description string
	Location    string
	OccurredAt  time.Time
}

// TrackingResponse is the carrier's view of a shipment in flight.
type TrackingResponse struct {
	TrackingNumber    string
	Status            string
	EstimatedDelivery time.Time
	Events            []TrackingEvent
}

// RateRequest asks the carrier to price a parcel.
type RateRequest struct {
	Service     string
	WeightGrams int64
	Destination DestinationAddress
}

// RateResponse is a priced shipping option in minor currency units.
type RateResponse struct {
	Service      string
	Amount       int64
	Currency     string
	EstimatedDay int
}

// NewCarrierClient constructs a client against the configured carrier API.
func NewCarrierClient(cfg CarrierConfig) (*CarrierClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("shipping: carrier base url is required")
	}

	httpClient := cfg.Client
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "carrier"
	}

	return &CarrierClient{
		name:    name,
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		http:    httpClient,
	}, nil
}

// Name reports the configured carrier identifier.
func (c *CarrierClient) Name() string {
	return c.name
}

// CreateShipment purchases a label for the given order.
func (c *CarrierClient) CreateShipment(ctx context.Context, req ShipmentRequest) (ShipmentResponse, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return ShipmentResponse{}, errors.New("shipping: order id is required")
	}

	body := shipmentPayload{
		Reference:   req.OrderID,
		Service:     defaultString(req.Service, "standard"),
		WeightGrams: req.WeightGrams,
		Destination: req.Destination,
	}

	var resp shipmentResponsePayload
	if err := c.post(ctx, "shipments", body, &resp); err != nil {
		return ShipmentResponse{}, err
	}

	return ShipmentResponse{
		Carrier:           defaultString(resp.Carrier, c.name),
		TrackingNumber:    strings.TrimSpace(resp.TrackingNumber),
		LabelURL:          strings.TrimSpace(resp.LabelURL),
		EstimatedDelivery: parseTime(resp.EstimatedDelivery),
	}, nil
}

// TrackShipment fetches the current tracking history for a parcel.
func (c *CarrierClient) TrackShipment(ctx context.Context, trackingNumber string) (TrackingResponse, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return TrackingResponse{}, ErrMissingTrackingNumber
	}

	endpoint, err := url.JoinPath(c.baseURL, "shipments", trackingNumber, "tracking")
	if err != nil {
		return TrackingResponse{}, err
	}

	var resp trackingResponsePayload
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return TrackingResponse{}, err
	}

	out := TrackingResponse{
		TrackingNumber:    defaultString(resp.TrackingNumber, trackingNumber),
		Status:            strings.ToLower(strings.TrimSpace(resp.Status)),
		EstimatedDelivery: parseTime(resp.EstimatedDelivery),
	}
	for _, ev := range resp.Events {
		out.Events = append(out.Events, TrackingEvent{
			Status:      strings.ToLower(strings.TrimSpace(ev.Status)),
			Description: strings.TrimSpace(ev.Description),
			Location:    strings.TrimSpace(ev.Location),
			OccurredAt:  parseTime(ev.OccurredAt),
		})
	}
	return out, nil
}

// CalculateRate prices a parcel for the given destination and service level.
func (c *CarrierClient) CalculateRate(ctx context.Context, req RateRequest) (RateResponse, error) {
	body := ratePayload{
		Service:     defaultString(req.Service, "standard"),
		WeightGrams: req.WeightGrams,
		Destination: req.Destination,
	}

	var resp rateResponsePayload
	if err := c.post(ctx, "rates", body, &resp); err != nil {
		return RateResponse{}, err
	}

	return RateResponse{
		Service:      defaultString(resp.Service, body.Service),
		Amount:       resp.Amount,
		Currency:     strings.ToUpper(defaultString(resp.Currency, "USD")),
		EstimatedDay: resp.EstimatedDays,
	}, nil
}

func (c *CarrierClient) post(ctx context.Context, path string, body, out any) error {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

func (c *CarrierClient) get(ctx context.Context, endpoint string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(httpReq, out)
}

func (c *CarrierClient) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("shipping: carrier status %d: %s", resp.StatusCode, drainError(resp.Body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func defaultString(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return strings.TrimSpace(val)
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}

func parseTime(val string) time.Time {
	val = strings.TrimSpace(val)
	if val == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, val); err == nil {
			return ts
		}
	}
	return time.Time{}
}

type shipmentPayload struct {
	Reference   string             `json:"reference"`
	Service     string             `json:"service"`
	WeightGrams int64              `json:"weightGrams"`
	Destination DestinationAddress `json:"destination"`
}

type shipmentResponsePayload struct {
	Carrier           string `json:"carrier"`
	TrackingNumber    string `json:"trackingNumber"`
	LabelURL          string `json:"labelUrl"`
	EstimatedDelivery string `json:"estimatedDelivery"`
}

type trackingResponsePayload struct {
	TrackingNumber    string                 `json:"trackingNumber"`
	Status            string                 `json:"status"`
	EstimatedDelivery string                 `json:"estimatedDelivery"`
	Events            []trackingEventPayload `json:"events"`
}

type trackingEventPayload struct {
	Status      string `json:"status"`
	Description string `json:"description"`
	Location    string `json:"location"`
	OccurredAt  string `json:"occurredAt"`
}

type ratePayload struct {
	Service     string             `json:"service"`
	WeightGrams int64              `json:"weightGrams"`
	Destination DestinationAddress `json:"destination"`
}

type rateResponsePayload struct {
	Service       string `json:"service"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	EstimatedDays int    `json:"estimatedDays"`
}
