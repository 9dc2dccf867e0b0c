package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/repositories"
	"github.com/brightcart/api/internal/shipping"
)

const (
	shipmentIDPrefix = "shp_"

	shipmentStatusLabelCreated = "label_created"
	shipmentStatusDelivered    = "delivered"
)

var (
	// ErrShipmentInvalidInput signals malformed shipping input.
	ErrShipmentInvalidInput = errors.New("shipment: invalid input")
	// ErrShipmentNotFound indicates the shipment could not be located.
	ErrShipmentNotFound = errors.New("shipment: not found")
	// ErrShipmentInvalidState indicates the order status forbids label generation.
	ErrShipmentInvalidState = errors.New("shipment: invalid order state")
	// ErrShipmentCarrierFailure indicates the remote carrier call failed.
	ErrShipmentCarrierFailure = errors.New("shipment: carrier failure")
)

// Carrier abstracts the external carrier client for testing.
type Carrier interface {
	Name() string
	CreateShipment(ctx context.Context, req shipping.ShipmentRequest) (shipping.ShipmentResponse, error)
	TrackShipment(ctx context.Context, trackingNumber string) (shipping.TrackingResponse, error)
	CalculateRate(ctx context.Context, req shipping.RateRequest) (shipping.RateResponse, error)
}

// ShippingServiceDeps bundles collaborators for the shipping service.
type ShippingServiceDeps struct {
	Shipments   repositories.ShipmentRepository
	Orders      OrderService
	Carrier     Carrier
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type shippingService struct {
	shipments repositories.ShipmentRepository
	orders    OrderService
	carrier   Carrier
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewShippingService wires dependencies into a concrete ShippingService implementation.
func NewShippingService(deps ShippingServiceDeps) (ShippingService, error) {
	if deps.Shipments == nil {
		return nil, errors.New("shipping service: shipment repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("shipping service: order service is required")
	}
	if deps.Carrier == nil {
		return nil, errors.New("shipping service: carrier client is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &shippingService{
		shipments: deps.Shipments,
		orders:    deps.Orders,
		carrier:   deps.Carrier,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateLabel purchases a carrier label for the order, persists the tracking
// record, and moves the order to shipped.
func (s *shippingService) CreateLabel(ctx context.Context, cmd CreateLabelCommand) (Shipment, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Shipment{}, fmt.Errorf("%w: order id is required", ErrShipmentInvalidInput)
	}

	order, err := s.orders.GetOrder(ctx, orderID, OrderReadOptions{})
	if err != nil {
		return Shipment{}, err
	}

	if !slices.Contains(labelEligibleStatuses, order.Status) {
		return Shipment{}, fmt.Errorf("%w: labels cannot be generated from status %q", ErrShipmentInvalidState, order.Status)
	}
	if order.ShippingAddress == nil {
		return Shipment{}, fmt.Errorf("%w: order has no shipping address", ErrShipmentInvalidInput)
	}

	resp, err := s.carrier.CreateShipment(ctx, shipping.ShipmentRequest{
		OrderID:     order.ID,
		Service:     strings.TrimSpace(cmd.Service),
		WeightGrams: orderWeightGrams(order.Items),
		Destination: destinationAddress(*order.ShippingAddress),
	})
	if err != nil {
		return Shipment{}, fmt.Errorf("%w: %v", ErrShipmentCarrierFailure, err)
	}

	now := s.clock()
	shp := Shipment{
		ID:             shipmentIDPrefix + s.newID(),
		OrderID:        order.ID,
		Carrier:        resp.Carrier,
		TrackingNumber: resp.TrackingNumber,
		Status:         shipmentStatusLabelCreated,
		LabelURL:       resp.LabelURL,
		Events: []ShipmentEvent{{
			Status:     shipmentStatusLabelCreated,
			OccurredAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !resp.EstimatedDelivery.IsZero() {
		shp.EstimatedDelivery = valuePtr(resp.EstimatedDelivery.UTC())
	}

	if err := s.shipments.Insert(ctx, shp); err != nil {
		return Shipment{}, s.mapRepositoryError(err)
	}

	if _, err := s.orders.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusShipped,
		ActorID:      cmd.ActorID,
		Note:         "label generated, tracking " + shp.TrackingNumber,
	}); err != nil {
		s.logger(ctx, "shipping.label.order_transition_failed", map[string]any{
			"order":    order.ID,
			"shipment": shp.ID,
			"error":    err.Error(),
		})
		return Shipment{}, err
	}

	return shp, nil
}

// RefreshTracking polls the carrier and applies the latest status and events.
// A carrier-reported delivery cascades the order to delivered.
func (s *shippingService) RefreshTracking(ctx context.Context, trackingNumber string) (Shipment, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return Shipment{}, fmt.Errorf("%w: tracking number is required", ErrShipmentInvalidInput)
	}

	shp, err := s.shipments.FindByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return Shipment{}, s.mapRepositoryError(err)
	}

	tracking, err := s.carrier.TrackShipment(ctx, trackingNumber)
	if err != nil {
		return Shipment{}, fmt.Errorf("%w: %v", ErrShipmentCarrierFailure, err)
	}

	now := s.clock()
	previousStatus := shp.Status
	if tracking.Status != "" {
		shp.Status = tracking.Status
	}
	if !tracking.EstimatedDelivery.IsZero() {
		shp.EstimatedDelivery = valuePtr(tracking.EstimatedDelivery.UTC())
	}
	if len(tracking.Events) > 0 {
		shp.Events = trackingEvents(tracking.Events)
	}
	shp.UpdatedAt = now

	if err := s.shipments.Update(ctx, shp); err != nil {
		return Shipment{}, s.mapRepositoryError(err)
	}

	if shp.Status == shipmentStatusDelivered && previousStatus != shipmentStatusDelivered {
		if _, err := s.orders.TransitionStatus(ctx, OrderStatusTransitionCommand{
			OrderID:      shp.OrderID,
			TargetStatus: domain.OrderStatusDelivered,
			Note:         "carrier reported delivered",
		}); err != nil && !errors.Is(err, ErrOrderInvalidState) {
			s.logger(ctx, "shipping.tracking.order_transition_failed", map[string]any{
				"order":    shp.OrderID,
				"shipment": shp.ID,
				"error":    err.Error(),
			})
		}
	}

	return shp, nil
}

// QuoteRate passes a storefront rate estimate through to the carrier. This is
// an estimate only; checkout commits to the flat shipping method price.
func (s *shippingService) QuoteRate(ctx context.Context, cmd RateQuoteCommand) (RateQuote, error) {
	if cmd.WeightGrams <= 0 {
		return RateQuote{}, fmt.Errorf("%w: weight must be positive", ErrShipmentInvalidInput)
	}
	if strings.TrimSpace(cmd.Destination.PostalCode) == "" || strings.TrimSpace(cmd.Destination.Country) == "" {
		return RateQuote{}, fmt.Errorf("%w: destination postal code and country are required", ErrShipmentInvalidInput)
	}

	rate, err := s.carrier.CalculateRate(ctx, shipping.RateRequest{
		Service:     strings.TrimSpace(cmd.Service),
		WeightGrams: cmd.WeightGrams,
		Destination: destinationAddress(cmd.Destination),
	})
	if err != nil {
		return RateQuote{}, fmt.Errorf("%w: %v", ErrShipmentCarrierFailure, err)
	}

	return RateQuote{
		Carrier:      s.carrier.Name(),
		Service:      rate.Service,
		Amount:       rate.Amount,
		Currency:     rate.Currency,
		EstimatedDay: rate.EstimatedDay,
	}, nil
}

func (s *shippingService) ListByOrder(ctx context.Context, orderID string) ([]Shipment, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrShipmentInvalidInput)
	}

	shipments, err := s.shipments.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return shipments, nil
}

func (s *shippingService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrShipmentNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("shipment: conflict: %w", err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("shipment: repository unavailable: %w", err)
		}
	}

	return err
}

func orderWeightGrams(items []OrderLineItem) int64 {
	var total int64
	for _, item := range items {
		total += int64(item.WeightGrams) * int64(item.Quantity)
	}
	return total
}

func destinationAddress(addr Address) shipping.DestinationAddress {
	dest := shipping.DestinationAddress{
		Name:       addr.Recipient,
		Line1:      addr.Line1,
		City:       addr.City,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
	if addr.Line2 != nil {
		dest.Line2 = *addr.Line2
	}
	if addr.State != nil {
		dest.State = *addr.State
	}
	return dest
}

func trackingEvents(events []shipping.TrackingEvent) []ShipmentEvent {
	out := make([]ShipmentEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, ShipmentEvent{
			Status:     ev.Status,
			Location:   ev.Location,
			OccurredAt: ev.OccurredAt,
		})
	}
	return out
}
