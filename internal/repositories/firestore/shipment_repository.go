package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/brightcart/api/internal/domain"
	pfirestore "github.com/brightcart/api/internal/platform/firestore"
	"github.com/brightcart/api/internal/repositories"
)

const shipmentCollection = "shipments"

// ShipmentRepository stores carrier tracking records for orders.
type ShipmentRepository struct {
	provider  *pfirestore.Provider
	shipments *pfirestore.Collection[shipmentDocument]
}

// NewShipmentRepository constructs a Firestore-backed shipment repository.
func NewShipmentRepository(provider *pfirestore.Provider) (*ShipmentRepository, error) {
	if provider == nil {
		return nil, errors.New("shipment repository requires firestore provider")
	}
	shipments := pfirestore.NewCollection[shipmentDocument](provider, shipmentCollection)
	return &ShipmentRepository{provider: provider, shipments: shipments}, nil
}

var _ repositories.ShipmentRepository = (*ShipmentRepository)(nil)

// Insert creates a shipment record, failing with a conflict when the ID exists.
func (r *ShipmentRepository) Insert(ctx context.Context, shipment domain.Shipment) error {
	if r == nil || r.provider == nil {
		return errors.New("shipment repository not initialised")
	}
	if strings.TrimSpace(shipment.ID) == "" {
		return errors.New("shipment repository: shipment id is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.shipments.Doc(ctx, shipment.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(ref, newShipmentDocument(shipment)); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return pfirestore.NewConflictError("shipments.insert", fmt.Errorf("shipment %s already exists", shipment.ID))
			}
			return err
		}
		return nil
	})
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) {
			return repoErr
		}
		return pfirestore.WrapError("shipments.insert", err)
	}
	return nil
}

// Update overwrites the shipment record.
func (r *ShipmentRepository) Update(ctx context.Context, shipment domain.Shipment) error {
	if r == nil || r.shipments == nil {
		return errors.New("shipment repository not initialised")
	}
	if strings.TrimSpace(shipment.ID) == "" {
		return errors.New("shipment repository: shipment id is required")
	}

	_, err := r.shipments.Set(ctx, shipment.ID, newShipmentDocument(shipment))
	return err
}

// FindByID loads a shipment by its identifier.
func (r *ShipmentRepository) FindByID(ctx context.Context, shipmentID string) (domain.Shipment, error) {
	if r == nil || r.shipments == nil {
		return domain.Shipment{}, errors.New("shipment repository not initialised")
	}
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return domain.Shipment{}, errors.New("shipment repository: shipment id is required")
	}

	doc, err := r.shipments.Get(ctx, shipmentID)
	if err != nil {
		return domain.Shipment{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByTrackingNumber resolves a carrier tracking number to its shipment.
func (r *ShipmentRepository) FindByTrackingNumber(ctx context.Context, trackingNumber string) (domain.Shipment, error) {
	if r == nil || r.shipments == nil {
		return domain.Shipment{}, errors.New("shipment repository not initialised")
	}
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return domain.Shipment{}, errors.New("shipment repository: tracking number is required")
	}

	docs, err := r.shipments.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("trackingNumber", "==", trackingNumber).Limit(1)
	})
	if err != nil {
		return domain.Shipment{}, err
	}
	if len(docs) == 0 {
		return domain.Shipment{}, pfirestore.NewNotFoundError("shipments.findByTracking", fmt.Errorf("shipment with tracking %s not found", trackingNumber))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// ListByOrder returns all shipments created for an order, oldest first.
func (r *ShipmentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Shipment, error) {
	if r == nil || r.shipments == nil {
		return nil, errors.New("shipment repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("shipment repository: order id is required")
	}

	docs, err := r.shipments.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	shipments := make([]domain.Shipment, len(docs))
	for i, doc := range docs {
		shipments[i] = doc.Data.toDomain(doc.ID)
	}
	return shipments, nil
}

type shipmentDocument struct {
	OrderID           string                  `firestore:"orderId"`
	Carrier           string                  `firestore:"carrier"`
	TrackingNumber    string                  `firestore:"trackingNumber"`
	Status            string                  `firestore:"status"`
	LabelURL          string                  `firestore:"labelUrl,omitempty"`
	EstimatedDelivery *time.Time              `firestore:"estimatedDelivery,omitempty"`
	Events            []shipmentEventDocument `firestore:"events,omitempty"`
	CreatedAt         time.Time               `firestore:"createdAt"`
	UpdatedAt         time.Time               `firestore:"updatedAt"`
}

type shipmentEventDocument struct {
	Status     string    `firestore:"status"`
	Location   string    `firestore:"location,omitempty"`
	OccurredAt time.Time `firestore:"occurredAt"`
}

func newShipmentDocument(shipment domain.Shipment) shipmentDocument {
	doc := shipmentDocument{
		OrderID:           strings.TrimSpace(shipment.OrderID),
		Carrier:           strings.TrimSpace(shipment.Carrier),
		TrackingNumber:    strings.TrimSpace(shipment.TrackingNumber),
		Status:            strings.TrimSpace(shipment.Status),
		LabelURL:          strings.TrimSpace(shipment.LabelURL),
		EstimatedDelivery: shipment.EstimatedDelivery,
		CreatedAt:         shipment.CreatedAt.UTC(),
		UpdatedAt:         shipment.UpdatedAt.UTC(),
	}
	for _, ev := range shipment.Events {
		doc.Events = append(doc.Events, shipmentEventDocument{
			Status:     strings.TrimSpace(ev.Status),
			Location:   strings.TrimSpace(ev.Location),
			OccurredAt: ev.OccurredAt.UTC(),
		})
	}
	return doc
}

func (d shipmentDocument) toDomain(id string) domain.Shipment {
	shipment := domain.Shipment{
		ID:                id,
		OrderID:           d.OrderID,
		Carrier:           d.Carrier,
		TrackingNumber:    d.TrackingNumber,
		Status:            d.Status,
		LabelURL:          d.LabelURL,
		EstimatedDelivery: d.EstimatedDelivery,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	for _, ev := range d.Events {
		shipment.Events = append(shipment.Events, domain.ShipmentEvent{
			Status:     ev.Status,
			Location:   ev.Location,
			OccurredAt: ev.OccurredAt,
		})
	}
	return shipment
}
