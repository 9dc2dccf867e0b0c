package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/brightcart/api/internal/domain"
	pfirestore "github.com/brightcart/api/internal/platform/firestore"
	"github.com/brightcart/api/internal/platform/pagination"
	"github.com/brightcart/api/internal/repositories"
)

const inventoryCollection = "inventory"

// InventoryRepository stores per-variant stock records. Each document is keyed
// by variant ID; available is always derived as onHand - reserved.
type InventoryRepository struct {
	provider *pfirestore.Provider
	stocks   *pfirestore.Collection[stockDocument]
}

// NewInventoryRepository constructs a Firestore-backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	stocks := pfirestore.NewCollection[stockDocument](provider, inventoryCollection)
	return &InventoryRepository{provider: provider, stocks: stocks}, nil
}

var _ repositories.InventoryRepository = (*InventoryRepository)(nil)

// Reserve places a hold on every line in a single transaction. Any line with
// insufficient available stock aborts the whole batch.
func (r *InventoryRepository) Reserve(ctx context.Context, lines []domain.InventoryLine, now time.Time) ([]domain.InventoryRecord, error) {
	return r.adjustReserved(ctx, "inventory.reserve", lines, now, +1)
}

// Release returns previously held quantities to the available pool.
func (r *InventoryRepository) Release(ctx context.Context, lines []domain.InventoryLine, now time.Time) ([]domain.InventoryRecord, error) {
	return r.adjustReserved(ctx, "inventory.release", lines, now, -1)
}

func (r *InventoryRepository) adjustReserved(ctx context.Context, op string, lines []domain.InventoryLine, now time.Time, direction int) ([]domain.InventoryRecord, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	if len(lines) == 0 {
		return nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, "at least one line is required", nil)
	}

	now = now.UTC()
	var records []domain.InventoryRecord
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docs, refs, err := r.readStockLines(ctx, tx, lines)
		if err != nil {
			return err
		}

		records = records[:0]
		for i, line := range lines {
			doc := docs[i]
			delta := line.Quantity * direction
			if direction > 0 && doc.OnHand-doc.Reserved < line.Quantity {
				return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, fmt.Sprintf("insufficient stock for variant %s", line.VariantID), nil)
			}
			if direction < 0 && doc.Reserved < line.Quantity {
				return repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, fmt.Sprintf("release for variant %s exceeds reserved quantity", line.VariantID), nil)
			}
			doc.Reserved += delta
			doc.UpdatedAt = now
			doc.recalculate()
			if err := tx.Set(refs[i], doc); err != nil {
				return err
			}
			records = append(records, doc.toDomain(line.VariantID))
		}
		return nil
	})
	if err != nil {
		return nil, wrapInventoryError(op, err)
	}
	return records, nil
}

// Decrement subtracts on-hand stock for every line in the supplied
// transaction. Used by the checkout write path.
func (r *InventoryRepository) decrementInTx(ctx context.Context, tx *firestore.Transaction, lines []domain.InventoryLine, now time.Time) error {
	docs, refs, err := r.readStockLines(ctx, tx, lines)
	if err != nil {
		return err
	}
	for i, line := range lines {
		doc := docs[i]
		if doc.OnHand-doc.Reserved < line.Quantity {
			return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, fmt.Sprintf("insufficient stock for variant %s", line.VariantID), nil)
		}
		doc.OnHand -= line.Quantity
		doc.UpdatedAt = now
		doc.recalculate()
		if err := tx.Set(refs[i], doc); err != nil {
			return err
		}
	}
	return nil
}

// restoreInTx returns on-hand quantities inside the supplied transaction.
// Stock records deleted since checkout are skipped rather than failing the
// cancellation.
func (r *InventoryRepository) restoreInTx(ctx context.Context, tx *firestore.Transaction, lines []domain.InventoryLine, now time.Time) error {
	type restoreWrite struct {
		ref *firestore.DocumentRef
		doc stockDocument
	}
	var writes []restoreWrite
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		ref, err := r.stocks.Doc(ctx, strings.TrimSpace(line.VariantID))
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				continue
			}
			return err
		}
		var doc stockDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode inventory record %s: %w", line.VariantID, err)
		}
		doc.OnHand += line.Quantity
		doc.UpdatedAt = now
		doc.recalculate()
		writes = append(writes, restoreWrite{ref: ref, doc: doc})
	}
	for _, w := range writes {
		if err := tx.Set(w.ref, w.doc); err != nil {
			return err
		}
	}
	return nil
}

func (r *InventoryRepository) readStockLines(ctx context.Context, tx *firestore.Transaction, lines []domain.InventoryLine) ([]stockDocument, []*firestore.DocumentRef, error) {
	docs := make([]stockDocument, len(lines))
	refs := make([]*firestore.DocumentRef, len(lines))
	for i, line := range lines {
		variantID := strings.TrimSpace(line.VariantID)
		if variantID == "" {
			return nil, nil, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, "variant id is required", nil)
		}
		if line.Quantity <= 0 {
			return nil, nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, fmt.Sprintf("quantity for variant %s must be > 0", variantID), nil)
		}
		ref, err := r.stocks.Doc(ctx, variantID)
		if err != nil {
			return nil, nil, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, nil, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, fmt.Sprintf("stock record for variant %s not found", variantID), err)
			}
			return nil, nil, err
		}
		var doc stockDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, nil, fmt.Errorf("decode inventory record %s: %w", variantID, err)
		}
		docs[i] = doc
		refs[i] = ref
	}
	return docs, refs, nil
}

// Get loads the stock record for a variant.
func (r *InventoryRepository) Get(ctx context.Context, variantID string) (domain.InventoryRecord, error) {
	if r == nil || r.stocks == nil {
		return domain.InventoryRecord{}, errors.New("inventory repository not initialised")
	}
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return domain.InventoryRecord{}, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, "variant id is required", nil)
	}

	doc, err := r.stocks.Get(ctx, variantID)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.InventoryRecord{}, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, fmt.Sprintf("stock record for variant %s not found", variantID), err)
		}
		return domain.InventoryRecord{}, wrapInventoryError("inventory.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Adjust overwrites absolute stock figures for a variant, creating the record
// when absent.
func (r *InventoryRepository) Adjust(ctx context.Context, req repositories.InventoryAdjustRequest) (domain.InventoryRecord, error) {
	if r == nil || r.provider == nil {
		return domain.InventoryRecord{}, errors.New("inventory repository not initialised")
	}
	variantID := strings.TrimSpace(req.VariantID)
	if variantID == "" {
		return domain.InventoryRecord{}, repositories.NewInventoryError(repositories.InventoryErrorStockNotFound, "variant id is required", nil)
	}
	if req.OnHand != nil && *req.OnHand < 0 {
		return domain.InventoryRecord{}, repositories.NewInventoryError(repositories.InventoryErrorInvalidQuantity, "on-hand stock must be >= 0", nil)
	}

	now := req.Now.UTC()
	var updated domain.InventoryRecord
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.stocks.Doc(ctx, variantID)
		if err != nil {
			return err
		}
		var doc stockDocument
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
		} else if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode inventory record %s: %w", variantID, err)
		}

		if req.SKU != nil {
			doc.SKU = strings.TrimSpace(*req.SKU)
		}
		if req.OnHand != nil {
			doc.OnHand = *req.OnHand
		}
		if req.ReorderThreshold != nil {
			doc.ReorderThreshold = *req.ReorderThreshold
		}
		if req.ReorderQuantity != nil {
			doc.ReorderQuantity = *req.ReorderQuantity
		}
		doc.UpdatedAt = now
		doc.recalculate()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(variantID)
		return nil
	})
	if err != nil {
		return domain.InventoryRecord{}, wrapInventoryError("inventory.adjust", err)
	}
	return updated, nil
}

// ListLowStock pages through variants whose available stock sits at or below
// their reorder threshold.
func (r *InventoryRepository) ListLowStock(ctx context.Context, query repositories.InventoryLowStockQuery) (domain.CursorPage[domain.InventoryRecord], error) {
	if r == nil || r.stocks == nil {
		return domain.CursorPage[domain.InventoryRecord]{}, errors.New("inventory repository not initialised")
	}

	pageSize := pagination.ClampPageSize(query.PageSize, 50, 200)

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.InventoryRecord]{}, wrapInventoryError("inventory.lowStock", err)
	}

	firestoreQuery := client.Collection(inventoryCollection).Query.
		Where("reorderDelta", "<=", 0).
		OrderBy("reorderDelta", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	var cursor inventoryPageToken
	if ok, err := pagination.DecodeCursor(query.PageToken, &cursor); err != nil {
		return domain.CursorPage[domain.InventoryRecord]{}, wrapInventoryError("inventory.lowStock", err)
	} else if ok {
		firestoreQuery = firestoreQuery.StartAfter(cursor.ReorderDelta, cursor.VariantID)
	}

	iter := firestoreQuery.Documents(ctx)
	defer iter.Stop()

	var records []domain.InventoryRecord
	deltas := map[string]int{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.InventoryRecord]{}, wrapInventoryError("inventory.lowStock", err)
		}
		var doc stockDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.InventoryRecord]{}, fmt.Errorf("decode inventory record %s: %w", snap.Ref.ID, err)
		}
		records = append(records, doc.toDomain(snap.Ref.ID))
		deltas[snap.Ref.ID] = doc.ReorderDelta
	}

	hasMore := len(records) > pageSize
	if hasMore {
		records = records[:pageSize]
	}
	var nextToken string
	if hasMore && len(records) > 0 {
		last := records[len(records)-1]
		encoded, err := pagination.EncodeCursor(inventoryPageToken{VariantID: last.VariantID, ReorderDelta: deltas[last.VariantID]})
		if err != nil {
			return domain.CursorPage[domain.InventoryRecord]{}, wrapInventoryError("inventory.lowStock", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.InventoryRecord]{
		Items:         records,
		NextPageToken: nextToken,
	}, nil
}

// Helper structures ---------------------------------------------------------

type stockDocument struct {
	SKU              string    `firestore:"sku"`
	OnHand           int       `firestore:"onHand"`
	Reserved         int       `firestore:"reserved"`
	Available        int       `firestore:"available"`
	ReorderThreshold int       `firestore:"reorderThreshold"`
	ReorderQuantity  int       `firestore:"reorderQuantity"`
	ReorderDelta     int       `firestore:"reorderDelta"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func (s *stockDocument) recalculate() {
	s.Available = s.OnHand - s.Reserved
	s.ReorderDelta = s.Available - s.ReorderThreshold
}

func (s stockDocument) toDomain(variantID string) domain.InventoryRecord {
	return domain.InventoryRecord{
		VariantID:        variantID,
		SKU:              strings.TrimSpace(s.SKU),
		OnHand:           s.OnHand,
		Reserved:         s.Reserved,
		Available:        s.Available,
		ReorderThreshold: s.ReorderThreshold,
		ReorderQuantity:  s.ReorderQuantity,
		UpdatedAt:        s.UpdatedAt,
	}
}

type inventoryPageToken struct {
	VariantID    string `json:"variantId"`
	ReorderDelta int    `json:"reorderDelta"`
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
