package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/repositories"
)

type stubInventoryRepository struct {
	reserveFn      func(ctx context.Context, lines []domain.InventoryLine, now time.Time) ([]domain.InventoryRecord, error)
	releaseFn      func(ctx context.Context, lines []domain.InventoryLine, now time.Time) ([]domain.InventoryRecord, error)
	getFn          func(ctx context.Context, variantID string) (domain.InventoryRecord, error)
	adjustFn       func(ctx context.Context, req repositories.InventoryAdjustRequest) (domain.InventoryRecord, error)
	listLowStockFn func(ctx context.Context, query repositories.InventoryLowStockQuery) (domain.CursorPage[domain.InventoryRecord], error)
}

func (s *stubInventoryRepository) Reserve(ctx context.Context, lines []domain.InventoryLine, now time.Time) ([]domain.InventoryRecord, error) {
	if s.reserveFn == nil {
		return nil, errors.New("unexpected Reserve call")
	}
	return s.reserveFn(ctx, lines, now)
}

func (s *stubInventoryRepository) Release(ctx context.Context, lines []domain.InventoryLine, now time.Time) ([]domain.InventoryRecord, error) {
	if s.releaseFn == nil {
		return nil, errors.New("unexpected Release call")
	}
	return s.releaseFn(ctx, lines, now)
}

func (s *stubInventoryRepository) Get(ctx context.Context, variantID string) (domain.InventoryRecord, error) {
	if s.getFn == nil {
		return domain.InventoryRecord{}, errors.New("unexpected Get call")
	}
	return s.getFn(ctx, variantID)
}

func (s *stubInventoryRepository) Adjust(ctx context.Context, req repositories.InventoryAdjustRequest) (domain.InventoryRecord, error) {
	if s.adjustFn == nil {
		return domain.InventoryRecord{}, errors.New("unexpected Adjust call")
	}
	return s.adjustFn(ctx, req)
}

func (s *stubInventoryRepository) ListLowStock(ctx context.Context, query repositories.InventoryLowStockQuery) (domain.CursorPage[domain.InventoryRecord], error) {
	if s.listLowStockFn == nil {
		return domain.CursorPage[domain.InventoryRecord]{}, errors.New("unexpected ListLowStock call")
	}
	return s.listLowStockFn(ctx, query)
}

func newTestInventoryService(t *testing.T, repo repositories.InventoryRepository) InventoryService {
	t.Helper()
	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: repo, Clock: fixedClock})
	if err != nil {
		t.Fatalf("NewInventoryService returned error: %v", err)
	}
	return svc
}

func TestInventoryServiceReserve(t *testing.T) {
	repo := &stubInventoryRepository{
		reserveFn: func(_ context.Context, lines []domain.InventoryLine, now time.Time) ([]domain.InventoryRecord, error) {
			if len(lines) != 2 {
				t.Fatalf("expected 2 lines, got %d", len(lines))
			}
			if !now.Equal(testNow) {
				t.Fatalf("expected clock time %v, got %v", testNow, now)
			}
			return []domain.InventoryRecord{
				{VariantID: "var_a", OnHand: 10, Reserved: 3, Available: 7},
				{VariantID: "var_b", OnHand: 5, Reserved: 1, Available: 4},
			}, nil
		},
	}
	svc := newTestInventoryService(t, repo)

	records, err := svc.Reserve(context.Background(), InventoryReserveCommand{
		Lines: []InventoryLine{
			{VariantID: "var_a", Quantity: 3},
			{VariantID: " var_b ", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if len(records) != 2 || records[0].Available != 7 {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestInventoryServiceReserveValidation(t *testing.T) {
	svc := newTestInventoryService(t, &stubInventoryRepository{})

	cases := []struct {
		name  string
		lines []InventoryLine
	}{
		{"empty batch", nil},
		{"missing variant", []InventoryLine{{Quantity: 1}}},
		{"zero quantity", []InventoryLine{{VariantID: "var_a", Quantity: 0}}},
		{"negative quantity", []InventoryLine{{VariantID: "var_a", Quantity: -2}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Reserve(context.Background(), InventoryReserveCommand{Lines: tc.lines})
			if !errors.Is(err, ErrInventoryInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestInventoryServiceReserveInsufficientStock(t *testing.T) {
	repo := &stubInventoryRepository{
		reserveFn: func(context.Context, []domain.InventoryLine, time.Time) ([]domain.InventoryRecord, error) {
			return nil, repositories.NewInventoryError(
				repositories.InventoryErrorInsufficientStock, "insufficient stock for variant var_a", nil)
		},
	}
	svc := newTestInventoryService(t, repo)

	_, err := svc.Reserve(context.Background(), InventoryReserveCommand{
		Lines: []InventoryLine{{VariantID: "var_a", Quantity: 100}},
	})
	if !errors.Is(err, ErrInventoryInsufficient) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestInventoryServiceGetStock(t *testing.T) {
	repo := &stubInventoryRepository{
		getFn: func(_ context.Context, variantID string) (domain.InventoryRecord, error) {
			if variantID != "var_a" {
				return domain.InventoryRecord{}, repositories.NewInventoryError(
					repositories.InventoryErrorStockNotFound, "stock record not found", nil)
			}
			return domain.InventoryRecord{VariantID: "var_a", OnHand: 10}, nil
		},
	}
	svc := newTestInventoryService(t, repo)

	record, err := svc.GetStock(context.Background(), "var_a")
	if err != nil {
		t.Fatalf("GetStock returned error: %v", err)
	}
	if record.OnHand != 10 {
		t.Fatalf("unexpected record: %+v", record)
	}

	if _, err := svc.GetStock(context.Background(), "var_missing"); !errors.Is(err, ErrInventoryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetStock(context.Background(), "  "); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestInventoryServiceAdjust(t *testing.T) {
	var captured repositories.InventoryAdjustRequest
	repo := &stubInventoryRepository{
		adjustFn: func(_ context.Context, req repositories.InventoryAdjustRequest) (domain.InventoryRecord, error) {
			captured = req
			return domain.InventoryRecord{VariantID: req.VariantID, OnHand: *req.OnHand}, nil
		},
	}
	svc := newTestInventoryService(t, repo)

	onHand := 25
	threshold := 5
	record, err := svc.Adjust(context.Background(), InventoryAdjustCommand{
		VariantID:        "var_a",
		OnHand:           &onHand,
		ReorderThreshold: &threshold,
		ActorID:          "admin_1",
	})
	if err != nil {
		t.Fatalf("Adjust returned error: %v", err)
	}
	if record.OnHand != 25 {
		t.Fatalf("unexpected record: %+v", record)
	}
	if captured.VariantID != "var_a" || *captured.ReorderThreshold != 5 || !captured.Now.Equal(testNow) {
		t.Fatalf("unexpected adjust request: %+v", captured)
	}
}

func TestInventoryServiceAdjustValidation(t *testing.T) {
	svc := newTestInventoryService(t, &stubInventoryRepository{})

	if _, err := svc.Adjust(context.Background(), InventoryAdjustCommand{VariantID: "var_a"}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected invalid input for no-op adjustment, got %v", err)
	}
	negative := -1
	if _, err := svc.Adjust(context.Background(), InventoryAdjustCommand{VariantID: "var_a", OnHand: &negative}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected invalid input for negative on-hand, got %v", err)
	}
	onHand := 1
	if _, err := svc.Adjust(context.Background(), InventoryAdjustCommand{OnHand: &onHand}); !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected invalid input for missing variant id, got %v", err)
	}
}

func TestInventoryServiceListLowStock(t *testing.T) {
	repo := &stubInventoryRepository{
		listLowStockFn: func(_ context.Context, query repositories.InventoryLowStockQuery) (domain.CursorPage[domain.InventoryRecord], error) {
			if query.PageSize != 20 || query.PageToken != "tok" {
				t.Fatalf("unexpected query: %+v", query)
			}
			return domain.CursorPage[domain.InventoryRecord]{
				Items:         []domain.InventoryRecord{{VariantID: "var_a", OnHand: 2, ReorderThreshold: 5}},
				NextPageToken: "tok2",
			}, nil
		},
	}
	svc := newTestInventoryService(t, repo)

	page, err := svc.ListLowStock(context.Background(), InventoryLowStockFilter{
		Pagination: Pagination{PageSize: 20, PageToken: "tok"},
	})
	if err != nil {
		t.Fatalf("ListLowStock returned error: %v", err)
	}
	if len(page.Items) != 1 || page.NextPageToken != "tok2" {
		t.Fatalf("unexpected page: %+v", page)
	}
}
