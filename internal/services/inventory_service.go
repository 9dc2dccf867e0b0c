package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/platform/pagination"
	"github.com/brightcart/api/internal/repositories"
)

var (
	// ErrInventoryInvalidInput signals malformed reserve/release/adjust input.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryNotFound indicates no stock record exists for the variant.
	ErrInventoryNotFound = errors.New("inventory: stock not found")
	// ErrInventoryInsufficient indicates on-hand stock cannot cover the request.
	ErrInventoryInsufficient = errors.New("inventory: insufficient stock")
)

// InventoryServiceDeps bundles collaborators for the inventory service.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	inventory repositories.InventoryRepository
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		inventory: deps.Inventory,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *inventoryService) Reserve(ctx context.Context, cmd InventoryReserveCommand) ([]InventoryRecord, error) {
	lines, err := normalizeInventoryLines(cmd.Lines)
	if err != nil {
		return nil, err
	}

	records, err := s.inventory.Reserve(ctx, lines, s.clock())
	if err != nil {
		return nil, translateInventoryError(err)
	}
	return records, nil
}

func (s *inventoryService) Release(ctx context.Context, cmd InventoryReleaseCommand) ([]InventoryRecord, error) {
	lines, err := normalizeInventoryLines(cmd.Lines)
	if err != nil {
		return nil, err
	}

	records, err := s.inventory.Release(ctx, lines, s.clock())
	if err != nil {
		return nil, translateInventoryError(err)
	}

	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		s.logger(ctx, "inventory.released", map[string]any{
			"lines":  len(lines),
			"reason": reason,
		})
	}
	return records, nil
}

func (s *inventoryService) GetStock(ctx context.Context, variantID string) (InventoryRecord, error) {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return InventoryRecord{}, fmt.Errorf("%w: variant id is required", ErrInventoryInvalidInput)
	}

	record, err := s.inventory.Get(ctx, variantID)
	if err != nil {
		return InventoryRecord{}, translateInventoryError(err)
	}
	return record, nil
}

func (s *inventoryService) Adjust(ctx context.Context, cmd InventoryAdjustCommand) (InventoryRecord, error) {
	variantID := strings.TrimSpace(cmd.VariantID)
	if variantID == "" {
		return InventoryRecord{}, fmt.Errorf("%w: variant id is required", ErrInventoryInvalidInput)
	}
	if cmd.OnHand == nil && cmd.SKU == nil && cmd.ReorderThreshold == nil && cmd.ReorderQuantity == nil {
		return InventoryRecord{}, fmt.Errorf("%w: at least one field must be adjusted", ErrInventoryInvalidInput)
	}
	if cmd.OnHand != nil && *cmd.OnHand < 0 {
		return InventoryRecord{}, fmt.Errorf("%w: on-hand quantity cannot be negative", ErrInventoryInvalidInput)
	}

	record, err := s.inventory.Adjust(ctx, repositories.InventoryAdjustRequest{
		VariantID:        variantID,
		SKU:              cmd.SKU,
		OnHand:           cmd.OnHand,
		ReorderThreshold: cmd.ReorderThreshold,
		ReorderQuantity:  cmd.ReorderQuantity,
		Now:              s.clock(),
	})
	if err != nil {
		return InventoryRecord{}, translateInventoryError(err)
	}

	s.logger(ctx, "inventory.adjusted", map[string]any{
		"variant": variantID,
		"actor":   strings.TrimSpace(cmd.ActorID),
	})

	return record, nil
}

func (s *inventoryService) ListLowStock(ctx context.Context, filter InventoryLowStockFilter) (domain.CursorPage[InventoryRecord], error) {
	page, err := s.inventory.ListLowStock(ctx, repositories.InventoryLowStockQuery{
		PageSize:  filter.Pagination.PageSize,
		PageToken: filter.Pagination.PageToken,
	})
	if err != nil {
		return domain.CursorPage[InventoryRecord]{}, translateInventoryError(err)
	}
	return page, nil
}

func normalizeInventoryLines(lines []InventoryLine) ([]domain.InventoryLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInventoryInvalidInput)
	}

	normalized := make([]domain.InventoryLine, 0, len(lines))
	for _, line := range lines {
		variantID := strings.TrimSpace(line.VariantID)
		if variantID == "" {
			return nil, fmt.Errorf("%w: line variant id is required", ErrInventoryInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line quantity must be positive", ErrInventoryInvalidInput)
		}
		normalized = append(normalized, domain.InventoryLine{
			VariantID: variantID,
			SKU:       strings.TrimSpace(line.SKU),
			Quantity:  line.Quantity,
		})
	}
	return normalized, nil
}

// translateInventoryError maps repository error codes onto package sentinels.
func translateInventoryError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return fmt.Errorf("%w: %v", ErrInventoryInvalidInput, err)
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		return mapInventoryError(invErr)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrInventoryNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("inventory: repository unavailable: %w", err)
		}
	}

	return err
}

func mapInventoryError(err *repositories.InventoryError) error {
	switch err.Code {
	case repositories.InventoryErrorInsufficientStock:
		return fmt.Errorf("%w: %s", ErrInventoryInsufficient, err.Message)
	case repositories.InventoryErrorStockNotFound:
		return fmt.Errorf("%w: %s", ErrInventoryNotFound, err.Message)
	case repositories.InventoryErrorInvalidQuantity:
		return fmt.Errorf("%w: %s", ErrInventoryInvalidInput, err.Message)
	default:
		return err
	}
}
