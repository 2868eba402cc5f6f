package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/store"
)

// StockStore is the persistence InventoryLedger needs.
type StockStore interface {
	ReserveStock(ctx context.Context, reference string, lines []store.StockLine, at time.Time) error
	ReleaseStock(ctx context.Context, reference string, lines []store.StockLine, at time.Time) ([]string, error)
}

// MenuInvalidator is notified after stock changes so display caches can drop
// stale snapshots.
type MenuInvalidator interface {
	InvalidateMenu(ctx context.Context) error
}

// Inventory owns per-item stock counts.
//
// Reserve is all-or-nothing across lines and atomic with respect to
// concurrent callers on the same item. A reference can be reserved once and
// released once; a repeated release is a no-op.
type Inventory struct {
	store       StockStore
	clock       domain.Clock
	invalidator MenuInvalidator
	logger      *slog.Logger
}

// NewInventory creates an Inventory. invalidator may be nil.
func NewInventory(s StockStore, clock domain.Clock, invalidator MenuInvalidator, logger *slog.Logger) *Inventory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inventory{store: s, clock: clock, invalidator: invalidator, logger: logger}
}

// Reserve deducts every line under reference, or none of them.
//
// Returns a domain INVALID_QUANTITY, ITEM_NOT_FOUND or INSUFFICIENT_STOCK error.
func (inv *Inventory) Reserve(ctx context.Context, reference string, lines []domain.LineItem) error {
	stockLines, err := toStockLines(lines)
	if err != nil {
		return err
	}
	if err := inv.store.ReserveStock(ctx, reference, stockLines, inv.clock.Now()); err != nil {
		return err
	}
	inv.logger.Debug("stock reserved", "reference", reference, "lines", len(stockLines))
	inv.invalidate(ctx)
	return nil
}

// Release restores the stock reserved under reference. Items deleted since
// the reservation are logged and skipped.
func (inv *Inventory) Release(ctx context.Context, reference string, lines []domain.LineItem) error {
	stockLines, err := toStockLines(lines)
	if err != nil {
		return err
	}
	missing, err := inv.store.ReleaseStock(ctx, reference, stockLines, inv.clock.Now())
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		inv.logger.Warn("released stock for deleted menu items skipped",
			"reference", reference,
			"items", missing,
		)
	}
	inv.logger.Debug("stock released", "reference", reference, "lines", len(stockLines))
	inv.invalidate(ctx)
	return nil
}

func (inv *Inventory) invalidate(ctx context.Context) {
	if inv.invalidator == nil {
		return
	}
	if err := inv.invalidator.InvalidateMenu(ctx); err != nil {
		inv.logger.Warn("menu cache invalidation failed", "error", err)
	}
}

func toStockLines(lines []domain.LineItem) ([]store.StockLine, error) {
	if len(lines) == 0 {
		return nil, domain.NewError(domain.ErrCodeInvalidInput, "no lines to apply")
	}
	out := make([]store.StockLine, len(lines))
	for i, l := range lines {
		if l.Quantity <= 0 {
			return nil, &domain.Error{
				Code:    domain.ErrCodeInvalidQuantity,
				Message: "quantity must be positive",
				ItemID:  l.MenuItemID,
			}
		}
		out[i] = store.StockLine{MenuItemID: l.MenuItemID, Quantity: l.Quantity}
	}
	return out, nil
}
