// Package pricing turns a cart into priced, named line snapshots.
//
// A snapshot copies the menu item's current name and unit price into the
// reservation, so later catalog edits never change an existing order.
// Visibility (MenuItem.Active) does not affect purchasability.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/store"
)

// MaxQuantity is the largest quantity one cart line may request.
const MaxQuantity = 100

// MenuReader looks up current menu items.
type MenuReader interface {
	GetMenuItem(ctx context.Context, id string) (domain.MenuItem, error)
}

// Resolver prices carts against the live menu.
type Resolver struct {
	menu MenuReader
}

// NewResolver creates a Resolver.
func NewResolver(menu MenuReader) *Resolver {
	return &Resolver{menu: menu}
}

// Resolve validates and merges the cart, then snapshots every line.
// The first offending entry aborts the whole cart.
func (r *Resolver) Resolve(ctx context.Context, cart []domain.CartLine) ([]domain.LineItem, decimal.Decimal, error) {
	merged, err := NormalizeCart(cart)
	if err != nil {
		return nil, decimal.Zero, err
	}

	lines := make([]domain.LineItem, 0, len(merged))
	for _, c := range merged {
		item, err := r.menu.GetMenuItem(ctx, c.MenuItemID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, decimal.Zero, domain.NewItemNotFound(c.MenuItemID)
		}
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("price %s: %w", c.MenuItemID, err)
		}
		lines = append(lines, domain.LineItem{
			MenuItemID: item.ID,
			Name:       domain.NormalizeText(item.Name),
			UnitPrice:  item.UnitPrice,
			Quantity:   c.Quantity,
		})
	}
	return lines, domain.TotalOf(lines), nil
}

// NormalizeCart validates each entry and merges duplicate item ids, keeping
// the position of the first occurrence.
func NormalizeCart(cart []domain.CartLine) ([]domain.CartLine, error) {
	if len(cart) == 0 {
		return nil, domain.NewError(domain.ErrCodeInvalidInput, "cart is empty")
	}

	index := make(map[string]int, len(cart))
	merged := make([]domain.CartLine, 0, len(cart))
	for _, c := range cart {
		id := domain.NormalizeText(c.MenuItemID)
		if id == "" {
			return nil, domain.NewError(domain.ErrCodeInvalidInput, "cart line has no menu item id")
		}
		if c.Quantity <= 0 {
			return nil, invalidQuantity(id, "quantity must be positive, got %d", c.Quantity)
		}
		if c.Quantity > MaxQuantity {
			return nil, tooMany(id, c.Quantity)
		}
		i, ok := index[id]
		if !ok {
			index[id] = len(merged)
			merged = append(merged, domain.CartLine{MenuItemID: id, Quantity: c.Quantity})
			continue
		}
		// Both operands are at most MaxQuantity, so the sum cannot overflow.
		merged[i].Quantity += c.Quantity
		if merged[i].Quantity > MaxQuantity {
			return nil, tooMany(id, merged[i].Quantity)
		}
	}
	return merged, nil
}

func tooMany(itemID string, qty int) *domain.Error {
	return invalidQuantity(itemID, "quantity %d exceeds the limit of %d", qty, MaxQuantity)
}

func invalidQuantity(itemID, format string, args ...any) *domain.Error {
	e := domain.NewError(domain.ErrCodeInvalidQuantity, format, args...)
	e.ItemID = itemID
	return e
}
