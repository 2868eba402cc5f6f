package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/mrdcvlsc/food-reservation/internal/cache"
	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/store"
)

// Field limits for menu items.
const (
	MaxItemIDLen   = 64
	MaxItemNameLen = 120
)

// MenuStore is the persistence Menu needs.
type MenuStore interface {
	UpsertMenuItem(ctx context.Context, item domain.MenuItem) error
	DeleteMenuItem(ctx context.Context, id string) error
	GetMenuItem(ctx context.Context, id string) (domain.MenuItem, error)
	ListMenuItems(ctx context.Context, includeInactive bool) ([]domain.MenuItem, error)
	SetStock(ctx context.Context, id string, stock int, reference string, at time.Time) (int, error)
}

// ItemInput is an admin create or edit of a menu item. Stock is applied
// only when the item is created; use AdjustStock afterwards.
type ItemInput struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  domain.Category `json:"category"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Stock     int             `json:"stock"`
	Active    bool            `json:"active"`
}

// Menu is the menu administration and display service.
type Menu struct {
	store  MenuStore
	cache  cache.MenuCache
	ids    domain.IDGenerator
	clock  domain.Clock
	logger *slog.Logger
}

// MenuOption configures a Menu.
type MenuOption func(*Menu)

// WithCache sets the display cache. Default: cache.Noop.
func WithCache(c cache.MenuCache) MenuOption {
	return func(m *Menu) {
		if c != nil {
			m.cache = c
		}
	}
}

// WithClock sets the clock. Default: domain.SystemClock.
func WithClock(c domain.Clock) MenuOption {
	return func(m *Menu) { m.clock = c }
}

// WithIDGenerator sets the source of stock adjustment references.
func WithIDGenerator(g domain.IDGenerator) MenuOption {
	return func(m *Menu) { m.ids = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) MenuOption {
	return func(m *Menu) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMenu creates a Menu.
func NewMenu(s MenuStore, opts ...MenuOption) *Menu {
	m := &Menu{
		store:  s,
		cache:  cache.Noop{},
		ids:    domain.UUIDv7Generator{},
		clock:  domain.SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// List returns the menu. Students see active items only; admins see all.
// Reads go through the display cache; a cache failure falls back to the store.
func (m *Menu) List(ctx context.Context, actor domain.Actor) ([]domain.MenuItem, error) {
	all := actor.Admin

	items, ok, err := m.cache.GetMenu(ctx, all)
	if err != nil {
		m.logger.Warn("menu cache read failed", "error", err)
	}
	if ok {
		return items, nil
	}

	items, err = m.store.ListMenuItems(ctx, all)
	if err != nil {
		return nil, err
	}
	if err := m.cache.SetMenu(ctx, all, items); err != nil {
		m.logger.Warn("menu cache write failed", "error", err)
	}
	return items, nil
}

// Get returns one menu item from the store.
func (m *Menu) Get(ctx context.Context, id string) (domain.MenuItem, error) {
	item, err := m.store.GetMenuItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.MenuItem{}, domain.NewError(domain.ErrCodeNotFound, "menu item %s not found", id)
	}
	return item, err
}

// Upsert creates an item or edits its catalog fields. Editing a price never
// changes existing reservations, which hold their own snapshots.
func (m *Menu) Upsert(ctx context.Context, in ItemInput, actor domain.Actor) (domain.MenuItem, error) {
	if !actor.Admin {
		return domain.MenuItem{}, domain.NewError(domain.ErrCodeForbidden, "only admins can edit the menu")
	}
	item, err := validateItem(in)
	if err != nil {
		return domain.MenuItem{}, err
	}
	item.UpdatedAt = m.clock.Now()

	if err := m.store.UpsertMenuItem(ctx, item); err != nil {
		return domain.MenuItem{}, err
	}
	m.invalidate(ctx)

	m.logger.Info("menu item saved",
		"item_id", item.ID,
		"price", domain.FormatMoney(item.UnitPrice),
		"active", item.Active,
		"actor", actor.UserID,
	)
	return m.Get(ctx, item.ID)
}

// AdjustStock sets an item's stock to an absolute value. The change is
// journaled as an adjustment movement.
func (m *Menu) AdjustStock(ctx context.Context, id string, stock int, actor domain.Actor) (domain.MenuItem, error) {
	if !actor.Admin {
		return domain.MenuItem{}, domain.NewError(domain.ErrCodeForbidden, "only admins can adjust stock")
	}
	if stock < 0 {
		return domain.MenuItem{}, &domain.Error{Code: domain.ErrCodeInvalidQuantity, Message: "stock cannot be negative", ItemID: id}
	}

	reference := "adjust:" + m.ids.Generate()
	previous, err := m.store.SetStock(ctx, id, stock, reference, m.clock.Now())
	if errors.Is(err, store.ErrNotFound) {
		return domain.MenuItem{}, domain.NewError(domain.ErrCodeNotFound, "menu item %s not found", id)
	}
	if err != nil {
		return domain.MenuItem{}, err
	}
	m.invalidate(ctx)

	m.logger.Info("stock adjusted",
		"item_id", id,
		"from", previous,
		"to", stock,
		"reference", reference,
		"actor", actor.UserID,
	)
	return m.Get(ctx, id)
}

// Delete removes an item. Reservations that reference it keep their snapshots.
func (m *Menu) Delete(ctx context.Context, id string, actor domain.Actor) error {
	if !actor.Admin {
		return domain.NewError(domain.ErrCodeForbidden, "only admins can edit the menu")
	}
	err := m.store.DeleteMenuItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.NewError(domain.ErrCodeNotFound, "menu item %s not found", id)
	}
	if err != nil {
		return err
	}
	m.invalidate(ctx)
	m.logger.Info("menu item deleted", "item_id", id, "actor", actor.UserID)
	return nil
}

// InvalidateMenu drops cached listings. Menu satisfies ledger.MenuInvalidator.
func (m *Menu) InvalidateMenu(ctx context.Context) error {
	return m.cache.InvalidateMenu(ctx)
}

func (m *Menu) invalidate(ctx context.Context) {
	if err := m.cache.InvalidateMenu(ctx); err != nil {
		m.logger.Warn("menu cache invalidation failed", "error", err)
	}
}

func validateItem(in ItemInput) (domain.MenuItem, error) {
	id := domain.NormalizeText(in.ID)
	if id == "" {
		return domain.MenuItem{}, domain.NewError(domain.ErrCodeInvalidInput, "item id is required")
	}
	if utf8.RuneCountInString(id) > MaxItemIDLen {
		return domain.MenuItem{}, domain.NewError(domain.ErrCodeInvalidInput, "item id exceeds %d characters", MaxItemIDLen)
	}
	name := domain.NormalizeText(in.Name)
	if name == "" {
		return domain.MenuItem{}, &domain.Error{Code: domain.ErrCodeInvalidInput, Message: "name is required", ItemID: id}
	}
	if utf8.RuneCountInString(name) > MaxItemNameLen {
		return domain.MenuItem{}, &domain.Error{Code: domain.ErrCodeInvalidInput, Message: fmt.Sprintf("name exceeds %d characters", MaxItemNameLen), ItemID: id}
	}
	category, err := domain.ParseCategory(string(in.Category))
	if err != nil {
		return domain.MenuItem{}, err
	}
	if !in.UnitPrice.IsPositive() || !domain.IsMoneyScale(in.UnitPrice) {
		return domain.MenuItem{}, &domain.Error{Code: domain.ErrCodeInvalidAmount, Message: "price must be positive with at most two decimal places", ItemID: id}
	}
	if domain.ExceedsMaxAmount(in.UnitPrice) {
		return domain.MenuItem{}, &domain.Error{Code: domain.ErrCodeInvalidAmount, Message: "price exceeds " + domain.FormatMoney(domain.MaxAmount), ItemID: id}
	}
	if in.Stock < 0 {
		return domain.MenuItem{}, &domain.Error{Code: domain.ErrCodeInvalidQuantity, Message: "stock cannot be negative", ItemID: id}
	}
	return domain.MenuItem{
		ID:        id,
		Name:      name,
		Category:  category,
		UnitPrice: in.UnitPrice,
		Stock:     in.Stock,
		Active:    in.Active,
	}, nil
}
