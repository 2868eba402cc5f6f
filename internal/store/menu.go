package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
)

// Stock movement reasons recorded in stock_movements.reason.
const (
	MovementReserve = "reserve"
	MovementRelease = "release"
	MovementAdjust  = "adjust"
)

// StockLine is one item/quantity pair of a stock reservation or release.
type StockLine struct {
	MenuItemID string
	Quantity   int
}

// UpsertMenuItem creates a menu item or updates its catalog fields.
// Stock is only written on insert; existing stock changes go through
// ReserveStock, ReleaseStock or SetStock.
func (s *Store) UpsertMenuItem(ctx context.Context, item domain.MenuItem) error {
	priceCents, err := domain.ToCents(item.UnitPrice)
	if err != nil {
		return fmt.Errorf("upsert menu item: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO menu_items (id, name, category, unit_price_cents, stock, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			unit_price_cents = excluded.unit_price_cents,
			active = excluded.active,
			updated_at = excluded.updated_at
	`,
		item.ID,
		item.Name,
		string(item.Category),
		priceCents,
		item.Stock,
		boolToInt(item.Active),
		formatTime(item.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert menu item: %w", err)
	}
	return nil
}

// DeleteMenuItem removes a menu item. Existing reservations keep their snapshots.
func (s *Store) DeleteMenuItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM menu_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete menu item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete menu item: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete menu item %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetMenuItem returns the current state of one menu item.
func (s *Store) GetMenuItem(ctx context.Context, id string) (domain.MenuItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, unit_price_cents, stock, active, updated_at
		FROM menu_items
		WHERE id = ?
	`, id)
	item, err := scanMenuItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MenuItem{}, fmt.Errorf("get menu item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.MenuItem{}, fmt.Errorf("get menu item: %w", err)
	}
	return item, nil
}

// ListMenuItems returns menu items ordered by category then name.
// Inactive items are included only when includeInactive is set.
func (s *Store) ListMenuItems(ctx context.Context, includeInactive bool) ([]domain.MenuItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, unit_price_cents, stock, active, updated_at
		FROM menu_items
		WHERE active = 1 OR ?
		ORDER BY category ASC, name ASC, id ASC
	`, boolToInt(includeInactive))
	if err != nil {
		return nil, fmt.Errorf("query menu items: %w", err)
	}
	defer rows.Close()

	items := []domain.MenuItem{}
	for rows.Next() {
		item, err := scanMenuItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate menu items: %w", err)
	}
	return items, nil
}

// ReserveStock deducts every line in one transaction: either all lines are
// applied or none are. Each deduction is a conditional update, so two callers
// racing for the last unit cannot both succeed.
//
// Returns a domain ITEM_NOT_FOUND or INSUFFICIENT_STOCK error naming the first
// offending line. A reference that was already reserved returns ErrDuplicate
// and changes nothing.
func (s *Store) ReserveStock(ctx context.Context, reference string, lines []StockLine, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reserve stock: begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := formatTime(at)
	for _, line := range lines {
		claimed, err := claimMovement(ctx, tx, line.MenuItemID, -line.Quantity, MovementReserve, reference, ts)
		if err != nil {
			return fmt.Errorf("reserve stock: %w", err)
		}
		if !claimed {
			return fmt.Errorf("reserve stock %s: %w", reference, ErrDuplicate)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE menu_items
			SET stock = stock - ?, updated_at = ?
			WHERE id = ? AND stock >= ?
		`, line.Quantity, ts, line.MenuItemID, line.Quantity)
		if err != nil {
			return fmt.Errorf("reserve stock: update %s: %w", line.MenuItemID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reserve stock: rows affected: %w", err)
		}
		if n == 1 {
			continue
		}

		var available int
		err = tx.QueryRowContext(ctx, `SELECT stock FROM menu_items WHERE id = ?`, line.MenuItemID).Scan(&available)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NewItemNotFound(line.MenuItemID)
		}
		if err != nil {
			return fmt.Errorf("reserve stock: read %s: %w", line.MenuItemID, err)
		}
		return domain.NewInsufficientStock(line.MenuItemID, line.Quantity, available)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reserve stock: commit: %w", err)
	}
	return nil
}

// ReleaseStock restores stock previously reserved under reference.
//
// Each line is applied at most once per reference and only if a matching
// reserve movement exists, so retrying a release whose commit outcome is
// unknown is safe, and so is releasing after a reserve that rolled back.
// Lines whose menu item has since been deleted are skipped and reported in
// the returned slice.
func (s *Store) ReleaseStock(ctx context.Context, reference string, lines []StockLine, at time.Time) (missing []string, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("release stock: begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := formatTime(at)
	for _, line := range lines {
		res, err := tx.ExecContext(ctx, `
			UPDATE menu_items
			SET stock = stock + ?, updated_at = ?
			WHERE id = ?
			  AND EXISTS (
				SELECT 1 FROM stock_movements
				WHERE reason = ? AND reference = ? AND menu_item_id = ?
			  )
			  AND NOT EXISTS (
				SELECT 1 FROM stock_movements
				WHERE reason = ? AND reference = ? AND menu_item_id = ?
			  )
		`, line.Quantity, ts, line.MenuItemID,
			MovementReserve, reference, line.MenuItemID,
			MovementRelease, reference, line.MenuItemID)
		if err != nil {
			return nil, fmt.Errorf("release stock: update %s: %w", line.MenuItemID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("release stock: rows affected: %w", err)
		}
		if n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM menu_items WHERE id = ?`, line.MenuItemID).Scan(&exists)
			if err != nil {
				return nil, fmt.Errorf("release stock: read %s: %w", line.MenuItemID, err)
			}
			if exists == 0 {
				missing = append(missing, line.MenuItemID)
			}
			// Otherwise never reserved under this reference (the reserve
			// rolled back) or already released. Both are no-ops.
			continue
		}

		if _, err := claimMovement(ctx, tx, line.MenuItemID, line.Quantity, MovementRelease, reference, ts); err != nil {
			return nil, fmt.Errorf("release stock: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("release stock: commit: %w", err)
	}
	return missing, nil
}

// SetStock is the admin correction path: it sets an absolute stock level and
// journals the delta under reference.
func (s *Store) SetStock(ctx context.Context, id string, stock int, reference string, at time.Time) (previous int, err error) {
	if stock < 0 {
		return 0, domain.NewError(domain.ErrCodeInvalidQuantity, "stock cannot be negative")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("set stock: begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `SELECT stock FROM menu_items WHERE id = ?`, id).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("set stock %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("set stock: read: %w", err)
	}

	ts := formatTime(at)
	if _, err := tx.ExecContext(ctx, `UPDATE menu_items SET stock = ?, updated_at = ? WHERE id = ?`, stock, ts, id); err != nil {
		return 0, fmt.Errorf("set stock: update: %w", err)
	}
	if _, err := claimMovement(ctx, tx, id, stock-previous, MovementAdjust, reference, ts); err != nil {
		return 0, fmt.Errorf("set stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("set stock: commit: %w", err)
	}
	return previous, nil
}

// HasStockMovement reports whether a movement with the given key was applied.
func (s *Store) HasStockMovement(ctx context.Context, reason, reference, menuItemID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM stock_movements
		WHERE reason = ? AND reference = ? AND menu_item_id = ?
	`, reason, reference, menuItemID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check stock movement: %w", err)
	}
	return count > 0, nil
}

// claimMovement inserts a journal row and reports whether it was new.
func claimMovement(ctx context.Context, tx *sql.Tx, itemID string, delta int, reason, reference, ts string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (menu_item_id, delta, reason, reference, at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(reason, reference, menu_item_id) DO NOTHING
	`, itemID, delta, reason, reference, ts)
	if err != nil {
		return false, fmt.Errorf("journal %s %s: %w", reason, itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("journal rows affected: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMenuItem(row rowScanner) (domain.MenuItem, error) {
	var (
		item       domain.MenuItem
		category   string
		priceCents int64
		active     int
		updatedAt  string
	)
	if err := row.Scan(&item.ID, &item.Name, &category, &priceCents, &item.Stock, &active, &updatedAt); err != nil {
		return domain.MenuItem{}, err
	}
	ts, err := parseTime(updatedAt)
	if err != nil {
		return domain.MenuItem{}, err
	}
	item.Category = domain.Category(category)
	item.UnitPrice = domain.FromCents(priceCents)
	item.Active = active == 1
	item.UpdatedAt = ts
	return item, nil
}
