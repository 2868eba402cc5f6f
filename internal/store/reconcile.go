package store

import (
	"context"
	"fmt"
	"time"
)

// OrphanHold is stock or money held under a reference that never became a
// reservation: the process stopped between the holding step and the insert.
type OrphanHold struct {
	Reference  string
	UserID     string
	DebitCents int64
	Lines      []StockLine
}

// OrphanHolds returns holds older than before whose reservation row does not
// exist and which were not yet reversed. Holds newer than before may belong
// to a create still in flight and are ignored.
func (s *Store) OrphanHolds(ctx context.Context, before time.Time) ([]OrphanHold, error) {
	cutoff := formatTime(before)
	byRef := map[string]*OrphanHold{}
	var order []string
	hold := func(ref string) *OrphanHold {
		h, ok := byRef[ref]
		if !ok {
			h = &OrphanHold{Reference: ref}
			byRef[ref] = h
			order = append(order, ref)
		}
		return h
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.reference, m.menu_item_id, -m.delta
		FROM stock_movements m
		WHERE m.reason = ? AND m.at < ?
		  AND NOT EXISTS (SELECT 1 FROM reservations r WHERE r.id = m.reference)
		  AND EXISTS (SELECT 1 FROM menu_items i WHERE i.id = m.menu_item_id)
		  AND NOT EXISTS (
			SELECT 1 FROM stock_movements x
			WHERE x.reason = ? AND x.reference = m.reference AND x.menu_item_id = m.menu_item_id
		  )
		ORDER BY m.reference ASC, m.id ASC
	`, MovementReserve, cutoff, MovementRelease)
	if err != nil {
		return nil, fmt.Errorf("query orphan stock: %w", err)
	}
	for rows.Next() {
		var ref string
		var line StockLine
		if err := rows.Scan(&ref, &line.MenuItemID, &line.Quantity); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan orphan stock: %w", err)
		}
		h := hold(ref)
		h.Lines = append(h.Lines, line)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate orphan stock: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT e.reference, e.user_id, -e.delta_cents
		FROM wallet_entries e
		WHERE e.reason = ? AND e.at < ?
		  AND NOT EXISTS (SELECT 1 FROM reservations r WHERE r.id = e.reference)
		  AND NOT EXISTS (
			SELECT 1 FROM wallet_entries x WHERE x.reason = ? AND x.reference = e.reference
		  )
		ORDER BY e.reference ASC
	`, EntryPurchase, cutoff, EntryRefund)
	if err != nil {
		return nil, fmt.Errorf("query orphan debits: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ref, userID string
		var cents int64
		if err := rows.Scan(&ref, &userID, &cents); err != nil {
			return nil, fmt.Errorf("scan orphan debit: %w", err)
		}
		h := hold(ref)
		h.UserID = userID
		h.DebitCents = cents
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orphan debits: %w", err)
	}

	holds := make([]OrphanHold, 0, len(order))
	for _, ref := range order {
		holds = append(holds, *byRef[ref])
	}
	return holds, nil
}

// UncompensatedRejections returns ids of rejected reservations whose refund
// or stock release has not been applied yet.
func (s *Store) UncompensatedRejections(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, "uncompensated rejections", `
		SELECT r.id
		FROM reservations r
		WHERE r.status = 'rejected'
		  AND (
			(
				EXISTS (SELECT 1 FROM wallet_entries e WHERE e.reason = ? AND e.reference = r.id)
				AND NOT EXISTS (SELECT 1 FROM wallet_entries e WHERE e.reason = ? AND e.reference = r.id)
			)
			OR EXISTS (
				SELECT 1 FROM stock_movements m
				WHERE m.reason = ? AND m.reference = r.id
				  AND EXISTS (SELECT 1 FROM menu_items i WHERE i.id = m.menu_item_id)
				  AND NOT EXISTS (
					SELECT 1 FROM stock_movements x
					WHERE x.reason = ? AND x.reference = r.id AND x.menu_item_id = m.menu_item_id
				  )
			)
		  )
		ORDER BY r.id ASC
	`, EntryPurchase, EntryRefund, MovementReserve, MovementRelease)
}

// UncreditedTopups returns ids of approved topups with no credit applied.
func (s *Store) UncreditedTopups(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, "uncredited topups", `
		SELECT t.id
		FROM topups t
		WHERE t.status = 'approved'
		  AND NOT EXISTS (SELECT 1 FROM wallet_entries e WHERE e.reason = ? AND e.reference = t.id)
		ORDER BY t.id ASC
	`, EntryTopup)
}

func (s *Store) queryIDs(ctx context.Context, what, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", what, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return ids, nil
}
