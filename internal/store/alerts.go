package store

import (
	"context"
	"fmt"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
)

// RecordAlert persists an integrity alert and returns it with its id.
func (s *Store) RecordAlert(ctx context.Context, alert domain.IntegrityAlert) (domain.IntegrityAlert, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO integrity_alerts (kind, subject, detail, at)
		VALUES (?, ?, ?, ?)
	`, alert.Kind, alert.Subject, alert.Detail, formatTime(alert.At))
	if err != nil {
		return domain.IntegrityAlert{}, fmt.Errorf("record alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.IntegrityAlert{}, fmt.Errorf("record alert: last insert id: %w", err)
	}
	alert.ID = id
	return alert, nil
}

// ListAlerts returns every recorded integrity alert, oldest first.
func (s *Store) ListAlerts(ctx context.Context) ([]domain.IntegrityAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, subject, detail, at
		FROM integrity_alerts
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []domain.IntegrityAlert{}
	for rows.Next() {
		var (
			a  domain.IntegrityAlert
			at string
		)
		if err := rows.Scan(&a.ID, &a.Kind, &a.Subject, &a.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		ts, err := parseTime(at)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.At = ts
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

// CheckInvariants scans for rows that violate the stock and balance floors.
// The CHECK constraints make these unreachable; a non-empty result means the
// database was modified outside the store.
func (s *Store) CheckInvariants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT 'menu_item ' || id FROM menu_items WHERE stock < 0
		UNION ALL
		SELECT 'wallet ' || user_id FROM wallets WHERE balance_cents < 0
		UNION ALL
		SELECT 'reservation ' || r.id
		FROM reservations r
		WHERE r.total_cents != (
			SELECT COALESCE(SUM(l.unit_price_cents * l.quantity), 0)
			FROM reservation_lines l
			WHERE l.reservation_id = r.id
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("check invariants: %w", err)
	}
	defer rows.Close()

	violations := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("check invariants: scan: %w", err)
		}
		violations = append(violations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("check invariants: %w", err)
	}
	return violations, nil
}
