package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
)

// ErrStale is returned (wrapped) when a compare-and-set finds the record no
// longer in the expected state. Nothing was written.
var ErrStale = errors.New("record state changed")

// ErrDuplicate is returned (wrapped) when an insert collides with an existing id.
var ErrDuplicate = errors.New("record already exists")

// InsertReservation persists a new reservation with its line snapshots and
// its first audit event in one transaction.
func (s *Store) InsertReservation(ctx context.Context, r domain.Reservation, actor string) error {
	totalCents, err := domain.ToCents(r.Total)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert reservation: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservations (id, user_id, total_cents, pickup_slot, note, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.UserID,
		totalCents,
		r.PickupSlot,
		r.Note,
		string(r.Status),
		formatTime(r.CreatedAt),
		formatTime(r.UpdatedAt),
	)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("insert reservation %s: %w", r.ID, ErrDuplicate)
		}
		return fmt.Errorf("insert reservation: %w", err)
	}

	for i, line := range r.LineItems {
		priceCents, err := domain.ToCents(line.UnitPrice)
		if err != nil {
			return fmt.Errorf("insert reservation line %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reservation_lines (reservation_id, line_no, menu_item_id, name, unit_price_cents, quantity)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.ID, i, line.MenuItemID, line.Name, priceCents, line.Quantity)
		if err != nil {
			return fmt.Errorf("insert reservation line %d: %w", i, err)
		}
	}

	if err := insertEvent(ctx, tx, domain.ReservationEvent{
		ReservationID: r.ID,
		To:            r.Status,
		Actor:         actor,
		At:            r.CreatedAt,
	}); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert reservation: commit: %w", err)
	}
	return nil
}

// GetReservation returns one reservation with its line snapshots.
func (s *Store) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, total_cents, pickup_slot, note, status, created_at, updated_at
		FROM reservations
		WHERE id = ?
	`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reservation{}, fmt.Errorf("get reservation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}

	lines, err := s.reservationLines(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	r.LineItems = lines
	return r, nil
}

// ListReservationsByUser returns the user's reservations, newest first.
func (s *Store) ListReservationsByUser(ctx context.Context, userID string) ([]domain.Reservation, error) {
	return s.listReservations(ctx, `
		SELECT id, user_id, total_cents, pickup_slot, note, status, created_at, updated_at
		FROM reservations
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
}

// ListReservationsByStatus returns reservations currently in status, newest first.
func (s *Store) ListReservationsByStatus(ctx context.Context, status domain.Status) ([]domain.Reservation, error) {
	return s.listReservations(ctx, `
		SELECT id, user_id, total_cents, pickup_slot, note, status, created_at, updated_at
		FROM reservations
		WHERE status = ?
		ORDER BY created_at DESC, id DESC
	`, string(status))
}

// TransitionReservation moves a reservation from one status to another and
// appends the audit event, atomically. The update only applies while the row
// is still in from; otherwise ErrStale is returned and nothing changes, so at
// most one of several concurrent transitions out of the same status wins.
func (s *Store) TransitionReservation(ctx context.Context, id string, from, to domain.Status, actor, reason string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transition reservation: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE reservations
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(to), formatTime(at), id, string(from))
	if err != nil {
		return fmt.Errorf("transition reservation: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition reservation: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transition reservation %s from %s: %w", id, from, ErrStale)
	}

	if err := insertEvent(ctx, tx, domain.ReservationEvent{
		ReservationID: id,
		From:          from,
		To:            to,
		Actor:         actor,
		Reason:        reason,
		At:            at,
	}); err != nil {
		return fmt.Errorf("transition reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transition reservation: commit: %w", err)
	}
	return nil
}

// ReservationEvents returns the audit trail of a reservation in order.
func (s *Store) ReservationEvents(ctx context.Context, id string) ([]domain.ReservationEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reservation_id, from_status, to_status, actor, reason, at
		FROM reservation_events
		WHERE reservation_id = ?
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query reservation events: %w", err)
	}
	defer rows.Close()

	events := []domain.ReservationEvent{}
	for rows.Next() {
		var (
			e        domain.ReservationEvent
			from, to string
			at       string
		)
		if err := rows.Scan(&e.ReservationID, &from, &to, &e.Actor, &e.Reason, &at); err != nil {
			return nil, fmt.Errorf("scan reservation event: %w", err)
		}
		ts, err := parseTime(at)
		if err != nil {
			return nil, fmt.Errorf("scan reservation event: %w", err)
		}
		e.From = domain.Status(from)
		e.To = domain.Status(to)
		e.At = ts
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservation events: %w", err)
	}
	return events, nil
}

// listReservations runs query, then loads line snapshots once the cursor is
// closed. The pool holds a single connection, so the two reads cannot overlap.
func (s *Store) listReservations(ctx context.Context, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}

	reservations := []domain.Reservation{}
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	rows.Close()

	for i := range reservations {
		lines, err := s.reservationLines(ctx, reservations[i].ID)
		if err != nil {
			return nil, err
		}
		reservations[i].LineItems = lines
	}
	return reservations, nil
}

func (s *Store) reservationLines(ctx context.Context, reservationID string) ([]domain.LineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT menu_item_id, name, unit_price_cents, quantity
		FROM reservation_lines
		WHERE reservation_id = ?
		ORDER BY line_no ASC
	`, reservationID)
	if err != nil {
		return nil, fmt.Errorf("query reservation lines: %w", err)
	}
	defer rows.Close()

	lines := []domain.LineItem{}
	for rows.Next() {
		var (
			line       domain.LineItem
			priceCents int64
		)
		if err := rows.Scan(&line.MenuItemID, &line.Name, &priceCents, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan reservation line: %w", err)
		}
		line.UnitPrice = domain.FromCents(priceCents)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservation lines: %w", err)
	}
	return lines, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, e domain.ReservationEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO reservation_events (reservation_id, from_status, to_status, actor, reason, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ReservationID, string(e.From), string(e.To), e.Actor, e.Reason, formatTime(e.At))
	if err != nil {
		return fmt.Errorf("insert reservation event: %w", err)
	}
	return nil
}

func scanReservation(row rowScanner) (domain.Reservation, error) {
	var (
		r          domain.Reservation
		totalCents int64
		status     string
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(&r.ID, &r.UserID, &totalCents, &r.PickupSlot, &r.Note, &status, &createdAt, &updatedAt); err != nil {
		return domain.Reservation{}, err
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return domain.Reservation{}, err
	}
	updated, err := parseTime(updatedAt)
	if err != nil {
		return domain.Reservation{}, err
	}
	r.Total = domain.FromCents(totalCents)
	r.Status = domain.Status(status)
	r.CreatedAt = created
	r.UpdatedAt = updated
	return r, nil
}
