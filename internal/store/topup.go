package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
)

// InsertTopup persists a newly submitted topup request.
func (s *Store) InsertTopup(ctx context.Context, t domain.Topup) error {
	cents, err := domain.ToCents(t.Amount)
	if err != nil {
		return fmt.Errorf("insert topup: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO topups (id, user_id, amount_cents, provider, proof_reference, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		t.UserID,
		cents,
		string(t.Provider),
		t.ProofReference,
		string(t.Status),
		formatTime(t.CreatedAt),
	)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("insert topup %s: %w", t.ID, ErrDuplicate)
		}
		return fmt.Errorf("insert topup: %w", err)
	}
	return nil
}

// GetTopup returns one topup request.
func (s *Store) GetTopup(ctx context.Context, id string) (domain.Topup, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount_cents, provider, proof_reference, status, reason, decided_by, created_at, decided_at
		FROM topups
		WHERE id = ?
	`, id)
	t, err := scanTopup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Topup{}, fmt.Errorf("get topup %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Topup{}, fmt.Errorf("get topup: %w", err)
	}
	return t, nil
}

// ListTopupsByUser returns the user's topups, newest first.
func (s *Store) ListTopupsByUser(ctx context.Context, userID string) ([]domain.Topup, error) {
	return s.listTopups(ctx, `
		SELECT id, user_id, amount_cents, provider, proof_reference, status, reason, decided_by, created_at, decided_at
		FROM topups
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID)
}

// ListTopupsByStatus returns topups in status, oldest first (queue order).
func (s *Store) ListTopupsByStatus(ctx context.Context, status domain.TopupStatus) ([]domain.Topup, error) {
	return s.listTopups(ctx, `
		SELECT id, user_id, amount_cents, provider, proof_reference, status, reason, decided_by, created_at, decided_at
		FROM topups
		WHERE status = ?
		ORDER BY created_at ASC, id ASC
	`, string(status))
}

// DecideTopup records the admin decision on a pending topup. The update only
// applies while the topup is still pending; otherwise ErrStale is returned and
// the stored decision is left untouched.
func (s *Store) DecideTopup(ctx context.Context, id string, outcome domain.TopupStatus, reason, decidedBy string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE topups
		SET status = ?, reason = ?, decided_by = ?, decided_at = ?
		WHERE id = ? AND status = ?
	`, string(outcome), reason, decidedBy, formatTime(at), id, string(domain.TopupPending))
	if err != nil {
		return fmt.Errorf("decide topup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decide topup: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("decide topup %s: %w", id, ErrStale)
	}
	return nil
}

func (s *Store) listTopups(ctx context.Context, query string, args ...any) ([]domain.Topup, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query topups: %w", err)
	}
	defer rows.Close()

	topups := []domain.Topup{}
	for rows.Next() {
		t, err := scanTopup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topup: %w", err)
		}
		topups = append(topups, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topups: %w", err)
	}
	return topups, nil
}

func scanTopup(row rowScanner) (domain.Topup, error) {
	var (
		t         domain.Topup
		cents     int64
		provider  string
		status    string
		createdAt string
		decidedAt sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &cents, &provider, &t.ProofReference, &status,
		&t.Reason, &t.DecidedBy, &createdAt, &decidedAt)
	if err != nil {
		return domain.Topup{}, err
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return domain.Topup{}, err
	}
	if decidedAt.Valid {
		decided, err := parseTime(decidedAt.String)
		if err != nil {
			return domain.Topup{}, err
		}
		t.DecidedAt = &decided
	}
	t.Amount = domain.FromCents(cents)
	t.Provider = domain.Provider(provider)
	t.Status = domain.TopupStatus(status)
	t.CreatedAt = created
	return t, nil
}
