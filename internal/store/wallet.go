package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
)

// Wallet entry reasons recorded in wallet_entries.reason.
const (
	EntryPurchase = "purchase"
	EntryRefund   = "refund"
	EntryTopup    = "topup"
	EntryOpening  = "opening"
)

// WalletEntry is one applied balance change.
type WalletEntry struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Delta     decimal.Decimal `json:"delta"`
	Reason    string          `json:"reason"`
	Reference string          `json:"reference"`
	At        time.Time       `json:"at"`
}

// GetWallet returns the user's wallet. A user who was never credited has a
// zero balance and no row; that is not an error.
func (s *Store) GetWallet(ctx context.Context, userID string) (domain.Wallet, error) {
	var (
		cents     int64
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT balance_cents, updated_at FROM wallets WHERE user_id = ?
	`, userID).Scan(&cents, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Wallet{UserID: userID, Balance: domain.FromCents(0)}, nil
	}
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}
	ts, err := parseTime(updatedAt)
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}
	return domain.Wallet{UserID: userID, Balance: domain.FromCents(cents), UpdatedAt: ts}, nil
}

// DebitWallet subtracts cents from the user's balance with a single
// conditional update, so concurrent debits can never drive it negative.
//
// Returns a domain INSUFFICIENT_BALANCE error carrying the shortfall.
// A (reason, reference) pair that was already applied returns ErrDuplicate.
func (s *Store) DebitWallet(ctx context.Context, userID string, cents int64, reason, reference string, at time.Time) error {
	if cents <= 0 {
		return domain.NewError(domain.ErrCodeInvalidAmount, "debit amount must be positive")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("debit wallet: begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := formatTime(at)
	claimed, err := claimEntry(ctx, tx, userID, -cents, reason, reference, ts)
	if err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	if !claimed {
		return fmt.Errorf("debit wallet %s: %w", reference, ErrDuplicate)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance_cents = balance_cents - ?, updated_at = ?
		WHERE user_id = ? AND balance_cents >= ?
	`, cents, ts, userID, cents)
	if err != nil {
		return fmt.Errorf("debit wallet: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit wallet: rows affected: %w", err)
	}
	if n == 0 {
		var balance int64
		err := tx.QueryRowContext(ctx, `SELECT balance_cents FROM wallets WHERE user_id = ?`, userID).Scan(&balance)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("debit wallet: read balance: %w", err)
		}
		return domain.NewInsufficientBalance(userID, domain.FromCents(cents-balance))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("debit wallet: commit: %w", err)
	}
	return nil
}

// CreditWallet adds cents to the user's balance, creating the wallet on first
// credit. It reports whether the credit was applied by this call; a repeated
// (reason, reference) pair returns false and leaves the balance unchanged.
func (s *Store) CreditWallet(ctx context.Context, userID string, cents int64, reason, reference string, at time.Time) (bool, error) {
	if cents <= 0 {
		return false, domain.NewError(domain.ErrCodeInvalidAmount, "credit amount must be positive")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("credit wallet: begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := formatTime(at)
	claimed, err := claimEntry(ctx, tx, userID, cents, reason, reference, ts)
	if err != nil {
		return false, fmt.Errorf("credit wallet: %w", err)
	}
	if !claimed {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance_cents, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			balance_cents = balance_cents + excluded.balance_cents,
			updated_at = excluded.updated_at
	`, userID, cents, ts)
	if err != nil {
		return false, fmt.Errorf("credit wallet: upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("credit wallet: commit: %w", err)
	}
	return true, nil
}

// HasWalletEntry reports whether a balance change with the given key was applied.
func (s *Store) HasWalletEntry(ctx context.Context, reason, reference string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM wallet_entries WHERE reason = ? AND reference = ?
	`, reason, reference).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check wallet entry: %w", err)
	}
	return count > 0, nil
}

// ListWalletEntries returns the user's balance changes, oldest first.
func (s *Store) ListWalletEntries(ctx context.Context, userID string) ([]WalletEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, delta_cents, reason, reference, at
		FROM wallet_entries
		WHERE user_id = ?
		ORDER BY id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query wallet entries: %w", err)
	}
	defer rows.Close()

	entries := []WalletEntry{}
	for rows.Next() {
		var (
			e     WalletEntry
			delta int64
			at    string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &delta, &e.Reason, &e.Reference, &at); err != nil {
			return nil, fmt.Errorf("scan wallet entry: %w", err)
		}
		ts, err := parseTime(at)
		if err != nil {
			return nil, fmt.Errorf("scan wallet entry: %w", err)
		}
		e.Delta = domain.FromCents(delta)
		e.At = ts
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet entries: %w", err)
	}
	return entries, nil
}

// claimEntry inserts a wallet journal row and reports whether it was new.
func claimEntry(ctx context.Context, tx *sql.Tx, userID string, delta int64, reason, reference, ts string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_entries (user_id, delta_cents, reason, reference, at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(reason, reference) DO NOTHING
	`, userID, delta, reason, reference, ts)
	if err != nil {
		return false, fmt.Errorf("journal %s %s: %w", reason, reference, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("journal rows affected: %w", err)
	}
	return n > 0, nil
}
