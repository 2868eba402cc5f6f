package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
)

// WalletStore is the persistence WalletLedger needs.
type WalletStore interface {
	GetWallet(ctx context.Context, userID string) (domain.Wallet, error)
	DebitWallet(ctx context.Context, userID string, cents int64, reason, reference string, at time.Time) error
	CreditWallet(ctx context.Context, userID string, cents int64, reason, reference string, at time.Time) (bool, error)
}

// Wallet owns per-user balances. Balance never goes negative: Debit is a
// single conditional decrement, not a read followed by a write.
type Wallet struct {
	store  WalletStore
	clock  domain.Clock
	logger *slog.Logger
}

// NewWallet creates a Wallet ledger.
func NewWallet(s WalletStore, clock domain.Clock, logger *slog.Logger) *Wallet {
	if logger == nil {
		logger = slog.Default()
	}
	return &Wallet{store: s, clock: clock, logger: logger}
}

// Balance returns the user's current wallet.
func (w *Wallet) Balance(ctx context.Context, userID string) (domain.Wallet, error) {
	return w.store.GetWallet(ctx, userID)
}

// Debit subtracts amount from the user's balance.
//
// Returns a domain INVALID_AMOUNT or INSUFFICIENT_BALANCE error. A repeated
// (reason, reference) returns store.ErrDuplicate.
func (w *Wallet) Debit(ctx context.Context, userID string, amount decimal.Decimal, reason, reference string) error {
	cents, err := amountCents(amount)
	if err != nil {
		return err
	}
	if err := w.store.DebitWallet(ctx, userID, cents, reason, reference, w.clock.Now()); err != nil {
		return err
	}
	w.logger.Debug("wallet debited", "user_id", userID, "amount", domain.FormatMoney(amount), "reference", reference)
	return nil
}

// Credit adds amount to the user's balance. It reports whether this call
// applied the credit; a repeated (reason, reference) returns false.
func (w *Wallet) Credit(ctx context.Context, userID string, amount decimal.Decimal, reason, reference string) (bool, error) {
	cents, err := amountCents(amount)
	if err != nil {
		return false, err
	}
	applied, err := w.store.CreditWallet(ctx, userID, cents, reason, reference, w.clock.Now())
	if err != nil {
		return false, err
	}
	w.logger.Debug("wallet credited",
		"user_id", userID,
		"amount", domain.FormatMoney(amount),
		"reference", reference,
		"applied", applied,
	)
	return applied, nil
}

func amountCents(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, domain.NewError(domain.ErrCodeInvalidAmount, "amount must be greater than zero")
	}
	cents, err := domain.ToCents(amount)
	if err != nil {
		return 0, &domain.Error{Code: domain.ErrCodeInvalidAmount, Message: err.Error(), Err: err}
	}
	return cents, nil
}
