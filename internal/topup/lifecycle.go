// Package topup verifies wallet top-ups.
//
// A student submits a Topup naming the amount paid through an e-wallet
// provider and an opaque proof reference. An admin decides it exactly once:
//
//	pending ──▶ approved   (credits the wallet)
//	        └─▶ rejected   (no ledger effect)
//
// The decision is a compare-and-set on the pending status, and the credit is
// journaled under the topup id, so a retried or concurrent approval never
// credits twice.
package topup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/ledger"
	"github.com/mrdcvlsc/food-reservation/internal/store"
)

// Field limits.
const (
	MaxProofReferenceLen = 512
	MaxReasonLen         = 280
)

// Store is the persistence the lifecycle needs.
type Store interface {
	InsertTopup(ctx context.Context, t domain.Topup) error
	GetTopup(ctx context.Context, id string) (domain.Topup, error)
	ListTopupsByUser(ctx context.Context, userID string) ([]domain.Topup, error)
	ListTopupsByStatus(ctx context.Context, status domain.TopupStatus) ([]domain.Topup, error)
	DecideTopup(ctx context.Context, id string, outcome domain.TopupStatus, reason, decidedBy string, at time.Time) error
}

// SubmitRequest is a student's claim of an e-wallet payment.
type SubmitRequest struct {
	UserID         string          `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	Provider       domain.Provider `json:"provider"`
	ProofReference string          `json:"proof_reference"`
}

// Lifecycle submits and decides topups.
type Lifecycle struct {
	store  Store
	wallet *ledger.Wallet
	comp   *ledger.Compensator
	ids    domain.IDGenerator
	clock  domain.Clock
	logger *slog.Logger
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithClock sets the clock. Default: domain.SystemClock.
func WithClock(c domain.Clock) Option {
	return func(l *Lifecycle) { l.clock = c }
}

// WithIDGenerator sets the topup id source. Default: UUIDv7.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(l *Lifecycle) { l.ids = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Lifecycle.
func New(s Store, wallet *ledger.Wallet, comp *ledger.Compensator, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		store:  s,
		wallet: wallet,
		comp:   comp,
		ids:    domain.UUIDv7Generator{},
		clock:  domain.SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Submit records a pending topup. Only the amount and provider are validated;
// the proof reference is stored as given (NFC-normalised).
func (l *Lifecycle) Submit(ctx context.Context, req SubmitRequest) (domain.Topup, error) {
	req.UserID = domain.NormalizeText(req.UserID)
	if req.UserID == "" {
		return domain.Topup{}, domain.NewError(domain.ErrCodeInvalidInput, "user id is required")
	}
	if !req.Amount.IsPositive() {
		return domain.Topup{}, domain.NewError(domain.ErrCodeInvalidAmount, "amount must be greater than zero")
	}
	if !domain.IsMoneyScale(req.Amount) {
		return domain.Topup{}, domain.NewError(domain.ErrCodeInvalidAmount, "amount has more than two decimal places")
	}
	if domain.ExceedsMaxAmount(req.Amount) {
		return domain.Topup{}, domain.NewError(domain.ErrCodeInvalidAmount, "amount exceeds %s", domain.FormatMoney(domain.MaxAmount))
	}
	provider, err := domain.ParseProvider(string(req.Provider))
	if err != nil {
		return domain.Topup{}, err
	}
	req.ProofReference = domain.NormalizeText(req.ProofReference)
	if utf8.RuneCountInString(req.ProofReference) > MaxProofReferenceLen {
		return domain.Topup{}, domain.NewError(domain.ErrCodeInvalidInput, "proof reference exceeds %d characters", MaxProofReferenceLen)
	}

	t := domain.Topup{
		ID:             l.ids.Generate(),
		UserID:         req.UserID,
		Amount:         req.Amount,
		Provider:       provider,
		ProofReference: req.ProofReference,
		Status:         domain.TopupPending,
		CreatedAt:      l.clock.Now(),
	}
	if err := l.store.InsertTopup(ctx, t); err != nil {
		return domain.Topup{}, fmt.Errorf("submit topup: %w", err)
	}

	l.logger.Info("topup submitted",
		"topup_id", t.ID,
		"user_id", t.UserID,
		"amount", domain.FormatMoney(t.Amount),
		"provider", t.Provider,
	)
	return t, nil
}

// Decide approves or rejects a pending topup. Approval credits the wallet
// with the topup amount. A topup that is already decided returns
// ALREADY_DECIDED and is left untouched, whatever the requested outcome.
func (l *Lifecycle) Decide(ctx context.Context, id string, outcome domain.TopupStatus, reason string, actor domain.Actor) (domain.Topup, error) {
	if !actor.Admin {
		return domain.Topup{}, domain.NewError(domain.ErrCodeForbidden, "only admins can decide topups")
	}
	if !outcome.IsOutcome() {
		return domain.Topup{}, domain.NewError(domain.ErrCodeInvalidInput, "unknown topup outcome %q", outcome)
	}
	reason = domain.NormalizeText(reason)
	if utf8.RuneCountInString(reason) > MaxReasonLen {
		return domain.Topup{}, domain.NewError(domain.ErrCodeInvalidInput, "reason exceeds %d characters", MaxReasonLen)
	}

	t, err := l.get(ctx, id)
	if err != nil {
		return domain.Topup{}, err
	}
	if t.Status != domain.TopupPending {
		return domain.Topup{}, alreadyDecided(t)
	}

	now := l.clock.Now()
	err = l.store.DecideTopup(ctx, id, outcome, reason, actor.UserID, now)
	if errors.Is(err, store.ErrStale) {
		current, gerr := l.get(ctx, id)
		if gerr != nil {
			return domain.Topup{}, gerr
		}
		l.logger.Debug("topup decision lost race", "topup_id", id, "status", current.Status)
		return domain.Topup{}, alreadyDecided(current)
	}
	if err != nil {
		return domain.Topup{}, fmt.Errorf("decide topup: %w", err)
	}

	t.Status = outcome
	t.Reason = reason
	t.DecidedBy = actor.UserID
	t.DecidedAt = &now

	if outcome == domain.TopupApproved {
		if err := l.credit(ctx, t); err != nil {
			return domain.Topup{}, err
		}
	}

	l.logger.Info("topup decided",
		"topup_id", id,
		"user_id", t.UserID,
		"outcome", outcome,
		"actor", actor.UserID,
	)
	return t, nil
}

// Get returns one topup. Non-admins only see their own.
func (l *Lifecycle) Get(ctx context.Context, id string, actor domain.Actor) (domain.Topup, error) {
	t, err := l.get(ctx, id)
	if err != nil {
		return domain.Topup{}, err
	}
	if !actor.CanRead(t.UserID) {
		return domain.Topup{}, domain.NewError(domain.ErrCodeNotFound, "topup %s not found", id)
	}
	return t, nil
}

// ListByUser returns the user's topups, newest first.
func (l *Lifecycle) ListByUser(ctx context.Context, userID string) ([]domain.Topup, error) {
	return l.store.ListTopupsByUser(ctx, userID)
}

// ListPending returns the admin verification queue, oldest first.
func (l *Lifecycle) ListPending(ctx context.Context, actor domain.Actor) ([]domain.Topup, error) {
	if !actor.Admin {
		return nil, domain.NewError(domain.ErrCodeForbidden, "only admins can list pending topups")
	}
	return l.store.ListTopupsByStatus(ctx, domain.TopupPending)
}

// ReconcileStore finds approved topups whose credit was never applied.
type ReconcileStore interface {
	UncreditedTopups(ctx context.Context) ([]string, error)
}

// Reconcile applies the credit of every approved topup that lacks one and
// returns the ids it credited.
func (l *Lifecycle) Reconcile(ctx context.Context, rs ReconcileStore) ([]string, error) {
	ids, err := rs.UncreditedTopups(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile topups: %w", err)
	}

	credited := []string{}
	var errs []error
	for _, id := range ids {
		t, err := l.get(ctx, id)
		if err == nil {
			err = l.credit(ctx, t)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		credited = append(credited, id)
	}
	if len(credited) > 0 {
		l.logger.Info("topup credits reconciled", "count", len(credited))
	}
	return credited, errors.Join(errs...)
}

func (l *Lifecycle) credit(ctx context.Context, t domain.Topup) error {
	return l.comp.Run(ctx, ledger.AlertTopupCredit, t.ID, func(ctx context.Context) error {
		_, err := l.wallet.Credit(ctx, t.UserID, t.Amount, store.EntryTopup, t.ID)
		return err
	})
}

func (l *Lifecycle) get(ctx context.Context, id string) (domain.Topup, error) {
	t, err := l.store.GetTopup(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Topup{}, domain.NewError(domain.ErrCodeNotFound, "topup %s not found", id)
	}
	if err != nil {
		return domain.Topup{}, fmt.Errorf("get topup: %w", err)
	}
	return t, nil
}

func alreadyDecided(t domain.Topup) *domain.Error {
	return domain.NewError(domain.ErrCodeAlreadyDecided, "topup %s is already %s", t.ID, t.Status)
}
