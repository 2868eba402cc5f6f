package reservation

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
	"github.com/mrdcvlsc/food-reservation/internal/pricing"
	"github.com/mrdcvlsc/food-reservation/internal/store"
)

// Field limits for create requests.
const (
	MaxPickupSlotLen = 64
	MaxNoteLen       = 280
)

// Store is the persistence the lifecycle needs beyond the ledgers.
type Store interface {
	InsertReservation(ctx context.Context, r domain.Reservation, actor string) error
	GetReservation(ctx context.Context, id string) (domain.Reservation, error)
	ListReservationsByUser(ctx context.Context, userID string) ([]domain.Reservation, error)
	ListReservationsByStatus(ctx context.Context, status domain.Status) ([]domain.Reservation, error)
	TransitionReservation(ctx context.Context, id string, from, to domain.Status, actor, reason string, at time.Time) error
	ReservationEvents(ctx context.Context, id string) ([]domain.ReservationEvent, error)
	HasWalletEntry(ctx context.Context, reason, reference string) (bool, error)
}

// CreateRequest is a student's order.
type CreateRequest struct {
	UserID     string            `json:"user_id"`
	Lines      []domain.CartLine `json:"lines"`
	PickupSlot string            `json:"pickup_slot"`
	Note       string            `json:"note,omitempty"`
}

// Lifecycle drives reservations from creation to a terminal status.
//
// Create is a saga over independent atomic steps: reserve stock for every
// line, debit the wallet, insert the record. A failed step reverses the
// earlier ones through the Compensator. Rejection wins a status
// compare-and-set first, then releases stock and refunds in full.
type Lifecycle struct {
	store     Store
	prices    *pricing.Resolver
	inventory *ledger.Inventory
	wallet    *ledger.Wallet
	comp      *ledger.Compensator
	ids       domain.IDGenerator
	clock     domain.Clock
	logger    *slog.Logger
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithClock sets the clock used for createdAt/updatedAt. Default: domain.SystemClock.
func WithClock(c domain.Clock) Option {
	return func(l *Lifecycle) { l.clock = c }
}

// WithIDGenerator sets the reservation id source. Default: UUIDv7.
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
func New(
	s Store,
	prices *pricing.Resolver,
	inventory *ledger.Inventory,
	wallet *ledger.Wallet,
	comp *ledger.Compensator,
	opts ...Option,
) *Lifecycle {
	l := &Lifecycle{
		store:     s,
		prices:    prices,
		inventory: inventory,
		wallet:    wallet,
		comp:      comp,
		ids:       domain.UUIDv7Generator{},
		clock:     domain.SystemClock{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create prices the cart, reserves stock for every line, debits the total
// and persists the reservation as pending. Either all of that happens or
// none of it does.
func (l *Lifecycle) Create(ctx context.Context, req CreateRequest) (domain.Reservation, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return domain.Reservation{}, err
	}

	lines, total, err := l.prices.Resolve(ctx, req.Lines)
	if err != nil {
		l.logOutcome("reservation rejected at pricing", err, "user_id", req.UserID)
		return domain.Reservation{}, err
	}

	id := l.ids.Generate()

	if err := l.inventory.Reserve(ctx, id, lines); err != nil {
		if domain.ClassOf(err) != "" || errors.Is(err, store.ErrDuplicate) {
			l.logOutcome("reservation rejected at stock", err, "user_id", req.UserID, "reservation_id", id)
			return domain.Reservation{}, err
		}
		// Commit outcome unknown: release whatever may have been applied.
		if cerr := l.releaseStock(ctx, id, lines); cerr != nil {
			return domain.Reservation{}, cerr
		}
		return domain.Reservation{}, fmt.Errorf("create reservation: reserve stock: %w", err)
	}

	if err := l.wallet.Debit(ctx, req.UserID, total, store.EntryPurchase, id); err != nil {
		l.logOutcome("reservation rejected at wallet", err, "user_id", req.UserID, "reservation_id", id)
		undo := l.undo
		if errors.Is(err, store.ErrDuplicate) {
			// The purchase entry under id is not ours; only hand back the stock.
			undo = func(ctx context.Context, id, _ string, lines []domain.LineItem, _ decimal.Decimal) error {
				return l.releaseStock(ctx, id, lines)
			}
		}
		if cerr := undo(ctx, id, req.UserID, lines, total); cerr != nil {
			return domain.Reservation{}, cerr
		}
		if domain.ClassOf(err) != "" {
			return domain.Reservation{}, err
		}
		return domain.Reservation{}, fmt.Errorf("create reservation: debit wallet: %w", err)
	}

	now := l.clock.Now()
	r := domain.Reservation{
		ID:         id,
		UserID:     req.UserID,
		LineItems:  lines,
		Total:      total,
		PickupSlot: req.PickupSlot,
		Note:       req.Note,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := l.store.InsertReservation(ctx, r, req.UserID); err != nil {
		// The insert may have committed before the error surfaced.
		if stored, gerr := l.store.GetReservation(context.WithoutCancel(ctx), id); gerr == nil {
			l.logger.Warn("reservation insert reported failure but row exists",
				"reservation_id", id,
				"error", err,
			)
			return stored, nil
		}
		if cerr := l.undo(ctx, id, req.UserID, lines, total); cerr != nil {
			return domain.Reservation{}, cerr
		}
		return domain.Reservation{}, fmt.Errorf("create reservation: %w", err)
	}

	l.logger.Info("reservation created",
		"reservation_id", id,
		"user_id", req.UserID,
		"total", domain.FormatMoney(total),
		"lines", len(lines),
	)
	return r, nil
}

// SetStatus moves a reservation to target. Only admins drive transitions.
// Entering Rejected releases every line's stock and refunds the total.
func (l *Lifecycle) SetStatus(ctx context.Context, id string, target domain.Status, actor domain.Actor, reason string) (domain.Reservation, error) {
	if !actor.Admin {
		return domain.Reservation{}, domain.NewError(domain.ErrCodeForbidden, "only admins can change reservation status")
	}
	if !target.Valid() {
		return domain.Reservation{}, domain.NewError(domain.ErrCodeInvalidInput, "unknown reservation status %q", target)
	}
	reason = domain.NormalizeText(reason)
	if utf8.RuneCountInString(reason) > MaxNoteLen {
		return domain.Reservation{}, domain.NewError(domain.ErrCodeInvalidInput, "reason exceeds %d characters", MaxNoteLen)
	}

	r, err := l.get(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !r.Status.CanTransition(target) {
		err := domain.NewInvalidTransition("reservation", r.Status, target)
		l.logOutcome("status change refused", err, "reservation_id", id)
		return domain.Reservation{}, err
	}

	now := l.clock.Now()
	err = l.store.TransitionReservation(ctx, id, r.Status, target, actor.UserID, reason, now)
	if errors.Is(err, store.ErrStale) {
		// Lost the race; report against the status that won.
		current, gerr := l.get(ctx, id)
		if gerr != nil {
			return domain.Reservation{}, gerr
		}
		err := domain.NewInvalidTransition("reservation", current.Status, target)
		l.logOutcome("status change lost race", err, "reservation_id", id)
		return domain.Reservation{}, err
	}
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("set reservation status: %w", err)
	}

	from := r.Status
	r.Status = target
	r.UpdatedAt = now

	if target.ReleasesResources() {
		if err := l.undo(ctx, id, r.UserID, r.LineItems, r.Total); err != nil {
			return domain.Reservation{}, err
		}
	}

	l.logger.Info("reservation status changed",
		"reservation_id", id,
		"from", from,
		"to", target,
		"actor", actor.UserID,
	)
	return r, nil
}

// BulkSetStatus applies SetStatus to each id independently. One member's
// failure never aborts the others. Results are in input order.
func (l *Lifecycle) BulkSetStatus(ctx context.Context, ids []string, target domain.Status, actor domain.Actor, reason string) ([]domain.BulkResult, error) {
	if !actor.Admin {
		return nil, domain.NewError(domain.ErrCodeForbidden, "only admins can change reservation status")
	}
	if len(ids) == 0 {
		return nil, domain.NewError(domain.ErrCodeInvalidInput, "no reservation ids given")
	}

	results := make([]domain.BulkResult, 0, len(ids))
	for _, id := range ids {
		_, err := l.SetStatus(ctx, id, target, actor, reason)
		res := domain.BulkResult{ID: id, OK: err == nil}
		if err != nil {
			res.Error = err.Error()
			res.Code = string(domain.CodeOf(err))
			if res.Code == "" {
				res.Code = string(domain.ErrCodeIntegrity)
			}
		}
		results = append(results, res)
	}

	l.logger.Info("bulk status change", "target", target, "count", len(ids), "actor", actor.UserID)
	return results, nil
}

// Get returns one reservation. Non-admins only see their own; someone
// else's reservation is reported as not found.
func (l *Lifecycle) Get(ctx context.Context, id string, actor domain.Actor) (domain.Reservation, error) {
	r, err := l.get(ctx, id)
	if err != nil {
		return domain.Reservation{}, err
	}
	if !actor.CanRead(r.UserID) {
		return domain.Reservation{}, domain.NewError(domain.ErrCodeNotFound, "reservation %s not found", id)
	}
	return r, nil
}

// ListByUser returns the user's reservations, newest first.
func (l *Lifecycle) ListByUser(ctx context.Context, userID string) ([]domain.Reservation, error) {
	return l.store.ListReservationsByUser(ctx, userID)
}

// ListByStatus returns reservations in status, newest first. Admin only.
func (l *Lifecycle) ListByStatus(ctx context.Context, status domain.Status, actor domain.Actor) ([]domain.Reservation, error) {
	if !actor.Admin {
		return nil, domain.NewError(domain.ErrCodeForbidden, "only admins can list reservations by status")
	}
	if !status.Valid() {
		return nil, domain.NewError(domain.ErrCodeInvalidInput, "unknown reservation status %q", status)
	}
	return l.store.ListReservationsByStatus(ctx, status)
}

// History returns the reservation's status audit trail in order.
func (l *Lifecycle) History(ctx context.Context, id string, actor domain.Actor) ([]domain.ReservationEvent, error) {
	if _, err := l.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	return l.store.ReservationEvents(ctx, id)
}

func (l *Lifecycle) get(ctx context.Context, id string) (domain.Reservation, error) {
	r, err := l.store.GetReservation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Reservation{}, domain.NewError(domain.ErrCodeNotFound, "reservation %s not found", id)
	}
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

// undo refunds the debit (if one was applied) and releases the stock held
// under id. Both steps are attempted even if the first fails.
func (l *Lifecycle) undo(ctx context.Context, id, userID string, lines []domain.LineItem, total decimal.Decimal) error {
	refundErr := l.comp.Run(ctx, ledger.AlertRefund, id, func(ctx context.Context) error {
		return l.refund(ctx, id, userID, total)
	})
	releaseErr := l.releaseStock(ctx, id, lines)
	return errors.Join(refundErr, releaseErr)
}

func (l *Lifecycle) releaseStock(ctx context.Context, id string, lines []domain.LineItem) error {
	return l.comp.Run(ctx, ledger.AlertStockRelease, id, func(ctx context.Context) error {
		return l.inventory.Release(ctx, id, lines)
	})
}

func (l *Lifecycle) refund(ctx context.Context, id, userID string, total decimal.Decimal) error {
	debited, err := l.store.HasWalletEntry(ctx, store.EntryPurchase, id)
	if err != nil {
		return err
	}
	if !debited {
		return nil
	}
	_, err = l.wallet.Credit(ctx, userID, total, store.EntryRefund, id)
	return err
}

// logOutcome logs expected business outcomes at Debug and anything else at Warn.
func (l *Lifecycle) logOutcome(msg string, err error, args ...any) {
	args = append(args, "error", err)
	switch domain.ClassOf(err) {
	case domain.ClassValidation, domain.ClassResourceConflict, domain.ClassStateConflict, domain.ClassNotFound:
		l.logger.Debug(msg, args...)
	default:
		l.logger.Warn(msg, args...)
	}
}

func normalizeRequest(req CreateRequest) (CreateRequest, error) {
	req.UserID = domain.NormalizeText(req.UserID)
	if req.UserID == "" {
		return req, domain.NewError(domain.ErrCodeInvalidInput, "user id is required")
	}
	req.PickupSlot = domain.NormalizeText(req.PickupSlot)
	if req.PickupSlot == "" {
		return req, domain.NewError(domain.ErrCodeInvalidInput, "pickup slot is required")
	}
	if utf8.RuneCountInString(req.PickupSlot) > MaxPickupSlotLen {
		return req, domain.NewError(domain.ErrCodeInvalidInput, "pickup slot exceeds %d characters", MaxPickupSlotLen)
	}
	req.Note = domain.NormalizeText(req.Note)
	if utf8.RuneCountInString(req.Note) > MaxNoteLen {
		return req, domain.NewError(domain.ErrCodeInvalidInput, "note exceeds %d characters", MaxNoteLen)
	}
	return req, nil
}
