package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrdcvlsc/food-reservation/internal/cache"
	"github.com/mrdcvlsc/food-reservation/internal/catalog"
	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/ledger"
	"github.com/mrdcvlsc/food-reservation/internal/pricing"
	"github.com/mrdcvlsc/food-reservation/internal/reservation"
	"github.com/mrdcvlsc/food-reservation/internal/store"
	"github.com/mrdcvlsc/food-reservation/internal/topup"
)

// AlertInvariantBreach is the alert kind recorded when a reconcile pass finds
// stored state that violates a ledger invariant.
const AlertInvariantBreach = "invariant_breach"

// Engine is the ordering core wired over one store.
//
// Thread-safety: every exported method and every component is safe for
// concurrent use. Stock and balance changes are serialized by the store.
type Engine struct {
	Store        *store.Store
	Menu         *catalog.Menu
	Inventory    *ledger.Inventory
	Wallet       *ledger.Wallet
	Compensator  *ledger.Compensator
	Reservations *reservation.Lifecycle
	Topups       *topup.Lifecycle

	clock       domain.Clock
	logger      *slog.Logger
	orphanGrace time.Duration
}

type settings struct {
	clock       domain.Clock
	ids         domain.IDGenerator
	logger      *slog.Logger
	cache       cache.MenuCache
	attempts    int
	backoff     time.Duration
	orphanGrace time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*settings)

// WithClock sets the clock for every component. Default: domain.SystemClock.
func WithClock(c domain.Clock) EngineOption {
	return func(s *settings) { s.clock = c }
}

// WithIDGenerator sets the id source for reservations, topups and stock
// adjustments. Default: UUIDv7.
func WithIDGenerator(g domain.IDGenerator) EngineOption {
	return func(s *settings) { s.ids = g }
}

// WithLogger sets the logger for every component. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMenuCache sets the menu display cache. Default: cache.Noop.
func WithMenuCache(c cache.MenuCache) EngineOption {
	return func(s *settings) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithCompensation tunes compensation retries.
//
// Default: 5 attempts, 20ms linear backoff (ledger.DefaultAttempts, ledger.DefaultBackoff).
// Use WithCompensation(1, 0) in tests that provoke failures.
func WithCompensation(attempts int, backoff time.Duration) EngineOption {
	return func(s *settings) {
		s.attempts = attempts
		s.backoff = backoff
	}
}

// WithOrphanGrace sets how old a hold with no reservation must be before
// Reconcile reverses it. Default: reservation.DefaultOrphanGrace.
func WithOrphanGrace(d time.Duration) EngineOption {
	return func(s *settings) { s.orphanGrace = d }
}

// New wires an Engine over s.
func New(s *store.Store, opts ...EngineOption) *Engine {
	cfg := settings{
		clock:       domain.SystemClock{},
		ids:         domain.UUIDv7Generator{},
		logger:      slog.Default(),
		cache:       cache.Noop{},
		attempts:    ledger.DefaultAttempts,
		backoff:     ledger.DefaultBackoff,
		orphanGrace: reservation.DefaultOrphanGrace,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	menu := catalog.NewMenu(s,
		catalog.WithCache(cfg.cache),
		catalog.WithClock(cfg.clock),
		catalog.WithIDGenerator(cfg.ids),
		catalog.WithLogger(cfg.logger),
	)
	comp := ledger.NewCompensator(s, cfg.clock,
		ledger.WithAttempts(cfg.attempts),
		ledger.WithBackoff(cfg.backoff),
		ledger.WithLogger(cfg.logger),
	)
	inventory := ledger.NewInventory(s, cfg.clock, menu, cfg.logger)
	wallet := ledger.NewWallet(s, cfg.clock, cfg.logger)

	return &Engine{
		Store:       s,
		Menu:        menu,
		Inventory:   inventory,
		Wallet:      wallet,
		Compensator: comp,
		Reservations: reservation.New(s, pricing.NewResolver(s), inventory, wallet, comp,
			reservation.WithClock(cfg.clock),
			reservation.WithIDGenerator(cfg.ids),
			reservation.WithLogger(cfg.logger),
		),
		Topups: topup.New(s, wallet, comp,
			topup.WithClock(cfg.clock),
			topup.WithIDGenerator(cfg.ids),
			topup.WithLogger(cfg.logger),
		),
		clock:       cfg.clock,
		logger:      cfg.logger,
		orphanGrace: cfg.orphanGrace,
	}
}

// Balance returns a user's wallet. Non-admins may only read their own.
func (e *Engine) Balance(ctx context.Context, userID string, actor domain.Actor) (domain.Wallet, error) {
	if !actor.CanRead(userID) {
		return domain.Wallet{}, domain.NewError(domain.ErrCodeForbidden, "cannot read another user's wallet")
	}
	return e.Wallet.Balance(ctx, userID)
}

// Alerts lists recorded integrity alerts, oldest first. Admin only.
func (e *Engine) Alerts(ctx context.Context, actor domain.Actor) ([]domain.IntegrityAlert, error) {
	if !actor.Admin {
		return nil, domain.NewError(domain.ErrCodeForbidden, "only admins can read integrity alerts")
	}
	return e.Store.ListAlerts(ctx)
}

// ReconcileReport summarises one Engine.Reconcile pass.
type ReconcileReport struct {
	Reservations reservation.ReconcileReport `json:"reservations"`
	Topups       []string                    `json:"topups"`
	Violations   []string                    `json:"violations"`
}

// Clean reports whether the pass found nothing to repair or report.
func (r ReconcileReport) Clean() bool {
	return len(r.Reservations.Rejections)+len(r.Reservations.Orphans)+len(r.Reservations.Failed)+
		len(r.Topups)+len(r.Violations) == 0
}

// Reconcile re-applies dropped compensations and then checks the stored
// invariants. Each violation is escalated as an integrity alert; none is
// repaired automatically.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	var errs []error

	res, err := e.Reservations.Reconcile(ctx, e.Store, e.orphanGrace)
	report.Reservations = res
	if err != nil {
		errs = append(errs, err)
	}

	credited, err := e.Topups.Reconcile(ctx, e.Store)
	report.Topups = credited
	if err != nil {
		errs = append(errs, err)
	}

	violations, err := e.Store.CheckInvariants(ctx)
	if err != nil {
		return report, fmt.Errorf("reconcile: %w", errors.Join(append(errs, err)...))
	}
	report.Violations = violations
	for _, v := range violations {
		errs = append(errs, e.Compensator.Escalate(ctx, AlertInvariantBreach, v, errors.New("stored state violates invariant")))
	}

	e.logger.Info("reconcile finished",
		"rejections", len(report.Reservations.Rejections),
		"orphans", len(report.Reservations.Orphans),
		"topups", len(report.Topups),
		"violations", len(report.Violations),
	)
	return report, errors.Join(errs...)
}
