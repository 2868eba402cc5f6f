package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/ledger"
	"github.com/mrdcvlsc/food-reservation/internal/store"
)

// DefaultOrphanGrace is how old an orphan hold must be before Reconcile
// reverses it. Younger holds may belong to a create still in flight.
const DefaultOrphanGrace = time.Minute

// ReconcileStore finds compensations that were never applied.
type ReconcileStore interface {
	OrphanHolds(ctx context.Context, before time.Time) ([]store.OrphanHold, error)
	UncompensatedRejections(ctx context.Context) ([]string, error)
}

// ReconcileReport summarises one Reconcile pass.
type ReconcileReport struct {
	Rejections []string `json:"rejections"`
	Orphans    []string `json:"orphans"`
	Failed     []string `json:"failed"`
}

// Reconcile re-drives compensations dropped by a crash or escalated as
// integrity alerts: rejected reservations still holding stock or money, and
// holds whose reservation was never inserted. Every step is idempotent, so
// running Reconcile repeatedly is safe.
func (l *Lifecycle) Reconcile(ctx context.Context, rs ReconcileStore, grace time.Duration) (ReconcileReport, error) {
	report := ReconcileReport{Rejections: []string{}, Orphans: []string{}, Failed: []string{}}
	var errs []error

	ids, err := rs.UncompensatedRejections(ctx)
	if err != nil {
		return report, fmt.Errorf("reconcile: %w", err)
	}
	for _, id := range ids {
		r, err := l.get(ctx, id)
		if err == nil {
			err = l.undo(ctx, id, r.UserID, r.LineItems, r.Total)
		}
		if err != nil {
			report.Failed = append(report.Failed, id)
			errs = append(errs, err)
			continue
		}
		report.Rejections = append(report.Rejections, id)
	}

	holds, err := rs.OrphanHolds(ctx, l.clock.Now().Add(-grace))
	if err != nil {
		return report, fmt.Errorf("reconcile: %w", err)
	}
	for _, h := range holds {
		if err := l.reverseHold(ctx, h); err != nil {
			report.Failed = append(report.Failed, h.Reference)
			errs = append(errs, err)
			continue
		}
		report.Orphans = append(report.Orphans, h.Reference)
	}

	if len(report.Rejections)+len(report.Orphans)+len(report.Failed) > 0 {
		l.logger.Info("reconcile pass",
			"rejections", len(report.Rejections),
			"orphans", len(report.Orphans),
			"failed", len(report.Failed),
		)
	}
	return report, errors.Join(errs...)
}

func (l *Lifecycle) reverseHold(ctx context.Context, h store.OrphanHold) error {
	lines := make([]domain.LineItem, len(h.Lines))
	for i, sl := range h.Lines {
		lines[i] = domain.LineItem{MenuItemID: sl.MenuItemID, Quantity: sl.Quantity}
	}

	var refundErr, releaseErr error
	if h.DebitCents > 0 {
		amount := domain.FromCents(h.DebitCents)
		refundErr = l.comp.Run(ctx, ledger.AlertRefund, h.Reference, func(ctx context.Context) error {
			return l.refund(ctx, h.Reference, h.UserID, amount)
		})
	}
	if len(lines) > 0 {
		releaseErr = l.releaseStock(ctx, h.Reference, lines)
	}
	return errors.Join(refundErr, releaseErr)
}
