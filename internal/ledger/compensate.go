package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/store"
)

// Alert kinds recorded when a compensation is dropped.
const (
	AlertStockRelease = "stock_release_dropped"
	AlertRefund       = "refund_dropped"
	AlertTopupCredit  = "topup_credit_dropped"
)

// Defaults for Compensator retries.
const (
	DefaultAttempts = 5
	DefaultBackoff  = 20 * time.Millisecond
)

// AlertRecorder persists integrity alerts.
type AlertRecorder interface {
	RecordAlert(ctx context.Context, alert domain.IntegrityAlert) (domain.IntegrityAlert, error)
}

// Compensator runs compensating actions (stock release, refund, approved
// topup credit). Transient store failures are retried with linear backoff.
// A compensation that still fails is never swallowed: it is logged at Error,
// persisted as an integrity alert and returned as INTEGRITY_VIOLATION.
type Compensator struct {
	alerts   AlertRecorder
	clock    domain.Clock
	logger   *slog.Logger
	attempts int
	backoff  time.Duration
}

// CompensatorOption configures a Compensator.
type CompensatorOption func(*Compensator)

// WithAttempts sets the maximum number of tries per compensation.
//
// Default: 5 (DefaultAttempts). Values below 1 are treated as 1.
func WithAttempts(n int) CompensatorOption {
	return func(c *Compensator) {
		if n < 1 {
			n = 1
		}
		c.attempts = n
	}
}

// WithBackoff sets the base delay between tries. Try n waits n*backoff.
func WithBackoff(d time.Duration) CompensatorOption {
	return func(c *Compensator) {
		c.backoff = d
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) CompensatorOption {
	return func(c *Compensator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCompensator creates a Compensator.
func NewCompensator(alerts AlertRecorder, clock domain.Clock, opts ...CompensatorOption) *Compensator {
	c := &Compensator{
		alerts:   alerts,
		clock:    clock,
		logger:   slog.Default(),
		attempts: DefaultAttempts,
		backoff:  DefaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes fn until it succeeds, fails with a non-transient error, or
// the attempts are exhausted.
//
// fn runs under a context detached from ctx's cancellation: a client that
// disconnects mid-request must not abort a compensation.
func (c *Compensator) Run(ctx context.Context, kind, subject string, fn func(ctx context.Context) error) error {
	ctx = context.WithoutCancel(ctx)

	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("compensation applied after retry", "kind", kind, "subject", subject, "attempt", attempt)
			}
			return nil
		}
		if !store.IsTransient(err) {
			break
		}
		if attempt < c.attempts {
			c.logger.Warn("compensation failed, retrying",
				"kind", kind,
				"subject", subject,
				"attempt", attempt,
				"error", err,
			)
			time.Sleep(time.Duration(attempt) * c.backoff)
		}
	}

	return c.Escalate(ctx, kind, subject, err)
}

// Escalate records a dropped compensation or detected invariant breach and
// returns it as an INTEGRITY_VIOLATION error wrapping cause.
func (c *Compensator) Escalate(ctx context.Context, kind, subject string, cause error) error {
	c.logger.Error("integrity violation",
		"integrity", true,
		"kind", kind,
		"subject", subject,
		"error", cause,
	)

	detail := "unknown cause"
	if cause != nil {
		detail = cause.Error()
	}
	if c.alerts != nil {
		_, err := c.alerts.RecordAlert(context.WithoutCancel(ctx), domain.IntegrityAlert{
			Kind:    kind,
			Subject: subject,
			Detail:  detail,
			At:      c.clock.Now(),
		})
		if err != nil {
			c.logger.Error("integrity alert not persisted",
				"integrity", true,
				"kind", kind,
				"subject", subject,
				"error", err,
			)
		}
	}

	return domain.NewIntegrityError(cause, "%s: %s", kind, subject)
}
