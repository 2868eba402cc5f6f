package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrdcvlsc/food-reservation/internal/api"
	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/engine"
)

// NewAlertsCommand creates the alerts command.
func NewAlertsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List recorded integrity alerts",
		Long: `List recorded integrity alerts, oldest first.

An alert is written when a compensation (stock release, refund, topup
credit) could not be applied after retries, or when reconcile finds stored
state that breaks a ledger invariant.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				alerts, err := s.engine.Alerts(ctx, adminActor(defaultAdmin))
				if err != nil {
					return s.out.Fail(err)
				}
				return s.out.Emit(alerts, func(w io.Writer) { renderAlerts(w, alerts) })
			})
		},
	}
	return cmd
}

func renderAlerts(w io.Writer, alerts []domain.IntegrityAlert) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "✓ No integrity alerts")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAT\tKIND\tSUBJECT\tDETAIL")
	for _, a := range alerts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", a.ID, a.At.Format(time.RFC3339), a.Kind, a.Subject, a.Detail)
	}
	tw.Flush()
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-apply dropped compensations and check invariants",
		Long: `Re-apply dropped compensations and check ledger invariants.

Rejected reservations still holding stock or money are released and
refunded, orphaned stock holds are returned, approved topups that were never
credited are credited. Invariant violations are reported and recorded as
alerts, never repaired.

Exit codes:
  0 - Nothing to repair
  1 - Something was repaired or a violation was found
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				report, err := s.engine.Reconcile(ctx)
				if err != nil {
					return s.out.Fail(err)
				}
				if err := s.out.Emit(report, func(w io.Writer) { renderReconcile(w, report) }); err != nil {
					return err
				}
				if !report.Clean() {
					return &ExitError{Code: ExitFailure, Message: "reconcile found work", Reported: true}
				}
				return nil
			})
		},
	}
	return cmd
}

func renderReconcile(w io.Writer, report engine.ReconcileReport) {
	if report.Clean() {
		fmt.Fprintln(w, "✓ Ledgers consistent, nothing to repair")
		return
	}
	section := func(title string, ids []string) {
		if len(ids) == 0 {
			return
		}
		fmt.Fprintf(w, "%s (%d):\n", title, len(ids))
		for _, id := range ids {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
	section("Rejections compensated", report.Reservations.Rejections)
	section("Orphan holds reversed", report.Reservations.Orphans)
	section("Repairs failed", report.Reservations.Failed)
	section("Topups credited", report.Topups)
	section("Invariant violations", report.Violations)
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		user string
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		Long: `Issue an HS256 bearer token signed with the configured JWT secret.

In production tokens come from the auth service; this command is for
exercising a local server.

Examples:
  canteen token --user stu-001
  canteen token --user ms-reyes --role admin --ttl 8h`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if role != api.RoleStudent && role != api.RoleAdmin {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid role %q: must be %s or %s", role, api.RoleStudent, api.RoleAdmin))
			}
			tok, err := api.IssueToken([]byte(cfg.JWTSecret), user, role, ttl, time.Now())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to issue token", err)
			}
			out := newFormatter(cmd, rootOpts)
			return out.Emit(map[string]string{"token": tok, "user_id": user, "role": role}, func(w io.Writer) {
				fmt.Fprintln(w, tok)
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user id claim (required)")
	cmd.Flags().StringVar(&role, "role", api.RoleStudent, "role claim (student|admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.MarkFlagRequired("user")

	return cmd
}
