package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/reservation"
)

// ReserveOptions holds flags for the reserve command.
type ReserveOptions struct {
	*RootOptions
	User string
	Slot string
	Note string
}

// NewReserveCommand creates the reserve command.
func NewReserveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReserveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reserve ITEM=QTY...",
		Short: "Place a reservation on a student's behalf",
		Long: `Place a reservation on a student's behalf.

Each argument is a menu item id and a quantity. Prices are snapshotted,
stock is reserved for every line and the wallet is debited, or nothing
changes at all.

Exit codes:
  0 - Reservation created (pending)
  1 - Rejected (INSUFFICIENT_STOCK, INSUFFICIENT_BALANCE, ITEM_NOT_FOUND, ...)
  2 - Command error

Examples:
  canteen reserve --user stu-001 --slot 10:30 turon=2 adobo=1`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := parseCart(args)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid cart", err)
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				r, err := s.engine.Reservations.Create(ctx, reservation.CreateRequest{
					UserID:     opts.User,
					Lines:      lines,
					PickupSlot: opts.Slot,
					Note:       opts.Note,
				})
				if err != nil {
					return s.out.Fail(err)
				}
				return s.out.Emit(r, func(w io.Writer) { renderReservation(w, r) })
			})
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "student id placing the order (required)")
	cmd.Flags().StringVar(&opts.Slot, "slot", "", "pickup slot (required)")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note for the kitchen")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("slot")

	return cmd
}

// parseCart turns ITEM=QTY arguments into cart lines. Quantities are passed
// through unchecked; the lifecycle rejects non-positive ones.
func parseCart(args []string) ([]domain.CartLine, error) {
	lines := make([]domain.CartLine, 0, len(args))
	for _, arg := range args {
		id, qty, ok := strings.Cut(arg, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("expected ITEM=QTY, got %q", arg)
		}
		n, err := strconv.Atoi(qty)
		if err != nil {
			return nil, fmt.Errorf("quantity of %s: %w", id, err)
		}
		lines = append(lines, domain.CartLine{MenuItemID: id, Quantity: n})
	}
	return lines, nil
}

func renderReservation(w io.Writer, r domain.Reservation) {
	fmt.Fprintf(w, "Reservation %s [%s]\n", r.ID, r.Status)
	fmt.Fprintf(w, "  user:   %s\n", r.UserID)
	fmt.Fprintf(w, "  pickup: %s\n", r.PickupSlot)
	if r.Note != "" {
		fmt.Fprintf(w, "  note:   %s\n", r.Note)
	}
	for _, l := range r.LineItems {
		fmt.Fprintf(w, "  %3d x %-20s %8s\n", l.Quantity, l.Name, domain.FormatMoney(l.Subtotal()))
	}
	fmt.Fprintf(w, "  total:  %s\n", domain.FormatMoney(r.Total))
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var as, reason string

	cmd := &cobra.Command{
		Use:   "status <reservation-id> <status>",
		Short: "Move a reservation to a new status",
		Long: `Move a reservation to a new status.

Allowed moves: pending -> approved|rejected, approved -> preparing|rejected,
preparing -> ready, ready -> claimed. Rejection returns the reserved stock
and refunds the full total.

Examples:
  canteen status 0193c1a2-... approved
  canteen status 0193c1a2-... rejected --reason "kitchen closed"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				status, err := domain.ParseStatus(args[1])
				if err != nil {
					return s.out.Fail(err)
				}
				r, err := s.engine.Reservations.SetStatus(ctx, args[0], status, adminActor(as), reason)
				if err != nil {
					return s.out.Fail(err)
				}
				return s.out.Emit(r, func(w io.Writer) {
					fmt.Fprintf(w, "✓ %s is now %s\n", r.ID, r.Status)
				})
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", defaultAdmin, "admin id recorded on the transition")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the history")

	return cmd
}

// NewBulkStatusCommand creates the bulk-status command.
func NewBulkStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var as, reason string

	cmd := &cobra.Command{
		Use:   "bulk-status <status> <reservation-id>...",
		Short: "Move several reservations to one status",
		Long: `Move several reservations to one status.

Each id is handled on its own: one failure does not stop the rest.

Exit codes:
  0 - Every id moved
  1 - At least one id failed
  2 - Command error`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				status, err := domain.ParseStatus(args[0])
				if err != nil {
					return s.out.Fail(err)
				}
				results, err := s.engine.Reservations.BulkSetStatus(ctx, args[1:], status, adminActor(as), reason)
				if err != nil {
					return s.out.Fail(err)
				}
				failed := 0
				for _, res := range results {
					if !res.OK {
						failed++
					}
				}
				if err := s.out.Emit(results, func(w io.Writer) { renderBulk(w, results) }); err != nil {
					return err
				}
				if failed > 0 {
					return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d of %d failed", failed, len(results)), Reported: true}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", defaultAdmin, "admin id recorded on the transitions")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the history")

	return cmd
}

func renderBulk(w io.Writer, results []domain.BulkResult) {
	for _, res := range results {
		if res.OK {
			fmt.Fprintf(w, "✓ %s\n", res.ID)
			continue
		}
		fmt.Fprintf(w, "✗ %s [%s] %s\n", res.ID, res.Code, res.Error)
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:           "history <reservation-id>",
		Short:         "Show a reservation's status history",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				events, err := s.engine.Reservations.History(ctx, args[0], adminActor(as))
				if err != nil {
					return s.out.Fail(err)
				}
				return s.out.Emit(events, func(w io.Writer) { renderHistory(w, events) })
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", defaultAdmin, "admin id reading the history")

	return cmd
}

func renderHistory(w io.Writer, events []domain.ReservationEvent) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tFROM\tTO\tACTOR\tREASON")
	for _, ev := range events {
		from := string(ev.From)
		if from == "" {
			from = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ev.At.Format("2006-01-02 15:04:05"), from, ev.To, ev.Actor, ev.Reason)
	}
	tw.Flush()
}
