package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/topup"
)

// NewTopupCommand creates the topup command group.
func NewTopupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topup",
		Short: "Submit and decide wallet topups",
	}
	cmd.AddCommand(newTopupSubmitCommand(rootOpts))
	cmd.AddCommand(newTopupDecideCommand(rootOpts))
	cmd.AddCommand(newTopupPendingCommand(rootOpts))
	return cmd
}

func newTopupSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	var user, provider, proof string

	cmd := &cobra.Command{
		Use:   "submit <amount>",
		Short: "Record a pending topup for a student",
		Long: `Record a pending topup for a student.

The wallet is not credited until an admin approves the topup.

Examples:
  canteen topup submit 100.00 --user stu-001 --provider gcash --proof 0917-REF-22`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				amount, err := decimal.NewFromString(args[0])
				if err != nil {
					return s.out.Fail(domain.NewError(domain.ErrCodeInvalidAmount, "amount %q is not a number", args[0]))
				}
				t, err := s.engine.Topups.Submit(ctx, topup.SubmitRequest{
					UserID:         user,
					Amount:         amount,
					Provider:       domain.Provider(provider),
					ProofReference: proof,
				})
				if err != nil {
					return s.out.Fail(err)
				}
				return s.out.Emit(t, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Topup %s of %s submitted (%s)\n", t.ID, domain.FormatMoney(t.Amount), t.Status)
				})
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "student id (required)")
	cmd.Flags().StringVar(&provider, "provider", string(domain.ProviderGCash), "payment provider (gcash|maya)")
	cmd.Flags().StringVar(&proof, "proof", "", "provider reference number")
	cmd.MarkFlagRequired("user")

	return cmd
}

func newTopupDecideCommand(rootOpts *RootOptions) *cobra.Command {
	var as, reason string

	cmd := &cobra.Command{
		Use:   "decide <topup-id> <approved|rejected>",
		Short: "Approve or reject a pending topup",
		Long: `Approve or reject a pending topup.

Approval credits the wallet exactly once. Deciding a topup that was already
decided fails with ALREADY_DECIDED and changes nothing.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				outcome, err := domain.ParseTopupOutcome(args[1])
				if err != nil {
					return s.out.Fail(err)
				}
				t, err := s.engine.Topups.Decide(ctx, args[0], outcome, reason, adminActor(as))
				if err != nil {
					return s.out.Fail(err)
				}
				return s.out.Emit(t, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Topup %s %s\n", t.ID, t.Status)
				})
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", defaultAdmin, "admin id recorded as the decider")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the topup")

	return cmd
}

func newTopupPendingCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pending",
		Short:         "List topups awaiting a decision",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				topups, err := s.engine.Topups.ListPending(ctx, adminActor(defaultAdmin))
				if err != nil {
					return s.out.Fail(err)
				}
				return s.out.Emit(topups, func(w io.Writer) { renderTopups(w, topups) })
			})
		},
	}
	return cmd
}

func renderTopups(w io.Writer, topups []domain.Topup) {
	if len(topups) == 0 {
		fmt.Fprintln(w, "No pending topups.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSER\tAMOUNT\tPROVIDER\tPROOF\tSUBMITTED")
	for _, t := range topups {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.UserID, domain.FormatMoney(t.Amount), t.Provider, t.ProofReference, t.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
}
