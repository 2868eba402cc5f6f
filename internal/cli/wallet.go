package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
)

// NewWalletCommand creates the wallet command.
func NewWalletCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "wallet <user-id>",
		Short:         "Show a student's wallet balance",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				w, err := s.engine.Balance(ctx, args[0], adminActor(defaultAdmin))
				if err != nil {
					return s.out.Fail(err)
				}
				return s.out.Emit(w, func(out io.Writer) {
					fmt.Fprintf(out, "%s: %s\n", w.UserID, domain.FormatMoney(w.Balance))
				})
			})
		},
	}
	return cmd
}
