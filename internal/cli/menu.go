package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mrdcvlsc/food-reservation/internal/catalog"
	"github.com/mrdcvlsc/food-reservation/internal/domain"
)

// defaultAdmin is the actor id admin commands run as unless --as is given.
const defaultAdmin = "admin"

// NewMenuCommand creates the menu command group.
func NewMenuCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Inspect and correct the menu",
	}
	cmd.AddCommand(newMenuListCommand(rootOpts))
	cmd.AddCommand(newMenuStockCommand(rootOpts))
	cmd.AddCommand(newMenuDeleteCommand(rootOpts))
	return cmd
}

func newMenuListCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List menu items with current stock",
		Long: `List menu items with current stock.

Without --all only active items are listed, as students see them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				actor := domain.Actor{UserID: defaultAdmin, Admin: all}
				items, err := s.engine.Menu.List(ctx, actor)
				if err != nil {
					return s.out.Fail(err)
				}
				return s.out.Emit(items, func(w io.Writer) { renderMenu(w, items) })
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include inactive items")

	return cmd
}

func newMenuStockCommand(rootOpts *RootOptions) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "stock <item-id> <count>",
		Short: "Set an item's stock to an absolute count",
		Long: `Set an item's stock to an absolute count.

This is the admin correction path: the change is journaled as an adjustment
and the menu cache is invalidated.

Examples:
  canteen menu stock turon 40`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			stock, err := strconv.Atoi(args[1])
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid count %q", args[1]))
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				item, err := s.engine.Menu.AdjustStock(ctx, args[0], stock, adminActor(as))
				if err != nil {
					return s.out.Fail(err)
				}
				return s.out.Emit(item, func(w io.Writer) {
					fmt.Fprintf(w, "✓ %s stock set to %d\n", item.ID, item.Stock)
				})
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", defaultAdmin, "admin id recorded on the change")

	return cmd
}

func newMenuDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:           "delete <item-id>",
		Short:         "Delete a menu item",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				if err := s.engine.Menu.Delete(ctx, args[0], adminActor(as)); err != nil {
					return s.out.Fail(err)
				}
				return s.out.Emit(map[string]string{"deleted": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "✓ %s deleted\n", args[0])
				})
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", defaultAdmin, "admin id recorded on the change")

	return cmd
}

func renderMenu(w io.Writer, items []domain.MenuItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No menu items.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK\tACTIVE")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%t\n",
			item.ID, item.Name, item.Category, domain.FormatMoney(item.UnitPrice), item.Stock, item.Active)
	}
	tw.Flush()
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		as         string
		resetStock bool
	)

	cmd := &cobra.Command{
		Use:   "seed <catalog>",
		Short: "Load a CUE catalog into the menu and wallets",
		Long: `Load a CUE catalog file or directory.

Every item is created or updated; every opening balance is credited once,
so re-running the same catalog is safe. Existing items keep their stock
unless --reset-stock is given.

Exit codes:
  0 - Catalog applied
  1 - A catalog entry was rejected (bad price, negative stock, ...)
  2 - Command error (catalog does not load, database unreachable, ...)

Examples:
  canteen seed ./catalog
  canteen seed menu.cue --reset-stock`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				s.out.VerboseLog("Seeding from %s", args[0])
				report, err := catalog.LoadAndSeed(ctx, args[0], s.engine.Menu, s.engine.Wallet, adminActor(as),
					catalog.SeedOptions{ResetStock: resetStock})
				if err != nil {
					return s.out.Fail(err)
				}
				return s.out.Emit(report, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Seeded %s: %d created, %d updated, %d restocked, %d credited, %d skipped\n",
						args[0], report.Created, report.Updated, report.Restock, report.Credited, report.Skipped)
				})
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", defaultAdmin, "admin id recorded on the changes")
	cmd.Flags().BoolVar(&resetStock, "reset-stock", false, "set existing items' stock to the catalog value")

	return cmd
}
