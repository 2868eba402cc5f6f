package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrdcvlsc/food-reservation/internal/api"
)

// shutdownTimeout bounds how long in-flight requests get after a signal.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string // overrides the configured listen address
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the ordering API under /api/v1.

Bearer tokens are verified with the configured JWT secret
(CANTEEN_JWT_SECRET or jwt_secret in the config file), which is required.
SIGINT or SIGTERM drains in-flight requests and exits.

Examples:
  canteen serve
  canteen serve --addr :9090 --db /var/lib/canteen/canteen.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	return withSession(cmd, opts.RootOptions, func(ctx context.Context, s *session) error {
		if s.cfg.JWTSecret == "" {
			return NewExitError(ExitCommandError, "jwt secret is required to serve (set CANTEEN_JWT_SECRET)")
		}
		addr := s.cfg.Addr
		if opts.Addr != "" {
			addr = opts.Addr
		}

		var accessLog io.Writer
		if opts.Verbose {
			accessLog = cmd.ErrOrStderr()
		}
		app := api.New(s.engine, api.Config{
			JWTSecret: []byte(s.cfg.JWTSecret),
			Logger:    s.logger,
			AccessLog: accessLog,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- app.Listen(addr)
		}()
		fmt.Fprintf(cmd.ErrOrStderr(), "canteen listening on %s (db %s)\n", addr, s.cfg.DB)
		s.logger.Debug("server started", "addr", addr, "menu_cache", s.cache != nil)

		select {
		case err := <-errCh:
			if err != nil {
				return WrapExitError(ExitCommandError, "server stopped", err)
			}
			return nil
		case <-ctx.Done():
		}

		s.logger.Info("shutting down", "timeout", shutdownTimeout)
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return WrapExitError(ExitCommandError, "shutdown failed", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			return WrapExitError(ExitCommandError, "server stopped", err)
		}
		return nil
	})
}
