package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mrdcvlsc/food-reservation/internal/cache"
	"github.com/mrdcvlsc/food-reservation/internal/config"
	"github.com/mrdcvlsc/food-reservation/internal/domain"
	"github.com/mrdcvlsc/food-reservation/internal/engine"
	"github.com/mrdcvlsc/food-reservation/internal/store"
)

// session is one command's view of the canteen: the loaded configuration
// and an engine over the configured database.
type session struct {
	cfg    config.Config
	store  *store.Store
	cache  *cache.Redis
	engine *engine.Engine
	logger *slog.Logger
	out    *OutputFormatter
}

// newLogger writes text logs to w: debug and up with --verbose, warnings
// and errors otherwise.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the configuration and applies the --db override.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.DB = opts.Database
	}
	return cfg, nil
}

// openSession loads config, opens the store and wires the engine. The menu
// cache is attached when a Redis address is configured, so CLI stock
// changes invalidate what a running server displays.
func openSession(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	slog.SetDefault(logger)

	st, err := store.Open(cfg.DB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", cfg.DB), err)
	}

	s := &session{
		cfg:    cfg,
		store:  st,
		logger: logger,
		out:    newFormatter(cmd, opts),
	}

	engineOpts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithCompensation(cfg.Compensation.Attempts, cfg.Compensation.Backoff.Std()),
	}
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.MenuCacheTTL.Std())
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to connect menu cache", err)
		}
		s.cache = rc
		engineOpts = append(engineOpts, engine.WithMenuCache(rc))
	}

	s.engine = engine.New(st, engineOpts...)
	s.out.VerboseLog("Using database %s", cfg.DB)
	return s, nil
}

// Close releases the cache connection and the store.
func (s *session) Close() error {
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

// withSession runs fn against a freshly opened session and closes it after.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

// adminActor is the identity admin commands run as.
func adminActor(id string) domain.Actor {
	return domain.Actor{UserID: id, Admin: true}
}
