package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/jobs/api"
	"github.com/xraph/jobs/engine"
	"github.com/xraph/jobs/internal/config"
	"github.com/xraph/jobs/internal/logging"
	"github.com/xraph/jobs/store"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job engine and its admin API",
		Long: `Run the job engine with the admin API mounted at ` + api.BasePath + `.

Settings come from --config (or ./jobs.yaml) and JOBS_* environment
variables, e.g. JOBS_STORE_DRIVER=redis JOBS_STORE_REDIS_URL=redis://...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				a.v.Set("server.addr", addr)
			}
			settings, err := config.LoadWith(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(settings.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var lc net.ListenConfig
			ln, err := lc.Listen(ctx, "tcp", settings.Server.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", settings.Server.Addr, err)
			}
			return runServer(ctx, settings, logger, a.register, ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// runServer runs the engine and serves the admin API on ln until ctx ends,
// then shuts both down within the configured timeouts.
func runServer(ctx context.Context, s *config.Settings, logger *slog.Logger, register func(*engine.Engine), ln net.Listener) error {
	storeCfg := s.Store
	if storeCfg.Retention == 0 {
		storeCfg.Retention = s.Engine.RetentionTTL
	}
	st, err := store.Open(ctx, storeCfg, logger)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("open store: %w", err)
	}

	eng, err := engine.New(s.JobsConfig(),
		engine.WithStore(st),
		engine.WithLogger(logger),
	)
	if err != nil {
		_ = st.Close()
		_ = ln.Close()
		return err
	}
	if register != nil {
		register(eng)
	}
	if err := eng.Start(ctx); err != nil {
		eng.Shutdown(context.WithoutCancel(ctx), 0)
		_ = ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:      api.New(eng, logger).Handler(),
		ReadTimeout:  s.Server.ReadTimeout,
		WriteTimeout: s.Server.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	logger.Info("admin api listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("store", string(storeCfg.Driver)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve admin api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Server.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		res := eng.Shutdown(shutdownCtx, s.Engine.ShutdownTimeout)
		if res.IsGraceful() {
			logger.Info("shutdown complete")
		} else {
			logger.Warn("shutdown forced",
				slog.Int("jobs_remaining", res.JobsRemaining),
			)
		}
		return err
	})
	return g.Wait()
}
