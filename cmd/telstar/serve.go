package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Nityam-7/TELSTAR/api"
	"github.com/Nityam-7/TELSTAR/config"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the billing HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, envFiles...)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

// newRouter mounts the API and, when enabled, the metrics endpoint.
func newRouter(a *app, cfg *config.Config) http.Handler {
	server := api.New(a.engine,
		api.WithLogger(a.logger),
		api.WithRequireAuth(cfg.HTTP.RequireAuth),
		api.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
	)

	router := mux.NewRouter()
	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	router.PathPrefix("/").Handler(server.Handler())
	return router
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Log, os.Stderr)

	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	a, err := buildApp(ctx, cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return err
	}

	srv := api.NewHTTPServer(cfg.HTTP.Addr, newRouter(a, cfg))
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = a.engine.Stop(context.Background())
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server did not shut down cleanly", "error", err)
	}
	logger.Info("shutting down")
	return a.engine.Stop(shutdownCtx)
}
