package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/okian/skincheck/internal/adapters/http/api"
	"github.com/okian/skincheck/internal/adapters/http/swagger"
	"github.com/okian/skincheck/internal/app"
	"github.com/okian/skincheck/internal/domain/dedupe"
	"github.com/okian/skincheck/internal/i18n"
	"github.com/okian/skincheck/pkg/logger"
	"github.com/okian/skincheck/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func serveCmd(e *env) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the flow and its control API until interrupted",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config addr)")
	cmd.RunE = e.runE(func(cmd *cobra.Command, _ []string) error {
		if addr != "" {
			e.cfg.Addr = addr
		}
		return e.serve(cmd.Context())
	})
	return cmd
}

func (e *env) serve(ctx context.Context) error {
	coord, err := e.newCoordinator(ctx)
	if err != nil {
		return err
	}

	runner := app.New(coord,
		app.WithMailboxSize(e.cfg.MailboxSize),
		app.WithLogger(e.log.Named("runner")),
	)
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start runner: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := runner.Stop(stopCtx); err != nil {
			e.log.Error(ctx, "runner stop failed", logger.Error(err))
		}
	}()

	handler, err := e.newHandler(ctx, runner)
	if err != nil {
		return err
	}

	if metrics.Enabled() {
		go startSystemMetricsUpdater(ctx)
	}

	srv := &http.Server{
		Addr:              e.cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		e.log.Info(ctx, "starting HTTP server", logger.String("addr", e.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	case <-ctx.Done():
	}
	e.log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		e.log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	e.log.Info(ctx, "server stopped")
	return nil
}

// newHandler mounts the control API and its OpenAPI document.
func (e *env) newHandler(ctx context.Context, deps api.Dependencies) (http.Handler, error) {
	catalog, err := i18n.New(e.cfg.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	r := mux.NewRouter()
	swagger.Register(ctx, r)
	api.NewServer(deps,
		api.WithIdempotencyCache(dedupe.NewMemoryCache(dedupe.WithMaxSize(e.cfg.IdempotencyCacheSize))),
		api.WithMessages(catalog),
		api.WithMaxUploadBytes(e.cfg.MaxUploadBytes),
		api.WithMaxImagePixels(e.cfg.MaxImagePixels),
		api.WithJPEGQuality(e.cfg.JPEGQuality),
		api.WithLogger(e.log.Named("api")),
	).Register(ctx, r)
	return r, nil
}

// startSystemMetricsUpdater samples process metrics until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		metrics.RecordSystemGCPauseTime(float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond)
	}
}
