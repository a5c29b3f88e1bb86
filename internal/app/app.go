package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/social-realtime-backend/internal/config"
	"github.com/sandeepkv93/social-realtime-backend/internal/observability"
	"github.com/sandeepkv93/social-realtime-backend/internal/realtime"
	"github.com/sandeepkv93/social-realtime-backend/internal/service"
)

// Closer releases process-wide resources such as the database pool and the
// Redis client once everything else has stopped.
type Closer func() error

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Gateway       *realtime.Gateway
	Cleanup       *service.SessionCleanupTask
	closer        Closer

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	gateway *realtime.Gateway,
	cleanup *service.SessionCleanupTask,
	closer Closer,
) *App {
	return &App{
		Config:                       cfg,
		Logger:                       logger,
		Server:                       server,
		Observability:                runtime,
		Gateway:                      gateway,
		Cleanup:                      cleanup,
		closer:                       closer,
		ShutdownTimeout:              cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout:     cfg.ShutdownHTTPDrainTime,
		ShutdownObservabilityTimeout: cfg.ShutdownObservability,
	}
}

// Run serves HTTP, relays cross-instance frames and sweeps expired sessions
// until ctx is cancelled or the listener fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.Cleanup != nil {
		a.Cleanup.Start(gctx)
	}
	if a.Gateway != nil {
		g.Go(func() error {
			return a.Gateway.Hub().Run(gctx)
		})
	}
	g.Go(func() error {
		a.Logger.Info("server starting", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops components in dependency order: websocket connections
// first since the HTTP server does not track hijacked connections, then the
// HTTP server, background tasks, telemetry and finally shared resources.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutdown started")
	var errs []error

	if a.Gateway != nil {
		if err := a.Gateway.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	drainCtx, cancelDrain := context.WithTimeout(ctx, a.drainTimeout())
	if err := a.Server.Shutdown(drainCtx); err != nil {
		errs = append(errs, err)
	}
	cancelDrain()

	if a.Cleanup != nil {
		a.Cleanup.Stop()
	}

	obsCtx, cancelObs := context.WithTimeout(context.Background(), a.observabilityTimeout())
	if err := a.Observability.Shutdown(obsCtx); err != nil {
		errs = append(errs, err)
	}
	cancelObs()

	if a.closer != nil {
		if err := a.closer(); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		a.Logger.Error("shutdown finished with errors", "error", err)
		return err
	}
	a.Logger.Info("shutdown complete")
	return nil
}

func (a *App) shutdownTimeout() time.Duration {
	if a.ShutdownTimeout <= 0 {
		return 20 * time.Second
	}
	return a.ShutdownTimeout
}

func (a *App) drainTimeout() time.Duration {
	if a.ShutdownHTTPDrainTimeout <= 0 {
		return 10 * time.Second
	}
	return a.ShutdownHTTPDrainTimeout
}

func (a *App) observabilityTimeout() time.Duration {
	if a.ShutdownObservabilityTimeout <= 0 {
		return 5 * time.Second
	}
	return a.ShutdownObservabilityTimeout
}
