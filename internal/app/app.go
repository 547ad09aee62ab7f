package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go-identity-service/internal/config"
	"go-identity-service/internal/observability"
	"go-identity-service/internal/service"
)

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Server  *http.Server
	Sweeper *service.SessionSweeper
	Runtime *observability.Runtime
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, sweeper *service.SessionSweeper, runtime *observability.Runtime) *App {
	return &App{Config: cfg, Logger: logger, Server: server, Sweeper: sweeper, Runtime: runtime}
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// flushes telemetry.
func (a *App) Run(ctx context.Context) error {
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go a.Sweeper.Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server starting", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("server shutting down")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Runtime.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
