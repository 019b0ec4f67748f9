package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"momentum/internal/refresher"
	"momentum/internal/usecase"
	"momentum/pkg/config"
	xhttp "momentum/pkg/http"
	applogger "momentum/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	collector  *usecase.TickCollector
	refresher  *refresher.Refresher
	handler    xhttp.Handler
	httpServer *xhttp.Server
	TickProc   *usecase.TickProcessor
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.TickCollector,
	refr *refresher.Refresher,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		collector: collector,
		refresher: refr,
		handler:   handler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler, a.log,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(a.cfg.Metrics.Path),
	)

	// History refresher backfills 15m/1h/4h/1d windows.
	go a.refresher.Run(ctx, a.cfg.Provider.Symbols)
	a.log.Info("refresher started",
		applogger.Duration("interval", a.cfg.Market.RefreshInterval),
		applogger.Strings("symbols", a.cfg.Provider.Symbols))

	// Tick collector owns the websocket and the 1m/5m aggregation.
	go func() {
		if err := a.collector.Start(ctx); err != nil {
			a.log.Error("collector error", applogger.Error(err))
		}
	}()
	a.log.Info("collector started", applogger.Strings("symbols", a.cfg.Provider.Symbols))

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown(context.Background())
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	if err := a.collector.Shutdown(ctx); err != nil {
		a.log.Warn("collector stop error", applogger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.TickProc != nil {
		a.TickProc.Close()
	}

	a.log.Info("shutdown complete")
	return nil
}
