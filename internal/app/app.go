package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/padd/internal/config"
	"github.com/dokzlo13/padd/internal/session"
)

// App owns the services of one padd process. The first fatal error raised by a
// background service stops the app and is returned from Wait.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc

	fatalMu sync.Mutex
	fatal   error
}

// New wires every service without starting any of them.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Start checks the entitlement, syncs presets and brings up the HTTP surfaces.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.services.Start(a.ctx, a.onFatalError); err != nil {
		return err
	}

	st := a.services.Session.Status()
	log.Info().
		Str("address", st.Address).
		Int("pads", st.Pads).
		Bool("api", a.cfg.API.Enabled).
		Bool("mqtt", a.services.MQTT != nil).
		Msg("padd started")
	return nil
}

func (a *App) onFatalError(err error) {
	a.fatalMu.Lock()
	if a.fatal == nil {
		a.fatal = err
	}
	a.fatalMu.Unlock()

	log.Error().Err(err).Msg("Fatal error, initiating shutdown")
	a.cancel()
}

// Session returns the device session.
func (a *App) Session() *session.Session {
	return a.services.Session
}

// ResetPresets overwrites the stored preset document with the default pads.
func (a *App) ResetPresets(ctx context.Context) error {
	return a.services.ResetPresets(ctx)
}

// Wait blocks until the app is stopped by its context or a fatal error.
// It returns the fatal error, or nil for a regular shutdown.
func (a *App) Wait() error {
	if a.ctx == nil {
		return nil
	}
	<-a.ctx.Done()

	a.fatalMu.Lock()
	defer a.fatalMu.Unlock()
	return a.fatal
}

// Stop cancels the app context and releases every service.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel()
	}
	if a.services != nil {
		return a.services.Stop()
	}
	return nil
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
