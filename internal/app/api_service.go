package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/padd/internal/api"
	"github.com/dokzlo13/padd/internal/config"
)

// APIService wraps the control API server.
type APIService struct {
	cfg    *config.Config
	server *api.Server
}

// NewAPIService creates a new APIService.
func NewAPIService(cfg *config.Config, ctrl api.Controller, disc api.Discoverer, pads api.PadWriter, toasts api.ToastSource) *APIService {
	server := api.NewServer(cfg.API.Host, cfg.API.Port, api.Deps{
		Session:   ctrl,
		Discovery: disc,
		Pads:      pads,
		Toasts:    toasts,
	})
	return &APIService{
		cfg:    cfg,
		server: server,
	}
}

// Start begins the API server if enabled. A listen failure is fatal.
func (s *APIService) Start(ctx context.Context, onFatalError func(error)) {
	if !s.cfg.API.Enabled {
		log.Debug().Msg("API server disabled")
		return
	}

	go func() {
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("API server error")
			if onFatalError != nil {
				onFatalError(fmt.Errorf("api server: %w", err))
			}
		}
	}()
}
