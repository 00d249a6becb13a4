package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/padd/internal/addressbook"
	"github.com/dokzlo13/padd/internal/coalesce"
	"github.com/dokzlo13/padd/internal/config"
	"github.com/dokzlo13/padd/internal/db"
	"github.com/dokzlo13/padd/internal/discovery"
	"github.com/dokzlo13/padd/internal/docstore"
	"github.com/dokzlo13/padd/internal/entitlement"
	"github.com/dokzlo13/padd/internal/eventbus"
	"github.com/dokzlo13/padd/internal/kv"
	"github.com/dokzlo13/padd/internal/notify"
	"github.com/dokzlo13/padd/internal/preset"
	"github.com/dokzlo13/padd/internal/session"
	"github.com/dokzlo13/padd/internal/wled"
)

// ErrNotEntitled is returned by Start when the configured principal may not use the controller.
var ErrNotEntitled = errors.New("principal is not entitled")

// deviceBucket is the kv bucket holding device-related settings.
const deviceBucket = "device"

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Bucket kv.Bucket
	Bus    *eventbus.Bus

	// Device side
	Client    *wled.Client
	Book      *addressbook.Book
	Discovery *discovery.Discovery
	Coalescer *coalesce.Coalescer

	// User side
	Entitlement entitlement.Source
	Toaster     *notify.Toaster
	Session     *session.Session
	Docs        *docstore.SQLite
	Presets     *preset.Sync
	MQTT        *notify.MQTTSink

	// Outer surfaces
	Health *HealthService
	API    *APIService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Bucket = kv.NewSQLiteBucket(database.DB, deviceBucket)

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.Workers, cfg.EventBus.QueueSize)

	// Device transport, address book and discovery
	s.Client = wled.NewClient(&http.Client{}, cfg.Transport.RateLimitRPS)
	s.Book = addressbook.New(cfg.Device.Address, s.Bucket)
	s.Discovery = discovery.New(discoveryConfig(cfg), s.Client, s.Book)
	s.Coalescer = coalesce.New(s.Client, s.Book, coalesce.Config{
		SliderDelay: cfg.Coalescer.SliderDelay.Duration(),
		ColorDelay:  cfg.Coalescer.ColorDelay.Duration(),
		SendTimeout: cfg.Transport.Timeout.Duration(),
	})

	// Session
	s.Toaster = notify.NewToaster(cfg.Session.ToastTTL.Duration(), s.Bus)
	s.Session = session.New(session.Config{
		PadThrottle: cfg.Session.PadThrottle.Duration(),
		SendTimeout: cfg.Transport.Timeout.Duration(),
	}, session.Deps{
		Book:      s.Book,
		Connector: s.Discovery,
		Coalescer: s.Coalescer,
		Sender:    s.Client,
		Notifier:  s.Toaster,
		Events:    s.Bus,
	})
	s.Discovery.SetObserver(s.Session)

	// Entitlement and preset document
	expiresAt, err := cfg.Auth.ExpiresAtTime()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Entitlement = entitlement.NewStatic(cfg.Auth.Principal, entitlement.Record{
		Active:    cfg.Auth.Active,
		ExpiresAt: expiresAt,
	})

	defaults, err := defaultPads(cfg.Presets.Script)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Docs = docstore.NewSQLite(database.DB, docstore.KindPresetDocument)
	s.Presets = preset.NewSync(s.Docs, s.Entitlement.Current().Principal, defaults, s.Session.SetPads)

	// Outer surfaces
	s.Health = NewHealthService(cfg, func() bool { return s.Session.State().Connected() })
	s.API = NewAPIService(cfg, s.Session, s.Discovery, s.Presets, s.Toaster)

	return s, nil
}

func defaultPads(script string) ([]preset.Pad, error) {
	if script == "" {
		return preset.DefaultPads(), nil
	}
	pads, err := preset.LoadScript(script)
	if err != nil {
		return nil, fmt.Errorf("failed to load preset script: %w", err)
	}
	log.Info().Str("script", script).Int("pads", len(pads)).Msg("Loaded default pads from script")
	return pads, nil
}

func discoveryConfig(cfg *config.Config) discovery.Config {
	d := cfg.Discovery
	return discovery.Config{
		AccessPointPrefix:  d.AccessPointPrefix,
		AccessPointAddress: d.AccessPointAddress,
		Hostname:           d.Hostname,
		FallbackPrefix:     d.FallbackPrefix,
		AccessPointTimeout: d.AccessPointTimeout.Duration(),
		CurrentTimeout:     d.CurrentTimeout.Duration(),
		HostnameTimeout:    d.HostnameTimeout.Duration(),
		SweepTimeout:       d.SweepTimeout.Duration(),
		SweepDelay:         d.SweepDelay.Duration(),
		Workers:            d.SweepWorkers,
		InfoTimeout:        d.InfoTimeout.Duration(),
		ListTimeout:        d.ListTimeout.Duration(),
		MDNS:               d.MDNS,
		MDNSService:        d.MDNSService,
		MDNSTimeout:        d.MDNSTimeout.Duration(),
	}
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs (e.g., the API cannot listen).
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	grant := s.Entitlement.Current()
	if !grant.Allowed {
		log.Error().Str("principal", grant.Principal).Msg("Principal is not entitled, refusing to start")
		return fmt.Errorf("%w: %q", ErrNotEntitled, grant.Principal)
	}

	// Mirror bus events to MQTT before anything publishes
	if s.cfg.MQTT.Enabled {
		sink, err := notify.DialMQTT(notify.MQTTConfig{
			Broker:      s.cfg.MQTT.Broker,
			ClientID:    s.cfg.MQTT.ClientID,
			Username:    s.cfg.MQTT.Username,
			Password:    s.cfg.MQTT.Password,
			TopicPrefix: s.cfg.MQTT.TopicPrefix,
			QoS:         byte(s.cfg.MQTT.QoS),
		})
		if err != nil {
			log.Warn().Err(err).Str("broker", s.cfg.MQTT.Broker).Msg("MQTT unavailable, events will not be mirrored")
		} else {
			s.MQTT = sink
			s.Bus.SubscribeAll(sink.Handle)
		}
	}

	if err := s.Presets.Start(ctx); err != nil {
		return err
	}

	s.Health.Start(ctx)
	s.API.Start(ctx, onFatalError)

	if s.cfg.Device.ConnectOnStart {
		go s.Discovery.Discover(ctx)
	}

	log.Info().
		Str("principal", grant.Principal).
		Str("address", s.Book.Address()).
		Msg("Services started")
	return nil
}

// ResetPresets overwrites the stored preset document with the defaults.
func (s *Services) ResetPresets(ctx context.Context) error {
	defaults, err := defaultPads(s.cfg.Presets.Script)
	if err != nil {
		return err
	}
	return s.Presets.Write(ctx, defaults)
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()

	if s.Presets != nil {
		s.Presets.Stop()
	}
	if s.Coalescer != nil {
		s.Coalescer.Close(ctx)
	}
	if s.Toaster != nil {
		s.Toaster.Close()
	}
	if s.Bus != nil {
		s.Bus.Close(ctx)
	}
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.Client != nil {
		s.Client.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
