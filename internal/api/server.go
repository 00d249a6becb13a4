// Package api exposes the pad controller over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/padd/internal/discovery"
	"github.com/dokzlo13/padd/internal/notify"
	"github.com/dokzlo13/padd/internal/preset"
	"github.com/dokzlo13/padd/internal/session"
	"github.com/dokzlo13/padd/internal/wled"
)

// Controller is the session surface the API drives. *session.Session satisfies it.
type Controller interface {
	Status() session.Status
	Pads() []preset.Pad
	Connect(ctx context.Context, host string) discovery.Result
	EditHost(raw string) string
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	ApplyPad(ctx context.Context, label string) error
	SetBrightness(v int) error
	SetSpeed(v int) error
	SetIntensity(v int) error
	SetColor(rgb wled.RGB) error
	CommitBrightness(ctx context.Context, v int) error
	CommitSpeed(ctx context.Context, v int) error
	CommitIntensity(ctx context.Context, v int) error
}

// Discoverer runs a full discovery.
type Discoverer interface {
	Discover(ctx context.Context) discovery.Result
}

// PadWriter replaces the stored pad list.
type PadWriter interface {
	Write(ctx context.Context, pads []preset.Pad) error
}

// ToastSource yields the toast currently shown.
type ToastSource interface {
	Current() (notify.Toast, bool)
}

// Deps are the collaborators behind the routes. Pads and Toasts may be nil.
type Deps struct {
	Session   Controller
	Discovery Discoverer
	Pads      PadWriter
	Toasts    ToastSource
}

// maxRequestBodySize bounds request bodies (1 MB).
const maxRequestBodySize = 1 << 20

// Server is the control API server.
type Server struct {
	addr       string
	deps       Deps
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates a new API server.
func NewServer(host string, port int, deps Deps) *Server {
	s := &Server{
		addr: fmt.Sprintf("%s:%d", host, port),
		deps: deps,
	}
	s.handler = s.buildRouter()
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the API server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(loggingMiddleware)
	r.Use(recoveryMiddleware)
	r.Use(bodySizeLimitMiddleware)

	r.Get("/status", s.handleStatus)
	r.Post("/connect", s.handleConnect)
	r.Put("/host", s.handleEditHost)
	r.Post("/discover", s.handleDiscover)
	r.Post("/power", s.handlePower)
	r.Post("/controls", s.handleControls)

	r.Get("/pads", s.handleListPads)
	r.Put("/pads", s.handleWritePads)
	r.Post("/pads/{label}", s.handleApplyPad)

	return r
}

// statusWriter captures the response status for logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	})
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Interface("panic", rec).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("Panic recovered in HTTP handler")
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func bodySizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}
