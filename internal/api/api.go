// Package api provides the HTTP server of PlatformAI.
//
// It exposes the chat relay, health and schema endpoints, exchange receipts,
// and the optional Twilio WhatsApp webhook.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/PlatformAI/internal/models"
	"github.com/BTreeMap/PlatformAI/internal/relay"
	"github.com/BTreeMap/PlatformAI/internal/store"
	"github.com/BTreeMap/PlatformAI/internal/twiliowhatsapp"
)

// Server configuration constants
const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":3000"
	// ServiceName is reported by GET /.
	ServiceName = "PlatformAI"
	// DefaultVersion is reported by GET / unless overridden.
	DefaultVersion = "1.0.0"
	// ShutdownTimeout bounds graceful shutdown, including pending WhatsApp replies.
	ShutdownTimeout = 30 * time.Second
	// ReadHeaderTimeout bounds reading request headers.
	ReadHeaderTimeout = 10 * time.Second
	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes = 1 << 20
)

// Relay handles one chat exchange.
type Relay interface {
	Handle(ctx context.Context, message string, channel models.Channel) relay.Result
}

// ModelLister reports the models the backend serves.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	CORSOrigins []string
	Version     string
	Sender      twiliowhatsapp.Sender
	Validator   twiliowhatsapp.SignatureValidator
	WebhookURL  string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithCORSOrigins sets the allowed browser origins. "*" allows any origin.
func WithCORSOrigins(origins []string) Option {
	return func(o *Opts) { o.CORSOrigins = origins }
}

// WithVersion sets the version reported by GET /.
func WithVersion(v string) Option {
	return func(o *Opts) { o.Version = v }
}

// WithWhatsApp enables POST /twilio/webhook. Replies go out through sender.
// A nil validator disables signature checks.
func WithWhatsApp(sender twiliowhatsapp.Sender, validator twiliowhatsapp.SignatureValidator) Option {
	return func(o *Opts) {
		o.Sender = sender
		o.Validator = validator
	}
}

// WithWebhookURL sets the public URL Twilio signs webhook requests with. When
// unset it is rebuilt from the request.
func WithWebhookURL(u string) Option {
	return func(o *Opts) { o.WebhookURL = u }
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	relay       Relay
	models      ModelLister
	st          store.Store
	addr        string
	corsOrigins []string
	version     string
	sender      twiliowhatsapp.Sender
	validator   twiliowhatsapp.SignatureValidator
	webhookURL  string

	// Background WhatsApp replies outlive their webhook request.
	workCtx    context.Context
	cancelWork context.CancelFunc
	inflight   sync.WaitGroup
}

// NewServer creates a new API server.
func NewServer(rel Relay, lister ModelLister, st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if st == nil {
		st = store.NewInMemoryStore()
	}
	workCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		relay:       rel,
		models:      lister,
		st:          st,
		addr:        cfg.Addr,
		corsOrigins: cfg.CORSOrigins,
		version:     cfg.Version,
		sender:      cfg.Sender,
		validator:   cfg.Validator,
		webhookURL:  cfg.WebhookURL,
		workCtx:     workCtx,
		cancelWork:  cancel,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.chatHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/api/schema", s.schemaHandler)
	mux.HandleFunc("/api/receipts", s.receiptsHandler)
	if s.sender != nil {
		mux.HandleFunc("/twilio/webhook", s.twilioWebhookHandler)
	}
	mux.HandleFunc("/", s.rootHandler)
	return s.recoverMiddleware(s.logMiddleware(s.corsMiddleware(mux)))
}

// Run serves HTTP until ctx is cancelled or SIGINT/SIGTERM arrives, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server.Run: PlatformAI API listening", "addr", s.addr, "whatsapp", s.sender != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server.Run: HTTP server failed", "error", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.drain(shutdownCtx)
		return err
	})
	return g.Wait()
}

// drain waits for background replies, cancelling them when ctx expires.
func (s *Server) drain(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Server.drain: cancelling pending WhatsApp replies")
		s.cancelWork()
		<-done
	}
	s.cancelWork()
}

// allowsAnyOrigin reports whether CORS is open to every origin.
func (s *Server) allowsAnyOrigin() bool {
	for _, o := range s.corsOrigins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
