// Package app wires all Voxbridge subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the gateway until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject substitutes via functional options (WithTranscriptStore,
// WithGatewayOptions). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxbridge-ai/voxbridge/internal/config"
	"github.com/voxbridge-ai/voxbridge/internal/gateway"
	"github.com/voxbridge-ai/voxbridge/internal/health"
	"github.com/voxbridge-ai/voxbridge/internal/transcriptlog"
	"github.com/voxbridge-ai/voxbridge/pkg/kb"
)

// App owns all subsystem lifetimes and serves the telephony gateway.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	store   transcriptlog.Store
	gateway *gateway.Server
	srv     *http.Server

	gwOpts []gateway.Option

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithTranscriptStore injects a transcript store instead of creating one from
// the config.
func WithTranscriptStore(s transcriptlog.Store) Option {
	return func(a *App) { a.store = s }
}

// WithGatewayOptions forwards extra options to the gateway server, which is
// how tests swap in a scripted session factory.
func WithGatewayOptions(opts ...gateway.Option) Option {
	return func(a *App) { a.gwOpts = append(a.gwOpts, opts...) }
}

// New creates an App by wiring all subsystems together: the transcript store,
// the gateway server, and the HTTP surface (call endpoint, health probes, and
// the Prometheus scrape endpoint).
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{
		cfg: cfg,
		log: log,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initTranscriptStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init transcript store: %w", err)
	}

	gwOpts := append([]gateway.Option{gateway.WithTranscriptStore(a.store)}, a.gwOpts...)
	gw, err := gateway.New(cfg, log, gwOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: init gateway: %w", err)
	}
	a.gateway = gw

	a.srv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.buildHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// initTranscriptStore connects the PostgreSQL transcript log, or falls back
// to the no-op store when no DSN is configured.
func (a *App) initTranscriptStore(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}
	dsn := a.cfg.TranscriptLog.PostgresDSN
	if dsn == "" {
		a.store = transcriptlog.Noop{}
		return nil
	}

	store, err := transcriptlog.NewPostgresStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	a.log.Info("transcript log connected")
	return nil
}

// buildHandler assembles the HTTP surface: the call endpoint, liveness and
// readiness probes, and the metrics scrape endpoint.
func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()
	a.gateway.Register(mux)

	var checkers []health.Checker
	if pinger, ok := a.store.(health.Pinger); ok {
		checkers = append(checkers, health.PingChecker("transcript_log", pinger))
	}
	if a.cfg.KnowledgeBase.BaseURL != "" {
		if kbClient, err := kb.NewClient(a.cfg.KnowledgeBase.BaseURL, a.cfg.KnowledgeBase.KBID); err == nil {
			checkers = append(checkers, health.Checker{Name: "knowledge_base", Check: kbClient.Health})
		}
	}
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Handler returns the HTTP surface, for tests that serve it directly.
func (a *App) Handler() http.Handler { return a.srv.Handler }

// Run serves the gateway and blocks until ctx is cancelled or the listener
// fails. On cancellation it returns ctx.Err(); call Shutdown afterwards.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	a.log.Info("gateway listening", "addr", a.srv.Addr)
	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the HTTP server and tears down all subsystems in order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		if err := a.srv.Shutdown(ctx); err != nil {
			a.log.Warn("http shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
