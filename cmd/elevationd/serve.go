package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/walkthru-earth/elevationd/internal/config"
)

// runServe builds the app, starts the HTTP server, and blocks until an
// interrupt/term signal arrives, then drains in-flight requests before
// returning - the graceful-shutdown shape common to production chi
// servers, generalized from a desktop app's window-close lifecycle to an
// HTTP listener's signal-driven one.
func runServe(cfg config.ModelConfig) error {
	log := slog.Default().With("component", "elevationd")

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	reg := prometheus.NewRegistry()
	m := newMetrics(reg)
	jobs := newJobTracker()
	stopMetrics := a.pollMetrics(m, 5*time.Second)
	defer stopMetrics()

	r := a.newRouter(m, jobs)
	r.Mount("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      withAmbientMiddleware(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func withAmbientMiddleware(h http.Handler) http.Handler {
	return middleware.RequestID(middleware.Logger(middleware.Recoverer(h)))
}

// pollMetrics periodically refreshes the gauges that mirror live collaborator
// state (cache usage, queue depth) rather than counting discrete events.
func (a *app) pollMetrics(m *metrics, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				m.cacheBytesUsed.Set(float64(a.model.CacheBytesUsed()))
				m.retrievalQueueDepth.Set(float64(a.model.RetrievalQueueDepth()))
			}
		}
	}()
	return func() { close(done) }
}
