package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/offerscrape/api"
	"github.com/use-agent/offerscrape/api/handler"
	"github.com/use-agent/offerscrape/cache"
	"github.com/use-agent/offerscrape/config"
	"github.com/use-agent/offerscrape/logging"
	"github.com/use-agent/offerscrape/metrics"
	"github.com/use-agent/offerscrape/scraper"
	"github.com/use-agent/offerscrape/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	log := logging.New(cfg.Log, os.Stdout)
	slog.SetDefault(log)
	log.Info("offerscrape starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxSessions", cfg.Browser.MaxSessions,
		"baseURL", cfg.Site.BaseURL,
	)

	// ── 3. Wire the fetch pipeline ──────────────────────────────────
	// Browsers are launched per request, so nothing starts Chrome here.
	m := metrics.New()
	sc := scraper.NewFromConfig(cfg, log, m)

	// ── 4. Supporting services ──────────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries, time.Hour)
	defer cc.Close()
	batches := handler.NewBatchStore(time.Hour)
	defer batches.Close()

	// ── 5. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(cfg, api.Deps{
		Fetcher:   sc,
		Cache:     cc,
		Batches:   batches,
		Notifier:  webhook.NewNotifier(log),
		Metrics:   m,
		Log:       log,
		StartTime: sc.StartTime(),
	})

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutdown signal received", "signal", sig.String())

	// In-flight fetches release their own sessions; give them time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("HTTP server forced shutdown", "error", err)
	} else {
		log.Info("HTTP server drained gracefully")
	}
	log.Info("offerscrape stopped")
}
