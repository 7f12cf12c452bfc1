package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/joelkehle/ideafit/internal/config"
	"github.com/joelkehle/ideafit/internal/httpapi"
	"github.com/joelkehle/ideafit/internal/insight"
	"github.com/joelkehle/ideafit/internal/report"
	"github.com/joelkehle/ideafit/internal/simulate"
	"github.com/joelkehle/ideafit/internal/statkit"
	"github.com/joelkehle/ideafit/internal/store"
	"github.com/joelkehle/ideafit/internal/telemetry"
)

func main() {
	portFlag := flag.Int("port", 0, "listen port (overrides PORT)")
	dsnFlag := flag.String("dsn", "", "SQLite DSN or file path (overrides DB_DSN)")
	noSeed := flag.Bool("no-seed", false, "skip loading the sample data set")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *portFlag > 0 {
		cfg.Port = *portFlag
	}
	if *dsnFlag != "" {
		cfg.DSN = *dsnFlag
	}
	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "ideafit-api", cfg.OTLPEndpoint)
	if err != nil {
		slog.Warn("tracing disabled", "err", err)
	}

	st, err := store.NewSQLStore(store.Config{DSN: cfg.DSN})
	if err != nil {
		slog.Error("failed to open store", "err", err, "dsn", cfg.DSN)
		os.Exit(1)
	}
	defer st.Close()
	if !*noSeed {
		if err := st.Seed(ctx); err != nil {
			slog.Error("failed to seed store", "err", err)
			os.Exit(1)
		}
	}

	adapter := insight.NewAdapter(newCaller(cfg), insight.Config{
		CacheSize:     cfg.ReactionCacheSize,
		RatePerMinute: cfg.RequestRateLimitPerMinute,
	})
	svc := simulate.NewService(st, adapter, statkit.New(cfg.StatSeed))
	pdf := report.NewPDFRenderer()
	if !pdf.Available() {
		slog.Info("chromium not found, pdf reports disabled")
	}

	h := httpapi.NewServer(httpapi.Deps{
		Store:       st,
		Service:     svc,
		Adapter:     adapter,
		PDF:         pdf,
		Limiter:     rate.NewLimiter(rate.Limit(cfg.InboundRPS), cfg.InboundBurst),
		CORSOrigins: cfg.CORSOrigins,
		AppName:     cfg.AppName,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("ideafit-api listening", "addr", srv.Addr, "app", cfg.AppName, "dsn", cfg.DSN)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("flush traces", "err", err)
	}
	slog.Info("ideafit-api stopped")
}

// newCaller returns nil without a credential; the adapter then serves fallbacks.
func newCaller(cfg *config.Config) insight.LLMCaller {
	caller, err := insight.NewAnthropicCallerWithKey(cfg.APIKey, cfg.ModelChat)
	if err != nil {
		slog.Warn("llm not configured, using fallback responses", "err", err)
		return nil
	}
	slog.Info("llm configured", "model", caller.ModelName())
	return caller
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
