// Command server starts the AI post generator HTTP server.
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

	"github.com/fairyhunter13/ai-post-generator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-post-generator/internal/adapter/ai/gemini"
	"github.com/fairyhunter13/ai-post-generator/internal/adapter/ai/tokencount"
	httpserver "github.com/fairyhunter13/ai-post-generator/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-post-generator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-post-generator/internal/adapter/storage"
	"github.com/fairyhunter13/ai-post-generator/internal/app"
	"github.com/fairyhunter13/ai-post-generator/internal/config"
	"github.com/fairyhunter13/ai-post-generator/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-post-generator/internal/usecase"
	"github.com/fairyhunter13/ai-post-generator/internal/usecase/prompt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Missing credentials are fatal: the process never starts serving.
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	keys, err := ai.NewKeyRing(cfg.APIKeys())
	if err != nil {
		slog.Error("credential pool invalid", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("credential pool loaded", slog.Int("keys", keys.Size()))

	store, err := storage.NewUploadStore(cfg.StaticDir, cfg.MaxUploadBytes())
	if err != nil {
		slog.Error("upload store init failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	sweeper := storage.NewSweeper(store.Dir(), cfg.UploadRetention)
	stopSweeper := sweeper.Start(ctx, cfg.SweepInterval)

	client := gemini.New(cfg.GeminiBaseURL, cfg.GeminiModel, gemini.WithTokenCounter(tokencount.NewCounter()))
	genSvc := usecase.NewGenerateService(keys, client, store, prompt.Default(), cfg.GetRetryConfig())
	postSvc := usecase.NewPostService(
		ratelimiter.NewDailyLimiter(cfg.DailyRequestQuota),
		ai.NewResponseCache(),
		genSvc,
		cfg.GenCoalesce,
	)

	srv := httpserver.NewServer(cfg, store, postSvc)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("model", cfg.GeminiModel))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", slog.Any("error", err))
	}
	stopSweeper()
	slog.Info("server stopped")
}
