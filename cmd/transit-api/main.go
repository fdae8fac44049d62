// README: Entry point; loads config, wires the trip planner, serves HTTP until interrupted.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"transitguide/internal/app"
	"transitguide/internal/config"
	httptransport "transitguide/internal/http"
	"transitguide/internal/infra"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := infra.NewLogger(cfg.Log.Level, cfg.Log.Mode)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Log.Mode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	planner, closeFn, err := app.NewTripPlanner(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("wire trip planner", zap.Error(err))
	}
	defer closeFn()

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Planner:         planner,
		Log:             logger,
		RateLimitPerMin: cfg.HTTP.RateLimitPerMin,
		RequestTimeout:  cfg.HTTP.RequestTimeout,
		TrustedProxies:  cfg.HTTP.TrustedProxies,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("transit api listening",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("llm_provider", cfg.LLM.Provider),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http serve", zap.Error(err))
	}
}
