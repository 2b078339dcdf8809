package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"codeberg.org/freetier/gateway/internal/config"
	"codeberg.org/freetier/gateway/internal/logger"
)

// @title Free-tier LLM Gateway
// @version 1.0
// @description Stateless gateway in front of an LLM chat-completion API.
// @description
// @description Features:
// @description - Shared daily quota for a managed upstream key
// @description - Paid zero-retention tier that degrades to a free model when the budget runs out
// @description - Turnstile bot verification with short-lived session tokens
// @description - Bring-your-own-key bypass

// @license.name GPL-3.0
// @license.url https://www.gnu.org/licenses/gpl-3.0.html

func main() {
	// load configuration from environment
	cfg, err := config.LoadEnvironmentVariables()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	logger.Setup(cfg.Environment)
	logger.Info("starting gateway", "environment", cfg.Environment)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	srv, err := NewServer(startupCtx, cfg)
	startupCancel()

	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: srv.router,

		// upstream completions can take a while
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// start server in goroutine
	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	// wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// graceful shutdown with 10 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// close the kv store
	if err := srv.Close(); err != nil {
		logger.ErrorErr(err, "failed to close kv store")
	}

	logger.Info("server stopped")
}
