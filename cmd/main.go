package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rahil234/SnapCart-sub000/internal/core/logger"
	"github.com/rahil234/SnapCart-sub000/internal/server"
	"github.com/rahil234/SnapCart-sub000/pkg/config"
)

func main() {
	cfg, err := config.Load("config.env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, cleanup, err := logger.NewLogger(cfg.App.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	srv, err := server.NewServer(cfg, log)
	if err != nil {
		log.Error("Failed to create server", logger.ErrorField("error", err))
		return
	}

	go func() {
		log.Info("Starting server",
			logger.StringField("addr", cfg.App.Addr),
			logger.StringField("storage", cfg.App.StorageDriver))
		if err := srv.Run(cfg.App.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", logger.ErrorField("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", logger.ErrorField("error", err))
	}

	log.Info("Server exited properly")
}
