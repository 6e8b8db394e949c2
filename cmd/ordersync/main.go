package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/app"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/config"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Logger init error:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	a, err := app.New(cfg, log, os.Stdin, os.Stdout)
	if err != nil {
		log.Fatal("Failed to build application", zap.Error(err))
	}

	log.Info("Starting ordersync",
		zap.String("backend", cfg.Backend.URL),
		zap.String("transport", cfg.Stream.Transport),
	)
	if err := a.Run(ctx); err != nil {
		log.Error("Application stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}
