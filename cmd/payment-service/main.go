package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"ordersaga/internal/app"
	"ordersaga/internal/config"
)

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("Application failed: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(config.PaymentServiceName)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	return app.Serve(ctx, cfg, app.Options{})
}
