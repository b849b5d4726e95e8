// Command saga-local runs the order, inventory and payment participants in a
// single process, connected by an in-memory broker.
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
	"ordersaga/internal/platform/kafka"

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("Application failed: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker := kafka.NewMemoryBroker(config.TopicPartitions)

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range []string{config.InventoryServiceName, config.PaymentServiceName, config.OrderServiceName} {
		cfg, err := config.LoadLocalConfig(name)
		if err != nil {
			return fmt.Errorf("failed to load configuration for %s: %w", name, err)
		}
		g.Go(func() error {
			return app.Serve(ctx, cfg, app.Options{Broker: broker})
		})
	}
	return g.Wait()
}
