package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ordersaga/internal/config"
	"ordersaga/internal/platform/httpserver"
	"ordersaga/internal/platform/kafka"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Application runs one saga participant: its consumer loops and its HTTP API.
type Application struct {
	container *Container
	router    *chi.Mux
	server    *httpserver.Server
	consumers []*kafka.ConsumerService
}

// NewApplication builds the container for cfg and wires the participant
// named by cfg.ServiceName onto it.
func NewApplication(ctx context.Context, cfg *config.Config, opts Options) (*Application, error) {
	container, err := NewContainer(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	app := &Application{
		container: container,
		router:    httpserver.NewRouter(container.Logger()),
	}

	var wireErr error
	switch cfg.ServiceName {
	case config.OrderServiceName:
		wireErr = app.wireOrder()
	case config.InventoryServiceName:
		wireErr = app.wireInventory()
	case config.PaymentServiceName:
		wireErr = app.wirePayment()
	default:
		wireErr = fmt.Errorf("unknown service %q", cfg.ServiceName)
	}
	if wireErr != nil {
		_ = container.Shutdown(context.Background())
		return nil, wireErr
	}

	app.server = httpserver.NewServer(cfg.HTTPAddr, cfg.ServiceName, app.router, container.Logger())
	container.Logger().Info("Application initialized successfully",
		zap.Int("consumers", len(app.consumers)),
		zap.String("http_addr", cfg.HTTPAddr),
	)
	return app, nil
}

func (app *Application) consume(topic, groupID string, handle kafka.HandlerFunc) error {
	consumer, err := app.container.Consumer(topic, groupID)
	if err != nil {
		return fmt.Errorf("consumer %s/%s: %w", topic, groupID, err)
	}
	app.consumers = append(app.consumers, kafka.NewConsumerService(topic, consumer, handle, app.container.Logger()))
	return nil
}

// Run blocks until ctx is cancelled or a consumer or the HTTP server fails.
// The first failure stops the others.
func (app *Application) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, consumer := range app.consumers {
		g.Go(func() error {
			return consumer.Start(ctx)
		})
	}
	g.Go(func() error {
		return app.server.Run(ctx)
	})

	return g.Wait()
}

// Handler exposes the participant's HTTP API without starting a listener.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Shutdown releases the container's resources. Call it after Run returns.
func (app *Application) Shutdown(ctx context.Context) error {
	return app.container.Shutdown(ctx)
}

// Serve runs the participant described by cfg until ctx is cancelled, then
// shuts it down within config.ShutdownTimeout.
func Serve(ctx context.Context, cfg *config.Config, opts Options) error {
	app, err := NewApplication(ctx, cfg, opts)
	if err != nil {
		return err
	}

	runErr := app.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, app.Shutdown(shutdownCtx))
}
