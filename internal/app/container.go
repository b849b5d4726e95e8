package app

import (
	"context"
	"errors"
	"fmt"

	"ordersaga/internal/config"
	"ordersaga/internal/platform/kafka"
	"ordersaga/internal/platform/observability"
	"ordersaga/internal/platform/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Options replace infrastructure the container would otherwise build from
// configuration.
type Options struct {
	// Broker, when set, carries all events in memory instead of Kafka.
	Broker *kafka.MemoryBroker
	// Logger overrides the OpenTelemetry-bridged console logger.
	Logger *zap.Logger
}

// Container holds expensive-to-create singleton resources and dependencies.
type Container struct {
	config            *config.Config
	logger            *zap.Logger
	tracer            observability.Tracer
	meter             metric.Meter
	broker            *kafka.MemoryBroker
	pool              *pgxpool.Pool
	producers         []kafka.Producer
	consumers         []kafka.Consumer
	telemetryShutdown observability.ShutdownFunc
}

// NewContainer sets up telemetry, logging and the store connection for one
// participant. Kafka clients are created on demand by Producer and Consumer.
func NewContainer(ctx context.Context, cfg *config.Config, opts Options) (*Container, error) {
	c := &Container{
		config:            cfg,
		broker:            opts.Broker,
		telemetryShutdown: func(context.Context) error { return nil },
	}

	if err := c.setupObservability(ctx, opts.Logger); err != nil {
		return nil, err
	}

	if err := c.setupStore(ctx); err != nil {
		c.Shutdown(context.Background())
		return nil, err
	}

	if c.broker == nil {
		if err := kafka.EnsureTopics(ctx, cfg.KafkaBrokers,
			config.OrderCreatedTopic, config.InventoryReservedTopic, config.PaymentCompletedTopic); err != nil {
			c.logger.Warn("⚠️ Could not ensure Kafka topics, relying on auto-creation", zap.Error(err))
		}
	}

	return c, nil
}

// setupObservability installs the OpenTelemetry SDKs and re-creates the
// logger on top of the log bridge.
func (c *Container) setupObservability(ctx context.Context, logger *zap.Logger) error {
	observability.SetupPropagation()

	logShutdown, err := observability.SetupLoggingSDK(ctx, c.config)
	if err != nil {
		return fmt.Errorf("observability.SetupLoggingSDK: %w", err)
	}

	_, traceShutdown, err := observability.SetupTracingSDK(ctx, c.config)
	if err != nil {
		_ = logShutdown(ctx)
		return fmt.Errorf("observability.SetupTracingSDK: %w", err)
	}

	metricShutdown, err := observability.SetupMetricsSDK(ctx, c.config)
	if err != nil {
		_ = observability.JoinShutdown(traceShutdown, logShutdown)(ctx)
		return fmt.Errorf("observability.SetupMetricsSDK: %w", err)
	}
	c.telemetryShutdown = observability.JoinShutdown(metricShutdown, traceShutdown, logShutdown)

	if logger == nil {
		logger = observability.NewLogger(c.config.ServiceName)
	}
	c.logger = logger.With(zap.String("participant", c.config.ServiceName))
	c.tracer = otel.Tracer(c.config.ServiceName)
	c.meter = otel.Meter(c.config.ServiceName)

	c.logger.Info("Logger initialized",
		zap.Bool("telemetry_export", c.config.TelemetryEnabled()),
	)
	return nil
}

// setupStore migrates and connects to Postgres when a database is configured.
func (c *Container) setupStore(ctx context.Context) error {
	if c.config.DatabaseURL == "" {
		c.logger.Info("No DATABASE_URL set, using in-memory store")
		return nil
	}

	if err := postgres.Migrate(c.config.DatabaseURL, schemaFor(c.config.ServiceName)); err != nil {
		return fmt.Errorf("postgres.Migrate: %w", err)
	}

	pool, err := postgres.NewPool(ctx, c.config.DatabaseURL)
	if err != nil {
		return err
	}
	c.pool = pool
	return nil
}

func schemaFor(serviceName string) string {
	switch serviceName {
	case config.OrderServiceName:
		return postgres.OrderSchema
	case config.InventoryServiceName:
		return postgres.InventorySchema
	default:
		return postgres.PaymentSchema
	}
}

// Producer returns a producer for topic. Producers are closed by Shutdown.
func (c *Container) Producer(topic string) (kafka.Producer, error) {
	var producer kafka.Producer
	if c.broker != nil {
		producer = c.broker.Producer(topic)
	} else {
		writer, err := kafka.NewWriter(c.config.KafkaBrokers, topic, c.config.ServiceName, otel.GetTracerProvider())
		if err != nil {
			return nil, err
		}
		producer = writer
	}
	c.producers = append(c.producers, producer)
	return producer, nil
}

// Publisher returns a retrying JSON publisher for topic.
func (c *Container) Publisher(topic string) (*kafka.Publisher, error) {
	producer, err := c.Producer(topic)
	if err != nil {
		return nil, err
	}
	return kafka.NewPublisher(producer, c.logger, config.PublishMaxElapsed), nil
}

// Consumer returns a consumer-group member for topic. Consumers are closed by Shutdown.
func (c *Container) Consumer(topic, groupID string) (kafka.Consumer, error) {
	var consumer kafka.Consumer
	if c.broker != nil {
		consumer = c.broker.Consumer(topic, groupID)
	} else {
		reader, err := kafka.NewReader(c.config.KafkaBrokers, topic, groupID, otel.GetTracerProvider())
		if err != nil {
			return nil, err
		}
		consumer = reader
	}
	c.consumers = append(c.consumers, consumer)
	return consumer, nil
}

// Shutdown closes Kafka clients, the database pool and telemetry exporters.
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down infrastructure...")

	var err error
	for _, consumer := range c.consumers {
		if closeErr := consumer.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("consumer.Close: %w", closeErr))
		}
	}
	for _, producer := range c.producers {
		if closeErr := producer.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("producer.Close: %w", closeErr))
		}
	}

	if c.pool != nil {
		c.pool.Close()
	}

	if shutdownErr := c.telemetryShutdown(ctx); shutdownErr != nil {
		err = errors.Join(err, fmt.Errorf("telemetry shutdown: %w", shutdownErr))
	}

	if err != nil {
		c.logger.Error("❌ Infrastructure shutdown incomplete", zap.Error(err))
	} else {
		c.logger.Info("Infrastructure shutdown complete")
	}
	// stdout sync fails on some terminals
	_ = c.logger.Sync()
	return err
}

func (c *Container) Config() *config.Config            { return c.config }
func (c *Container) Logger() *zap.Logger               { return c.logger }
func (c *Container) Tracer() observability.Tracer      { return c.tracer }
func (c *Container) Meter() metric.Meter               { return c.meter }
func (c *Container) Pool() *pgxpool.Pool               { return c.pool }
func (c *Container) MemoryBroker() *kafka.MemoryBroker { return c.broker }
