package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	OrderServiceName     = "order-service"
	InventoryServiceName = "inventory-service"
	PaymentServiceName   = "payment-service"
	ServiceVersion       = "0.1.0"
)

const (
	OrderCreatedTopic      = "order-created-topic"
	InventoryReservedTopic = "inventory-reserved-topic"
	PaymentCompletedTopic  = "payment-completed-topic"

	OrderGroupID     = "order-service-group"
	InventoryGroupID = "inventory-service-group"
	PaymentGroupID   = "payment-service-group"

	// InventoryCompensationGroupID consumes payment outcomes for the
	// inventory service apart from its OrderCreated subscription.
	InventoryCompensationGroupID = "inventory-service-compensation-group"

	TopicPartitions = 3
	BatchTimeout    = 10 * time.Millisecond
	BatchSize       = 100
)

const (
	LogsPath       = "/otlp/v1/logs"
	TracesPath     = "/otlp/v1/traces"
	MetricsPath    = "/otlp/v1/metrics"
	ExportTimeout  = 30 * time.Second
	MaxQueueSize   = 2048
	MetricInterval = 15 * time.Second
)

const (
	PublishMaxElapsed = 30 * time.Second
	ShutdownTimeout   = 10 * time.Second
	ReadHeaderTimeout = 5 * time.Second
)

var defaultHTTPAddrs = map[string]string{
	OrderServiceName:     ":8081",
	InventoryServiceName: ":8082",
	PaymentServiceName:   ":8083",
}

type Config struct {
	ServiceName         string
	KafkaBrokers        []string
	DatabaseURL         string
	HTTPAddr            string
	InventoryServiceURL string
	StockCheckTimeout   time.Duration
	PaymentDeclineRate  float64
	PaymentLatency      time.Duration
	OtelEndpoint        string
	OtelAuthHeader      string
}

// LoadConfig reads the environment for the named service. An empty
// DATABASE_URL selects in-memory stores; an empty OTEL_ENDPOINT disables
// telemetry export.
func LoadConfig(serviceName string) (*Config, error) {
	return load(serviceName, true)
}

// LoadLocalConfig reads the environment for a participant running inside
// the single-process demo. Kafka brokers are not needed, telemetry export is
// off and each participant keeps its default HTTP address.
func LoadLocalConfig(serviceName string) (*Config, error) {
	cfg, err := load(serviceName, false)
	if err != nil {
		return nil, err
	}
	cfg.KafkaBrokers = nil
	cfg.HTTPAddr = defaultHTTPAddrs[serviceName]
	cfg.OtelEndpoint = ""
	cfg.OtelAuthHeader = ""
	return cfg, nil
}

func load(serviceName string, requireBrokers bool) (*Config, error) {
	addr, ok := defaultHTTPAddrs[serviceName]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", serviceName)
	}

	config := &Config{
		ServiceName:         serviceName,
		KafkaBrokers:        splitList(os.Getenv("KAFKA_BROKERS")),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		HTTPAddr:            getEnvOrDefault("HTTP_ADDR", addr),
		InventoryServiceURL: getEnvOrDefault("INVENTORY_SERVICE_URL", "http://localhost:8082"),
		OtelEndpoint:        os.Getenv("OTEL_ENDPOINT"),
		OtelAuthHeader:      os.Getenv("OTEL_AUTH_HEADER"),
	}

	if requireBrokers && len(config.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS environment variable is required")
	}

	var err error
	if config.StockCheckTimeout, err = durationFromEnv("STOCK_CHECK_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	if config.StockCheckTimeout <= 0 {
		return nil, fmt.Errorf("STOCK_CHECK_TIMEOUT must be positive")
	}
	if config.PaymentLatency, err = durationFromEnv("PAYMENT_LATENCY", 0); err != nil {
		return nil, err
	}

	if raw := os.Getenv("PAYMENT_DECLINE_RATE"); raw != "" {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("PAYMENT_DECLINE_RATE: %w", err)
		}
		if rate < 0 || rate > 1 {
			return nil, fmt.Errorf("PAYMENT_DECLINE_RATE must be within [0, 1], got %v", rate)
		}
		config.PaymentDeclineRate = rate
	}

	if requireBrokers && config.OtelEndpoint != "" && config.OtelAuthHeader == "" {
		return nil, fmt.Errorf("OTEL_AUTH_HEADER environment variable is required when OTEL_ENDPOINT is set")
	}

	return config, nil
}

// TelemetryEnabled reports whether OTLP exporters should be configured.
func (c *Config) TelemetryEnabled() bool {
	return c.OtelEndpoint != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationFromEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
