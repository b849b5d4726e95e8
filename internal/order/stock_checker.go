package order

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ordersaga/internal/platform/observability"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// StockChecker answers whether quantity units of a product are available.
// An error means availability is unknown.
type StockChecker interface {
	CheckAvailability(ctx context.Context, productID int64, quantity int32) (bool, error)
}

// HTTPStockChecker calls the inventory service's read-only check endpoint.
// Calls are bounded by a timeout and short-circuited while the inventory
// service keeps failing.
type HTTPStockChecker struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[bool]
	logger  observability.Logger
}

func NewHTTPStockChecker(baseURL string, timeout time.Duration, logger observability.Logger) *HTTPStockChecker {
	return &HTTPStockChecker{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
			Name:        "inventory-stock-check",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("⚠️ Circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		logger: logger,
	}
}

func (c *HTTPStockChecker) CheckAvailability(ctx context.Context, productID int64, quantity int32) (bool, error) {
	return c.breaker.Execute(func() (bool, error) {
		return c.check(ctx, productID, quantity)
	})
}

func (c *HTTPStockChecker) check(ctx context.Context, productID int64, quantity int32) (bool, error) {
	query := url.Values{}
	query.Set("productId", strconv.FormatInt(productID, 10))
	query.Set("quantity", strconv.FormatInt(int64(quantity), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/inventory/check?"+query.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("http.NewRequestWithContext: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("client.Do: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		// an unknown product can never be reserved
		return false, nil
	default:
		return false, fmt.Errorf("inventory check returned %s", resp.Status)
	}

	var available bool
	if err := json.NewDecoder(resp.Body).Decode(&available); err != nil {
		return false, fmt.Errorf("json.Decode availability: %w", err)
	}
	return available, nil
}
