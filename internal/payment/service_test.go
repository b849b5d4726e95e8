package payment

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"ordersaga/internal/events"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"
)

type published struct {
	key       string
	eventType string
	event     events.PaymentCompleted
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, key, eventType string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{key: key, eventType: eventType, event: event.(events.PaymentCompleted)})
	return nil
}

type stubGateway struct {
	mu    sync.Mutex
	err   error
	calls []ChargeRequest
}

func (g *stubGateway) Charge(_ context.Context, req ChargeRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	return g.err
}

type brokenRepository struct {
	*MemoryRepository
	err error
}

func (r brokenRepository) GetByOrder(context.Context, int64) (Payment, error) {
	return Payment{}, r.err
}

func newTestService(t *testing.T, repo Repository, gateway Gateway, publisher EventPublisher) *Service {
	t.Helper()
	svc, err := NewService(repo, gateway, publisher, zaptest.NewLogger(t), tracenoop.NewTracerProvider().Tracer(""), metricnoop.NewMeterProvider().Meter(""))
	require.NoError(t, err)
	svc.newTxnID = func() string { return "TXN-fixed" }
	return svc
}

func inventoryReserved(orderID int64, ok bool) events.InventoryReserved {
	reserved := events.InventoryReserved{
		OrderID:               orderID,
		UserID:                int64(gofakeit.IntRange(1, 1000)),
		ReservationSuccessful: ok,
		Message:               events.InventoryReservedMessage,
		ReservedAt:            time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		TotalAmount:           decimal.RequireFromString("49.90"),
	}
	if ok {
		reserved.ReservationID = "res-" + strconv.FormatInt(orderID, 10)
	} else {
		reserved.Message = events.InventoryFailedMessagePrefix + "insufficient stock for product ID: 9"
	}
	return reserved
}

func TestService_ProcessInventoryReserved_Success(t *testing.T) {
	ctx := t.Context()
	repo := NewMemoryRepository()
	gateway := &stubGateway{}
	publisher := &recordingPublisher{}
	svc := newTestService(t, repo, gateway, publisher)

	reserved := inventoryReserved(11, true)
	result, err := svc.ProcessInventoryReserved(ctx, reserved)
	require.NoError(t, err)

	require.NotNil(t, result.Amount)
	require.NotNil(t, result.TransactionID)
	assert.True(t, result.PaymentSuccessful)
	assert.True(t, reserved.TotalAmount.Equal(*result.Amount))
	assert.Equal(t, "TXN-fixed", *result.TransactionID)
	assert.Equal(t, "Payment processed successfully", result.Message)
	assert.Equal(t, reserved.UserID, result.UserID)

	require.Len(t, gateway.calls, 1)
	assert.True(t, reserved.TotalAmount.Equal(gateway.calls[0].Amount))

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "11", publisher.events[0].key)
	assert.Equal(t, events.TypePaymentCompleted, publisher.events[0].eventType)
	assert.Empty(t, cmp.Diff(result, publisher.events[0].event))

	stored, err := repo.GetByOrder(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.Equal(t, "TXN-fixed", stored.TransactionID)
}

func TestService_ProcessInventoryReserved_SkipsFailedReservation(t *testing.T) {
	ctx := t.Context()
	repo := NewMemoryRepository()
	gateway := &stubGateway{}
	publisher := &recordingPublisher{}
	svc := newTestService(t, repo, gateway, publisher)

	reserved := inventoryReserved(12, false)
	result, err := svc.ProcessInventoryReserved(ctx, reserved)
	require.NoError(t, err)

	want := events.PaymentCompleted{
		OrderID:     12,
		UserID:      reserved.UserID,
		Message:     "Payment skipped: Inventory reservation failed: insufficient stock for product ID: 9",
		CompletedAt: reserved.ReservedAt,
	}
	assert.Empty(t, cmp.Diff(want, result))
	assert.Empty(t, gateway.calls)
	require.Len(t, publisher.events, 1)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestService_ProcessInventoryReserved_Declined(t *testing.T) {
	ctx := t.Context()
	repo := NewMemoryRepository()
	publisher := &recordingPublisher{}
	svc := newTestService(t, repo, &stubGateway{err: ErrDeclined}, publisher)

	reserved := inventoryReserved(13, true)
	result, err := svc.ProcessInventoryReserved(ctx, reserved)
	require.NoError(t, err)

	assert.False(t, result.PaymentSuccessful)
	assert.Nil(t, result.Amount)
	assert.Nil(t, result.TransactionID)
	assert.Equal(t, "Payment failed: payment declined", result.Message)
	assert.Equal(t, reserved.ReservedAt, result.CompletedAt)
	assert.Equal(t, "res-13", result.ReservationID)
	require.Len(t, publisher.events, 1)

	stored, err := repo.GetByOrder(ctx, 13)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, result.Message, stored.Message)
	assert.Equal(t, "res-13", stored.ReservationID)
}

func TestService_ProcessInventoryReserved_DuplicateDoesNotChargeTwice(t *testing.T) {
	ctx := t.Context()
	repo := NewMemoryRepository()
	gateway := &stubGateway{}
	publisher := &recordingPublisher{}
	svc := newTestService(t, repo, gateway, publisher)

	reserved := inventoryReserved(14, true)
	first, err := svc.ProcessInventoryReserved(ctx, reserved)
	require.NoError(t, err)

	svc.newTxnID = func() string { return "TXN-second" }
	second, err := svc.ProcessInventoryReserved(ctx, reserved)
	require.NoError(t, err)

	assert.Len(t, gateway.calls, 1)
	assert.Empty(t, cmp.Diff(first, second))
	assert.Len(t, publisher.events, 2)

	completed, err := repo.ListByStatus(ctx, StatusCompleted)
	require.NoError(t, err)
	assert.Len(t, completed, 1)
}

func TestService_ProcessInventoryReserved_RedeliveredDeclineIsNotCharged(t *testing.T) {
	ctx := t.Context()
	repo := NewMemoryRepository()
	gateway := &stubGateway{err: ErrDeclined}
	publisher := &recordingPublisher{}
	svc := newTestService(t, repo, gateway, publisher)

	reserved := inventoryReserved(15, true)
	first, err := svc.ProcessInventoryReserved(ctx, reserved)
	require.NoError(t, err)

	gateway.err = nil
	second, err := svc.ProcessInventoryReserved(ctx, reserved)
	require.NoError(t, err)

	assert.False(t, second.PaymentSuccessful)
	assert.Empty(t, cmp.Diff(first, second))
	assert.Len(t, gateway.calls, 1)
	assert.Len(t, publisher.events, 2)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestService_ProcessInventoryReserved_NewReservationAfterDeclineIsCharged(t *testing.T) {
	ctx := t.Context()
	repo := NewMemoryRepository()
	gateway := &stubGateway{err: ErrDeclined}
	svc := newTestService(t, repo, gateway, &recordingPublisher{})

	reserved := inventoryReserved(18, true)
	_, err := svc.ProcessInventoryReserved(ctx, reserved)
	require.NoError(t, err)

	gateway.err = nil
	reserved.ReservationID = "res-18-second"
	result, err := svc.ProcessInventoryReserved(ctx, reserved)
	require.NoError(t, err)

	assert.True(t, result.PaymentSuccessful)
	assert.Equal(t, "res-18-second", result.ReservationID)
	assert.Len(t, gateway.calls, 2)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestService_ProcessInventoryReserved_OperationalErrors(t *testing.T) {
	t.Run("publish failure is returned", func(t *testing.T) {
		publishErr := errors.New("broker down")
		svc := newTestService(t, NewMemoryRepository(), &stubGateway{}, &recordingPublisher{err: publishErr})

		_, err := svc.ProcessInventoryReserved(t.Context(), inventoryReserved(16, true))
		require.ErrorIs(t, err, publishErr)
	})

	t.Run("store outage stops before charging", func(t *testing.T) {
		storeErr := errors.New("connection refused")
		gateway := &stubGateway{}
		publisher := &recordingPublisher{}
		svc := newTestService(t, brokenRepository{MemoryRepository: NewMemoryRepository(), err: storeErr}, gateway, publisher)

		_, err := svc.ProcessInventoryReserved(t.Context(), inventoryReserved(17, true))
		require.ErrorIs(t, err, storeErr)
		assert.Empty(t, gateway.calls)
		assert.Empty(t, publisher.events)
	})
}

func TestMessageHandler_HandleInventoryReserved(t *testing.T) {
	ctx := t.Context()
	publisher := &recordingPublisher{}
	handler := NewMessageHandler(newTestService(t, NewMemoryRepository(), &stubGateway{}, publisher), zaptest.NewLogger(t))

	require.NoError(t, handler.HandleInventoryReserved(ctx, kafkago.Message{Value: []byte("not json")}))
	assert.Empty(t, publisher.events)

	raw, err := json.Marshal(inventoryReserved(21, true))
	require.NoError(t, err)
	require.NoError(t, handler.HandleInventoryReserved(ctx, kafkago.Message{Key: []byte("21"), Value: raw}))

	require.Len(t, publisher.events, 1)
	assert.True(t, publisher.events[0].event.PaymentSuccessful)
	assert.True(t, decimal.RequireFromString("49.90").Equal(*publisher.events[0].event.Amount))
}
