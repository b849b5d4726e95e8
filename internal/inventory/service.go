package inventory

import (
	"context"
	"fmt"
	"time"

	"ordersaga/internal/events"
	"ordersaga/internal/platform/observability"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// EventPublisher publishes a JSON event keyed by order id.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key, eventType string, event any) error
}

// Service is the inventory participant of the order saga.
type Service struct {
	ledger       Ledger
	publisher    EventPublisher
	logger       observability.Logger
	tracer       observability.Tracer
	reservations metric.Int64Counter
	releases     metric.Int64Counter
	now          func() time.Time
	newAttemptID func() string
}

func NewService(ledger Ledger, publisher EventPublisher, logger observability.Logger, tracer observability.Tracer, meter metric.Meter) (*Service, error) {
	reservations, err := meter.Int64Counter("inventory.reservations",
		metric.WithDescription("Order reservation attempts by outcome"))
	if err != nil {
		return nil, fmt.Errorf("meter.Int64Counter: %w", err)
	}
	releases, err := meter.Int64Counter("inventory.releases",
		metric.WithDescription("Reservation lines released by compensation"))
	if err != nil {
		return nil, fmt.Errorf("meter.Int64Counter: %w", err)
	}

	return &Service{
		ledger:       ledger,
		publisher:    publisher,
		logger:       logger,
		tracer:       tracer,
		reservations: reservations,
		releases:     releases,
		now:          time.Now,
		newAttemptID: uuid.NewString,
	}, nil
}

// ProcessOrderCreated reserves every line of the order and publishes exactly
// one InventoryReserved event. Reservation failures become failure events;
// only a failed publish or a cancelled context is returned as an error.
func (s *Service) ProcessOrderCreated(ctx context.Context, order events.OrderCreated) (events.InventoryReserved, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.reserve_order")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order.id", order.OrderID),
		attribute.Int("order.lines", len(order.OrderItems)),
	)

	s.logger.Info("🔍 Reserving inventory for order", zap.Int64("order_id", order.OrderID))

	lines := lo.Map(order.OrderItems, func(item events.OrderItem, _ int) Line {
		return Line{ProductID: item.ProductID, Quantity: item.Quantity}
	})

	result := events.InventoryReserved{
		OrderID:     order.OrderID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
	}

	attemptID := s.newAttemptID()
	err := s.ledger.ReserveOrder(ctx, order.OrderID, attemptID, lines)
	if err != nil && ctx.Err() != nil {
		return events.InventoryReserved{}, ctx.Err()
	}

	result.ReservedAt = s.now().UTC()
	if err != nil {
		result.Message = events.InventoryFailedMessagePrefix + err.Error()
		span.SetStatus(codes.Error, err.Error())
		s.reservations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		s.logger.Warn("❌ Inventory reservation failed",
			zap.Int64("order_id", order.OrderID),
			zap.Error(err),
		)
	} else {
		result.ReservationSuccessful = true
		result.ReservationID = attemptID
		result.Message = events.InventoryReservedMessage
		span.SetStatus(codes.Ok, "Inventory successfully reserved")
		s.reservations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "reserved")))
		s.logger.Info("✅ Inventory reserved",
			zap.Int64("order_id", order.OrderID),
			zap.String("reservation_id", attemptID),
		)
	}

	if err := s.publisher.PublishJSON(ctx, events.Key(order.OrderID), events.TypeInventoryReserved, result); err != nil {
		span.RecordError(err)
		return events.InventoryReserved{}, fmt.Errorf("publish InventoryReserved: %w", err)
	}

	return result, nil
}

// ProcessPaymentCompleted releases the reservation a failed payment was made
// for. Successful payments keep the stock reserved, and a skipped payment
// names no reservation, so other attempts of the same order are left alone.
func (s *Service) ProcessPaymentCompleted(ctx context.Context, payment events.PaymentCompleted) error {
	if payment.PaymentSuccessful {
		return nil
	}
	if payment.ReservationID == "" {
		s.logger.Info("⏭️ Payment failure holds no reservation, nothing to release",
			zap.Int64("order_id", payment.OrderID),
			zap.String("reason", payment.Message),
		)
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "inventory.release_order")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("order.id", payment.OrderID),
		attribute.String("reservation.id", payment.ReservationID),
	)

	released, err := s.ledger.ReleaseOrder(ctx, payment.OrderID, payment.ReservationID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("ledger.ReleaseOrder: %w", err)
	}

	if released > 0 {
		s.releases.Add(ctx, int64(released))
		s.logger.Info("↩️ Released reservations after failed payment",
			zap.Int64("order_id", payment.OrderID),
			zap.String("reservation_id", payment.ReservationID),
			zap.Int("lines", released),
		)
	}
	return nil
}
