package payment

import (
	"context"
	"errors"
	"fmt"

	"ordersaga/internal/events"
	"ordersaga/internal/platform/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// EventPublisher publishes a JSON event keyed by order id.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key, eventType string, event any) error
}

// Service is the payment participant of the order saga.
type Service struct {
	repo      Repository
	gateway   Gateway
	publisher EventPublisher
	logger    observability.Logger
	tracer    observability.Tracer
	attempts  metric.Int64Counter
	newTxnID  func() string
}

func NewService(repo Repository, gateway Gateway, publisher EventPublisher, logger observability.Logger, tracer observability.Tracer, meter metric.Meter) (*Service, error) {
	attempts, err := meter.Int64Counter("payment.attempts",
		metric.WithDescription("Payment step outcomes"))
	if err != nil {
		return nil, fmt.Errorf("meter.Int64Counter: %w", err)
	}

	return &Service{
		repo:      repo,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
		tracer:    tracer,
		attempts:  attempts,
		newTxnID:  func() string { return "TXN-" + uuid.NewString() },
	}, nil
}

// ProcessInventoryReserved runs the payment step and publishes exactly one
// PaymentCompleted. Charge failures travel in the event; only a failed
// publish, a store outage or a cancelled context is returned.
func (s *Service) ProcessInventoryReserved(ctx context.Context, reserved events.InventoryReserved) (events.PaymentCompleted, error) {
	ctx, span := s.tracer.Start(ctx, "payment.process")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("order.id", reserved.OrderID),
		attribute.Bool("inventory.reserved", reserved.ReservationSuccessful),
	)

	result, err := s.pay(ctx, reserved)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return events.PaymentCompleted{}, err
	}

	if result.PaymentSuccessful {
		span.SetStatus(codes.Ok, result.Message)
	}

	if err := s.publisher.PublishJSON(ctx, events.Key(result.OrderID), events.TypePaymentCompleted, result); err != nil {
		span.RecordError(err)
		return events.PaymentCompleted{}, fmt.Errorf("publish PaymentCompleted: %w", err)
	}
	return result, nil
}

func (s *Service) pay(ctx context.Context, reserved events.InventoryReserved) (events.PaymentCompleted, error) {
	if !reserved.ReservationSuccessful {
		s.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "skipped")))
		s.logger.Warn("⏭️ Payment skipped, inventory not reserved",
			zap.Int64("order_id", reserved.OrderID),
			zap.String("reason", reserved.Message),
		)
		return failed(reserved, events.PaymentSkippedMessagePrefix+reserved.Message), nil
	}

	existing, err := s.repo.GetByOrder(ctx, reserved.OrderID)
	switch {
	case err == nil && existing.Status == StatusCompleted:
		s.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "duplicate")))
		s.logger.Info("🔁 Order already paid, re-announcing payment",
			zap.Int64("order_id", reserved.OrderID),
			zap.String("transaction_id", existing.TransactionID),
		)
		return completed(existing), nil
	case err == nil && reserved.ReservationID != "" && existing.ReservationID == reserved.ReservationID:
		// a declined reservation is never charged again
		s.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "duplicate")))
		s.logger.Info("🔁 Reservation already declined, re-announcing failure",
			zap.Int64("order_id", reserved.OrderID),
			zap.String("reservation_id", reserved.ReservationID),
		)
		return failed(reserved, existing.Message), nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return events.PaymentCompleted{}, fmt.Errorf("repo.GetByOrder: %w", err)
	}

	req := ChargeRequest{
		OrderID:       reserved.OrderID,
		UserID:        reserved.UserID,
		Amount:        reserved.TotalAmount,
		TransactionID: s.newTxnID(),
	}

	s.logger.Info("💳 Charging order",
		zap.Int64("order_id", req.OrderID),
		zap.String("amount", req.Amount.String()),
		zap.String("transaction_id", req.TransactionID),
	)

	chargeErr := s.gateway.Charge(ctx, req)
	if chargeErr != nil && ctx.Err() != nil {
		return events.PaymentCompleted{}, ctx.Err()
	}

	record := Payment{
		OrderID:       req.OrderID,
		UserID:        req.UserID,
		Amount:        req.Amount,
		Status:        StatusCompleted,
		TransactionID: req.TransactionID,
		ReservationID: reserved.ReservationID,
		Message:       events.PaymentProcessedMessage,
	}
	if chargeErr != nil {
		record.Status = StatusFailed
		record.Message = events.PaymentFailedMessagePrefix + chargeErr.Error()
	}

	saved, err := s.repo.Save(ctx, record)
	switch {
	case errors.Is(err, ErrDuplicatePayment):
		// a concurrent delivery of the same event won the race
		winner, getErr := s.repo.GetByOrder(ctx, reserved.OrderID)
		if getErr != nil {
			return events.PaymentCompleted{}, fmt.Errorf("repo.GetByOrder: %w", getErr)
		}
		return completed(winner), nil
	case err != nil && chargeErr == nil:
		return events.PaymentCompleted{}, fmt.Errorf("repo.Save: %w", err)
	case err != nil:
		s.logger.Error("❌ Failed to record declined payment", zap.Int64("order_id", req.OrderID), zap.Error(err))
	}

	if chargeErr != nil {
		s.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		s.logger.Warn("❌ Payment failed",
			zap.Int64("order_id", req.OrderID),
			zap.Error(chargeErr),
		)
		return failed(reserved, record.Message), nil
	}

	s.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "completed")))
	s.logger.Info("✅ Payment completed",
		zap.Int64("order_id", saved.OrderID),
		zap.String("transaction_id", saved.TransactionID),
	)
	return completed(saved), nil
}

func completed(p Payment) events.PaymentCompleted {
	amount := p.Amount
	txnID := p.TransactionID
	return events.PaymentCompleted{
		OrderID:           p.OrderID,
		UserID:            p.UserID,
		Amount:            &amount,
		PaymentSuccessful: true,
		TransactionID:     &txnID,
		Message:           p.Message,
		CompletedAt:       p.CreatedAt,
		ReservationID:     p.ReservationID,
	}
}

func failed(reserved events.InventoryReserved, message string) events.PaymentCompleted {
	return events.PaymentCompleted{
		OrderID:       reserved.OrderID,
		UserID:        reserved.UserID,
		Message:       message,
		CompletedAt:   reserved.ReservedAt,
		ReservationID: reserved.ReservationID,
	}
}

func (s *Service) Get(ctx context.Context, id int64) (Payment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByOrder(ctx context.Context, orderID int64) (Payment, error) {
	return s.repo.GetByOrder(ctx, orderID)
}

func (s *Service) List(ctx context.Context) ([]Payment, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Payment, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) ListByStatus(ctx context.Context, status Status) ([]Payment, error) {
	return s.repo.ListByStatus(ctx, status)
}
