package order

import (
	"context"
	"errors"
	"fmt"

	"ordersaga/internal/events"
	"ordersaga/internal/platform/observability"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// PublishFailedReason is recorded on orders whose OrderCreated event never
// reached the broker.
const PublishFailedReason = "order event could not be published"

// EventPublisher publishes a JSON event keyed by order id.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key, eventType string, event any) error
}

// Service owns the order state machine. It is the only writer of order status.
type Service struct {
	repo        Repository
	stock       StockChecker
	publisher   EventPublisher
	logger      observability.Logger
	tracer      observability.Tracer
	transitions metric.Int64Counter
}

func NewService(repo Repository, stock StockChecker, publisher EventPublisher, logger observability.Logger, tracer observability.Tracer, meter metric.Meter) (*Service, error) {
	transitions, err := meter.Int64Counter("saga.orders.transitions",
		metric.WithDescription("Order status transitions"))
	if err != nil {
		return nil, fmt.Errorf("meter.Int64Counter: %w", err)
	}

	return &Service{
		repo:        repo,
		stock:       stock,
		publisher:   publisher,
		logger:      logger,
		tracer:      tracer,
		transitions: transitions,
	}, nil
}

func (s *Service) Create(ctx context.Context, userID int64, items []Item) (Order, error) {
	o, err := New(userID, items)
	if err != nil {
		return Order{}, err
	}

	created, err := s.repo.Create(ctx, o)
	if err != nil {
		return Order{}, fmt.Errorf("repo.Create: %w", err)
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", string(created.Status))))
	s.logger.Info("🆕 Order created, awaiting approval",
		zap.Int64("order_id", created.ID),
		zap.Int64("user_id", created.UserID),
		zap.String("total_amount", created.TotalAmount.String()),
	)
	return created, nil
}

// Approve checks stock for every line, moves the order to PENDING and
// publishes OrderCreated. An order whose event cannot be published ends FAILED.
func (s *Service) Approve(ctx context.Context, id int64) (Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.approve")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", id))

	o, err := s.approve(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Order{}, err
	}
	span.SetStatus(codes.Ok, "order approved")
	return o, nil
}

func (s *Service) approve(ctx context.Context, id int64) (Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.Status != StatusAwaitingApproval {
		return Order{}, fmt.Errorf("%w: only %s orders can be approved, order %d is %s", ErrConflict, StatusAwaitingApproval, id, o.Status)
	}

	for _, item := range o.Items {
		available, err := s.stock.CheckAvailability(ctx, item.ProductID, item.Quantity)
		if err != nil {
			s.logger.Error("❌ Inventory availability check failed",
				zap.Int64("order_id", id),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err),
			)
			return Order{}, fmt.Errorf("%w for product ID: %d: %v", ErrAvailabilityUnknown, item.ProductID, err)
		}
		if !available {
			return Order{}, fmt.Errorf("%w for product ID: %d", ErrInsufficientStock, item.ProductID)
		}
	}

	pending, err := s.transition(ctx, o, StatusPending, "")
	if err != nil {
		return Order{}, err
	}

	event := events.OrderCreated{
		OrderID:     pending.ID,
		UserID:      pending.UserID,
		TotalAmount: pending.TotalAmount,
		OrderItems: lo.Map(pending.Items, func(item Item, _ int) events.OrderItem {
			return events.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price}
		}),
		CreatedAt: pending.CreatedAt,
	}

	if err := s.publisher.PublishJSON(ctx, events.Key(pending.ID), events.TypeOrderCreated, event); err != nil {
		s.logger.Error("❌ Failed to publish OrderCreated, failing order",
			zap.Int64("order_id", id),
			zap.Error(err),
		)
		// the request context may be what failed the publish
		if _, failErr := s.transition(context.WithoutCancel(ctx), pending, StatusFailed, PublishFailedReason); failErr != nil {
			s.logger.Warn("⚠️ Could not fail order after publish error",
				zap.Int64("order_id", id),
				zap.Error(failErr),
			)
		}
		return Order{}, fmt.Errorf("publish OrderCreated: %w", err)
	}

	s.logger.Info("📤 Order approved and sent to inventory", zap.Int64("order_id", id))
	return pending, nil
}

func (s *Service) Reject(ctx context.Context, id int64) (Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.Status != StatusAwaitingApproval {
		return Order{}, fmt.Errorf("%w: only %s orders can be rejected, order %d is %s", ErrConflict, StatusAwaitingApproval, id, o.Status)
	}
	return s.transition(ctx, o, StatusRejected, "")
}

// Cancel stops a non-terminal order. Events still in flight for it are
// ignored when they arrive.
func (s *Service) Cancel(ctx context.Context, id int64) (Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	switch {
	case o.Status == StatusCompleted:
		return Order{}, fmt.Errorf("%w: cannot cancel completed order %d", ErrConflict, id)
	case o.Status.Terminal():
		return Order{}, conflict(id, o.Status, "cancel")
	}
	return s.transition(ctx, o, StatusCancelled, "")
}

// CompleteOnPaymentSuccess finishes a PENDING order. Orders already in a
// terminal state are left untouched.
func (s *Service) CompleteOnPaymentSuccess(ctx context.Context, id int64) (Order, error) {
	return s.settle(ctx, id, StatusCompleted, "")
}

// FailOnPaymentOrInventoryFailure fails a PENDING order with reason. Orders
// already in a terminal state are left untouched.
func (s *Service) FailOnPaymentOrInventoryFailure(ctx context.Context, id int64, reason string) (Order, error) {
	return s.settle(ctx, id, StatusFailed, reason)
}

func (s *Service) settle(ctx context.Context, id int64, to Status, reason string) (Order, error) {
	for {
		o, err := s.repo.Get(ctx, id)
		if err != nil {
			return Order{}, err
		}

		switch {
		case o.Status.Terminal():
			if o.Status != to {
				s.logger.Info("⚠️ Ignoring saga outcome for finished order",
					zap.Int64("order_id", id),
					zap.String("status", string(o.Status)),
					zap.String("outcome", string(to)),
				)
			}
			return o, nil
		case o.Status == StatusAwaitingApproval:
			return Order{}, conflict(id, o.Status, "move to "+string(to))
		}

		updated, err := s.transition(ctx, o, to, reason)
		if errors.Is(err, ErrConflict) {
			// lost a race with another writer; re-read and decide again
			continue
		}
		return updated, err
	}
}

func (s *Service) transition(ctx context.Context, o Order, to Status, reason string) (Order, error) {
	if !o.Status.CanTransitionTo(to) {
		return Order{}, conflict(o.ID, o.Status, "move to "+string(to))
	}

	updated, err := s.repo.UpdateStatus(ctx, o.ID, o.Status, to, reason)
	if err != nil {
		return Order{}, err
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(o.Status)),
		attribute.String("to", string(to)),
	))
	s.logger.Info("🔄 Order status changed",
		zap.Int64("order_id", o.ID),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
	)
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) ListByStatus(ctx context.Context, status Status) ([]Order, error) {
	return s.repo.ListByStatus(ctx, status)
}
