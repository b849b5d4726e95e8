package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("order not found")
	ErrConflict            = errors.New("order status conflict")
	ErrInvalidOrder        = errors.New("invalid order")
	ErrInvalidStatus       = errors.New("invalid order status")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrAvailabilityUnknown = errors.New("stock availability unknown")
)

type Status string

const (
	StatusAwaitingApproval Status = "AWAITING_APPROVAL"
	StatusPending          Status = "PENDING"
	StatusCompleted        Status = "COMPLETED"
	StatusRejected         Status = "REJECTED"
	StatusFailed           Status = "FAILED"
	StatusCancelled        Status = "CANCELLED"
)

// transitions lists the only edges of the order lifecycle.
var transitions = map[Status][]Status{
	StatusAwaitingApproval: {StatusPending, StatusRejected, StatusCancelled},
	StatusPending:          {StatusCompleted, StatusFailed, StatusCancelled},
}

func ParseStatus(s string) (Status, error) {
	status := Status(s)
	switch status {
	case StatusAwaitingApproval, StatusPending, StatusCompleted, StatusRejected, StatusFailed, StatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

func (s Status) CanTransitionTo(next Status) bool {
	return lo.Contains(transitions[s], next)
}

type Item struct {
	ProductID int64           `json:"productId"`
	Quantity  int32           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type Order struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"userId"`
	Items         []Item          `json:"orderItems"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Status        Status          `json:"status"`
	FailureReason string          `json:"failureReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// New validates items and returns an unsaved order awaiting approval.
func New(userID int64, items []Item) (Order, error) {
	if len(items) == 0 {
		return Order{}, fmt.Errorf("%w: no items", ErrInvalidOrder)
	}
	for i, item := range items {
		if item.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: item %d quantity must be positive, got %d", ErrInvalidOrder, i, item.Quantity)
		}
		if item.Price.IsNegative() {
			return Order{}, fmt.Errorf("%w: item %d price must not be negative, got %s", ErrInvalidOrder, i, item.Price)
		}
	}

	perProduct := lo.MapValues(lo.GroupBy(items, func(item Item) int64 { return item.ProductID }),
		func(group []Item, _ int64) int64 {
			return lo.SumBy(group, func(item Item) int64 { return int64(item.Quantity) })
		})
	for productID, quantity := range perProduct {
		if quantity > math.MaxInt32 {
			return Order{}, fmt.Errorf("%w: product %d quantity %d exceeds %d", ErrInvalidOrder, productID, quantity, math.MaxInt32)
		}
	}

	total := lo.Reduce(items, func(sum decimal.Decimal, item Item, _ int) decimal.Decimal {
		return sum.Add(item.Price.Mul(decimal.NewFromInt32(item.Quantity)))
	}, decimal.Zero)

	return Order{
		UserID:      userID,
		Items:       append([]Item(nil), items...),
		TotalAmount: total,
		Status:      StatusAwaitingApproval,
	}, nil
}

// Repository persists orders. UpdateStatus is a compare-and-set: it fails
// with ErrConflict unless the stored status equals from.
type Repository interface {
	Create(ctx context.Context, o Order) (Order, error)
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context) ([]Order, error)
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	ListByStatus(ctx context.Context, status Status) ([]Order, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status, reason string) (Order, error)
}

func conflict(id int64, status Status, op string) error {
	return fmt.Errorf("%w: cannot %s order %d in status %s", ErrConflict, op, id, status)
}
