package inventory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/samber/lo"
)

var (
	ErrNotFound          = errors.New("inventory not found")
	ErrAlreadyExists     = errors.New("inventory already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("invalid quantity")
)

// Record tracks stock for one product. Available+Reserved is conserved by
// paired Reserve/Release calls and neither side ever goes negative.
type Record struct {
	ProductID int64     `json:"productId"`
	Available int32     `json:"availableQuantity"`
	Reserved  int32     `json:"reservedQuantity"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "RESERVED"
	ReservationReleased ReservationStatus = "RELEASED"
)

// Reservation is one product's share of an order reservation. AttemptID
// groups the rows written by one ReserveOrder call.
type Reservation struct {
	ID        int64             `json:"id"`
	OrderID   int64             `json:"orderId"`
	AttemptID string            `json:"attemptId"`
	ProductID int64             `json:"productId"`
	Quantity  int32             `json:"quantity"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type Line struct {
	ProductID int64
	Quantity  int32
}

// Ledger is the stock book. Implementations serialise mutations per product.
type Ledger interface {
	Create(ctx context.Context, productID int64, available int32) (Record, error)
	Get(ctx context.Context, productID int64) (Record, error)
	List(ctx context.Context) ([]Record, error)
	SetAvailable(ctx context.Context, productID int64, available int32) (Record, error)
	CheckAvailability(ctx context.Context, productID int64, quantity int32) (bool, error)
	Reserve(ctx context.Context, productID int64, quantity int32) error
	Release(ctx context.Context, productID int64, quantity int32) error

	// ReserveOrder reserves every line or none of them, recording the rows
	// under attemptID.
	ReserveOrder(ctx context.Context, orderID int64, attemptID string, lines []Line) error
	// ReleaseOrder returns the stock of the outstanding reservations made by
	// one attempt of orderID and reports how many were released. Other
	// attempts of the same order are untouched. Repeated calls release nothing.
	ReleaseOrder(ctx context.Context, orderID int64, attemptID string) (int, error)
	Reservations(ctx context.Context, orderID int64) ([]Reservation, error)
}

func insufficientStock(productID int64) error {
	return fmt.Errorf("%w for product ID: %d", ErrInsufficientStock, productID)
}

func notFound(productID int64) error {
	return fmt.Errorf("%w for product ID: %d", ErrNotFound, productID)
}

func invalidQuantity(quantity int32) error {
	return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
}

// mergeLines sums quantities per product and orders the result by product id,
// giving a fixed lock order for multi-product reservations.
func mergeLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no lines to reserve", ErrInvalidQuantity)
	}

	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, invalidQuantity(line.Quantity)
		}
	}

	totals := lo.MapValues(lo.GroupBy(lines, func(l Line) int64 { return l.ProductID }),
		func(group []Line, _ int64) int64 {
			return lo.SumBy(group, func(l Line) int64 { return int64(l.Quantity) })
		})

	for productID, total := range totals {
		if total > math.MaxInt32 {
			return nil, fmt.Errorf("%w: total %d for product ID: %d", ErrInvalidQuantity, total, productID)
		}
	}

	merged := lo.MapToSlice(totals, func(productID int64, quantity int64) Line {
		return Line{ProductID: productID, Quantity: int32(quantity)}
	})
	slices.SortFunc(merged, func(a, b Line) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return merged, nil
}
