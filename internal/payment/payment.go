package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound         = errors.New("payment not found")
	ErrDuplicatePayment = errors.New("order already has a completed payment")
	ErrInvalidStatus    = errors.New("invalid payment status")
)

type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

var validStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
}

func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if _, ok := validStatuses[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// Payment is one charge attempt. Records are never updated; a retry writes a
// new record with a new transaction id. ReservationID is the inventory
// reservation attempt the charge was made for.
type Payment struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"orderId"`
	UserID        int64           `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	Status        Status          `json:"status"`
	TransactionID string          `json:"transactionId"`
	ReservationID string          `json:"reservationId,omitempty"`
	Message       string          `json:"message"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Repository persists payments. Save rejects a second COMPLETED payment for
// the same order with ErrDuplicatePayment.
type Repository interface {
	Save(ctx context.Context, p Payment) (Payment, error)
	Get(ctx context.Context, id int64) (Payment, error)
	// GetByOrder returns the completed payment of the order, or its latest attempt.
	GetByOrder(ctx context.Context, orderID int64) (Payment, error)
	List(ctx context.Context) ([]Payment, error)
	ListByUser(ctx context.Context, userID int64) ([]Payment, error)
	ListByStatus(ctx context.Context, status Status) ([]Payment, error)
}
