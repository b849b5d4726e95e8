// Package events defines the payloads exchanged between saga participants.
// Every event is keyed by the decimal order id so all events of one order
// land on the same partition.
package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeOrderCreated      = "OrderCreated"
	TypeInventoryReserved = "InventoryReserved"
	TypePaymentCompleted  = "PaymentCompleted"
)

const (
	InventoryReservedMessage     = "Inventory reserved successfully"
	InventoryFailedMessagePrefix = "Inventory reservation failed: "
	PaymentProcessedMessage      = "Payment processed successfully"
	PaymentSkippedMessagePrefix  = "Payment skipped: "
	PaymentFailedMessagePrefix   = "Payment failed: "
)

type OrderItem struct {
	ProductID int64           `json:"productId"`
	Quantity  int32           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderCreated struct {
	OrderID     int64           `json:"orderId"`
	UserID      int64           `json:"userId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	OrderItems  []OrderItem     `json:"orderItems"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// InventoryReserved reports the outcome of reserving every line of an order.
// TotalAmount carries the order total forward to the payment step.
// ReservationID names the reservation attempt and is empty when nothing was
// reserved.
type InventoryReserved struct {
	OrderID               int64           `json:"orderId"`
	UserID                int64           `json:"userId"`
	ReservationSuccessful bool            `json:"reservationSuccessful"`
	Message               string          `json:"message"`
	ReservedAt            time.Time       `json:"reservedAt"`
	TotalAmount           decimal.Decimal `json:"totalAmount"`
	ReservationID         string          `json:"reservationId,omitempty"`
}

// PaymentCompleted reports the outcome of the payment step. Amount and
// TransactionID are nil when no charge was attempted. ReservationID echoes
// the reservation attempt the payment was made for; it is empty when payment
// was skipped because nothing was reserved.
type PaymentCompleted struct {
	OrderID           int64            `json:"orderId"`
	UserID            int64            `json:"userId"`
	Amount            *decimal.Decimal `json:"amount"`
	PaymentSuccessful bool             `json:"paymentSuccessful"`
	TransactionID     *string          `json:"transactionId"`
	Message           string           `json:"message"`
	CompletedAt       time.Time        `json:"completedAt"`
	ReservationID     string           `json:"reservationId,omitempty"`
}

// Key returns the partition key for an order.
func Key(orderID int64) string {
	return strconv.FormatInt(orderID, 10)
}

// Decode unmarshals a message value into T.
func Decode[T any](value []byte) (T, error) {
	var event T
	if err := json.Unmarshal(value, &event); err != nil {
		return event, fmt.Errorf("json.Unmarshal %T: %w", event, err)
	}
	return event, nil
}
