package payment

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
)

var ErrDeclined = errors.New("payment declined")

type ChargeRequest struct {
	OrderID       int64
	UserID        int64
	Amount        decimal.Decimal
	TransactionID string
}

// Gateway charges a customer. A nil error means the money was captured.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) error
}

// SimulatedGateway approves charges after a fixed latency, declining a
// configurable fraction of them.
type SimulatedGateway struct {
	declineRate float64
	latency     time.Duration
	roll        func() float64
}

func NewSimulatedGateway(declineRate float64, latency time.Duration) *SimulatedGateway {
	return &SimulatedGateway{
		declineRate: declineRate,
		latency:     latency,
		roll:        rand.Float64,
	}
}

func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) error {
	if req.Amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrDeclined, req.Amount)
	}

	if g.latency > 0 {
		timer := time.NewTimer(g.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if g.declineRate > 0 && g.roll() < g.declineRate {
		return fmt.Errorf("%w by issuer", ErrDeclined)
	}
	return nil
}
