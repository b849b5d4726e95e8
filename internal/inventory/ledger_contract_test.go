package inventory

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runLedgerContract exercises behaviour every Ledger must share.
// newLedger must return an empty ledger.
func runLedgerContract(t *testing.T, newLedger func(t *testing.T) Ledger) {
	t.Run("create and get", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := t.Context()

		created, err := ledger.Create(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), created.ProductID)
		assert.Equal(t, int32(10), created.Available)
		assert.Zero(t, created.Reserved)

		_, err = ledger.Create(ctx, 1, 5)
		assert.ErrorIs(t, err, ErrAlreadyExists)

		got, err := ledger.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int32(10), got.Available)

		_, err = ledger.Get(ctx, 404)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list and set available", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := t.Context()

		for _, id := range []int64{3, 1, 2} {
			_, err := ledger.Create(ctx, id, int32(id*10))
			require.NoError(t, err)
		}

		records, err := ledger.List(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, []int64{1, 2, 3}, []int64{records[0].ProductID, records[1].ProductID, records[2].ProductID})

		updated, err := ledger.SetAvailable(ctx, 2, 99)
		require.NoError(t, err)
		assert.Equal(t, int32(99), updated.Available)

		_, err = ledger.SetAvailable(ctx, 404, 1)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = ledger.SetAvailable(ctx, 2, -1)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	})

	t.Run("check availability", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := t.Context()
		_, err := ledger.Create(ctx, 1, 2)
		require.NoError(t, err)

		ok, err := ledger.CheckAvailability(ctx, 1, 2)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = ledger.CheckAvailability(ctx, 1, 3)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = ledger.CheckAvailability(ctx, 404, 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("reserve and release conserve stock", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := t.Context()
		_, err := ledger.Create(ctx, 1, 10)
		require.NoError(t, err)

		require.NoError(t, ledger.Reserve(ctx, 1, 4))
		record, err := ledger.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int32(6), record.Available)
		assert.Equal(t, int32(4), record.Reserved)

		err = ledger.Reserve(ctx, 1, 7)
		require.ErrorIs(t, err, ErrInsufficientStock)
		assert.EqualError(t, err, "insufficient stock for product ID: 1")

		require.NoError(t, ledger.Release(ctx, 1, 4))
		record, err = ledger.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int32(10), record.Available)
		assert.Zero(t, record.Reserved)

		assert.ErrorIs(t, ledger.Release(ctx, 1, 1), ErrInvalidQuantity)
		assert.ErrorIs(t, ledger.Reserve(ctx, 1, 0), ErrInvalidQuantity)
		assert.ErrorIs(t, ledger.Reserve(ctx, 404, 1), ErrNotFound)
	})

	t.Run("reserve order is all or nothing", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := t.Context()
		_, err := ledger.Create(ctx, 1, 5)
		require.NoError(t, err)
		_, err = ledger.Create(ctx, 2, 1)
		require.NoError(t, err)

		err = ledger.ReserveOrder(ctx, 100, "a1", []Line{{ProductID: 1, Quantity: 3}, {ProductID: 2, Quantity: 2}})
		require.ErrorIs(t, err, ErrInsufficientStock)

		first, err := ledger.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int32(5), first.Available, "first line must be rolled back")
		assert.Zero(t, first.Reserved)

		reservations, err := ledger.Reservations(ctx, 100)
		require.NoError(t, err)
		assert.Empty(t, reservations)

		err = ledger.ReserveOrder(ctx, 100, "a2", []Line{{ProductID: 1, Quantity: 3}, {ProductID: 404, Quantity: 1}})
		require.ErrorIs(t, err, ErrNotFound)
		first, err = ledger.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int32(5), first.Available)
	})

	t.Run("reserve order merges duplicate products", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := t.Context()
		_, err := ledger.Create(ctx, 1, 5)
		require.NoError(t, err)

		err = ledger.ReserveOrder(ctx, 7, "a1", []Line{{ProductID: 1, Quantity: 3}, {ProductID: 1, Quantity: 3}})
		require.ErrorIs(t, err, ErrInsufficientStock)

		require.NoError(t, ledger.ReserveOrder(ctx, 7, "a2", []Line{{ProductID: 1, Quantity: 2}, {ProductID: 1, Quantity: 3}}))
		record, err := ledger.Get(ctx, 1)
		require.NoError(t, err)
		assert.Zero(t, record.Available)
		assert.Equal(t, int32(5), record.Reserved)
	})

	t.Run("release order restores stock once", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := t.Context()
		_, err := ledger.Create(ctx, 1, 10)
		require.NoError(t, err)
		_, err = ledger.Create(ctx, 2, 10)
		require.NoError(t, err)

		require.NoError(t, ledger.ReserveOrder(ctx, 9, "a1", []Line{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 3}}))

		reservations, err := ledger.Reservations(ctx, 9)
		require.NoError(t, err)
		require.Len(t, reservations, 2)
		for _, r := range reservations {
			assert.Equal(t, ReservationReserved, r.Status)
			assert.Equal(t, int64(9), r.OrderID)
			assert.Equal(t, "a1", r.AttemptID)
		}

		released, err := ledger.ReleaseOrder(ctx, 9, "a1")
		require.NoError(t, err)
		assert.Equal(t, 2, released)

		released, err = ledger.ReleaseOrder(ctx, 9, "a1")
		require.NoError(t, err)
		assert.Zero(t, released)

		for _, id := range []int64{1, 2} {
			record, err := ledger.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, int32(10), record.Available)
			assert.Zero(t, record.Reserved)
		}

		released, err = ledger.ReleaseOrder(ctx, 12345, "a1")
		require.NoError(t, err)
		assert.Zero(t, released)
	})

	t.Run("release order leaves other attempts reserved", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := t.Context()
		_, err := ledger.Create(ctx, 1, 10)
		require.NoError(t, err)

		require.NoError(t, ledger.ReserveOrder(ctx, 9, "first", []Line{{ProductID: 1, Quantity: 2}}))
		require.NoError(t, ledger.ReserveOrder(ctx, 9, "second", []Line{{ProductID: 1, Quantity: 3}}))

		released, err := ledger.ReleaseOrder(ctx, 9, "second")
		require.NoError(t, err)
		assert.Equal(t, 1, released)

		released, err = ledger.ReleaseOrder(ctx, 9, "unknown")
		require.NoError(t, err)
		assert.Zero(t, released)

		record, err := ledger.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int32(8), record.Available)
		assert.Equal(t, int32(2), record.Reserved)
	})

	t.Run("reserve order rejects merged quantity overflow", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := t.Context()
		_, err := ledger.Create(ctx, 1, 10)
		require.NoError(t, err)

		err = ledger.ReserveOrder(ctx, 42, "a1", []Line{{ProductID: 1, Quantity: math.MaxInt32}, {ProductID: 1, Quantity: 1}})
		require.ErrorIs(t, err, ErrInvalidQuantity)

		record, err := ledger.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int32(10), record.Available)
		assert.Zero(t, record.Reserved)

		reservations, err := ledger.Reservations(ctx, 42)
		require.NoError(t, err)
		assert.Empty(t, reservations)
	})

	t.Run("concurrent reservations never oversell", func(t *testing.T) {
		ledger := newLedger(t)
		ctx := t.Context()
		_, err := ledger.Create(ctx, 1, 100)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var succeeded atomic.Int32
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(orderID int64) {
				defer wg.Done()
				if err := ledger.ReserveOrder(ctx, orderID, "a1", []Line{{ProductID: 1, Quantity: 20}}); err == nil {
					succeeded.Add(1)
				} else {
					assert.ErrorIs(t, err, ErrInsufficientStock)
				}
			}(int64(i + 1))
		}
		wg.Wait()

		assert.Equal(t, int32(5), succeeded.Load())
		record, err := ledger.Get(ctx, 1)
		require.NoError(t, err)
		assert.Zero(t, record.Available)
		assert.Equal(t, int32(100), record.Reserved)
	})
}
