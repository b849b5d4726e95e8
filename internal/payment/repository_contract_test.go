package payment

import (
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakePayment(orderID int64, status Status) Payment {
	return Payment{
		OrderID:       orderID,
		UserID:        int64(gofakeit.IntRange(1, 1000)),
		Amount:        decimal.NewFromFloat(gofakeit.Price(1, 500)).Round(2),
		Status:        status,
		TransactionID: "TXN-" + gofakeit.UUID(),
		ReservationID: gofakeit.UUID(),
		Message:       gofakeit.Sentence(4),
	}
}

// runRepositoryContract exercises behaviour every Repository must share.
// newRepo must return an empty repository.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Run("save and get", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()

		want := fakePayment(7, StatusCompleted)
		saved, err := repo.Save(ctx, want)
		require.NoError(t, err)
		assert.NotZero(t, saved.ID)
		assert.False(t, saved.CreatedAt.IsZero())
		assert.True(t, want.Amount.Equal(saved.Amount))

		got, err := repo.Get(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, want.TransactionID, got.TransactionID)
		assert.Equal(t, want.ReservationID, got.ReservationID)
		assert.Equal(t, StatusCompleted, got.Status)

		_, err = repo.Get(ctx, saved.ID+1000)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("one completed payment per order", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()

		_, err := repo.Save(ctx, fakePayment(1, StatusFailed))
		require.NoError(t, err)
		_, err = repo.Save(ctx, fakePayment(1, StatusFailed))
		require.NoError(t, err)
		_, err = repo.Save(ctx, fakePayment(1, StatusCompleted))
		require.NoError(t, err)

		_, err = repo.Save(ctx, fakePayment(1, StatusCompleted))
		assert.ErrorIs(t, err, ErrDuplicatePayment)
	})

	t.Run("get by order prefers the completed payment", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()

		_, err := repo.GetByOrder(ctx, 3)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = repo.Save(ctx, fakePayment(3, StatusFailed))
		require.NoError(t, err)
		latest, err := repo.Save(ctx, fakePayment(3, StatusFailed))
		require.NoError(t, err)

		got, err := repo.GetByOrder(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, latest.ID, got.ID)

		paid, err := repo.Save(ctx, fakePayment(3, StatusCompleted))
		require.NoError(t, err)
		_, err = repo.Save(ctx, fakePayment(3, StatusFailed))
		require.NoError(t, err)

		got, err = repo.GetByOrder(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, paid.ID, got.ID)
	})

	t.Run("list and filter", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()

		a := fakePayment(1, StatusCompleted)
		a.UserID = 10
		b := fakePayment(2, StatusFailed)
		b.UserID = 10
		c := fakePayment(3, StatusCompleted)
		c.UserID = 20
		for _, p := range []Payment{a, b, c} {
			_, err := repo.Save(ctx, p)
			require.NoError(t, err)
		}

		all, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		byUser, err := repo.ListByUser(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, orderIDs(byUser))

		byStatus, err := repo.ListByStatus(ctx, StatusCompleted)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3}, orderIDs(byStatus))

		none, err := repo.ListByUser(ctx, 99)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func orderIDs(payments []Payment) []int64 {
	ids := make([]int64, 0, len(payments))
	for _, p := range payments {
		ids = append(ids, p.OrderID)
	}
	return ids
}
