package order

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{
			ProductID: int64(i + 1),
			Quantity:  int32(gofakeit.IntRange(1, 5)),
			Price:     decimal.NewFromFloat(gofakeit.Price(1, 100)).Round(2),
		}
	}
	return items
}

func fakeOrder(t *testing.T, userID int64) Order {
	t.Helper()
	o, err := New(userID, fakeItems(gofakeit.IntRange(1, 3)))
	require.NoError(t, err)
	return o
}

// runRepositoryContract exercises behaviour every Repository must share.
// newRepo must return an empty repository.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Run("create and get keep items", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()

		want := fakeOrder(t, 4)
		created, err := repo.Create(ctx, want)
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusAwaitingApproval, got.Status)
		assert.True(t, want.TotalAmount.Equal(got.TotalAmount))
		require.Len(t, got.Items, len(want.Items))
		for i := range want.Items {
			assert.Equal(t, want.Items[i].ProductID, got.Items[i].ProductID)
			assert.Equal(t, want.Items[i].Quantity, got.Items[i].Quantity)
			assert.True(t, want.Items[i].Price.Equal(got.Items[i].Price))
		}

		_, err = repo.Get(ctx, created.ID+100)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update status is compare and set", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()

		created, err := repo.Create(ctx, fakeOrder(t, 1))
		require.NoError(t, err)

		pending, err := repo.UpdateStatus(ctx, created.ID, StatusAwaitingApproval, StatusPending, "")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, pending.Status)
		assert.NotEmpty(t, pending.Items)

		_, err = repo.UpdateStatus(ctx, created.ID, StatusAwaitingApproval, StatusRejected, "")
		assert.ErrorIs(t, err, ErrConflict)

		failed, err := repo.UpdateStatus(ctx, created.ID, StatusPending, StatusFailed, "Payment failed: declined")
		require.NoError(t, err)
		assert.Equal(t, "Payment failed: declined", failed.FailureReason)

		got, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, got.Status)
		assert.Equal(t, "Payment failed: declined", got.FailureReason)

		_, err = repo.UpdateStatus(ctx, 404, StatusPending, StatusFailed, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent compare and set has one winner", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()

		created, err := repo.Create(ctx, fakeOrder(t, 1))
		require.NoError(t, err)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for _, to := range []Status{StatusPending, StatusRejected, StatusCancelled, StatusPending, StatusRejected} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.UpdateStatus(ctx, created.ID, StatusAwaitingApproval, to, ""); err == nil {
					wins.Add(1)
				} else {
					assert.ErrorIs(t, err, ErrConflict)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("list and filter", func(t *testing.T) {
		repo := newRepo(t)
		ctx := t.Context()

		var ids []int64
		for _, userID := range []int64{1, 2, 1} {
			o, err := repo.Create(ctx, fakeOrder(t, userID))
			require.NoError(t, err)
			ids = append(ids, o.ID)
		}
		_, err := repo.UpdateStatus(ctx, ids[2], StatusAwaitingApproval, StatusPending, "")
		require.NoError(t, err)

		all, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, ids, orderIDs(all))
		for _, o := range all {
			assert.NotEmpty(t, o.Items)
		}

		byUser, err := repo.ListByUser(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{ids[0], ids[2]}, orderIDs(byUser))

		byStatus, err := repo.ListByStatus(ctx, StatusPending)
		require.NoError(t, err)
		assert.Equal(t, []int64{ids[2]}, orderIDs(byStatus))

		none, err := repo.ListByStatus(ctx, StatusCompleted)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func orderIDs(orders []Order) []int64 {
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}
