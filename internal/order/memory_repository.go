package order

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[int64]Order
	nextID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[int64]Order)}
}

func (r *MemoryRepository) Create(_ context.Context, o Order) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := time.Now().UTC()
	o.ID = r.nextID
	o.Items = append([]Item(nil), o.Items...)
	o.CreatedAt = now
	o.UpdatedAt = now
	r.orders[o.ID] = o
	return o, nil
}

func (r *MemoryRepository) Get(_ context.Context, id int64) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Order, error) {
	return r.filter(func(Order) bool { return true }), nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID int64) ([]Order, error) {
	return r.filter(func(o Order) bool { return o.UserID == userID }), nil
}

func (r *MemoryRepository) ListByStatus(_ context.Context, status Status) ([]Order, error) {
	return r.filter(func(o Order) bool { return o.Status == status }), nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id int64, from, to Status, reason string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	if o.Status != from {
		return Order{}, conflict(id, o.Status, "move to "+string(to))
	}

	o.Status = to
	if reason != "" {
		o.FailureReason = reason
	}
	o.UpdatedAt = time.Now().UTC()
	r.orders[id] = o
	return o, nil
}

func (r *MemoryRepository) filter(keep func(Order) bool) []Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := lo.Keys(r.orders)
	slices.Sort(ids)
	return lo.FilterMap(ids, func(id int64, _ int) (Order, bool) {
		o := r.orders[id]
		return o, keep(o)
	})
}
