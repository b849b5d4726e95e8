package payment

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
)

type MemoryRepository struct {
	mu       sync.RWMutex
	payments []Payment
	nextID   int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Save(_ context.Context, p Payment) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Status == StatusCompleted {
		if _, ok := lo.Find(r.payments, func(existing Payment) bool {
			return existing.OrderID == p.OrderID && existing.Status == StatusCompleted
		}); ok {
			return Payment{}, ErrDuplicatePayment
		}
	}

	r.nextID++
	now := time.Now().UTC()
	p.ID = r.nextID
	p.CreatedAt = now
	p.UpdatedAt = now
	r.payments = append(r.payments, p)
	return p, nil
}

func (r *MemoryRepository) Get(_ context.Context, id int64) (Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := lo.Find(r.payments, func(p Payment) bool { return p.ID == id })
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepository) GetByOrder(_ context.Context, orderID int64) (Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	attempts := lo.Filter(r.payments, func(p Payment, _ int) bool { return p.OrderID == orderID })
	if len(attempts) == 0 {
		return Payment{}, ErrNotFound
	}
	if completed, ok := lo.Find(attempts, func(p Payment) bool { return p.Status == StatusCompleted }); ok {
		return completed, nil
	}
	return attempts[len(attempts)-1], nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]Payment{}, r.payments...), nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID int64) ([]Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Filter(r.payments, func(p Payment, _ int) bool { return p.UserID == userID }), nil
}

func (r *MemoryRepository) ListByStatus(_ context.Context, status Status) ([]Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Filter(r.payments, func(p Payment, _ int) bool { return p.Status == status }), nil
}
