package inventory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

type stockEntry struct {
	mu     sync.Mutex
	record Record
}

// MemoryLedger keeps stock in process. The map lock only guards membership;
// each product has its own lock so reservations of different products never
// contend.
type MemoryLedger struct {
	mu       sync.RWMutex
	products map[int64]*stockEntry

	resMu        sync.Mutex
	reservations map[int64][]Reservation
	nextResID    int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		products:     make(map[int64]*stockEntry),
		reservations: make(map[int64][]Reservation),
	}
}

func (l *MemoryLedger) entry(productID int64) (*stockEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.products[productID]
	if !ok {
		return nil, notFound(productID)
	}
	return e, nil
}

func (l *MemoryLedger) Create(_ context.Context, productID int64, available int32) (Record, error) {
	if available < 0 {
		return Record{}, invalidQuantity(available)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.products[productID]; ok {
		return Record{}, ErrAlreadyExists
	}

	now := time.Now().UTC()
	e := &stockEntry{record: Record{
		ProductID: productID,
		Available: available,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	l.products[productID] = e
	return e.record, nil
}

func (l *MemoryLedger) Get(_ context.Context, productID int64) (Record, error) {
	e, err := l.entry(productID)
	if err != nil {
		return Record{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record, nil
}

func (l *MemoryLedger) List(_ context.Context) ([]Record, error) {
	l.mu.RLock()
	entries := make([]*stockEntry, 0, len(l.products))
	for _, e := range l.products {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		records = append(records, e.record)
		e.mu.Unlock()
	}
	slices.SortFunc(records, func(a, b Record) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return records, nil
}

func (l *MemoryLedger) SetAvailable(_ context.Context, productID int64, available int32) (Record, error) {
	if available < 0 {
		return Record{}, invalidQuantity(available)
	}

	e, err := l.entry(productID)
	if err != nil {
		return Record{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.record.Available = available
	e.record.UpdatedAt = time.Now().UTC()
	return e.record, nil
}

func (l *MemoryLedger) CheckAvailability(_ context.Context, productID int64, quantity int32) (bool, error) {
	e, err := l.entry(productID)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record.Available >= quantity, nil
}

func (l *MemoryLedger) Reserve(_ context.Context, productID int64, quantity int32) error {
	if quantity <= 0 {
		return invalidQuantity(quantity)
	}

	e, err := l.entry(productID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.record.Available < quantity {
		return insufficientStock(productID)
	}
	e.reserve(quantity)
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, productID int64, quantity int32) error {
	if quantity <= 0 {
		return invalidQuantity(quantity)
	}

	e, err := l.entry(productID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.record.Reserved < quantity {
		return invalidQuantity(quantity)
	}
	e.release(quantity)
	return nil
}

func (l *MemoryLedger) ReserveOrder(_ context.Context, orderID int64, attemptID string, lines []Line) error {
	merged, err := mergeLines(lines)
	if err != nil {
		return err
	}

	entries := make([]*stockEntry, 0, len(merged))
	for _, line := range merged {
		e, err := l.entry(line.ProductID)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}

	// merged is sorted by product id, so locks are always taken in the same order
	for _, e := range entries {
		e.mu.Lock()
	}
	defer func() {
		for _, e := range entries {
			e.mu.Unlock()
		}
	}()

	for i, line := range merged {
		if entries[i].record.Available < line.Quantity {
			return insufficientStock(line.ProductID)
		}
	}
	for i, line := range merged {
		entries[i].reserve(line.Quantity)
	}

	l.recordReservations(orderID, attemptID, merged)
	return nil
}

func (l *MemoryLedger) recordReservations(orderID int64, attemptID string, lines []Line) {
	l.resMu.Lock()
	defer l.resMu.Unlock()

	now := time.Now().UTC()
	for _, line := range lines {
		l.nextResID++
		l.reservations[orderID] = append(l.reservations[orderID], Reservation{
			ID:        l.nextResID,
			OrderID:   orderID,
			AttemptID: attemptID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Status:    ReservationReserved,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
}

func (l *MemoryLedger) ReleaseOrder(ctx context.Context, orderID int64, attemptID string) (int, error) {
	l.resMu.Lock()
	var claimed []Reservation
	now := time.Now().UTC()
	for i, r := range l.reservations[orderID] {
		if r.AttemptID != attemptID || r.Status != ReservationReserved {
			continue
		}
		l.reservations[orderID][i].Status = ReservationReleased
		l.reservations[orderID][i].UpdatedAt = now
		claimed = append(claimed, r)
	}
	l.resMu.Unlock()

	for _, r := range claimed {
		if err := l.Release(ctx, r.ProductID, r.Quantity); err != nil {
			return 0, err
		}
	}
	return len(claimed), nil
}

func (l *MemoryLedger) Reservations(_ context.Context, orderID int64) ([]Reservation, error) {
	l.resMu.Lock()
	defer l.resMu.Unlock()

	return slices.Clone(l.reservations[orderID]), nil
}

func (e *stockEntry) reserve(quantity int32) {
	e.record.Available -= quantity
	e.record.Reserved += quantity
	e.record.UpdatedAt = time.Now().UTC()
}

func (e *stockEntry) release(quantity int32) {
	e.record.Available += quantity
	e.record.Reserved -= quantity
	e.record.UpdatedAt = time.Now().UTC()
}
