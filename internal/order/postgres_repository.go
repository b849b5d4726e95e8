package order

import (
	"context"
	"errors"
	"fmt"

	"ordersaga/internal/platform/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
)

// PostgresRepository stores orders and their immutable line items.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const orderColumns = `id, user_id, total_amount, status, COALESCE(failure_reason, ''), created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r *PostgresRepository) Create(ctx context.Context, o Order) (Order, error) {
	return postgres.WithTx(ctx, r.pool, func(tx pgx.Tx) (Order, error) {
		created, err := scanOrder(tx.QueryRow(ctx, `
			INSERT INTO orders (user_id, total_amount, status)
			VALUES ($1, $2, $3)
			RETURNING `+orderColumns,
			o.UserID, o.TotalAmount, o.Status))
		if err != nil {
			return Order{}, fmt.Errorf("tx.QueryRow insert order: %w", err)
		}

		batch := &pgx.Batch{}
		for i, item := range o.Items {
			batch.Queue(`
				INSERT INTO order_items (order_id, line_no, product_id, quantity, price)
				VALUES ($1, $2, $3, $4, $5)`,
				created.ID, i, item.ProductID, item.Quantity, item.Price)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return Order{}, fmt.Errorf("tx.SendBatch order_items: %w", err)
		}

		created.Items = append([]Item(nil), o.Items...)
		return created, nil
	})
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("pool.QueryRow select order: %w", err)
	}

	if err := r.attachItems(ctx, []*Order{&o}); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Order, error) {
	return r.many(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id`)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	return r.many(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY id`, userID)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status) ([]Order, error) {
	return r.many(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY id`, status)
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int64, from, to Status, reason string) (Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = $3, failure_reason = COALESCE(NULLIF($4, ''), failure_reason), updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+orderColumns,
		id, from, to, reason))
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.Get(ctx, id)
		if getErr != nil {
			return Order{}, getErr
		}
		return Order{}, conflict(id, current.Status, "move to "+string(to))
	}
	if err != nil {
		return Order{}, fmt.Errorf("pool.QueryRow update order status: %w", err)
	}

	if err := r.attachItems(ctx, []*Order{&o}); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *PostgresRepository) many(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pool.Query orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, fmt.Errorf("pgx.CollectRows orders: %w", err)
	}

	ptrs := make([]*Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := r.attachItems(ctx, ptrs); err != nil {
		return nil, err
	}
	return orders, nil
}

type itemRow struct {
	OrderID int64
	Item
}

func (r *PostgresRepository) attachItems(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := lo.Map(orders, func(o *Order, _ int) int64 { return o.ID })
	rows, err := r.pool.Query(ctx, `
		SELECT order_id, product_id, quantity, price FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no`, ids)
	if err != nil {
		return fmt.Errorf("pool.Query order_items: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (itemRow, error) {
		var it itemRow
		err := row.Scan(&it.OrderID, &it.ProductID, &it.Quantity, &it.Price)
		return it, err
	})
	if err != nil {
		return fmt.Errorf("pgx.CollectRows order_items: %w", err)
	}

	byOrder := lo.GroupBy(items, func(it itemRow) int64 { return it.OrderID })
	for _, o := range orders {
		o.Items = lo.Map(byOrder[o.ID], func(it itemRow, _ int) Item { return it.Item })
	}
	return nil
}
