package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation        = "23505"
	completedPerOrderIndex = "payments_completed_order_idx"
	paymentColumns         = `id, order_id, user_id, amount, status, transaction_id, reservation_id, message, created_at, updated_at`
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Save(ctx context.Context, p Payment) (Payment, error) {
	rows, err := r.pool.Query(ctx, `
		INSERT INTO payments (order_id, user_id, amount, status, transaction_id, reservation_id, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+paymentColumns,
		p.OrderID, p.UserID, p.Amount, p.Status, p.TransactionID, p.ReservationID, p.Message)
	if err != nil {
		return Payment{}, fmt.Errorf("pool.Query insert payment: %w", err)
	}

	saved, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[Payment])
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == completedPerOrderIndex {
			return Payment{}, ErrDuplicatePayment
		}
		return Payment{}, fmt.Errorf("pgx.CollectExactlyOneRow payment: %w", err)
	}
	return saved, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (Payment, error) {
	return r.one(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByOrder(ctx context.Context, orderID int64) (Payment, error) {
	return r.one(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE order_id = $1
		ORDER BY (status = 'COMPLETED') DESC, id DESC
		LIMIT 1`, orderID)
}

func (r *PostgresRepository) List(ctx context.Context) ([]Payment, error) {
	return r.many(ctx, `SELECT `+paymentColumns+` FROM payments ORDER BY id`)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]Payment, error) {
	return r.many(ctx, `SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY id`, userID)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status) ([]Payment, error) {
	return r.many(ctx, `SELECT `+paymentColumns+` FROM payments WHERE status = $1 ORDER BY id`, status)
}

func (r *PostgresRepository) one(ctx context.Context, sql string, args ...any) (Payment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return Payment{}, fmt.Errorf("pool.Query payment: %w", err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[Payment])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, fmt.Errorf("pgx.CollectExactlyOneRow payment: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) many(ctx context.Context, sql string, args ...any) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pool.Query payments: %w", err)
	}

	payments, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Payment])
	if err != nil {
		return nil, fmt.Errorf("pgx.CollectRows payments: %w", err)
	}
	return payments, nil
}
