package inventory

import (
	"context"
	"errors"
	"fmt"

	"ordersaga/internal/platform/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger stores stock in the inventory table. Reservations are
// conditional row updates, so concurrent writers serialise on the product row.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

const recordColumns = `product_id, available, reserved, created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	err := row.Scan(&r.ProductID, &r.Available, &r.Reserved, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (l *PostgresLedger) Create(ctx context.Context, productID int64, available int32) (Record, error) {
	if available < 0 {
		return Record{}, invalidQuantity(available)
	}

	record, err := scanRecord(l.pool.QueryRow(ctx, `
		INSERT INTO inventory (product_id, available, reserved)
		VALUES ($1, $2, 0)
		ON CONFLICT (product_id) DO NOTHING
		RETURNING `+recordColumns,
		productID, available))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrAlreadyExists
		}
		return Record{}, fmt.Errorf("pool.QueryRow insert inventory: %w", err)
	}
	return record, nil
}

func (l *PostgresLedger) Get(ctx context.Context, productID int64) (Record, error) {
	return getRecord(ctx, l.pool, productID)
}

func getRecord(ctx context.Context, q dbtx, productID int64) (Record, error) {
	record, err := scanRecord(q.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM inventory WHERE product_id = $1`, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, notFound(productID)
		}
		return Record{}, fmt.Errorf("q.QueryRow select inventory: %w", err)
	}
	return record, nil
}

func (l *PostgresLedger) List(ctx context.Context) ([]Record, error) {
	rows, err := l.pool.Query(ctx, `SELECT `+recordColumns+` FROM inventory ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("pool.Query inventory: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		return scanRecord(row)
	})
	if err != nil {
		return nil, fmt.Errorf("pgx.CollectRows inventory: %w", err)
	}
	return records, nil
}

func (l *PostgresLedger) SetAvailable(ctx context.Context, productID int64, available int32) (Record, error) {
	if available < 0 {
		return Record{}, invalidQuantity(available)
	}

	record, err := scanRecord(l.pool.QueryRow(ctx, `
		UPDATE inventory SET available = $2, updated_at = now()
		WHERE product_id = $1
		RETURNING `+recordColumns,
		productID, available))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, notFound(productID)
		}
		return Record{}, fmt.Errorf("pool.QueryRow update inventory: %w", err)
	}
	return record, nil
}

func (l *PostgresLedger) CheckAvailability(ctx context.Context, productID int64, quantity int32) (bool, error) {
	record, err := l.Get(ctx, productID)
	if err != nil {
		return false, err
	}
	return record.Available >= quantity, nil
}

func (l *PostgresLedger) Reserve(ctx context.Context, productID int64, quantity int32) error {
	if quantity <= 0 {
		return invalidQuantity(quantity)
	}
	return reserve(ctx, l.pool, productID, quantity)
}

func reserve(ctx context.Context, q dbtx, productID int64, quantity int32) error {
	tag, err := q.Exec(ctx, `
		UPDATE inventory
		SET available = available - $2, reserved = reserved + $2, updated_at = now()
		WHERE product_id = $1 AND available >= $2`,
		productID, quantity)
	if err != nil {
		return fmt.Errorf("q.Exec reserve: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := getRecord(ctx, q, productID); err != nil {
		return err
	}
	return insufficientStock(productID)
}

func (l *PostgresLedger) Release(ctx context.Context, productID int64, quantity int32) error {
	if quantity <= 0 {
		return invalidQuantity(quantity)
	}
	return release(ctx, l.pool, productID, quantity)
}

func release(ctx context.Context, q dbtx, productID int64, quantity int32) error {
	tag, err := q.Exec(ctx, `
		UPDATE inventory
		SET available = available + $2, reserved = reserved - $2, updated_at = now()
		WHERE product_id = $1 AND reserved >= $2`,
		productID, quantity)
	if err != nil {
		return fmt.Errorf("q.Exec release: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := getRecord(ctx, q, productID); err != nil {
		return err
	}
	return invalidQuantity(quantity)
}

func (l *PostgresLedger) ReserveOrder(ctx context.Context, orderID int64, attemptID string, lines []Line) error {
	merged, err := mergeLines(lines)
	if err != nil {
		return err
	}

	_, err = postgres.WithTx(ctx, l.pool, func(tx pgx.Tx) (struct{}, error) {
		for _, line := range merged {
			if err := reserve(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return struct{}{}, err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO reservations (order_id, attempt_id, product_id, quantity, status)
				VALUES ($1, $2, $3, $4, $5)`,
				orderID, attemptID, line.ProductID, line.Quantity, ReservationReserved); err != nil {
				return struct{}{}, fmt.Errorf("tx.Exec insert reservation: %w", err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

func (l *PostgresLedger) ReleaseOrder(ctx context.Context, orderID int64, attemptID string) (int, error) {
	return postgres.WithTx(ctx, l.pool, func(tx pgx.Tx) (int, error) {
		rows, err := tx.Query(ctx, `
			UPDATE reservations SET status = $3, updated_at = now()
			WHERE order_id = $1 AND attempt_id = $2 AND status = $4
			RETURNING product_id, quantity`,
			orderID, attemptID, ReservationReleased, ReservationReserved)
		if err != nil {
			return 0, fmt.Errorf("tx.Query release reservations: %w", err)
		}

		claimed, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Line])
		if err != nil {
			return 0, fmt.Errorf("pgx.CollectRows reservations: %w", err)
		}

		for _, line := range claimed {
			if err := release(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return 0, err
			}
		}
		return len(claimed), nil
	})
}

func (l *PostgresLedger) Reservations(ctx context.Context, orderID int64) ([]Reservation, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, order_id, attempt_id, product_id, quantity, status, created_at, updated_at
		FROM reservations WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("pool.Query reservations: %w", err)
	}

	reservations, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Reservation])
	if err != nil {
		return nil, fmt.Errorf("pgx.CollectRows reservations: %w", err)
	}
	return reservations, nil
}
