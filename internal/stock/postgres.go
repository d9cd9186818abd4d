package stock

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-pharmacy-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
)

// PostgresStore keeps counters on the products row, guarded by its version column.
type PostgresStore struct{ DB postgres.DB }

func (s *PostgresStore) Load(ctx context.Context, productID string) (Counters, error) {
	var c Counters
	err := s.DB.QueryRow(ctx,
		`SELECT stock, reserved_stock, version FROM products WHERE id=$1`, productID,
	).Scan(&c.Stock, &c.Reserved, &c.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Counters{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, productID string, old, next Counters) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE products
		SET stock = $2, reserved_stock = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $4`,
		productID, next.Stock, next.Reserved, old.Version,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
