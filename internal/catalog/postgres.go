package catalog

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-pharmacy-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type PostgresStore struct{ DB postgres.DB }

const productColumns = `id, sku, name, brand, category, price_cents, unit_price_cents,
	units_per_base_package, allow_unit_sale, requires_prescription,
	min_order_qty, max_order_qty, status, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	var status string
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Brand, &p.Category, &p.PriceCents, &p.UnitPriceCents,
		&p.UnitsPerBasePackage, &p.AllowUnitSale, &p.RequiresPrescription,
		&p.MinOrderQty, &p.MaxOrderQty, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = Status(status)
	return &p, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) List(ctx context.Context) ([]Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
