package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-pharmacy-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repo stores orders as JSONB documents with the queried fields lifted into columns.
type Repo struct{ DB postgres.DB }

func (r *Repo) Create(ctx context.Context, o *Order) error {
	doc, err := json.Marshal(o)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO orders(id, number, owner_key, status, history_len, version, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $8)`,
		o.ID, o.Number, o.Owner.Key(), string(o.Status), len(o.StatusHistory), doc, o.CreatedAt, o.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	if err != nil {
		return err
	}
	o.Version = 1
	return nil
}

func (r *Repo) scanOne(row pgx.Row) (*Order, error) {
	var (
		doc     []byte
		version int64
	)
	if err := row.Scan(&doc, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var o Order
	if err := json.Unmarshal(doc, &o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	o.Version = version
	return &o, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	return r.scanOne(r.DB.QueryRow(ctx, `SELECT doc, version FROM orders WHERE id=$1`, id))
}

func (r *Repo) GetByNumber(ctx context.Context, number string) (*Order, error) {
	return r.scanOne(r.DB.QueryRow(ctx, `SELECT doc, version FROM orders WHERE number=$1`, number))
}

func (r *Repo) Update(ctx context.Context, o *Order) error {
	doc, err := json.Marshal(o)
	if err != nil {
		return err
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET status = $2, history_len = $3, doc = $4, version = version + 1, updated_at = $5
		WHERE id = $1 AND version = $6`,
		o.ID, string(o.Status), len(o.StatusHistory), doc, o.UpdatedAt, o.Version,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", ErrConflict, o.ID)
	}
	o.Version++
	return nil
}

func (r *Repo) list(ctx context.Context, sql string, args ...any) ([]*Order, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) ListByOwner(ctx context.Context, ownerKey string, limit int) ([]*Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, `SELECT doc, version FROM orders WHERE owner_key=$1 ORDER BY created_at DESC LIMIT $2`, ownerKey, limit)
}

func (r *Repo) ListHistoryOver(ctx context.Context, limit int) ([]*Order, error) {
	return r.list(ctx, `SELECT doc, version FROM orders WHERE history_len > $1`, limit)
}
