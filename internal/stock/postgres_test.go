package stock_test

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-pharmacy-orders/internal/stock"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT stock, reserved_stock, version FROM products`).
			WithArgs("p1").
			WillReturnRows(pgxmock.NewRows([]string{"stock", "reserved_stock", "version"}).AddRow(10, 2, int64(7)))

		s := &stock.PostgresStore{DB: mock}
		c, err := s.Load(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, stock.Counters{Stock: 10, Reserved: 2, Version: 7}, c)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT stock, reserved_stock, version FROM products`).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		s := &stock.PostgresStore{DB: mock}
		_, err = s.Load(ctx, "missing")
		assert.ErrorIs(t, err, stock.ErrNotFound)
	})
}

func TestPostgresStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "version matched", affected: 1, want: true},
		{name: "version moved on", affected: 0, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectExec(`UPDATE products`).
				WithArgs("p1", 10, 5, int64(3)).
				WillReturnResult(pgxmock.NewResult("UPDATE", tc.affected))

			s := &stock.PostgresStore{DB: mock}
			ok, err := s.CompareAndSwap(ctx, "p1",
				stock.Counters{Stock: 10, Reserved: 2, Version: 3},
				stock.Counters{Stock: 10, Reserved: 5, Version: 3})
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
