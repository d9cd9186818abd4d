package reconcile_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-pharmacy-orders/internal/cart"
	"github.com/ariefcatur/go-pharmacy-orders/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-orders/internal/reconcile"
	"github.com/ariefcatur/go-pharmacy-orders/internal/stock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// brokenLedger fails Release for one product until healed.
type brokenLedger struct {
	cart.Ledger
	product string
	healed  atomic.Bool
}

func (b *brokenLedger) Release(ctx context.Context, productID string, amount int) (int, error) {
	if productID == b.product && !b.healed.Load() {
		return 0, errors.New("ledger unavailable")
	}
	return b.Ledger.Release(ctx, productID, amount)
}

type env struct {
	carts  *cart.Service
	ledger *stock.Ledger
	broken *brokenLedger
	now    time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	products := catalog.NewMemoryStore()
	products.Put(catalog.Product{ID: "para", Name: "Paracetamol", PriceCents: 2000, UnitsPerBasePackage: 1, Status: catalog.StatusActive})
	products.Put(catalog.Product{ID: "ors", Name: "Oral rehydration salts", PriceCents: 800, UnitsPerBasePackage: 1, Status: catalog.StatusActive})

	counters := stock.NewMemoryStore()
	counters.Set("para", 20, 0)
	counters.Set("ors", 20, 0)

	e := &env{
		ledger: stock.NewLedger(counters),
		now:    time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	e.broken = &brokenLedger{Ledger: e.ledger, product: "ors"}
	e.carts = cart.NewService(cart.NewMemoryStore(), products, e.broken, cart.WithClock(func() time.Time { return e.now }))
	return e
}

func (e *env) hold(t *testing.T, guest, product string, qty int) *cart.Session {
	t.Helper()
	ctx := context.Background()
	s, err := e.carts.GetOrCreate(ctx, cart.Owner{GuestToken: guest})
	require.NoError(t, err)
	s, err = e.carts.AddItem(ctx, s.ID, product, qty, catalog.GranularityPackage)
	require.NoError(t, err)
	return s
}

func (e *env) reserved(t *testing.T, product string) int {
	t.Helper()
	c, err := e.ledger.Snapshot(context.Background(), product)
	require.NoError(t, err)
	return c.Reserved
}

func TestSweep_ReleasesExpiredSessions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	stale := e.hold(t, "a", "para", 5)
	e.now = e.now.Add(20 * time.Minute)
	fresh := e.hold(t, "b", "para", 2)
	assert.Equal(t, 7, e.reserved(t, "para"))

	e.now = e.now.Add(15 * time.Minute)
	sw := reconcile.NewSweeper(e.carts, 10, zap.NewNop())
	res, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 2, e.reserved(t, "para"))

	got, err := e.carts.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, cart.StatusExpired, got.Status)
	got, err = e.carts.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, cart.StatusActive, got.Status)

	res, err = sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Scanned, "expired sessions are not swept twice")
	assert.Equal(t, 2, e.reserved(t, "para"))
}

func TestSweep_PartialFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ok := e.hold(t, "a", "para", 3)
	bad := e.hold(t, "b", "ors", 4)
	mixed := e.hold(t, "c", "para", 1)
	_, err := e.carts.AddItem(ctx, mixed.ID, "ors", 2, catalog.GranularityPackage)
	require.NoError(t, err)

	e.now = e.now.Add(31 * time.Minute)
	sw := reconcile.NewSweeper(e.carts, 10, zap.NewNop())
	res, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, res, sw.Last())
	assert.Equal(t, 0, e.reserved(t, "para"))
	assert.Equal(t, 6, e.reserved(t, "ors"))

	for _, id := range []string{bad.ID, mixed.ID} {
		s, err := e.carts.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, cart.StatusExpired, s.Status)
		assert.Positive(t, s.ReservedFor("ors"), "unreleased hold stays on the session")
		assert.Zero(t, s.ReservedFor("para"))
	}
	s, err := e.carts.Get(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, cart.StatusExpired, s.Status)

	e.broken.healed.Store(true)
	res, err = sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Expired)
	assert.Equal(t, 0, e.reserved(t, "ors"))
	assert.Equal(t, 0, e.reserved(t, "para"), "already released lines are not released twice")
}

func TestSweep_WalksMultipleBatches(t *testing.T) {
	e := newEnv(t)
	for _, guest := range []string{"a", "b", "c", "d", "e"} {
		e.hold(t, guest, "para", 2)
	}
	e.now = e.now.Add(time.Hour)

	res, err := reconcile.NewSweeper(e.carts, 2, nil).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Expired)
	assert.Equal(t, 0, e.reserved(t, "para"))
}

// blockingSessions parks ListExpired until released.
type blockingSessions struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSessions) ListExpired(ctx context.Context, _ int) ([]*cart.Session, error) {
	close(b.entered)
	<-b.release
	return nil, nil
}

func (b *blockingSessions) Expire(context.Context, *cart.Session) (bool, error) { return false, nil }

func TestTrySweep_SkipsWhileRunning(t *testing.T) {
	ctx := context.Background()
	b := &blockingSessions{entered: make(chan struct{}), release: make(chan struct{})}
	sw := reconcile.NewSweeper(b, 10, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := sw.Sweep(ctx)
		assert.NoError(t, err)
	}()
	<-b.entered

	_, ran, err := sw.TrySweep(ctx)
	require.NoError(t, err)
	assert.False(t, ran)

	close(b.release)
	<-done
}

func TestSweep_ListError(t *testing.T) {
	sw := reconcile.NewSweeper(failingList{}, 10, nil)
	_, err := sw.Sweep(context.Background())
	assert.EqualError(t, err, "store down")
}

type failingList struct{}

func (failingList) ListExpired(context.Context, int) ([]*cart.Session, error) {
	return nil, errors.New("store down")
}

func (failingList) Expire(context.Context, *cart.Session) (bool, error) { return false, nil }
