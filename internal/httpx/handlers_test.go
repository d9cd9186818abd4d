package httpx_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-pharmacy-orders/internal/cart"
	"github.com/ariefcatur/go-pharmacy-orders/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-orders/internal/httpx"
	"github.com/ariefcatur/go-pharmacy-orders/internal/orders"
	"github.com/ariefcatur/go-pharmacy-orders/internal/reconcile"
	"github.com/ariefcatur/go-pharmacy-orders/internal/stock"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type app struct {
	router *chi.Mux
	ledger *stock.Ledger
	redis  *miniredis.Miniredis
}

func newApp(t *testing.T) *app {
	t.Helper()
	log := zap.NewNop()

	products := catalog.NewMemoryStore()
	products.Put(catalog.Product{ID: "para", SKU: "para-500", Name: "Paracetamol 500mg", PriceCents: 2000, UnitsPerBasePackage: 1, Status: catalog.StatusActive})
	products.Put(catalog.Product{ID: "amox", SKU: "amox", Name: "Amoxicillin strip", PriceCents: 1000, UnitsPerBasePackage: 10, AllowUnitSale: true, RequiresPrescription: true, Status: catalog.StatusActive})
	counters := stock.NewMemoryStore()
	counters.Set("para", 10, 0)
	counters.Set("amox", 5, 0)
	ledger := stock.NewLedger(counters)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	carts := cart.NewService(cart.NewMemoryStore(), products, ledger)
	ords := orders.NewService(orders.NewMemoryStore(), carts, products, ledger, &orders.MemorySequence{})

	r := httpx.NewRouter(log)
	(&httpx.CartHandler{Carts: carts, Orders: ords, Redis: rdb, Log: log}).Register(r)
	(&httpx.OrdersHandler{Orders: ords, Redis: rdb, Log: log}).Register(r)
	(&httpx.AdminHandler{Orders: ords, Ledger: ledger, Products: products, Sweeper: reconcile.NewSweeper(carts, 100, log), Redis: rdb, Log: log}).Register(r)
	return &app{router: r, ledger: ledger, redis: mr}
}

func (a *app) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type stockView struct {
	Stock     int `json:"stock"`
	Reserved  int `json:"reserved_stock"`
	Available int `json:"available_stock"`
}

var guest = map[string]string{httpx.HeaderGuestToken: "tok-1"}

func (a *app) openCart(t *testing.T, who map[string]string) cart.Session {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/cart/", nil, who)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[cart.Session](t, rec)
}

func checkoutBody(rx ...string) map[string]any {
	var prescriptions []map[string]string
	for _, ref := range rx {
		prescriptions = append(prescriptions, map[string]string{"reference": ref})
	}
	return map[string]any{
		"address":        map[string]string{"name": "Rina", "phone": "0812 3456 7890", "line1": "Jl. Merdeka 1", "city": "Jakarta"},
		"contact":        map[string]string{"email": "rina@example.com"},
		"payment_method": "cash_on_delivery",
		"prescriptions":  prescriptions,
	}
}

func TestCart_AddItemAndShortfall(t *testing.T) {
	a := newApp(t)
	s := a.openCart(t, guest)

	rec := a.do(t, http.MethodPost, "/cart/"+s.ID+"/items", map[string]any{"product_id": "para", "quantity": 10}, guest)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[cart.Session](t, rec)
	assert.Equal(t, int64(20000), got.SubtotalCents)

	other := map[string]string{httpx.HeaderGuestToken: "tok-2"}
	s2 := a.openCart(t, other)
	rec = a.do(t, http.MethodPost, "/cart/"+s2.ID+"/items", map[string]any{"product_id": "para", "quantity": 1}, other)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "insufficient_stock", body["error"])
	assert.Equal(t, float64(0), body["available"])

	rec = a.do(t, http.MethodGet, "/cart/"+s.ID, nil, other)
	assert.Equal(t, http.StatusNotFound, rec.Code, "sessions are private to their owner")

	rec = a.do(t, http.MethodPost, "/cart/", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/cart/"+s.ID+"/items", map[string]any{"product_id": "amox", "quantity": 12, "granularity": "unit"}, guest)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/admin/products/amox/stock", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[stockView](t, rec)
	assert.Equal(t, 2, st.Reserved)
	assert.Equal(t, 3, st.Available)

	rec = a.do(t, http.MethodDelete, "/cart/"+s.ID+"/items/amox?granularity=unit", nil, guest)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodPatch, "/cart/"+s.ID+"/items/para", map[string]any{"quantity": 4}, guest)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decode[cart.Session](t, rec).TotalItems)
	rec = a.do(t, http.MethodDelete, "/cart/"+s.ID+"/items", nil, guest)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[cart.Session](t, rec).Items)
}

func TestCheckoutFlow(t *testing.T) {
	a := newApp(t)
	s := a.openCart(t, guest)
	rec := a.do(t, http.MethodPost, "/cart/"+s.ID+"/items", map[string]any{"product_id": "amox", "quantity": 1}, guest)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, "/cart/"+s.ID+"/checkout", checkoutBody(), guest)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "prescription_required", decode[map[string]any](t, rec)["error"])

	withKey := map[string]string{httpx.HeaderGuestToken: "tok-1", httpx.HeaderIdemKey: "k-1"}
	rec = a.do(t, http.MethodPost, "/cart/"+s.ID+"/checkout", checkoutBody("rx-1.jpg"), withKey)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decode[orders.Order](t, rec)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, orders.PrescriptionPending, o.PrescriptionStatus)
	assert.True(t, a.redis.Exists("idem:checkout:k-1"))

	rec = a.do(t, http.MethodPost, "/cart/"+s.ID+"/checkout", checkoutBody("rx-1.jpg"), withKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, o.ID, decode[orders.Order](t, rec).ID)

	rec = a.do(t, http.MethodPost, "/cart/"+s.ID+"/checkout", checkoutBody("rx-1.jpg"), guest)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, o.ID, decode[orders.Order](t, rec).ID)

	rec = a.do(t, http.MethodGet, "/orders", nil, guest)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]orders.Order](t, rec), 1)

	staff := map[string]string{httpx.HeaderStaffID: "pharm-1"}
	rec = a.do(t, http.MethodPost, "/admin/orders/"+o.ID+"/status", map[string]string{"status": "confirmed"}, staff)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[map[string]any](t, rec)["error"])

	rx := o.Prescriptions[0].ID
	rec = a.do(t, http.MethodPost, fmt.Sprintf("/admin/orders/%s/prescriptions/%s/review", o.ID, rx), map[string]any{"approved": true}, staff)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, orders.StatusPrescriptionVerified, decode[orders.Order](t, rec).Status)

	rec = a.do(t, http.MethodPost, "/admin/orders/"+o.ID+"/status", map[string]string{"status": "confirmed"}, staff)
	require.Equal(t, http.StatusOK, rec.Code)
	confirmed := decode[orders.Order](t, rec)
	assert.True(t, confirmed.StockDeducted)
	require.NotEmpty(t, confirmed.StatusHistory)
	assert.Equal(t, "pharm-1", confirmed.StatusHistory[len(confirmed.StatusHistory)-1].Actor)

	rec = a.do(t, http.MethodPost, "/orders/"+o.ID+"/cancel", map[string]string{"reason": "too slow"}, guest)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodGet, "/admin/products/amox/stock", nil, nil)
	assert.Equal(t, 5, decode[stockView](t, rec).Stock, "cancelled after confirm restocks")
}

func TestTrackCachesAndInvalidates(t *testing.T) {
	a := newApp(t)
	s := a.openCart(t, guest)
	a.do(t, http.MethodPost, "/cart/"+s.ID+"/items", map[string]any{"product_id": "para", "quantity": 2}, guest)
	rec := a.do(t, http.MethodPost, "/cart/"+s.ID+"/checkout", checkoutBody(), guest)
	require.Equal(t, http.StatusCreated, rec.Code)
	o := decode[orders.Order](t, rec)

	rec = a.do(t, http.MethodGet, "/track/"+o.Number, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(t, http.MethodGet, "/track/"+o.Number+"?phone=0800", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodGet, "/track/"+o.Number+"?phone=081234567890", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", decode[map[string]any](t, rec)["status"])
	assert.True(t, a.redis.Exists("order_track:"+o.Number))

	rec = a.do(t, http.MethodPost, "/admin/orders/"+o.ID+"/status", map[string]string{"status": "confirmed"}, map[string]string{httpx.HeaderStaffID: "s"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, a.redis.Exists("order_track:"+o.Number))

	rec = a.do(t, http.MethodGet, "/track/"+o.Number+"?phone=081234567890", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "confirmed", decode[map[string]any](t, rec)["status"])
}

func TestHealthAndAdminSweep(t *testing.T) {
	a := newApp(t)

	rec := a.do(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])

	rec = a.do(t, http.MethodPost, "/admin/sweep", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, rec)["expired"])

	rec = a.do(t, http.MethodPost, "/admin/products/para/restock", map[string]int{"quantity": 5}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 15, decode[stockView](t, rec).Stock)

	rec = a.do(t, http.MethodPost, "/admin/products/ghost/restock", map[string]int{"quantity": 5}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodGet, "/products", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]catalog.Product](t, rec), 2)

	rec = a.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
