package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-pharmacy-orders/internal/cart"
	"github.com/ariefcatur/go-pharmacy-orders/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-orders/internal/orders"
	"github.com/ariefcatur/go-pharmacy-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type CartHandler struct {
	Carts  *cart.Service
	Orders *orders.Service
	Redis  redis.Cmdable
	Log    *zap.Logger
}

type itemReq struct {
	ProductID   string              `json:"product_id"`
	Quantity    int                 `json:"quantity"`
	Granularity catalog.Granularity `json:"granularity"`
}

type checkoutReq struct {
	Address       orders.Address             `json:"address"`
	Contact       orders.Contact             `json:"contact"`
	PaymentMethod orders.PaymentMethod       `json:"payment_method"`
	Prescriptions []orders.PrescriptionInput `json:"prescriptions"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Post("/", h.open)
		r.Get("/{id}", h.get)
		r.Post("/{id}/items", h.addItem)
		r.Patch("/{id}/items/{productID}", h.updateItem)
		r.Delete("/{id}/items/{productID}", h.removeItem)
		r.Delete("/{id}/items", h.clear)
		r.Post("/{id}/checkout", h.checkout)
	})
}

func granularityParam(r *http.Request) catalog.Granularity {
	if g := r.URL.Query().Get("granularity"); g != "" {
		return catalog.Granularity(g)
	}
	return catalog.GranularityPackage
}

// owned loads a session and hides it from anyone but its owner.
func (h *CartHandler) owned(ctx context.Context, r *http.Request) (*cart.Session, error) {
	owner := ownerFrom(r)
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	sess, err := h.Carts.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if sess.Owner != owner {
		return nil, cart.ErrNotFound
	}
	return sess, nil
}

func (h *CartHandler) open(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	sess, err := h.Carts.GetOrCreate(ctx, ownerFrom(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	sess, err := h.owned(ctx, r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req itemReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Granularity == "" {
		req.Granularity = catalog.GranularityPackage
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sess, err := h.owned(ctx, r)
	if err == nil {
		sess, err = h.Carts.AddItem(ctx, sess.ID, req.ProductID, req.Quantity, req.Granularity)
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req itemReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Granularity == "" {
		req.Granularity = catalog.GranularityPackage
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sess, err := h.owned(ctx, r)
	if err == nil {
		sess, err = h.Carts.UpdateItem(ctx, sess.ID, chi.URLParam(r, "productID"), req.Granularity, req.Quantity)
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sess, err := h.owned(ctx, r)
	if err == nil {
		sess, err = h.Carts.RemoveItem(ctx, sess.ID, chi.URLParam(r, "productID"), granularityParam(r))
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sess, err := h.owned(ctx, r)
	if err == nil {
		sess, err = h.Carts.Clear(ctx, sess.ID)
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// checkout is idempotent twice over: a repeated Idempotency-Key returns the first
// order, and so does a retry against an already converted session.
func (h *CartHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sess, err := h.owned(ctx, r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	idemKey := ""
	if k := r.Header.Get(HeaderIdemKey); k != "" && h.Redis != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemCheckout, k)
		if id, err := h.Redis.Get(ctx, idemKey).Result(); err == nil {
			if o, err := h.Orders.Get(ctx, id); err == nil && o.Owner == sess.Owner {
				writeJSON(w, http.StatusOK, o)
				return
			}
		}
	}

	o, err := h.Orders.CreateFromSession(ctx, orders.CheckoutRequest{
		SessionID:     sess.ID,
		Owner:         sess.Owner,
		Address:       req.Address,
		Contact:       req.Contact,
		PaymentMethod: req.PaymentMethod,
		Prescriptions: req.Prescriptions,
	})
	if errors.Is(err, cart.ErrSessionConverted) && sess.OrderID != "" {
		if prev, gerr := h.Orders.Get(ctx, sess.OrderID); gerr == nil {
			writeJSON(w, http.StatusOK, prev)
			return
		}
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	if idemKey != "" {
		if err := h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err(); err != nil {
			h.Log.Warn("store idempotency key", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, o)
}
