package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-pharmacy-orders/internal/orders"
	"github.com/ariefcatur/go-pharmacy-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type OrdersHandler struct {
	Orders *orders.Service
	Redis  redis.Cmdable
	Log    *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders", h.list)
	r.Get("/orders/{id}", h.get)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Get("/track/{number}", h.track)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.ListByOwner(ctx, ownerFrom(r), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if list == nil {
		list = []*orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) owned(ctx context.Context, r *http.Request) (*orders.Order, error) {
	o, err := h.Orders.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if o.Owner != ownerFrom(r) {
		return nil, orders.ErrNotFound
	}
	return o, nil
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.owned(ctx, r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

// cancel lets a customer withdraw their own order while it is still cancellable.
func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.owned(ctx, r)
	if err == nil {
		o, err = h.Orders.TransitionStatus(ctx, o.ID, orders.StatusCancelled, o.Owner.Key(), req.Reason)
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	invalidateTracking(ctx, h.Redis, h.Log, o.Number)
	writeJSON(w, http.StatusOK, o)
}

// track serves the public tracking view. Projections are cached per proof of
// possession so a cached answer is never served to a caller without one.
func (h *OrdersHandler) track(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	q := orders.TrackQuery{
		Phone:     r.URL.Query().Get("phone"),
		AccountID: r.Header.Get(HeaderAccountID),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderTrack, number)
	field := "a:" + q.AccountID + "|p:" + orders.NormalizePhone(q.Phone)
	if h.Redis != nil {
		if s, err := h.Redis.HGet(ctx, key, field).Result(); err == nil && s != "" {
			writeRaw(w, http.StatusOK, []byte(s))
			return
		}
	}

	t, err := h.Orders.Track(ctx, number, q)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	b, err := json.Marshal(t)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if h.Redis != nil {
		_, err := h.Redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, field, b)
			p.Expire(ctx, key, redisx.TTLTrackCache)
			return nil
		})
		if err != nil {
			h.Log.Warn("cache tracking", zap.String("number", number), zap.Error(err))
		}
	}
	writeRaw(w, http.StatusOK, b)
}

func invalidateTracking(ctx context.Context, rdb redis.Cmdable, log *zap.Logger, number string) {
	if rdb == nil || number == "" {
		return
	}
	if err := rdb.Del(ctx, fmt.Sprintf(redisx.KeyOrderTrack, number)).Err(); err != nil {
		log.Warn("invalidate tracking cache", zap.String("number", number), zap.Error(err))
	}
}
