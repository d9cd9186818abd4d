package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-pharmacy-orders/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-orders/internal/orders"
	"github.com/ariefcatur/go-pharmacy-orders/internal/reconcile"
	"github.com/ariefcatur/go-pharmacy-orders/internal/stock"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProductLister is satisfied by the catalog stores.
type ProductLister interface {
	List(ctx context.Context) ([]catalog.Product, error)
}

// AdminHandler serves staff operations, the catalog and the health probe.
type AdminHandler struct {
	Orders   *orders.Service
	Ledger   *stock.Ledger
	Products ProductLister
	Sweeper  *reconcile.Sweeper
	Redis    redis.Cmdable
	Log      *zap.Logger
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Get("/healthz", h.health)
	r.Get("/products", h.listProducts)
	r.Route("/admin", func(r chi.Router) {
		r.Post("/orders/{id}/status", h.transition)
		r.Post("/orders/{id}/prescriptions/{rxID}/review", h.review)
		r.Get("/products/{id}/stock", h.stock)
		r.Post("/products/{id}/restock", h.restock)
		r.Post("/sweep", h.sweep)
	})
}

// health piggybacks a sweep on the probe so reclamation keeps happening even
// when the scheduler is not running.
func (h *AdminHandler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, ran, err := h.Sweeper.TrySweep(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error()})
		return
	}
	if !ran {
		res = h.Sweeper.Last()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sweep": res})
}

func (h *AdminHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Products.List(ctx)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

type transitionReq struct {
	Status orders.Status `json:"status"`
	Notes  string        `json:"notes"`
}

func (h *AdminHandler) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionReq
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Orders.TransitionStatus(ctx, chi.URLParam(r, "id"), req.Status, r.Header.Get(HeaderStaffID), req.Notes)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	invalidateTracking(ctx, h.Redis, h.Log, o.Number)
	writeJSON(w, http.StatusOK, o)
}

type reviewReq struct {
	Approved bool   `json:"approved"`
	Notes    string `json:"notes"`
}

func (h *AdminHandler) review(w http.ResponseWriter, r *http.Request) {
	var req reviewReq
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Orders.VerifyPrescription(ctx, chi.URLParam(r, "id"), chi.URLParam(r, "rxID"), req.Approved, req.Notes, r.Header.Get(HeaderStaffID))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	invalidateTracking(ctx, h.Redis, h.Log, o.Number)
	writeJSON(w, http.StatusOK, o)
}

type stockResp struct {
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
	Reserved  int    `json:"reserved_stock"`
	Available int    `json:"available_stock"`
}

func (h *AdminHandler) stock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	c, err := h.Ledger.Snapshot(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, stockResp{ProductID: id, Stock: c.Stock, Reserved: c.Reserved, Available: c.Available()})
}

type restockReq struct {
	Quantity int `json:"quantity"`
}

func (h *AdminHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockReq
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := h.Ledger.Restock(ctx, id, req.Quantity); err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.Log.Info("restocked", zap.String("product_id", id), zap.Int("quantity", req.Quantity), zap.String("staff", r.Header.Get(HeaderStaffID)))
	h.stock(w, r)
}

func (h *AdminHandler) sweep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()

	res, err := h.Sweeper.Sweep(ctx)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
