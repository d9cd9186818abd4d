package httpx

import (
	"errors"
	"net/http"

	"github.com/ariefcatur/go-pharmacy-orders/internal/cart"
	"github.com/ariefcatur/go-pharmacy-orders/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-orders/internal/orders"
	"github.com/ariefcatur/go-pharmacy-orders/internal/stock"
	"go.uber.org/zap"
)

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Available *int   `json:"available,omitempty"`
}

var errorTable = []struct {
	target error
	status int
	code   string
}{
	{cart.ErrNotFound, http.StatusNotFound, "session_not_found"},
	{cart.ErrItemNotFound, http.StatusNotFound, "item_not_found"},
	{orders.ErrNotFound, http.StatusNotFound, "order_not_found"},
	{orders.ErrPrescriptionNotFound, http.StatusNotFound, "prescription_not_found"},
	{catalog.ErrNotFound, http.StatusNotFound, "product_not_found"},
	{stock.ErrNotFound, http.StatusNotFound, "product_not_found"},

	{cart.ErrInvalidOwner, http.StatusBadRequest, "invalid_owner"},
	{catalog.ErrInvalidGranularity, http.StatusBadRequest, "invalid_granularity"},
	{orders.ErrInvalidPaymentMethod, http.StatusBadRequest, "invalid_payment_method"},
	{stock.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},

	{catalog.ErrQuantityOutOfRange, http.StatusUnprocessableEntity, "quantity_out_of_range"},
	{catalog.ErrUnitSaleNotAllowed, http.StatusUnprocessableEntity, "unit_sale_not_allowed"},
	{cart.ErrSessionEmpty, http.StatusUnprocessableEntity, "session_empty"},
	{orders.ErrPrescriptionRequired, http.StatusUnprocessableEntity, "prescription_required"},

	{stock.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{stock.ErrReservationUnderrun, http.StatusConflict, "reservation_underrun"},
	{catalog.ErrProductUnavailable, http.StatusConflict, "product_unavailable"},
	{cart.ErrSessionConverted, http.StatusConflict, "session_converted"},
	{cart.ErrConflict, http.StatusConflict, "session_conflict"},
	{orders.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{orders.ErrPrescriptionNotPending, http.StatusConflict, "prescription_not_pending"},
	{orders.ErrReservationMismatch, http.StatusConflict, "reservation_mismatch"},
	{orders.ErrConflict, http.StatusConflict, "conflict"},

	{cart.ErrSessionExpired, http.StatusGone, "session_expired"},
	{stock.ErrContention, http.StatusServiceUnavailable, "contention"},
}

// writeError maps domain errors to statuses. Anything unmapped is a 500 and gets logged.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	body := errorBody{Error: "internal", Message: "internal error"}
	status := http.StatusInternalServerError
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			status, body.Error, body.Message = e.status, e.code, err.Error()
			break
		}
	}
	var short *stock.ShortfallError
	if errors.As(err, &short) {
		body.Available = &short.Available
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, body)
}
