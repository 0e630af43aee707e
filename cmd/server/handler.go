package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/balance"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/fill"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/infrastructure/postgresql/order"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/internal/usecase/reservation"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/errors"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/logger"
	"github.com/myeonghunKMH/MS-DataSchool-project3-sub000/pkg/util"
)

// handler exposes the order operations over plain JSON endpoints. This is
// deliberately thin glue: authentication and request shaping belong to the
// fronting API layer, which calls these same operations.
type handler struct {
	reservations *reservation.Usecase
	orders       order.Repository
	fills        fill.Repository
	balances     balance.Repository
	logger       logger.Interface
}

func newHandler(reservations *reservation.Usecase, orders order.Repository, fills fill.Repository, balances balance.Repository, log logger.Interface) *handler {
	return &handler{
		reservations: reservations,
		orders:       orders,
		fills:        fills,
		balances:     balances,
		logger:       log,
	}
}

func (h *handler) register(r *mux.Router) {
	r.HandleFunc("/v1/orders", h.placeOrder).Methods(http.MethodPost)
	r.HandleFunc("/v1/orders/{id}", h.getOrder).Methods(http.MethodGet)
	r.HandleFunc("/v1/orders/{id}", h.cancelOrder).Methods(http.MethodDelete)
	r.HandleFunc("/v1/orders/{id}/fills", h.listFills).Methods(http.MethodGet)
	r.HandleFunc("/v1/balances/{userID}/{asset}", h.getBalance).Methods(http.MethodGet)
}

type placeOrderPayload struct {
	UserID   string  `json:"user_id"`
	Market   string  `json:"market"`
	Side     string  `json:"side"`
	Type     string  `json:"type"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

func (h *handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := util.WithRequestID(r.Context(), r.Header.Get("X-Request-Id"))

	var payload placeOrderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	o, err := h.reservations.PlaceOrder(ctx, reservation.PlaceOrderRequest{
		UserID:   payload.UserID,
		Market:   payload.Market,
		Side:     order.Side(payload.Side),
		Type:     order.Type(payload.Type),
		Price:    payload.Price,
		Quantity: payload.Quantity,
	})
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, o)
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := util.WithRequestID(r.Context(), r.Header.Get("X-Request-Id"))

	o, err := h.orders.GetByID(ctx, mux.Vars(r)["id"])
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

func (h *handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := util.WithRequestID(r.Context(), r.Header.Get("X-Request-Id"))

	if err := h.reservations.CancelOrder(ctx, mux.Vars(r)["id"]); err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listFills(w http.ResponseWriter, r *http.Request) {
	ctx := util.WithRequestID(r.Context(), r.Header.Get("X-Request-Id"))

	fills, err := h.fills.ListByOrder(ctx, mux.Vars(r)["id"])
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fills)
}

func (h *handler) getBalance(w http.ResponseWriter, r *http.Request) {
	ctx := util.WithRequestID(r.Context(), r.Header.Get("X-Request-Id"))

	vars := mux.Vars(r)
	b, err := h.balances.Get(ctx, vars["userID"], vars["asset"])
	if err != nil {
		h.writeDomainError(ctx, w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

func (h *handler) writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	code := errors.Code(err)
	status := http.StatusInternalServerError

	switch code {
	case errors.ErrInvalidQuantity, errors.ErrInvalidPrice:
		status = http.StatusBadRequest
	case errors.ErrInsufficientFunds, errors.ErrInsufficientHoldings:
		status = http.StatusUnprocessableEntity
	case errors.ErrOrderNotFound:
		status = http.StatusNotFound
	case errors.ErrMarketDataUnavailable:
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, err, logger.Field{Key: "action", Value: "http_handler"})
		h.writeError(w, status, "internal_error", "internal error")
		return
	}
	h.writeError(w, status, string(code), err.Error())
}

func (h *handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
