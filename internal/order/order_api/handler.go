package order_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ms-delivery/internal/auth"
	"ms-delivery/internal/lifecycle"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
	"ms-delivery/internal/order"
	"ms-delivery/internal/storeinfo"
	"ms-delivery/internal/utils"
)

type Handler struct {
	OrderService *order.OrderService
	StoreInfo    *storeinfo.Service
	Logger       *logger.Logger
}

func NewHandler(orderService *order.OrderService, storeInfo *storeinfo.Service, log *logger.Logger) *Handler {
	return &Handler{
		OrderService: orderService,
		StoreInfo:    storeInfo,
		Logger:       log,
	}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrValidation), errors.Is(err, storeinfo.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrStaleStatus):
		return http.StatusConflict
	case errors.Is(err, order.ErrNotOwner), errors.Is(err, order.ErrForbidden), errors.Is(err, storeinfo.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		utils.WriteError(w, status, op+" failed", errors.New("internal error"))
		return
	}
	h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	utils.WriteError(w, status, op+" rejected", err)
}

func (h *Handler) respond(w http.ResponseWriter, op string, status int, v interface{}) {
	if err := utils.WriteJSON(w, status, v); err != nil {
		h.Logger.Error("API", fmt.Sprintf("%s: failed to encode response: %v", op, err))
	}
}

func actorOf(r *http.Request) models.Actor {
	actor, _ := auth.ActorFrom(r.Context())
	return actor
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req models.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	placed, err := h.OrderService.PlaceOrder(r.Context(), req)
	if err != nil {
		h.fail(w, "PlaceOrder", err)
		return
	}
	h.respond(w, "PlaceOrder", http.StatusCreated, placed)
}

// ListOrders accepts ?status=a,b and ?limit=n.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var filter models.OrderFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			s, err := lifecycle.Parse(strings.TrimSpace(part))
			if err != nil {
				utils.WriteError(w, http.StatusBadRequest, "Invalid status filter", err)
				return
			}
			filter.Statuses = append(filter.Statuses, s)
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			utils.WriteError(w, http.StatusBadRequest, "Invalid limit", fmt.Errorf("limit %q", raw))
			return
		}
		filter.Limit = n
	}

	orders, err := h.OrderService.ListOrders(r.Context(), filter)
	if err != nil {
		h.fail(w, "ListOrders", err)
		return
	}
	h.respond(w, "ListOrders", http.StatusOK, orders)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	found, err := h.OrderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.fail(w, "GetOrder", err)
		return
	}
	h.respond(w, "GetOrder", http.StatusOK, found)
}

func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	var req models.StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	updated, err := h.OrderService.SetStatus(r.Context(), actorOf(r), orderID, req.Status)
	if err != nil {
		h.fail(w, "SetStatus", err)
		return
	}
	h.respond(w, "SetStatus", http.StatusOK, updated)
}

// Claim answers 200 both ways; a lost race is claimed=false.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	won, err := h.OrderService.Claim(r.Context(), actorOf(r), orderID)
	if err != nil {
		h.fail(w, "Claim", err)
		return
	}
	h.respond(w, "Claim", http.StatusOK, models.ClaimResponse{OrderID: orderID, Claimed: won})
}

func (h *Handler) MarkArrived(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	updated, err := h.OrderService.MarkArrived(r.Context(), actorOf(r), orderID)
	if err != nil {
		h.fail(w, "MarkArrived", err)
		return
	}
	h.respond(w, "MarkArrived", http.StatusOK, updated)
}

func (h *Handler) CompleteDelivery(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	updated, err := h.OrderService.CompleteDelivery(r.Context(), actorOf(r), orderID)
	if err != nil {
		h.fail(w, "CompleteDelivery", err)
		return
	}
	h.respond(w, "CompleteDelivery", http.StatusOK, updated)
}

func (h *Handler) GetStoreInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.StoreInfo.Get(r.Context())
	if err != nil {
		h.fail(w, "GetStoreInfo", err)
		return
	}
	h.respond(w, "GetStoreInfo", http.StatusOK, info)
}

func (h *Handler) UpdateStoreInfo(w http.ResponseWriter, r *http.Request) {
	var upd models.StoreInfoUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	info, err := h.StoreInfo.Update(r.Context(), actorOf(r), upd)
	if err != nil {
		h.fail(w, "UpdateStoreInfo", err)
		return
	}
	h.respond(w, "UpdateStoreInfo", http.StatusOK, info)
}
