package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/internal/httpx"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	controller *Controller
	items      *ItemService
	logger     *logrus.Logger
}

func NewHandler(controller *Controller, items *ItemService, logger *logrus.Logger) *Handler {
	return &Handler{controller: controller, items: items, logger: logger}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/orders", h.CreateOrder).Methods("POST")
	r.HandleFunc("/orders", h.ListOrders).Methods("GET")
	r.HandleFunc("/orders/quote", h.Quote).Methods("POST")
	r.HandleFunc("/orders/courier-delivery", h.AssignCourierDelivery).Methods("POST")
	r.HandleFunc("/orders/{id:[0-9]+}", h.GetOrder).Methods("GET")
	r.HandleFunc("/orders/{id:[0-9]+}", h.UpdateOrder).Methods("PATCH")
	r.HandleFunc("/orders/{id:[0-9]+}/status", h.UpdateStatus).Methods("POST")
	r.HandleFunc("/orders/{id:[0-9]+}/cancel", h.Cancel).Methods("POST")
	r.HandleFunc("/orders/{id:[0-9]+}/resume", h.Resume).Methods("POST")
	r.HandleFunc("/orders/{id:[0-9]+}/payment", h.UpdatePayment).Methods("PATCH")
	r.HandleFunc("/orders/{id:[0-9]+}/payment/{state:paid|not-paid}", h.SetPaymentStatus).Methods("POST")
	r.HandleFunc("/orders/{id:[0-9]+}/{doc:public-offer|waiver}/code", h.SendCode).Methods("POST")
	r.HandleFunc("/orders/{id:[0-9]+}/{doc:public-offer|waiver}/accept", h.AcceptCode).Methods("POST")

	r.HandleFunc("/orders/{id:[0-9]+}/items", h.AddItem).Methods("POST")
	r.HandleFunc("/orders/{id:[0-9]+}/items", h.ListItems).Methods("GET")
	r.HandleFunc("/items/scan/{code}", h.ItemByScanCode).Methods("GET")
	r.HandleFunc("/items/{id:[0-9]+}", h.GetItem).Methods("GET")
	r.HandleFunc("/items/{id:[0-9]+}", h.DeleteItem).Methods("DELETE")
	r.HandleFunc("/items/{id:[0-9]+}/pickup", h.PickupItem).Methods("POST")
	r.HandleFunc("/items/{id:[0-9]+}/accept", h.AcceptItem).Methods("POST")
	r.HandleFunc("/items/{id:[0-9]+}/arrive", h.ArriveItem).Methods("POST")
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var in NewOrder
	if !httpx.Decode(w, r, h.logger, &in) {
		return
	}
	order, err := h.controller.CreateOrder(r.Context(), actor, in)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusCreated, order)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	view, err := h.controller.GetOrder(r.Context(), actor, id)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusOK, view)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := store.OrderFilter{
		WarehouseID:   httpx.QueryID(r, "warehouse_id"),
		DirectionID:   httpx.QueryID(r, "direction_id"),
		CourierID:     httpx.QueryID(r, "courier_id"),
		TransportType: models.TransportType(q.Get("transport_type")),
		Search:        q.Get("search"),
		Page:          store.Page{Page: httpx.QueryInt(r, "page", 1), Limit: httpx.QueryInt(r, "limit", 20)},
	}
	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, models.OrderStatus(strings.TrimSpace(s)))
		}
	}
	if t, err := time.Parse("2006-01-02", q.Get("from")); err == nil {
		filter.From = &t
	}
	if t, err := time.Parse("2006-01-02", q.Get("to")); err == nil {
		end := t.Add(24*time.Hour - time.Nanosecond)
		filter.To = &end
	}

	orders, total, err := h.controller.ListOrders(r.Context(), actor, filter, q.Get("group"))
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    orders,
		"total":   total,
		"page":    filter.Page.Page,
	})
}

func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var u OrderUpdate
	if !httpx.Decode(w, r, h.logger, &u) {
		return
	}
	order, err := h.controller.UpdateOrder(r.Context(), actor, id, u)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusOK, order)
}

type statusRequest struct {
	Status      models.OrderStatus `json:"status"`
	WarehouseID int64              `json:"warehouse_id,omitempty"`
	Reason      string             `json:"reason,omitempty"`
}

// UpdateStatus drives a whole-order transition chosen by the target status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !httpx.Decode(w, r, h.logger, &req) {
		return
	}

	ctx := r.Context()
	var (
		order *models.Order
		err   error
	)
	switch req.Status {
	case models.StatusCourierDeliveringToWarehouse:
		order, err = h.controller.MarkCourierDelivering(ctx, actor, id)
	case models.StatusAcceptedToWarehouse:
		order, err = h.controller.MarkAcceptedToWarehouse(ctx, actor, id, req.WarehouseID)
	case models.StatusInTransit:
		order, err = h.controller.MarkInTransit(ctx, actor, id)
	case models.StatusPartiallyInTransit:
		order, err = h.controller.MarkPartiallyInTransit(ctx, actor, id)
	case models.StatusDeliveringToRecipient:
		order, err = h.controller.MarkDeliveringToRecipient(ctx, actor, id)
	case models.StatusDelivered:
		order, err = h.controller.MarkDelivered(ctx, actor, id)
	case models.StatusNotDelivered:
		order, err = h.controller.MarkNotDelivered(ctx, actor, id, req.Reason)
	default:
		httpx.RespondWithMessage(w, http.StatusBadRequest, "Unsupported status: "+string(req.Status))
		return
	}
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusOK, order)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !httpx.Decode(w, r, h.logger, &req) {
		return
	}
	order, err := h.controller.Cancel(r.Context(), actor, id, req.Reason)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusOK, order)
}

func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	order, err := h.controller.Resume(r.Context(), actor, id)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusOK, order)
}

func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var u PaymentUpdate
	if !httpx.Decode(w, r, h.logger, &u) {
		return
	}
	payment, err := h.controller.UpdatePayment(r.Context(), actor, id, u)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusOK, payment)
}

func (h *Handler) SetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var (
		payment *models.Payment
		err     error
	)
	if mux.Vars(r)["state"] == "paid" {
		payment, err = h.controller.MarkPaid(r.Context(), actor, id)
	} else {
		payment, err = h.controller.MarkNotPaid(r.Context(), actor, id)
	}
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusOK, payment)
}

func (h *Handler) SendCode(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var err error
	if mux.Vars(r)["doc"] == "waiver" {
		err = h.controller.SendWaiverCode(r.Context(), actor, id)
	} else {
		err = h.controller.SendPublicOfferCode(r.Context(), actor, id)
	}
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"message": "Code sent",
	})
}

type codeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) AcceptCode(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if !httpx.Decode(w, r, h.logger, &req) {
		return
	}
	var (
		order *models.Order
		err   error
	)
	if mux.Vars(r)["doc"] == "waiver" {
		order, err = h.controller.AcceptWaiver(r.Context(), actor, id, req.Code)
	} else {
		order, err = h.controller.AcceptPublicOffer(r.Context(), actor, id, req.Code)
	}
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusOK, order)
}

type itemsRequest struct {
	ItemIDs []int64 `json:"item_ids"`
}

func (h *Handler) AssignCourierDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var req itemsRequest
	if !httpx.Decode(w, r, h.logger, &req) {
		return
	}
	orders, err := h.controller.AssignCourierDelivery(r.Context(), actor, req.ItemIDs)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusOK, orders)
}

// Quote is public: senders price a parcel before an order exists.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !httpx.Decode(w, r, h.logger, &req) {
		return
	}
	quote, err := h.controller.Quote(r.Context(), req)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusOK, quote)
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var in NewItem
	if !httpx.Decode(w, r, h.logger, &in) {
		return
	}
	item, err := h.items.AddItem(r.Context(), actor, id, in)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusCreated, item)
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	page := store.Page{Page: httpx.QueryInt(r, "page", 1), Limit: httpx.QueryInt(r, "limit", 20)}
	items, total, err := h.items.ListItems(r.Context(), actor, id, page)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    items,
		"total":   total,
		"page":    page.Page,
	})
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	item, err := h.items.GetItem(r.Context(), actor, id)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusOK, item)
}

func (h *Handler) ItemByScanCode(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	item, err := h.items.ItemByScanCode(r.Context(), actor, mux.Vars(r)["code"])
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusOK, item)
}

func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.items.DeleteItem(r.Context(), actor, id); err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PickupItem(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	item, err := h.items.MarkCourierDelivering(r.Context(), actor, id)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusOK, item)
}

type warehouseRequest struct {
	WarehouseID int64 `json:"warehouse_id"`
}

func (h *Handler) AcceptItem(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req warehouseRequest
	if !httpx.Decode(w, r, h.logger, &req) {
		return
	}
	item, err := h.items.AcceptToWarehouse(r.Context(), actor, id, req.WarehouseID)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusOK, item)
}

func (h *Handler) ArriveItem(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req warehouseRequest
	if !httpx.Decode(w, r, h.logger, &req) {
		return
	}
	item, err := h.items.ArriveToDestination(r.Context(), actor, id, req.WarehouseID)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, http.StatusOK, item)
}

// target resolves the acting user and the {id} path variable, answering
// the request itself when either is missing.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (auth.Actor, int64, bool) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return actor, 0, false
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondWithMessage(w, http.StatusBadRequest, "Invalid id")
		return actor, 0, false
	}
	return actor, id, true
}
