package shipping

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jogardn/cargo-lifecycle/internal/auth"
	"github.com/jogardn/cargo-lifecycle/internal/httpx"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	engine *Engine
	logger *logrus.Logger
}

func NewHandler(engine *Engine, logger *logrus.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/shipments", h.Create).Methods("POST")
	r.HandleFunc("/shipments", h.List).Methods("GET")
	r.HandleFunc("/shipments/{id:[0-9]+}", h.Get).Methods("GET")
	r.HandleFunc("/shipments/{id:[0-9]+}", h.Update).Methods("PATCH")
	r.HandleFunc("/shipments/{id:[0-9]+}", h.Delete).Methods("DELETE")
	r.HandleFunc("/shipments/{id:[0-9]+}/load", h.Load).Methods("POST")
	r.HandleFunc("/shipments/{id:[0-9]+}/start", h.StartTransit).Methods("POST")
	r.HandleFunc("/shipments/{id:[0-9]+}/finish", h.Finish).Methods("POST")
	r.HandleFunc("/shipments/{id:[0-9]+}/coordinates", h.UpdateCoordinates).Methods("PUT")
	r.HandleFunc("/shipments/{id:[0-9]+}/responses", h.Respond).Methods("POST")
	r.HandleFunc("/shipments/{id:[0-9]+}/responses", h.ListResponses).Methods("GET")
	r.HandleFunc("/shipments/{id:[0-9]+}/contract/code", h.SendContractCode).Methods("POST")
	r.HandleFunc("/shipments/{id:[0-9]+}/contract/accept", h.AcceptContract).Methods("POST")
	r.HandleFunc("/responses/{id:[0-9]+}/accept", h.AcceptResponse).Methods("POST")
	r.HandleFunc("/responses/{id:[0-9]+}/cancel", h.CancelResponse).Methods("POST")
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var in NewShipment
	if !httpx.Decode(w, r, h.logger, &in) {
		return
	}
	shipment, err := h.engine.Create(r.Context(), actor, in)
	h.reply(w, http.StatusCreated, shipment, err)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	shipment, err := h.engine.Get(r.Context(), actor, id)
	h.reply(w, http.StatusOK, shipment, err)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := store.ShipmentFilter{
		Status:      models.ShipmentStatus(q.Get("status")),
		Type:        models.TransportType(q.Get("shipping_type")),
		DriverID:    httpx.QueryID(r, "driver_id"),
		DirectionID: httpx.QueryID(r, "direction_id"),
		Page:        store.Page{Page: httpx.QueryInt(r, "page", 1), Limit: httpx.QueryInt(r, "limit", 20)},
	}
	shipments, total, err := h.engine.List(r.Context(), actor, filter)
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    shipments,
		"total":   total,
		"page":    filter.Page.Page,
	})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var u ShipmentUpdate
	if !httpx.Decode(w, r, h.logger, &u) {
		return
	}
	shipment, err := h.engine.Update(r.Context(), actor, id, u)
	h.reply(w, http.StatusOK, shipment, err)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.engine.Delete(r.Context(), actor, id); err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type loadRequest struct {
	ItemIDs []int64 `json:"item_ids"`
}

func (h *Handler) Load(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req loadRequest
	if !httpx.Decode(w, r, h.logger, &req) {
		return
	}
	result, err := h.engine.Load(r.Context(), actor, id, req.ItemIDs)
	h.reply(w, http.StatusOK, result, err)
}

func (h *Handler) StartTransit(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	shipment, err := h.engine.StartTransit(r.Context(), actor, id)
	h.reply(w, http.StatusOK, shipment, err)
}

func (h *Handler) Finish(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	shipment, err := h.engine.Finish(r.Context(), actor, id)
	h.reply(w, http.StatusOK, shipment, err)
}

type coordinatesRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (h *Handler) UpdateCoordinates(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req coordinatesRequest
	if !httpx.Decode(w, r, h.logger, &req) {
		return
	}
	shipment, err := h.engine.UpdateCoordinates(r.Context(), actor, id, req.Latitude, req.Longitude)
	h.reply(w, http.StatusOK, shipment, err)
}

func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	resp, err := h.engine.Respond(r.Context(), actor, id)
	h.reply(w, http.StatusCreated, resp, err)
}

func (h *Handler) ListResponses(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	rows, err := h.engine.ListResponses(r.Context(), actor, id, models.ResponseStatus(r.URL.Query().Get("status")))
	h.reply(w, http.StatusOK, rows, err)
}

func (h *Handler) AcceptResponse(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	resp, err := h.engine.AcceptResponse(r.Context(), actor, id)
	h.reply(w, http.StatusOK, resp, err)
}

func (h *Handler) CancelResponse(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	resp, err := h.engine.CancelResponse(r.Context(), actor, id)
	h.reply(w, http.StatusOK, resp, err)
}

func (h *Handler) SendContractCode(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.engine.SendDriverContractCode(r.Context(), actor, id); err != nil {
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

func (h *Handler) AcceptContract(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req codeRequest
	if !httpx.Decode(w, r, h.logger, &req) {
		return
	}
	shipment, err := h.engine.AcceptDriverContract(r.Context(), actor, id, req.Code)
	h.reply(w, http.StatusOK, shipment, err)
}

func (h *Handler) reply(w http.ResponseWriter, code int, data interface{}, err error) {
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, code, data)
}

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
