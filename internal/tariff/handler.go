package tariff

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jogardn/cargo-lifecycle/internal/httpx"
	"github.com/jogardn/cargo-lifecycle/internal/store"
	"github.com/jogardn/cargo-lifecycle/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	service *Service
	logger  *logrus.Logger
}

func NewHandler(service *Service, logger *logrus.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/tariffs", h.List).Methods("GET")
	r.HandleFunc("/tariffs/brackets", h.CreateBrackets).Methods("POST")
	r.HandleFunc("/tariffs/delivery", h.ListDelivery).Methods("GET")
	r.HandleFunc("/tariffs/delivery", h.SetDelivery).Methods("POST")
	r.HandleFunc("/tariffs/limits", h.SetLimit).Methods("PUT")
	r.HandleFunc("/tariffs/prices", h.UpdatePrices).Methods("PATCH")
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := store.TariffFilter{
		Type:        models.CalculationType(q.Get("calculation_type")),
		DirectionID: httpx.QueryID(r, "direction_id"),
		Limits:      q.Get("limits") == "true",
	}
	rows, err := h.service.List(r.Context(), actor, filter)
	h.reply(w, http.StatusOK, rows, err)
}

func (h *Handler) ListDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	calc := models.CalculationType(r.URL.Query().Get("calculation_type"))
	rows, err := h.service.ListDelivery(r.Context(), actor, calc, httpx.QueryID(r, "direction_id"))
	h.reply(w, http.StatusOK, rows, err)
}

func (h *Handler) CreateBrackets(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var req BracketRange
	if !httpx.Decode(w, r, h.logger, &req) {
		return
	}
	rows, err := h.service.CreateBrackets(r.Context(), actor, req)
	h.reply(w, http.StatusCreated, rows, err)
}

func (h *Handler) SetDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var req DeliveryRange
	if !httpx.Decode(w, r, h.logger, &req) {
		return
	}
	rows, err := h.service.SetDeliveryBrackets(r.Context(), actor, req)
	h.reply(w, http.StatusOK, rows, err)
}

type limitRequest struct {
	Type        models.CalculationType `json:"calculation_type"`
	DirectionID int64                  `json:"direction_id"`
	Price       decimal.Decimal        `json:"price"`
}

func (h *Handler) SetLimit(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var req limitRequest
	if !httpx.Decode(w, r, h.logger, &req) {
		return
	}
	row, err := h.service.SetLimit(r.Context(), actor, req.Type, req.DirectionID, req.Price)
	h.reply(w, http.StatusOK, row, err)
}

func (h *Handler) UpdatePrices(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var req []PriceUpdate
	if !httpx.Decode(w, r, h.logger, &req) {
		return
	}
	if err := h.service.UpdatePrices(r.Context(), actor, req); err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Prices updated",
	})
}

func (h *Handler) reply(w http.ResponseWriter, code int, data interface{}, err error) {
	if err != nil {
		httpx.RespondWithError(w, h.logger, err)
		return
	}
	httpx.RespondWithData(w, code, data)
}
