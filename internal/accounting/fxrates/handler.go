package fxrates

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.Get)
	r.Put("/", h.Save)
}

type saveRequest struct {
	From string          `json:"from" validate:"required,len=3"`
	To   string          `json:"to" validate:"required,len=3"`
	Date string          `json:"date" validate:"required,datetime=2006-01-02"`
	Rate decimal.Decimal `json:"rate"`
}

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	if _, err := httpx.ActorID(r); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req saveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := httpx.DateParam(req.Date, "date")
	rate, err := h.service.SaveRate(r.Context(), req.From, req.To, date, req.Rate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}

// Get answers a single lookup (?from&to&date) or, with start and end, the
// stored history of the pair.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	start, err := httpx.DateParam(q.Get("start"), "start")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	end, err := httpx.DateParam(q.Get("end"), "end")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !start.IsZero() || !end.IsZero() {
		if end.IsZero() {
			end = time.Now()
		}
		rates, err := h.service.ListRates(r.Context(), from, to, start, end)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, rates)
		return
	}
	date, err := httpx.DateParam(q.Get("date"), "date")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if date.IsZero() {
		date = time.Now()
	}
	rate, err := h.service.GetRateForDate(r.Context(), from, to, date)
	if err != nil {
		h.logger.Error("fx rate lookup", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if rate == nil {
		httpx.RespondError(w, MissingRate(from, to, date))
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}
