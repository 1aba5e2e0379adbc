package periods

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes fiscal year and period maintenance over JSON.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountYearRoutes registers the /fiscal-years subtree.
func (h *Handler) MountYearRoutes(r chi.Router) {
	r.Get("/", h.ListYears)
	r.Post("/", h.CreateYear)
	r.Get("/{id}", h.GetYear)
	r.Post("/{id}/close", h.CloseYear)
	r.Get("/{id}/periods", h.ListYearPeriods)
	r.Post("/{id}/periods", h.GenerateYearPeriods)
}

// MountPeriodRoutes registers the /periods subtree.
func (h *Handler) MountPeriodRoutes(r chi.Router) {
	r.Get("/current", h.Current)
	r.Get("/{id}", h.GetPeriod)
	r.Post("/{id}/close", h.transition(h.service.ClosePeriod))
	r.Post("/{id}/reopen", h.transition(h.service.ReopenPeriod))
	r.Post("/{id}/archive", h.transition(h.service.ArchivePeriod))
}

type createYearRequest struct {
	Name       string     `json:"name" validate:"required,max=64"`
	StartDate  string     `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate    string     `json:"end_date" validate:"required,datetime=2006-01-02"`
	PeriodType PeriodType `json:"period_type" validate:"omitempty,oneof=Month Quarter"`
}

type generateRequest struct {
	PeriodType PeriodType `json:"period_type" validate:"required,oneof=Month Quarter"`
}

func (h *Handler) ListYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.service.ListFiscalYears(r.Context())
	if err != nil {
		h.logger.Error("list fiscal years", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, years)
}

func (h *Handler) CreateYear(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createYearRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	start, _ := httpx.DateParam(req.StartDate, "start_date")
	end, _ := httpx.DateParam(req.EndDate, "end_date")
	year, err := h.service.CreateFiscalYearAndPeriods(r.Context(), CreateFiscalYearInput{
		Name:       req.Name,
		StartDate:  start,
		EndDate:    end,
		PeriodType: req.PeriodType,
		UserID:     actor,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, year)
}

func (h *Handler) GetYear(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(chi.URLParam(r, "id"), "fiscal year id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	year, err := h.service.GetFiscalYear(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, year)
}

func (h *Handler) ListYearPeriods(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(chi.URLParam(r, "id"), "fiscal year id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	periods, err := h.service.ListPeriods(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, periods)
}

func (h *Handler) CloseYear(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r, "fiscal year id")
	if !ok {
		return
	}
	year, err := h.service.CloseFiscalYear(r.Context(), id, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, year)
}

func (h *Handler) GenerateYearPeriods(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := actorAndID(w, r, "fiscal year id")
	if !ok {
		return
	}
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	periods, err := h.service.GeneratePeriods(r.Context(), id, req.PeriodType, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, periods)
}

func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	date, err := httpx.DateParam(r.URL.Query().Get("date"), "date")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := h.service.GetCurrentPeriod(r.Context(), date)
	if err != nil {
		h.logger.Error("current period", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if period == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no open fiscal period for date")
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(chi.URLParam(r, "id"), "period id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := h.service.GetPeriod(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) transition(fn func(context.Context, int64, int64) (FiscalPeriod, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := actorAndID(w, r, "period id")
		if !ok {
			return
		}
		period, err := fn(r.Context(), id, actor)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, period)
	}
}

func actorAndID(w http.ResponseWriter, r *http.Request, name string) (int64, int64, bool) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	id, err := httpx.Int64Param(chi.URLParam(r, "id"), name)
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	return actor, id, true
}
