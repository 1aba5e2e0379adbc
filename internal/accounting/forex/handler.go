package forex

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Enqueuer schedules a revaluation on the worker.
type Enqueuer interface {
	EnqueueForexRevaluation(ctx context.Context, date time.Time, userID int64) (string, error)
}

// Handler exposes revaluation preview and booking.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer Enqueuer
}

// NewHandler builds the handler. With a nil enqueuer revaluations run inline.
func NewHandler(logger *slog.Logger, service *Service, enqueuer Enqueuer) *Handler {
	return &Handler{logger: logger, service: service, enqueuer: enqueuer}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/preview", h.Preview)
	r.Post("/", h.Revalue)
}

type revaluationRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req revaluationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := httpx.DateParam(req.Date, "date")
	preview, err := h.service.Compute(r.Context(), date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, preview)
}

func (h *Handler) Revalue(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req revaluationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := httpx.DateParam(req.Date, "date")
	if h.enqueuer != nil {
		id, err := h.enqueuer.EnqueueForexRevaluation(r.Context(), date, actor)
		if err != nil {
			h.logger.Error("enqueue forex revaluation", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": id, "date": req.Date})
		return
	}
	entry, err := h.service.CreateUnrealizedGainLossEntry(r.Context(), date, actor)
	if err != nil {
		h.logger.Error("forex revaluation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if entry == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}
