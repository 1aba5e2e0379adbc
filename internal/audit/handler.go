package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// TimelineService is the read contract the handler needs.
type TimelineService interface {
	Timeline(ctx context.Context, filters TimelineFilters) (Result, error)
}

// Handler serves the audit trail as JSON.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
}

// NewHandler creates the audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers GET / under r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.timeline)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := httpx.DateParam(q.Get("from"), "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.DateParam(q.Get("to"), "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !to.IsZero() {
		// to is inclusive of the whole day.
		to = to.AddDate(0, 0, 1)
	}
	filters := TimelineFilters{
		From:     from,
		To:       to,
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
	}
	if raw := q.Get("actor_id"); raw != "" {
		if filters.ActorID, err = httpx.Int64Param(raw, "actor_id"); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
