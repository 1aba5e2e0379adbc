package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

// Handler exposes balance and financial statement endpoints.
type Handler struct {
	logger     *slog.Logger
	calculator *Calculator
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, calculator *Calculator) *Handler {
	return &Handler{logger: logger, calculator: calculator}
}

// MountAccountRoutes registers balance routes under an accounts router.
func (h *Handler) MountAccountRoutes(r chi.Router) {
	r.Get("/{id}/balance", h.AccountBalance)
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.TrialBalance)
	r.Get("/profit-loss", h.ProfitAndLoss)
	r.Get("/balance-sheet", h.BalanceSheet)
}

type balanceResponse struct {
	AccountID int64      `json:"account_id"`
	AsOf      *time.Time `json:"as_of,omitempty"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	Balance   string     `json:"balance"`
}

func (h *Handler) AccountBalance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(chi.URLParam(r, "id"), "account id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
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
	resp := balanceResponse{AccountID: id}
	if !start.IsZero() || !end.IsZero() {
		if start.IsZero() || end.IsZero() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start and end are both required")
			return
		}
		balance, err := h.calculator.GetAccountBalanceForPeriod(r.Context(), id, start, end)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		resp.Start, resp.End, resp.Balance = &start, &end, balance.StringFixed(2)
		httpx.JSON(w, http.StatusOK, resp)
		return
	}
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	balance, err := h.calculator.GetAccountBalance(r.Context(), id, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp.AsOf, resp.Balance = &asOf, balance.StringFixed(2)
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	tb, err := h.calculator.TrialBalance(r.Context(), asOf)
	if err != nil {
		h.logger.Error("trial balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) BalanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	bs, err := h.calculator.BalanceSheet(r.Context(), asOf)
	if err != nil {
		h.logger.Error("balance sheet", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bs)
}

func (h *Handler) ProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
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
	if start.IsZero() || end.IsZero() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start and end are required")
		return
	}
	pl, err := h.calculator.ProfitAndLoss(r.Context(), start, end)
	if err != nil {
		h.logger.Error("profit and loss", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	asOf, err := httpx.DateParam(r.URL.Query().Get("as_of"), "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return time.Time{}, false
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	return asOf, true
}
