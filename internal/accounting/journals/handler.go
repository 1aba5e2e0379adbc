package journals

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const idempotencyModule = "journals"

// IdempotencyGuard deduplicates retried create requests.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

type Handler struct {
	service     *Service
	logger      *slog.Logger
	idempotency IdempotencyGuard
}

// NewHandler builds the journal API handler. idempotency may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency IdempotencyGuard) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency}
}

type lineRequest struct {
	AccountID    int64            `json:"account_id" validate:"required,gt=0"`
	Debit        decimal.Decimal  `json:"debit"`
	Credit       decimal.Decimal  `json:"credit"`
	Description  string           `json:"description" validate:"max=255"`
	TaxCode      string           `json:"tax_code" validate:"max=20"`
	TaxAmount    decimal.Decimal  `json:"tax_amount"`
	CurrencyCode string           `json:"currency_code" validate:"omitempty,len=3"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate"`
	Dimension1ID *int64           `json:"dimension1_id"`
	Dimension2ID *int64           `json:"dimension2_id"`
}

type createRequest struct {
	JournalType  string        `json:"journal_type" validate:"max=50"`
	EntryDate    string        `json:"entry_date" validate:"required,datetime=2006-01-02"`
	Description  string        `json:"description" validate:"max=500"`
	Reference    string        `json:"reference" validate:"max=100"`
	SourceType   string        `json:"source_type" validate:"max=50"`
	SourceID     *int64        `json:"source_id"`
	NumberPrefix string        `json:"number_prefix" validate:"max=10"`
	Post         bool          `json:"post"`
	Lines        []lineRequest `json:"lines" validate:"dive"`
}

type reverseRequest struct {
	ReversalDate string `json:"reversal_date" validate:"omitempty,datetime=2006-01-02"`
	Description  string `json:"description" validate:"max=500"`
}

type patternRequest struct {
	Name            string    `json:"name" validate:"max=100"`
	TemplateEntryID int64     `json:"template_entry_id" validate:"required,gt=0"`
	Frequency       Frequency `json:"frequency" validate:"required"`
	StartDate       string    `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate         string    `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

type expandRequest struct {
	AsOf string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{SourceType: q.Get("source_type")}
	if raw := q.Get("period_id"); raw != "" {
		id, err := httpx.Int64Param(raw, "period_id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.PeriodID = &id
	}
	if raw := q.Get("posted"); raw != "" {
		posted, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "posted must be true or false")
			return
		}
		filter.Posted = &posted
	}
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		d, err := httpx.DateParam(q.Get(name), name)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if !d.IsZero() {
			*dst = &d
		}
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	entries, err := h.service.ListJournalEntries(r.Context(), filter)
	if err != nil {
		h.logger.Error("list journals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(chi.URLParam(r, "id"), "journal id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.GetJournalEntry(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entryDate, _ := time.Parse(time.DateOnly, req.EntryDate)
	in := CreateInput{
		JournalType:  req.JournalType,
		EntryDate:    entryDate,
		Description:  req.Description,
		Reference:    req.Reference,
		SourceType:   req.SourceType,
		SourceID:     req.SourceID,
		UserID:       actor,
		NumberPrefix: req.NumberPrefix,
		Lines:        make([]LineInput, 0, len(req.Lines)),
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, LineInput(l))
	}

	key := r.Header.Get(httpx.HeaderIdempotencyKey)
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			if errors.Is(err, internalShared.ErrIdempotencyConflict) {
				httpx.RespondError(w, httpx.ErrDuplicate)
				return
			}
			h.logger.Error("idempotency check", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
	}

	var entry JournalEntry
	if req.Post {
		entry, err = h.service.RecordJournalEntry(r.Context(), in)
	} else {
		entry, err = h.service.CreateJournalEntry(r.Context(), in)
	}
	if err != nil {
		if key != "" && h.idempotency != nil {
			if derr := h.idempotency.Delete(r.Context(), key, idempotencyModule); derr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.PostJournalEntry(r.Context(), id, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req reverseRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	date, _ := httpx.DateParam(req.ReversalDate, "reversal_date")
	reversal, err := h.service.ReverseJournalEntry(r.Context(), ReverseInput{
		EntryID:      id,
		ReversalDate: date,
		Description:  req.Description,
		UserID:       actor,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteJournalEntry(r.Context(), id, actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := h.service.ListRecurringPatterns(r.Context())
	if err != nil {
		h.logger.Error("list recurring patterns", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, patterns)
}

func (h *Handler) CreatePattern(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req patternRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	start, _ := httpx.DateParam(req.StartDate, "start_date")
	in := CreatePatternInput{
		Name:            req.Name,
		TemplateEntryID: req.TemplateEntryID,
		Frequency:       req.Frequency,
		StartDate:       start,
		UserID:          actor,
	}
	if end, _ := httpx.DateParam(req.EndDate, "end_date"); !end.IsZero() {
		in.EndDate = &end
	}
	pattern, err := h.service.CreateRecurringPattern(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pattern)
}

func (h *Handler) Expand(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req expandRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	asOf, _ := httpx.DateParam(req.AsOf, "as_of")
	if asOf.IsZero() {
		asOf = time.Now()
	}
	result, err := h.service.ExpandRecurring(r.Context(), asOf, actor)
	if err != nil {
		if len(result.Failed) == 0 {
			h.logger.Error("recurring expansion", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		h.logger.Warn("recurring expansion finished with failures", slog.Any("error", err))
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	actor, err := httpx.ActorID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	id, err := httpx.Int64Param(chi.URLParam(r, "id"), "journal id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	return actor, id, true
}
