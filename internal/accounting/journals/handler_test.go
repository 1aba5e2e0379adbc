package journals

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type guardStub struct {
	keys    map[string]bool
	deleted []string
}

func (g *guardStub) CheckAndInsert(_ context.Context, key, module string) error {
	if g.keys[module+"/"+key] {
		return internalShared.ErrIdempotencyConflict
	}
	g.keys[module+"/"+key] = true
	return nil
}

func (g *guardStub) Delete(_ context.Context, key, module string) error {
	delete(g.keys, module+"/"+key)
	g.deleted = append(g.deleted, module+"/"+key)
	return nil
}

func newTestRouter(t *testing.T, guard IdempotencyGuard) (http.Handler, *memoryRepo) {
	t.Helper()
	svc, repo, _ := newTestService(t)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, guard)
	r := chi.NewRouter()
	r.Route("/journals", h.MountRoutes)
	return r, repo
}

func createRequestFor(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/journals/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpx.HeaderUserID, "7")
	if key != "" {
		req.Header.Set(httpx.HeaderIdempotencyKey, key)
	}
	return req
}

const saleBody = `{"entry_date":"2025-03-10","description":"Cash sale","post":true,"lines":[
	{"account_id":1,"debit":"100.00"},
	{"account_id":2,"credit":"100.00"}]}`

func TestCreateHandlerRecordsAndPosts(t *testing.T) {
	router, repo := newTestRouter(t, &guardStub{keys: map[string]bool{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, createRequestFor(saleBody, ""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got struct {
		ID       int64  `json:"id"`
		EntryNo  string `json:"entry_no"`
		IsPosted bool   `json:"is_posted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.True(t, got.IsPosted)
	require.NotEmpty(t, got.EntryNo)
	require.Len(t, repo.entries, 1)
}

func TestCreateHandlerRejectsReplayedIdempotencyKey(t *testing.T) {
	guard := &guardStub{keys: map[string]bool{}}
	router, repo := newTestRouter(t, guard)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, createRequestFor(saleBody, "sale-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, createRequestFor(saleBody, "sale-1"))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Len(t, repo.entries, 1)
}

func TestCreateHandlerReleasesKeyOnFailure(t *testing.T) {
	guard := &guardStub{keys: map[string]bool{}}
	router, repo := newTestRouter(t, guard)

	unbalanced := `{"entry_date":"2025-03-10","lines":[
		{"account_id":1,"debit":"100.00"},
		{"account_id":2,"credit":"90.00"}]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, createRequestFor(unbalanced, "sale-2"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, []string{"journals/sale-2"}, guard.deleted)
	require.Empty(t, repo.entries)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, createRequestFor(saleBody, "sale-2"))
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateHandlerRequiresActor(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	req := createRequestFor(saleBody, "")
	req.Header.Del(httpx.HeaderUserID)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func expandRequestFor(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/recurring/expand", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpx.HeaderUserID, "7")
	return req
}

func newRecurringRouter(t *testing.T) (http.Handler, *Service, *memoryRepo) {
	t.Helper()
	svc, repo, _ := newTestService(t)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, nil)
	r := chi.NewRouter()
	r.Route("/recurring", h.MountRecurringRoutes)
	return r, svc, repo
}

func TestExpandHandlerReportsLoadFailure(t *testing.T) {
	router, _, repo := newRecurringRouter(t)
	repo.dueErr = errors.New("connection refused")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, expandRequestFor(`{"as_of":"2025-03-31"}`))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestExpandHandlerReturnsPatternFailures(t *testing.T) {
	router, svc, repo := newRecurringRouter(t)
	ctx := context.Background()
	template, err := svc.CreateJournalEntry(ctx, saleInput(day(2025, 3, 15), "40"))
	require.NoError(t, err)
	pattern, err := svc.CreateRecurringPattern(ctx, CreatePatternInput{
		TemplateEntryID: template.ID, Frequency: FrequencyMonthly, StartDate: day(2025, 3, 15), UserID: userID,
	})
	require.NoError(t, err)
	repo.setStatus(3, periods.PeriodStatusClosed)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, expandRequestFor(`{"as_of":"2025-03-31"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got ExpansionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Empty(t, got.Created)
	require.Contains(t, got.Failed, pattern.ID)
}
