package periods

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(env *testEnv) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, env.svc)
	r := chi.NewRouter()
	r.Route("/api/vat/periods", handler.MountRoutes)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(tenantHeader, testTenant.String())
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreatePeriod(t *testing.T) {
	env := newTestEnv()
	router := newTestRouter(env)

	rec := doRequest(t, router, http.MethodPost, "/api/vat/periods",
		`{"start_date":"2025-03-01","end_date":"2025-03-31"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp periodResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusOpen, resp.Status)
	assert.Equal(t, "2025-03-01", resp.StartDate)
	assert.Equal(t, "2025-03-31", resp.EndDate)
}

func TestHandlerCreatePeriodOverlapConflict(t *testing.T) {
	env := newTestEnv()
	router := newTestRouter(env)

	body := `{"start_date":"2025-03-01","end_date":"2025-03-31"}`
	require.Equal(t, http.StatusCreated, doRequest(t, router, http.MethodPost, "/api/vat/periods", body).Code)

	rec := doRequest(t, router, http.MethodPost, "/api/vat/periods", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":409`)
}

func TestHandlerRequiresTenantHeader(t *testing.T) {
	env := newTestEnv()
	router := newTestRouter(env)

	req := httptest.NewRequest(http.MethodGet, "/api/vat/periods", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerCalculateAndShow(t *testing.T) {
	env := newTestEnv()
	env.agg.agg = standardOutputAgg("10000", "2000")
	router := newTestRouter(env)
	period := env.createPeriod(t, march)
	base := "/api/vat/periods/" + strconv.FormatInt(period.ID, 10)

	rec := doRequest(t, router, http.MethodPost, base+"/calculate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "2000.00", snap.PpPdv.Field105.StringFixed(2))

	rec = doRequest(t, router, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"snapshot"`)
	assert.Contains(t, rec.Body.String(), `"CALCULATED"`)
}

func TestHandlerCalculateWithAdjustments(t *testing.T) {
	env := newTestEnv()
	env.agg.agg = inputOnlyAgg("5000", "1000")
	router := newTestRouter(env)
	period := env.createPeriod(t, march)

	rec := doRequest(t, router, http.MethodPost,
		"/api/vat/periods/"+strconv.FormatInt(period.ID, 10)+"/calculate",
		`{"non_deductible_vat":"200","net_corrections":"50"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "850.00", snap.PpPdv.Field109.StringFixed(2))
}

func TestHandlerCalculateRejectsNegativeAdjustment(t *testing.T) {
	env := newTestEnv()
	router := newTestRouter(env)
	period := env.createPeriod(t, march)

	rec := doRequest(t, router, http.MethodPost,
		"/api/vat/periods/"+strconv.FormatInt(period.ID, 10)+"/calculate",
		`{"non_deductible_vat":"-10"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerLockedConflict(t *testing.T) {
	env := newTestEnv()
	env.agg.agg = standardOutputAgg("10000", "2000")
	router := newTestRouter(env)
	period := env.createPeriod(t, march)
	base := "/api/vat/periods/" + strconv.FormatInt(period.ID, 10)

	require.Equal(t, http.StatusOK, doRequest(t, router, http.MethodPost, base+"/calculate", "").Code)
	require.Equal(t, http.StatusOK, doRequest(t, router, http.MethodPost, base+"/lock", "").Code)

	rec := doRequest(t, router, http.MethodPost, base+"/calculate", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerSubmitFailureBadGateway(t *testing.T) {
	env := newTestEnv()
	env.agg.agg = standardOutputAgg("10000", "2000")
	env.filer.err = context.DeadlineExceeded
	router := newTestRouter(env)
	period := env.createPeriod(t, march)
	base := "/api/vat/periods/" + strconv.FormatInt(period.ID, 10)

	require.Equal(t, http.StatusOK, doRequest(t, router, http.MethodPost, base+"/calculate", "").Code)

	rec := doRequest(t, router, http.MethodPost, base+"/submit", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandlerDeclarationDownload(t *testing.T) {
	env := newTestEnv()
	env.agg.agg = standardOutputAgg("10000", "2000")
	router := newTestRouter(env)
	period := env.createPeriod(t, march)
	base := "/api/vat/periods/" + strconv.FormatInt(period.ID, 10)

	require.Equal(t, http.StatusOK, doRequest(t, router, http.MethodPost, base+"/calculate", "").Code)

	rec := doRequest(t, router, http.MethodGet, base+"/pppdv.xml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/xml")
	assert.True(t, strings.HasPrefix(rec.Body.String(), `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, rec.Body.String(), "<Polje105>2000.00</Polje105>")
}

func TestHandlerFullLifecycle(t *testing.T) {
	env := newTestEnv()
	env.agg.agg = standardOutputAgg("10000", "2000")
	router := newTestRouter(env)
	period := env.createPeriod(t, march)
	base := "/api/vat/periods/" + strconv.FormatInt(period.ID, 10)

	require.Equal(t, http.StatusOK, doRequest(t, router, http.MethodPost, base+"/calculate", "").Code)
	require.Equal(t, http.StatusOK, doRequest(t, router, http.MethodPost, base+"/submit", "").Code)

	rec := doRequest(t, router, http.MethodPost, base+"/settle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var settle settleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settle))
	assert.NotZero(t, settle.JournalEntryID)
	require.NotNil(t, settle.PaymentOrder)
	assert.Equal(t, "97", settle.PaymentOrder.Model)

	rec = doRequest(t, router, http.MethodPost, base+"/close", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"CLOSED"`)

	// closed is terminal
	assert.Equal(t, http.StatusConflict, doRequest(t, router, http.MethodPost, base+"/submit", "").Code)
}

func TestHandlerNotFound(t *testing.T) {
	env := newTestEnv()
	router := newTestRouter(env)

	rec := doRequest(t, router, http.MethodGet, "/api/vat/periods/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
