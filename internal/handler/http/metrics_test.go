package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsMiddleware_RecordsStatusAndDuration(t *testing.T) {
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/health", "201"))
	handler.ServeHTTP(w, req)
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/health", "201"))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, before+1, after)
}

func TestMetricsMiddleware_DefaultsStatusOK(t *testing.T) {
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsHandler_ExposesPrometheusFormat(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	MetricsHandler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
}

func TestRecordItemsFetched(t *testing.T) {
	before := testutil.ToFloat64(itemsFetchedTotal.WithLabelValues("weibo"))
	RecordItemsFetched("weibo", 3)
	after := testutil.ToFloat64(itemsFetchedTotal.WithLabelValues("weibo"))

	assert.Equal(t, before+3, after)
}

func TestRecordAnalysisRun(t *testing.T) {
	beforeSuccess := testutil.ToFloat64(analysisRunsTotal.WithLabelValues("success"))
	RecordAnalysisRun(true)
	assert.Equal(t, beforeSuccess+1, testutil.ToFloat64(analysisRunsTotal.WithLabelValues("success")))

	beforeFailure := testutil.ToFloat64(analysisRunsTotal.WithLabelValues("failure"))
	RecordAnalysisRun(false)
	assert.Equal(t, beforeFailure+1, testutil.ToFloat64(analysisRunsTotal.WithLabelValues("failure")))
}

func TestRecordFetchDuration(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordFetchDuration("plain_http", 150*time.Millisecond)
	})
}

func TestRecordAnalysisDuration(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordAnalysisDuration(2 * time.Second)
	})
}

func TestUpdateCacheEntriesTotal(t *testing.T) {
	UpdateCacheEntriesTotal(42)
	assert.Equal(t, float64(42), testutil.ToFloat64(cacheEntriesTotal))
}
