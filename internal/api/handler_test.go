package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"capture-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	summary *service.PassSummary
	err     error
	calls   int
}

func (s *stubRunner) RunPass(_ context.Context) (*service.PassSummary, error) {
	s.calls++
	return s.summary, s.err
}

func newTestRouter(runner *stubRunner, cronKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(runner, cronKey).SetupRoutes(router)
	return router
}

func TestRunCapturePassRequiresCronKey(t *testing.T) {
	runner := &stubRunner{summary: &service.PassSummary{}}
	router := newTestRouter(runner, "top-secret")

	// Missing header
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cron/capture", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Wrong key
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/cron/capture", nil)
	req.Header.Set("x-cron-key", "wrong")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Zero(t, runner.calls, "no pass may run without authentication")
}

func TestRunCapturePassAcceptsApiKeyFallback(t *testing.T) {
	runner := &stubRunner{summary: &service.PassSummary{}}
	router := newTestRouter(runner, "top-secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cron/capture", nil)
	req.Header.Set("x-api-key", "top-secret")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, runner.calls)
}

func TestRunCapturePassReturnsSummary(t *testing.T) {
	runner := &stubRunner{summary: &service.PassSummary{
		Processed: 5,
		Captured:  3,
		Skipped:   1,
		Failed:    1,
		Errors:    []string{"order ORD-1: requires_payment_method"},
	}}
	router := newTestRouter(runner, "top-secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cron/capture", nil)
	req.Header.Set("x-cron-key", "top-secret")
	router.ServeHTTP(w, req)

	// Individual order failures still complete the batch with a 200.
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool                `json:"success"`
		Message string              `json:"message"`
		Data    service.PassSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.True(t, body.Success)
	assert.Equal(t, 5, body.Data.Processed)
	assert.Equal(t, 3, body.Data.Captured)
	assert.Equal(t, 1, body.Data.Skipped)
	assert.Equal(t, 1, body.Data.Failed)
	require.Len(t, body.Data.Errors, 1)
}

func TestRunCapturePassFatalErrorReturns500(t *testing.T) {
	runner := &stubRunner{err: errors.New("failed to query due orders")}
	router := newTestRouter(runner, "top-secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cron/capture", nil)
	req.Header.Set("x-cron-key", "top-secret")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRunCapturePassRejectsWhenKeyUnconfigured(t *testing.T) {
	runner := &stubRunner{summary: &service.PassSummary{}}
	router := newTestRouter(runner, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cron/capture", nil)
	req.Header.Set("x-cron-key", "")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, runner.calls)
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(&stubRunner{}, "k")

	for _, path := range []string{"/health", "/ready"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
