package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPath(t *testing.T) {
	tests := map[string]string{
		"":                              "/",
		"/":                             "/",
		"/products":                     "/products",
		"/products/123":                 "/products/:id",
		"/cart":                         "/cart",
		"/cart/items":                   "/cart/items",
		"/cart/items/abc":               "/cart/items/:id",
		"/orders/abc":                   "/orders/:id",
		"/admin/products/abc":           "/admin/products/:id",
		"/admin/scheduler":              "/admin/scheduler",
		"/admin/scheduler/cleanup/stop": "/admin/scheduler/:name/stop",
		"/admin/scheduler/stop-all":     "/admin/scheduler/stop-all",
		"/admin/abandonment/scan":       "/admin/abandonment/scan",
		"/admin/orders/o-1/status":      "/admin/orders/:id",
	}
	for in, want := range tests {
		assert.Equal(t, want, CanonicalPath(in), in)
	}
}

func TestHandlerExposesRecordedMetrics(t *testing.T) {
	RecordReminderSent("first")
	RecordTaskRun("cleanup", 20*time.Millisecond, true)
	RecordMailSend("smtp.example.com", false)

	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/products/42", nil))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `storefront_abandonment_reminders_sent_total{stage="first"}`))
	assert.True(t, strings.Contains(body, `storefront_scheduler_task_runs_total{outcome="success",task="cleanup"}`))
	assert.True(t, strings.Contains(body, `storefront_http_requests_total{method="GET",path="/products/:id",status="418"}`))
}
