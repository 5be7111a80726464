package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the storefront Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	remindersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "abandonment",
			Name:      "reminders_sent_total",
			Help:      "Cart reminders sent, by target stage.",
		},
		[]string{"stage"},
	)

	reminderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "abandonment",
			Name:      "reminder_failures_total",
			Help:      "Cart reminders that failed, by target stage and reason.",
		},
		[]string{"stage", "reason"},
	)

	recordsCleaned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "abandonment",
			Name:      "records_cleaned_total",
			Help:      "Resolved abandonment records removed by cleanup.",
		},
	)

	trackingFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "abandonment",
			Name:      "tracking_failures_total",
			Help:      "Cart mutations whose abandonment tracking failed.",
		},
	)

	taskRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "scheduler",
			Name:      "task_runs_total",
			Help:      "Scheduled task executions, by task and outcome.",
		},
		[]string{"task", "outcome"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "scheduler",
			Name:      "task_duration_seconds",
			Help:      "Duration of scheduled task executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"task"},
	)

	mailSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "mail",
			Name:      "sends_total",
			Help:      "Mail delivery attempts, by host and result.",
		},
		[]string{"host", "result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		remindersSent,
		reminderFailures,
		recordsCleaned,
		trackingFailures,
		taskRuns,
		taskDuration,
		mailSends,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := CanonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordReminderSent counts a delivered reminder for the stage it advanced to.
func RecordReminderSent(stage string) {
	remindersSent.WithLabelValues(stage).Inc()
}

// RecordReminderFailure counts a reminder that left its record unchanged.
func RecordReminderFailure(stage, reason string) {
	reminderFailures.WithLabelValues(stage, reason).Inc()
}

// RecordCleanup counts records removed by one cleanup pass.
func RecordCleanup(removed int64) {
	if removed > 0 {
		recordsCleaned.Add(float64(removed))
	}
}

// RecordTrackingFailure counts a swallowed tracking error.
func RecordTrackingFailure() {
	trackingFailures.Inc()
}

// RecordTaskRun records one scheduled task execution.
func RecordTaskRun(task string, duration time.Duration, success bool) {
	if task == "" {
		task = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	taskRuns.WithLabelValues(task, outcome).Inc()
	taskDuration.WithLabelValues(task).Observe(duration.Seconds())
}

// RecordMailSend records one delivery attempt outcome.
func RecordMailSend(host string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	mailSends.WithLabelValues(host, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// CanonicalPath collapses identifiers out of a request path so label
// cardinality stays bounded.
func CanonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "products", "orders", "wishlist":
		if len(parts) > 1 {
			return "/" + parts[0] + "/:id"
		}
	case "cart":
		if len(parts) > 2 {
			return "/cart/items/:id"
		}
	case "admin":
		if len(parts) < 2 {
			return "/admin"
		}
		switch parts[1] {
		case "products", "orders", "users":
			if len(parts) > 2 {
				return "/admin/" + parts[1] + "/:id"
			}
		case "scheduler":
			if len(parts) > 3 {
				return "/admin/scheduler/:name/" + parts[3]
			}
		}
		return "/" + strings.Join(parts, "/")
	}
	return "/" + strings.Join(parts, "/")
}
