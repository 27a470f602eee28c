package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openuni/registrar-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the registrar
// engines and the HTTP layer.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	enrollments     *prometheus.CounterVec
	promotions      prometheus.Counter
	gradeSubmits    prometheus.Counter
	gradeChanges    *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	enrollments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrar_enrollments_total",
		Help: "Enrollments created, labelled by assigned status",
	}, []string{"status"})

	promotions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registrar_waitlist_promotions_total",
		Help: "Waitlisted enrollments promoted to enrolled",
	})

	gradeSubmits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registrar_grade_submissions_total",
		Help: "Grades successfully recorded",
	})

	gradeChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrar_grade_change_rulings_total",
		Help: "Grade change requests ruled on, labelled by outcome",
	}, []string{"outcome"})

	registry.MustRegister(requestDuration, requestTotal, enrollments, promotions, gradeSubmits, gradeChanges)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		enrollments:     enrollments,
		promotions:      promotions,
		gradeSubmits:    gradeSubmits,
		gradeChanges:    gradeChanges,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordEnrollment counts a created enrollment by its assigned status.
func (m *MetricsService) RecordEnrollment(status models.EnrollmentStatus) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(string(status)).Inc()
}

// RecordPromotion counts a waitlist promotion.
func (m *MetricsService) RecordPromotion() {
	if m == nil {
		return
	}
	m.promotions.Inc()
}

// RecordGradeSubmission counts a recorded grade.
func (m *MetricsService) RecordGradeSubmission() {
	if m == nil {
		return
	}
	m.gradeSubmits.Inc()
}

// RecordGradeChange counts a grade change ruling by outcome.
func (m *MetricsService) RecordGradeChange(status models.GradeChangeStatus) {
	if m == nil {
		return
	}
	m.gradeChanges.WithLabelValues(string(status)).Inc()
}
