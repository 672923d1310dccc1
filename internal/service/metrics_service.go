package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/lms-api/internal/dto"
	"github.com/noah-isme/lms-api/internal/gamification"
	"github.com/noah-isme/lms-api/internal/models"
)

// MetricsService owns the Prometheus registry and keeps lightweight counters for the admin stats snapshot.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheWrite        prometheus.Observer
	cacheHitRatio     prometheus.Gauge
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	lessonsCompleted  prometheus.Counter
	badgesAwarded     *prometheus.CounterVec
	enrollments       *prometheus.CounterVec
	exportJobs        *prometheus.CounterVec
	courseTransitions *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	lessonCount          uint64
	badgeCount           uint64
}

// NewMetricsService registers the HTTP, cache and learning collectors.
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	lessonsCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lms_lessons_completed_total",
		Help: "Lesson completions recorded for the first time",
	})

	badgesAwarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_badges_awarded_total",
		Help: "Badges awarded by tier",
	}, []string{"tier"})

	enrollments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_enrollments_total",
		Help: "Enrollment state changes by resulting status",
	}, []string{"status"})

	exportJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_export_jobs_total",
		Help: "Gradebook export jobs by terminal status",
	}, []string{"status"})

	courseTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_course_transitions_total",
		Help: "Course moderation transitions by resulting status",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		lessonsCompleted, badgesAwarded, enrollments, exportJobs, courseTransitions, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHitRatio:     cacheHitRatio,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		lessonsCompleted:  lessonsCompleted,
		badgesAwarded:     badgesAwarded,
		enrollments:       enrollments,
		exportJobs:        exportJobs,
		courseTransitions: courseTransitions,
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
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache lookup and refreshes the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// LessonCompleted counts a first-time completion.
func (m *MetricsService) LessonCompleted() {
	if m == nil {
		return
	}
	m.lessonsCompleted.Inc()
	atomic.AddUint64(&m.lessonCount, 1)
}

// BadgeAwarded counts a newly created badge.
func (m *MetricsService) BadgeAwarded(tier gamification.Tier) {
	if m == nil {
		return
	}
	m.badgesAwarded.WithLabelValues(string(tier)).Inc()
	atomic.AddUint64(&m.badgeCount, 1)
}

// EnrollmentChanged counts an enrollment entering status.
func (m *MetricsService) EnrollmentChanged(status models.EnrollmentStatus) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(string(status)).Inc()
}

// ExportFinished counts an export job reaching a terminal status.
func (m *MetricsService) ExportFinished(status models.ExportStatus) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(string(status)).Inc()
}

// CourseTransitioned counts a moderation transition.
func (m *MetricsService) CourseTransitioned(status models.CourseStatus) {
	if m == nil {
		return
	}
	m.courseTransitions.WithLabelValues(string(status)).Inc()
}

// Snapshot returns the process counters for the admin stats endpoint.
func (m *MetricsService) Snapshot() dto.RuntimeMetrics {
	if m == nil {
		return dto.RuntimeMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return dto.RuntimeMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            ratio,
		LessonsCompleted:         atomic.LoadUint64(&m.lessonCount),
		BadgesAwarded:            atomic.LoadUint64(&m.badgeCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
