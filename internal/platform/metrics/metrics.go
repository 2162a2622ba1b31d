package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the classroom monitor.
// All methods are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal prometheus.Counter
	errorsTotal   prometheus.Counter

	framesProcessed  prometheus.Counter
	frameDuration    prometheus.Histogram
	facesDetected    prometheus.Counter
	facesRecognized  prometheus.Counter
	faceFailures     *prometheus.CounterVec
	attendanceMarked prometheus.Counter
	alertsEnqueued   prometheus.Counter
	alertsDropped    prometheus.Counter
	engagementRows   prometheus.Counter
	visibleStudents  prometheus.Gauge
	activeSessions   prometheus.Gauge
	enrolledStudents prometheus.Gauge
}

// New creates and registers Prometheus metrics for the monitor.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		framesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_frames_processed_total",
			Help: "Total number of frames run through the coordinator",
		}),
		frameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "classroom_frame_duration_seconds",
			Help:    "Wall time spent processing one frame, encode included",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		facesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_faces_detected_total",
			Help: "Total number of faces returned by the detector",
		}),
		facesRecognized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_faces_recognized_total",
			Help: "Total number of detected faces resolved to an enrolled student",
		}),
		faceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classroom_face_failures_total",
			Help: "Per-face or per-frame capability failures that were recovered",
		}, []string{"stage"}),
		attendanceMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_attendance_marked_total",
			Help: "Total number of students marked present",
		}),
		alertsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_alerts_enqueued_total",
			Help: "Total number of utterances handed to the speech queue",
		}),
		alertsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_alerts_dropped_total",
			Help: "Utterances evicted from a full speech queue",
		}),
		engagementRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "classroom_engagement_rows_total",
			Help: "Total number of engagement rows appended to student reports",
		}),
		visibleStudents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "classroom_visible_students",
			Help: "Students recognized in the most recent frame",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "classroom_active_sessions",
			Help: "Monitoring sessions currently streaming",
		}),
		enrolledStudents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "classroom_enrolled_embeddings",
			Help: "Embeddings loaded into the identity resolver",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.framesProcessed,
		m.frameDuration,
		m.facesDetected,
		m.facesRecognized,
		m.faceFailures,
		m.attendanceMarked,
		m.alertsEnqueued,
		m.alertsDropped,
		m.engagementRows,
		m.visibleStudents,
		m.activeSessions,
		m.enrolledStudents,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// ObserveFrame records one processed frame and its duration.
func (m *Metrics) ObserveFrame(d time.Duration) {
	if m == nil {
		return
	}
	m.framesProcessed.Inc()
	m.frameDuration.Observe(d.Seconds())
}

// AddFacesDetected adds n detected faces.
func (m *Metrics) AddFacesDetected(n int) {
	if m == nil {
		return
	}
	m.facesDetected.Add(float64(n))
}

// IncFacesRecognized increments the recognized face counter.
func (m *Metrics) IncFacesRecognized() {
	if m == nil {
		return
	}
	m.facesRecognized.Inc()
}

// IncFaceFailure records a recovered failure at stage ("detect", "emotion", "pose", "mesh", "log").
func (m *Metrics) IncFaceFailure(stage string) {
	if m == nil {
		return
	}
	m.faceFailures.WithLabelValues(stage).Inc()
}

// IncAttendanceMarked increments the attendance counter.
func (m *Metrics) IncAttendanceMarked() {
	if m == nil {
		return
	}
	m.attendanceMarked.Inc()
}

// IncAlertsEnqueued increments the enqueued utterance counter.
func (m *Metrics) IncAlertsEnqueued() {
	if m == nil {
		return
	}
	m.alertsEnqueued.Inc()
}

// IncAlertsDropped increments the evicted utterance counter.
func (m *Metrics) IncAlertsDropped() {
	if m == nil {
		return
	}
	m.alertsDropped.Inc()
}

// IncEngagementRows increments the engagement row counter.
func (m *Metrics) IncEngagementRows() {
	if m == nil {
		return
	}
	m.engagementRows.Inc()
}

// SetVisibleStudents sets the visible students gauge.
func (m *Metrics) SetVisibleStudents(n int) {
	if m == nil {
		return
	}
	m.visibleStudents.Set(float64(n))
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// SetEnrolled sets the enrolled embeddings gauge.
func (m *Metrics) SetEnrolled(n int) {
	if m == nil {
		return
	}
	m.enrolledStudents.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
