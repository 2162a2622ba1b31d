// Package api exposes the classroom monitor over HTTP using go-chi.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"classroom-monitor/internal/classroom"
	"classroom-monitor/internal/enrollment"
	"classroom-monitor/internal/platform/metrics"
	"classroom-monitor/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const maxEnrollBody = 32 << 20

// Monitor is the live-session side of the service.
type Monitor interface {
	Stream(ctx context.Context, yield func(jpeg []byte) error) error
	CurrentStudents() classroom.Snapshot
	Reload(ctx context.Context) (int, error)
}

// Streamer produces JPEG frames until ctx ends or the source fails.
type Streamer interface {
	Stream(ctx context.Context, yield func(jpeg []byte) error) error
}

// Enroller stores and removes enrollment data.
type Enroller interface {
	Enroll(ctx context.Context, req enrollment.Request) (enrollment.Result, error)
	DeleteAll() (int, error)
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// Handler exposes the monitor HTTP endpoints.
type Handler struct {
	monitor  Monitor
	teacher  Streamer
	enroll   Enroller
	reports  *report.Reader
	events   *classroom.EventLog
	health   HealthChecker
	log      *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	pushInterval time.Duration
}

// Deps are the collaborators of a Handler. TeacherFeed, Health and Metrics
// may be nil; without TeacherFeed /teacher_video_feed is not mounted.
type Deps struct {
	Monitor     Monitor
	TeacherFeed Streamer
	Enroller    Enroller
	Reports     *report.Reader
	Events      *classroom.EventLog
	Health      HealthChecker
	Log         *slog.Logger
	Metrics     *metrics.Metrics

	// PushInterval is how often /ws/students sends the snapshot (default 1s).
	PushInterval time.Duration
}

// NewHandler returns a Handler over d.
func NewHandler(d Deps) *Handler {
	if d.PushInterval <= 0 {
		d.PushInterval = time.Second
	}
	return &Handler{
		monitor: d.Monitor,
		teacher: d.TeacherFeed,
		enroll:  d.Enroller,
		reports: d.Reports,
		events:  d.Events,
		health:  d.Health,
		log:     d.Log,
		metrics: d.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		pushInterval: d.PushInterval,
	}
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	r.Get("/video_feed", h.VideoFeed)
	if h.teacher != nil {
		r.Get("/teacher_video_feed", h.TeacherVideoFeed)
	}
	r.Get("/ws/students", h.StudentsWS)
	r.Route("/students", func(r chi.Router) {
		r.Post("/", h.Enroll)
		r.Delete("/", h.DeleteAll)
		r.Get("/current", h.CurrentStudents)
		r.Post("/reload", h.Reload)
	})
	r.Route("/reports", func(r chi.Router) {
		r.Get("/", h.ListReports)
		r.Get("/files/{name}", h.ReportFile)
		r.Get("/{student_id}", h.ReportRows)
		r.Get("/{student_id}/summary", h.ReportSummary)
	})
}

// CurrentStudents handles GET /students/current.
func (h *Handler) CurrentStudents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.CurrentStudents())
}

type enrollBody struct {
	Name       string   `json:"name"`
	RegID      string   `json:"reg_id"`
	ImagesData []string `json:"imagesData"`
}

// Enroll handles POST /students.
// Body: { "name": "Ada", "reg_id": "21BCE1", "imagesData": ["data:image/jpeg;base64,..."] }.
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	var body enrollBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxEnrollBody)).Decode(&body); err != nil {
		h.log.Debug("invalid enrollment body", slog.String("error", err.Error()))
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req := enrollment.Request{RegID: body.RegID, Name: body.Name}
	for i, s := range body.ImagesData {
		data, err := enrollment.DecodeDataURL(s)
		if err != nil {
			h.log.Debug("undecodable enrollment image", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		req.Images = append(req.Images, data)
	}

	res, err := h.enroll.Enroll(r.Context(), req)
	switch {
	case errors.Is(err, enrollment.ErrNoFaceFound):
		writeMessage(w, http.StatusBadRequest, "No faces detected in any image. Please try again.")
		return
	case errors.Is(err, enrollment.ErrInvalidRequest):
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.log.Error("enrollment failed", slog.String("error", err.Error()))
		writeMessage(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	if _, err := h.monitor.Reload(r.Context()); err != nil {
		h.log.Error("gallery reload after enrollment failed", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusCreated, res)
}

// Reload handles POST /students/reload.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	n, err := h.monitor.Reload(r.Context())
	if err != nil {
		h.log.Error("gallery reload failed", slog.String("error", err.Error()))
		writeMessage(w, http.StatusInternalServerError, "reload failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"identities": n})
}

// DeleteAll handles DELETE /students: removes every enrollment, empties the
// session log and reloads the now-empty gallery.
func (h *Handler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.enroll.DeleteAll()
	if err != nil {
		h.log.Error("delete enrollments failed", slog.String("error", err.Error()))
		writeMessage(w, http.StatusInternalServerError, "Failed to delete student data")
		return
	}
	if err := h.events.TruncateSessionLog(); err != nil {
		h.log.Error("truncate session log failed", slog.String("error", err.Error()))
		writeMessage(w, http.StatusInternalServerError, "Failed to delete student data")
		return
	}
	if _, err := h.monitor.Reload(r.Context()); err != nil {
		h.log.Error("gallery reload after delete failed", slog.String("error", err.Error()))
	}

	h.log.Info("all enrollments deleted", slog.Int("students", n))
	writeJSON(w, http.StatusOK, map[string]any{"message": "All student data deleted successfully.", "deleted": n})
}

// ListReports handles GET /reports.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	files, err := h.reports.List()
	if err != nil {
		h.log.Error("list reports failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": files})
}

// ReportRows handles GET /reports/{student_id}.
func (h *Handler) ReportRows(w http.ResponseWriter, r *http.Request) {
	id := classroom.StudentID(chi.URLParam(r, "student_id"))
	rows, err := h.reports.Rows(id)
	if err != nil {
		h.reportError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"student_id": id, "rows": rows})
}

// ReportSummary handles GET /reports/{student_id}/summary.
func (h *Handler) ReportSummary(w http.ResponseWriter, r *http.Request) {
	id := classroom.StudentID(chi.URLParam(r, "student_id"))
	s, err := h.reports.Summary(id)
	if err != nil {
		h.reportError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ReportFile handles GET /reports/files/{name}, serving the raw CSV.
func (h *Handler) ReportFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	f, err := h.reports.Open(name)
	if err != nil {
		h.reportError(w, classroom.StudentID(name), err)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	http.ServeContent(w, r, name, st.ModTime(), f)
}

func (h *Handler) reportError(w http.ResponseWriter, id classroom.StudentID, err error) {
	switch {
	case errors.Is(err, report.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "No report found for student ID: "+string(id))
	case errors.Is(err, classroom.ErrInvalidStudentID):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("read report failed", slog.String("student_id", string(id)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// Healthz handles GET /healthz. The inference sidecar, when configured, must
// be serving for the service to report healthy.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok", "inference": "disabled"}
	if h.health != nil {
		if err := h.health.Healthy(r.Context()); err != nil {
			resp["status"] = "degraded"
			resp["inference"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["inference"] = "serving"
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
