package api

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"classroom-monitor/internal/classroom"
)

const mjpegBoundary = "frame"

// VideoFeed handles GET /video_feed: it runs a monitoring session for as long
// as the client stays connected and streams the annotated frames as MJPEG.
// Only one feed can run at a time; a second request gets 409.
func (h *Handler) VideoFeed(w http.ResponseWriter, r *http.Request) {
	h.serveMJPEG(w, r, h.monitor.Stream, "video feed")
}

// TeacherVideoFeed handles GET /teacher_video_feed: the captioned second
// camera, with no recognition.
func (h *Handler) TeacherVideoFeed(w http.ResponseWriter, r *http.Request) {
	h.serveMJPEG(w, r, h.teacher.Stream, "teacher feed")
}

// serveMJPEG writes the frames produced by stream as a multipart
// x-mixed-replace response. Errors before the first frame become a status code.
func (h *Handler) serveMJPEG(w http.ResponseWriter, r *http.Request,
	stream func(ctx context.Context, yield func(jpeg []byte) error) error, name string) {
	rc := http.NewResponseController(w)
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(mjpegBoundary); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	started := false
	err := stream(r.Context(), func(frame []byte) error {
		if !started {
			w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
			w.Header().Set("Cache-Control", "no-cache, no-store")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":   {"image/jpeg"},
			"Content-Length": {strconv.Itoa(len(frame))},
		})
		if err != nil {
			return err
		}
		if _, err := pw.Write(frame); err != nil {
			return err
		}
		return rc.Flush()
	})

	if started {
		if err != nil {
			h.log.Warn(name+" ended", slog.String("error", err.Error()))
		}
		_ = mw.Close()
		return
	}

	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, classroom.ErrSessionActive):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, classroom.ErrCaptureFailed):
		h.log.Error(name+" could not start", slog.String("error", err.Error()))
		writeMessage(w, http.StatusServiceUnavailable, "camera unavailable")
	default:
		h.log.Error(name+" failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}
