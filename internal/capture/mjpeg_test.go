package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
)

func serveFrames(t *testing.T, n int) *httptest.Server {
	t.Helper()
	var frame bytes.Buffer
	if err := jpeg.Encode(&frame, image.NewGray(image.Rect(0, 0, 8, 6)), nil); err != nil {
		t.Fatal(err)
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw := multipart.NewWriter(w)
		_ = mw.SetBoundary("frame")
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		for i := 0; i < n; i++ {
			pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"image/jpeg"}})
			if err != nil {
				return
			}
			_, _ = pw.Write(frame.Bytes())
		}
		_ = mw.Close()
	}))
}

func TestMJPEG_reads_frames_then_ErrNoFrame(t *testing.T) {
	srv := serveFrames(t, 2)
	defer srv.Close()

	src, err := OpenMJPEG(context.Background(), srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("OpenMJPEG: %v", err)
	}
	defer src.Close()

	for i := 0; i < 2; i++ {
		img, err := src.Read(context.Background())
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 6 {
			t.Errorf("unexpected frame size %v", img.Bounds())
		}
	}
	if _, err := src.Read(context.Background()); !errors.Is(err, ErrNoFrame) {
		t.Errorf("expected ErrNoFrame at end of stream, got %v", err)
	}
}

func TestOpenMJPEG_rejects_non_multipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	if _, err := OpenMJPEG(context.Background(), srv.URL, srv.Client()); err == nil {
		t.Error("expected an error for a non-multipart response")
	}
}

func TestOpenMJPEG_bad_status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := OpenMJPEG(context.Background(), srv.URL, srv.Client()); err == nil {
		t.Error("expected an error for a 503")
	}
}
