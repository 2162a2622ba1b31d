// Package capture provides frame sources for the monitor: an HTTP MJPEG
// camera stream, and a local device when built with the gocv tag.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
)

// ErrNoFrame is returned when the device delivers nothing.
var ErrNoFrame = errors.New("no frame from capture device")

// MJPEG reads frames from a multipart/x-mixed-replace JPEG stream, the format
// IP cameras and phone webcam apps serve.
type MJPEG struct {
	body io.ReadCloser
	mr   *multipart.Reader
}

// OpenMJPEG connects to url. The stream lives as long as ctx. A nil client
// means http.DefaultClient.
func OpenMJPEG(ctx context.Context, url string, client *http.Client) (*MJPEG, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("connect %s: unexpected status %s", url, resp.Status)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		resp.Body.Close()
		return nil, fmt.Errorf("connect %s: not a multipart stream (%q)", url, resp.Header.Get("Content-Type"))
	}
	// Some cameras quote the boundary with a leading "--".
	boundary := strings.TrimPrefix(params["boundary"], "--")

	return &MJPEG{body: resp.Body, mr: multipart.NewReader(resp.Body, boundary)}, nil
}

// Read returns the next frame.
func (m *MJPEG) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	part, err := m.mr.NextPart()
	if err == io.EOF {
		return nil, ErrNoFrame
	}
	if err != nil {
		return nil, fmt.Errorf("next part: %w", err)
	}
	defer part.Close()

	img, err := jpeg.Decode(part)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// Close ends the stream.
func (m *MJPEG) Close() error {
	return m.body.Close()
}
