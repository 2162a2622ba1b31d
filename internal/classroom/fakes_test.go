package classroom

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"classroom-monitor/internal/platform/logger"
)

var testLog = logger.Discard()

// recordingSpeaker remembers every utterance. If gate is non-nil, each Speak
// waits for a value on it (or ctx) before returning.
type recordingSpeaker struct {
	mu     sync.Mutex
	spoken []string
	gate   chan struct{}
}

func (s *recordingSpeaker) Speak(ctx context.Context, text string) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
	return nil
}

func (s *recordingSpeaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// fakeSource returns frames in order, then err (io.EOF-like) forever.
type fakeSource struct {
	mu     sync.Mutex
	frames []image.Image
	err    error
	closed bool
}

func (s *fakeSource) Read(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		if s.err == nil {
			return nil, errors.New("no more frames")
		}
		return nil, s.err
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// endlessSource returns the same frame until ctx is cancelled.
type endlessSource struct {
	frame image.Image
}

func (s endlessSource) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.frame, nil
}

func (endlessSource) Close() error { return nil }

type fakeDetector struct {
	faces []DetectedFace
	err   error
}

func (d fakeDetector) DetectFaces(ctx context.Context, frame image.Image) ([]DetectedFace, error) {
	return d.faces, d.err
}

type fakeClassifier struct {
	emotion Emotion
	err     error
}

func (c fakeClassifier) ClassifyEmotion(ctx context.Context, crop image.Image) (Emotion, error) {
	return c.emotion, c.err
}

type fakePose struct {
	pose Landmarks
}

func (p fakePose) EstimatePose(ctx context.Context, frame image.Image) (Landmarks, error) {
	return p.pose, nil
}

type fakeMesh struct {
	meshes []Landmarks
}

func (m fakeMesh) EstimateFaceMesh(ctx context.Context, frame image.Image) ([]Landmarks, error) {
	return m.meshes, nil
}

type staticGallery []Identity

func (g staticGallery) Load(ctx context.Context) ([]Identity, error) {
	return g, nil
}

func grayFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 90, G: 90, B: 90, A: 255})
		}
	}
	return img
}
