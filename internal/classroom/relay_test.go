package classroom

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"testing"
)

func TestRelay_Stream(t *testing.T) {
	t.Run("captions_every_frame", func(t *testing.T) {
		src := &fakeSource{frames: []image.Image{grayFrame(320, 240), grayFrame(320, 240)}, err: errors.New("unplugged")}
		relay := NewRelay(func(context.Context) (FrameSource, error) { return src, nil }, "", 80, testLog)

		var frames [][]byte
		err := relay.Stream(context.Background(), func(b []byte) error {
			frames = append(frames, b)
			return nil
		})
		if !errors.Is(err, ErrCaptureFailed) {
			t.Errorf("expected ErrCaptureFailed once the source stops, got %v", err)
		}
		if len(frames) != 2 {
			t.Fatalf("expected 2 frames, got %d", len(frames))
		}

		img, err := jpeg.Decode(bytes.NewReader(frames[0]))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if img.Bounds().Dx() != 320 || img.Bounds().Dy() != 240 {
			t.Errorf("unexpected size %v", img.Bounds())
		}
		// The caption strip darkens the red channel of the gray frame.
		var sum, n uint32
		for y := 18; y < 34; y++ {
			for x := 10; x < 60; x++ {
				r, _, _, _ := img.At(x, y).RGBA()
				sum += r >> 8
				n++
			}
		}
		if avg := sum / n; avg >= 70 {
			t.Errorf("expected a dark caption strip, got mean red %d", avg)
		}

		src.mu.Lock()
		closed := src.closed
		src.mu.Unlock()
		if !closed {
			t.Error("source should be closed")
		}
	})

	t.Run("consumer_gone_is_clean", func(t *testing.T) {
		relay := NewRelay(func(context.Context) (FrameSource, error) {
			return endlessSource{frame: grayFrame(64, 64)}, nil
		}, "Front", 80, testLog)

		calls := 0
		err := relay.Stream(context.Background(), func([]byte) error {
			calls++
			return errors.New("client left")
		})
		if err != nil || calls != 1 {
			t.Errorf("expected nil after one frame, got err=%v calls=%d", err, calls)
		}
	})

	t.Run("open_failure", func(t *testing.T) {
		relay := NewRelay(func(context.Context) (FrameSource, error) {
			return nil, errors.New("no device")
		}, "", 80, testLog)
		err := relay.Stream(context.Background(), func([]byte) error { return nil })
		if !errors.Is(err, ErrCaptureFailed) {
			t.Errorf("expected ErrCaptureFailed, got %v", err)
		}
	})
}
