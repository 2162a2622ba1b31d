package classroom

import (
	"context"
	"image/color"
	"testing"
	"time"
)

func TestDownscale(t *testing.T) {
	t.Run("shrinks_by_factor", func(t *testing.T) {
		img, scale := downscale(grayFrame(400, 200), 0.25)
		if scale != 0.25 {
			t.Errorf("expected scale 0.25, got %v", scale)
		}
		if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 50 {
			t.Errorf("unexpected size %v", img.Bounds())
		}
	})

	t.Run("tiny_frame_kept_at_full_size", func(t *testing.T) {
		img, scale := downscale(grayFrame(3, 3), 0.25)
		if scale != 1 {
			t.Errorf("expected scale 1, got %v", scale)
		}
		if img.Bounds().Dx() != 3 {
			t.Errorf("frame should not be resized, got %v", img.Bounds())
		}
	})
}

func TestCoordinator_tiny_frame_boxes_not_rescaled(t *testing.T) {
	caps := Capabilities{Faces: fakeDetector{faces: []DetectedFace{{
		Box:       Box{Top: 0, Right: 2, Bottom: 2, Left: 0},
		Embedding: Embedding{5, 5},
	}}}}
	f := newCoordinatorFixture(t, nil, caps)
	f.coord.now = func() time.Time { return t0.Add(time.Second) }

	out := f.coord.ProcessFrame(context.Background(), grayFrame(3, 3))
	f.stopAlerts(t)

	// The unknown-face border runs along the box edges; at the right scale
	// its bottom-right corner is pixel (1,1).
	if got := out.RGBAAt(1, 1); got != colorUnknown {
		t.Errorf("expected box border at (1,1), got %v", got)
	}
	if got := out.RGBAAt(2, 2); got != (color.RGBA{R: 90, G: 90, B: 90, A: 255}) {
		t.Errorf("pixel outside the box changed: %v", got)
	}
}
