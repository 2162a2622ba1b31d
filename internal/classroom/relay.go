package classroom

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
)

// DefaultRelayCaption is drawn on every frame of the teacher camera feed.
const DefaultRelayCaption = "Teacher Camera Feed"

var colorCaption = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// Relay streams a second camera with a caption and nothing else: no
// recognition, no session state, no speech. Every Stream call opens its own
// source.
type Relay struct {
	open    SourceOpener
	caption string
	quality int
	log     *slog.Logger
}

// NewRelay returns a relay over open. An empty caption uses DefaultRelayCaption.
func NewRelay(open SourceOpener, caption string, quality int, log *slog.Logger) *Relay {
	if caption == "" {
		caption = DefaultRelayCaption
	}
	return &Relay{open: open, caption: caption, quality: quality, log: log}
}

// Stream passes captioned JPEG frames to yield until ctx is cancelled, yield
// fails, or the source stops. Source failures wrap ErrCaptureFailed.
func (r *Relay) Stream(ctx context.Context, yield func(jpeg []byte) error) error {
	src, err := r.open(ctx)
	if err != nil {
		return fmt.Errorf("%w: open source: %w", ErrCaptureFailed, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			r.log.Warn("close relay source", slog.String("error", cerr.Error()))
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		frame, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrCaptureFailed, err)
		}

		canvas := toRGBA(frame)
		drawLabel(canvas, image.Pt(10, 30), r.caption, colorCaption)
		data, err := encodeJPEG(canvas, r.quality)
		if err != nil {
			return err
		}
		if err := yield(data); err != nil {
			r.log.Debug("relay consumer gone", slog.String("error", err.Error()))
			return nil
		}
	}
}
