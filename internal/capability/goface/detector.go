//go:build goface

// Package goface runs face detection and 128-d face descriptors in process
// with dlib, via github.com/Kagami/go-face.
package goface

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"classroom-monitor/internal/classroom"

	face "github.com/Kagami/go-face"
)

// Detector implements classroom.FaceDetector. The underlying recognizer is
// not safe for concurrent use, so calls are serialized.
type Detector struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// New loads the dlib models (shape predictor, recognition and detector
// networks) from modelsDir.
func New(modelsDir string) (*Detector, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("load face models from %s: %w", modelsDir, err)
	}
	return &Detector{rec: rec}, nil
}

// DetectFaces implements classroom.FaceDetector.
func (d *Detector) DetectFaces(ctx context.Context, frame image.Image) ([]classroom.DetectedFace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	d.mu.Lock()
	faces, err := d.rec.Recognize(buf.Bytes())
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}

	out := make([]classroom.DetectedFace, 0, len(faces))
	for _, f := range faces {
		emb := make(classroom.Embedding, len(f.Descriptor))
		for i, v := range f.Descriptor {
			emb[i] = float64(v)
		}
		r := f.Rectangle
		out = append(out, classroom.DetectedFace{
			Box:       classroom.Box{Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y, Left: r.Min.X},
			Embedding: emb,
		})
	}
	return out, nil
}

// Close frees the dlib models.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rec.Close()
	return nil
}
