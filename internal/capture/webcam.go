//go:build gocv

package capture

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Webcam reads frames from a local video device through OpenCV.
type Webcam struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// OpenWebcam opens the device with the given index.
func OpenWebcam(device int) (*Webcam, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open device %d: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open device %d: %w", device, ErrNoFrame)
	}
	return &Webcam{vc: vc, mat: gocv.NewMat()}, nil
}

// Read grabs the next frame. A failed grab or an empty matrix is ErrNoFrame.
func (w *Webcam) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := w.vc.Read(&w.mat); !ok || w.mat.Empty() {
		return nil, ErrNoFrame
	}
	img, err := w.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

// Close releases the device.
func (w *Webcam) Close() error {
	w.mat.Close()
	return w.vc.Close()
}
