package classroom

import (
	"context"
	"image"
)

// FrameSource yields raster frames from a capture device. Read returns an
// error when no frame can be produced; the coordinator treats any error as a
// device failure and ends the session.
type FrameSource interface {
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

// FaceDetector finds faces and computes their embeddings. A frame with no
// faces yields an empty slice and a nil error.
type FaceDetector interface {
	DetectFaces(ctx context.Context, frame image.Image) ([]DetectedFace, error)
}

// EmotionClassifier labels a fixed-size face crop.
type EmotionClassifier interface {
	ClassifyEmotion(ctx context.Context, crop image.Image) (Emotion, error)
}

// PoseEstimator returns body landmarks for the frame, or nil when no body is found.
type PoseEstimator interface {
	EstimatePose(ctx context.Context, frame image.Image) (Landmarks, error)
}

// FaceMeshEstimator returns one face-mesh landmark set per face found in the frame.
type FaceMeshEstimator interface {
	EstimateFaceMesh(ctx context.Context, frame image.Image) ([]Landmarks, error)
}

// Speaker renders text as audible speech. Speak blocks until playback ends.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Capabilities bundles the external engines the coordinator drives.
type Capabilities struct {
	Faces    FaceDetector
	Emotions EmotionClassifier
	Pose     PoseEstimator
	Mesh     FaceMeshEstimator
}
