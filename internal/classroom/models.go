package classroom

import (
	"image"
	"time"
)

// StudentID identifies an enrolled student (their registration ID).
type StudentID string

// Embedding is a fixed-length face descriptor produced by the recognition engine.
type Embedding []float64

// Identity pairs a student with one enrolled embedding. A student may have
// several identities when more than one encoding was enrolled for them.
type Identity struct {
	ID        StudentID
	Embedding Embedding
}

// Box is a face region in frame pixel coordinates.
type Box struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// Scale multiplies every coordinate by f, rounding to the nearest pixel.
func (b Box) Scale(f float64) Box {
	s := func(v int) int { return int(float64(v)*f + 0.5) }
	return Box{Top: s(b.Top), Right: s(b.Right), Bottom: s(b.Bottom), Left: s(b.Left)}
}

// DetectedFace is a face found in a single frame. It is never persisted.
type DetectedFace struct {
	Box       Box
	Embedding Embedding
}

// Landmark is a keypoint in normalized [0,1] frame coordinates.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Landmarks is one body or face landmark set, indexed by keypoint number.
type Landmarks []Landmark

// Emotion is the classifier output for a face crop.
type Emotion struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Emotion sentinels used when no classification is possible.
const (
	EmotionNoFace  = "No Face"
	EmotionUnknown = "Unknown"
)

// Posture, eye and attention readings.
const (
	PostureGood      = "Good"
	PostureSlouching = "Slouching"

	EyesOpen   = "Open"
	EyesClosed = "Closed"

	AttentionFocused     = "Focused"
	AttentionInattentive = "Inattentive"
)

// EngagementSample is one frame's derived readings for a recognized student.
type EngagementSample struct {
	Emotion   Emotion `json:"emotion"`
	Posture   string  `json:"posture"`
	Eyes      string  `json:"eyes"`
	Attention string  `json:"attention"`
}

// Nominal reports whether posture, eyes and attention are all in their expected state.
func (s EngagementSample) Nominal() bool {
	return s.Posture == PostureGood && s.Eyes == EyesOpen && s.Attention == AttentionFocused
}

// Snapshot is what a status query sees: the students recognized in the most
// recent frame of the active session.
type Snapshot struct {
	SessionID string      `json:"session_id,omitempty"`
	Students  []StudentID `json:"students"`
	Attended  []StudentID `json:"attended"`
	TakenAt   time.Time   `json:"taken_at"`
}
