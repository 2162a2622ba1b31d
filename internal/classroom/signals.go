package classroom

import (
	"image"
	"math"
)

// Thresholds used to turn landmarks into readings.
type Thresholds struct {
	// Posture is the maximum head-minus-shoulder vertical offset before Slouching.
	Posture float64
	// EyeAspectRatio is the mean EAR below which eyes read Closed.
	EyeAspectRatio float64
	// Attention is the maximum horizontal nose offset from frame center before Inattentive.
	Attention float64
}

// DefaultThresholds returns the thresholds the classroom deployment is tuned for.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Posture:        0.08,
		EyeAspectRatio: 0.25,
		Attention:      0.20,
	}
}

// Pose keypoints (33-point body model).
const (
	poseNose          = 0
	poseLeftShoulder  = 11
	poseRightShoulder = 12
)

// Face-mesh keypoints (468-point model). Eye contours are listed as
// outer corner, two upper lid points, inner corner, two lower lid points.
const meshNoseTip = 1

var (
	meshLeftEye  = [6]int{33, 160, 158, 133, 153, 144}
	meshRightEye = [6]int{362, 385, 387, 263, 373, 380}
)

// PostureStatus derives Good or Slouching from a body landmark set. A missing
// or short set reads Good.
func PostureStatus(pose Landmarks, th Thresholds) string {
	if len(pose) <= poseRightShoulder {
		return PostureGood
	}
	headY := pose[poseNose].Y
	shoulderY := (pose[poseLeftShoulder].Y + pose[poseRightShoulder].Y) / 2
	if headY-shoulderY > th.Posture {
		return PostureSlouching
	}
	return PostureGood
}

// EyeAspectRatio computes the EAR of the six contour points of one eye:
// the mean of the two lid distances over twice the eye width.
// ok is false when the landmarks are missing or the eye has no width.
func EyeAspectRatio(mesh Landmarks, eye [6]int) (ear float64, ok bool) {
	for _, i := range eye {
		if i >= len(mesh) {
			return 0, false
		}
	}
	p := func(k int) Landmark { return mesh[eye[k]] }

	a := dist(p(1), p(5))
	b := dist(p(2), p(4))
	c := dist(p(0), p(3))
	if c == 0 {
		return 0, false
	}
	return (a + b) / (2 * c), true
}

// EyeStatus derives Open or Closed from a face-mesh landmark set.
func EyeStatus(mesh Landmarks, th Thresholds) string {
	left, okL := EyeAspectRatio(mesh, meshLeftEye)
	right, okR := EyeAspectRatio(mesh, meshRightEye)
	if !okL || !okR {
		return EyesOpen
	}
	if (left+right)/2 < th.EyeAspectRatio {
		return EyesClosed
	}
	return EyesOpen
}

// AttentionStatus derives Focused or Inattentive from the nose tip's
// horizontal offset from the frame center.
func AttentionStatus(mesh Landmarks, th Thresholds) string {
	if len(mesh) <= meshNoseTip {
		return AttentionFocused
	}
	if math.Abs(mesh[meshNoseTip].X-0.5) > th.Attention {
		return AttentionInattentive
	}
	return AttentionFocused
}

func dist(a, b Landmark) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// pixel converts a normalized landmark to frame pixel coordinates.
func pixel(l Landmark, bounds image.Rectangle) image.Point {
	return image.Point{
		X: bounds.Min.X + int(l.X*float64(bounds.Dx())),
		Y: bounds.Min.Y + int(l.Y*float64(bounds.Dy())),
	}
}

// matchRegion widens a face box so landmarks slightly outside the detector's
// tight crop still associate with it.
func matchRegion(b Box) image.Rectangle {
	r := b.Rect().Canon()
	padX, padY := r.Dx()/4, r.Dy()/4
	return image.Rect(r.Min.X-padX, r.Min.Y-padY, r.Max.X+padX, r.Max.Y+padY)
}

// meshForFace picks the face-mesh set whose nose tip lies within the face
// region, nearest to the box center. Each set is used for at most one face;
// claimed tracks indices already taken in this frame.
func meshForFace(meshes []Landmarks, b Box, bounds image.Rectangle, claimed map[int]bool) (Landmarks, bool) {
	region := matchRegion(b)
	center := image.Pt((b.Left+b.Right)/2, (b.Top+b.Bottom)/2)

	best := -1
	bestD := math.Inf(1)
	for i, m := range meshes {
		if claimed[i] || len(m) <= meshNoseTip {
			continue
		}
		nose := pixel(m[meshNoseTip], bounds)
		if !nose.In(region) {
			continue
		}
		d := math.Hypot(float64(nose.X-center.X), float64(nose.Y-center.Y))
		if d < bestD {
			best, bestD = i, d
		}
	}
	if best < 0 {
		return nil, false
	}
	claimed[best] = true
	return meshes[best], true
}

// poseBelongsTo reports whether the single-person pose reading belongs to the
// face in b, judged by the pose nose landmark.
func poseBelongsTo(pose Landmarks, b Box, bounds image.Rectangle) bool {
	if len(pose) <= poseNose {
		return false
	}
	return pixel(pose[poseNose], bounds).In(matchRegion(b))
}
