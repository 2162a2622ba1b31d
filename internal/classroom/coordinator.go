package classroom

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"classroom-monitor/internal/platform/metrics"
)

// DefaultDetectionScale is the downscale factor applied before face detection.
const DefaultDetectionScale = 0.25

// ErrCaptureFailed wraps the capture error that ended a session.
var ErrCaptureFailed = errors.New("capture failed")

// CoordinatorConfig tunes the per-frame loop.
type CoordinatorConfig struct {
	// DetectionScale is applied to a copy of the frame before detection and
	// recognition; boxes are scaled back by its inverse.
	DetectionScale float64
	Thresholds     Thresholds
	JPEGQuality    int
	// DrawLandmarks overlays pose and face-mesh keypoints.
	DrawLandmarks bool
}

// DefaultCoordinatorConfig returns the settings used in the classroom.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		DetectionScale: DefaultDetectionScale,
		Thresholds:     DefaultThresholds(),
		JPEGQuality:    80,
		DrawLandmarks:  true,
	}
}

// Coordinator runs the per-frame loop for one session: detect, resolve,
// classify, update state, alert, log, render, encode. It processes one frame
// at a time on the caller's goroutine.
type Coordinator struct {
	source   FrameSource
	caps     Capabilities
	resolver *Resolver
	session  *Session
	events   *EventLog
	cfg      CoordinatorConfig
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewCoordinator wires a coordinator for sess. m may be nil.
func NewCoordinator(src FrameSource, caps Capabilities, resolver *Resolver, sess *Session, events *EventLog,
	cfg CoordinatorConfig, log *slog.Logger, m *metrics.Metrics) *Coordinator {
	if cfg.DetectionScale <= 0 || cfg.DetectionScale > 1 {
		cfg.DetectionScale = DefaultDetectionScale
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	return &Coordinator{
		source:   src,
		caps:     caps,
		resolver: resolver,
		session:  sess,
		events:   events,
		cfg:      cfg,
		log:      log.With(slog.String("session_id", sess.ID)),
		metrics:  m,
		now:      time.Now,
	}
}

// Run pulls frames until ctx is cancelled, the consumer rejects a frame, or
// the source fails. Each annotated frame is JPEG-encoded and passed to yield.
// Cancellation and consumer disconnects return nil; a source failure returns
// an error wrapping ErrCaptureFailed.
func (c *Coordinator) Run(ctx context.Context, yield func(jpeg []byte) error) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := c.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrCaptureFailed, err)
		}

		start := time.Now()
		annotated := c.ProcessFrame(ctx, frame)
		data, err := encodeJPEG(annotated, c.cfg.JPEGQuality)
		if err != nil {
			return err
		}
		c.metrics.ObserveFrame(time.Since(start))

		if err := yield(data); err != nil {
			c.log.Debug("stream consumer gone", slog.String("error", err.Error()))
			return nil
		}
	}
}

// frameReadings caches the full-frame landmark estimates so they run at most
// once per frame, and only when a recognized face needs them.
type frameReadings struct {
	loaded  bool
	pose    Landmarks
	meshes  []Landmarks
	claimed map[int]bool
}

// ProcessFrame runs one frame through detection, state updates and
// rendering, and returns the annotated copy. Capability failures are logged
// and degrade the affected readings; they never abort the frame.
func (c *Coordinator) ProcessFrame(ctx context.Context, frame image.Image) *image.RGBA {
	canvas := toRGBA(frame)
	now := c.now()

	faces, scale := c.detect(ctx, canvas)
	visible := make([]StudentID, 0, len(faces))
	readings := &frameReadings{}

	for _, f := range faces {
		box := f.Box.Scale(1 / scale)

		id, ok := c.resolver.Resolve(f.Embedding)
		if !ok {
			annotateUnknown(canvas, box)
			continue
		}
		c.metrics.IncFacesRecognized()
		visible = append(visible, id)

		c.markAttendance(id, now)

		c.loadReadings(ctx, canvas, readings)
		sample := EngagementSample{
			Emotion:   c.classify(ctx, canvas, box, id),
			Posture:   PostureGood,
			Eyes:      EyesOpen,
			Attention: AttentionFocused,
		}
		if poseBelongsTo(readings.pose, box, canvas.Bounds()) {
			sample.Posture = PostureStatus(readings.pose, c.cfg.Thresholds)
		}
		if mesh, ok := meshForFace(readings.meshes, box, canvas.Bounds(), readings.claimed); ok {
			sample.Eyes = EyeStatus(mesh, c.cfg.Thresholds)
			sample.Attention = AttentionStatus(mesh, c.cfg.Thresholds)
		}

		annotateKnown(canvas, box, id, sample)
		c.maybeAlert(id, sample, now)
		c.maybeLog(id, sample, now)
	}

	if c.cfg.DrawLandmarks {
		drawLandmarks(canvas, readings.pose, colorLandmark)
		for _, m := range readings.meshes {
			drawLandmarks(canvas, m, colorLandmark)
		}
	}

	c.metrics.SetVisibleStudents(c.session.State.ReplaceVisible(visible))
	return canvas
}

// detect runs the detector on a downscaled copy and returns the faces with
// the scale their boxes are expressed in.
func (c *Coordinator) detect(ctx context.Context, frame image.Image) ([]DetectedFace, float64) {
	small, scale := downscale(frame, c.cfg.DetectionScale)
	faces, err := c.caps.Faces.DetectFaces(ctx, small)
	if err != nil {
		c.metrics.IncFaceFailure("detect")
		c.log.Warn("face detection failed", slog.String("error", err.Error()))
		return nil, scale
	}
	c.metrics.AddFacesDetected(len(faces))
	return faces, scale
}

func (c *Coordinator) loadReadings(ctx context.Context, frame image.Image, r *frameReadings) {
	if r.loaded {
		return
	}
	r.loaded = true
	r.claimed = make(map[int]bool)

	if c.caps.Pose != nil {
		pose, err := c.caps.Pose.EstimatePose(ctx, frame)
		if err != nil {
			c.metrics.IncFaceFailure("pose")
			c.log.Debug("pose estimation failed", slog.String("error", err.Error()))
		} else {
			r.pose = pose
		}
	}
	if c.caps.Mesh != nil {
		meshes, err := c.caps.Mesh.EstimateFaceMesh(ctx, frame)
		if err != nil {
			c.metrics.IncFaceFailure("mesh")
			c.log.Debug("face mesh estimation failed", slog.String("error", err.Error()))
		} else {
			r.meshes = meshes
		}
	}
}

// classify crops the face from the full-resolution frame and labels it.
// Empty crops read "No Face"; classifier errors read "Unknown".
func (c *Coordinator) classify(ctx context.Context, frame image.Image, box Box, id StudentID) Emotion {
	crop, ok := cropFace(frame, box)
	if !ok {
		return Emotion{Label: EmotionNoFace}
	}
	if c.caps.Emotions == nil {
		return Emotion{Label: EmotionUnknown}
	}
	em, err := c.caps.Emotions.ClassifyEmotion(ctx, crop)
	if err != nil {
		c.metrics.IncFaceFailure("emotion")
		c.log.Debug("emotion classification failed",
			slog.String("student_id", string(id)),
			slog.String("error", err.Error()))
		return Emotion{Label: EmotionUnknown}
	}
	if em.Label == "" {
		em.Label = EmotionUnknown
	}
	em.Confidence = min(max(em.Confidence, 0), 1)
	return em
}

func (c *Coordinator) markAttendance(id StudentID, now time.Time) {
	if !c.session.State.MarkAttendance(id) {
		return
	}
	c.metrics.IncAttendanceMarked()
	c.log.Info("attendance marked", slog.String("student_id", string(id)))

	if err := c.events.AppendAttendance(now, id); err != nil {
		c.metrics.IncFaceFailure("log")
		c.log.Warn("append attendance row failed",
			slog.String("student_id", string(id)),
			slog.String("error", err.Error()))
	}
	c.enqueue(fmt.Sprintf("%s attendance marked", id))
}

func (c *Coordinator) maybeAlert(id StudentID, s EngagementSample, now time.Time) {
	if s.Nominal() || !c.session.State.ShouldAlert(id, now) {
		return
	}
	c.enqueue(fmt.Sprintf("Alert for %s: %s, %s, %s", id, s.Posture, s.Eyes, s.Attention))
	c.session.State.RecordAlert(id, now)
}

// maybeLog appends an engagement row when the interval has elapsed. The timer
// advances even if the write fails so a broken disk cannot turn into a write
// per frame.
func (c *Coordinator) maybeLog(id StudentID, s EngagementSample, now time.Time) {
	if !c.session.State.ShouldLog(id, now) {
		return
	}
	if err := c.events.AppendSample(now, id, s); err != nil {
		c.metrics.IncFaceFailure("log")
		c.log.Warn("append engagement row failed",
			slog.String("student_id", string(id)),
			slog.String("error", err.Error()))
	} else {
		c.metrics.IncEngagementRows()
	}
	c.session.State.RecordLog(id, now)
}

func (c *Coordinator) enqueue(text string) {
	if err := c.session.Alerts.Enqueue(text); err != nil {
		c.log.Debug("utterance not queued", slog.String("text", text), slog.String("error", err.Error()))
	}
}
