package classroom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"classroom-monitor/internal/platform/metrics"

	"github.com/google/uuid"
)

// DefaultDrainTimeout bounds how long a finished session waits for queued speech.
const DefaultDrainTimeout = 10 * time.Second

// ErrSessionActive is returned when a stream is requested while another
// session is still running.
var ErrSessionActive = errors.New("a monitoring session is already active")

// Session is one monitoring run: its own state store and speech queue.
type Session struct {
	ID        string
	StartedAt time.Time
	State     *StateStore
	Alerts    *Dispatcher
}

// SourceOpener opens the capture device for a new session.
type SourceOpener func(ctx context.Context) (FrameSource, error)

// GalleryLoader reads the enrolled identities.
type GalleryLoader interface {
	Load(ctx context.Context) ([]Identity, error)
}

// MonitorConfig holds the per-session tunables.
type MonitorConfig struct {
	AlertCooldown  time.Duration
	LogInterval    time.Duration
	AlertQueueSize int
	DrainTimeout   time.Duration
	Coordinator    CoordinatorConfig
}

// DefaultMonitorConfig returns the classroom defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		AlertCooldown:  DefaultAlertCooldown,
		LogInterval:    DefaultLogInterval,
		AlertQueueSize: DefaultAlertQueueSize,
		DrainTimeout:   DefaultDrainTimeout,
		Coordinator:    DefaultCoordinatorConfig(),
	}
}

// Monitor owns the enrolled gallery and runs at most one session at a time.
type Monitor struct {
	open     SourceOpener
	caps     Capabilities
	resolver *Resolver
	gallery  GalleryLoader
	events   *EventLog
	speaker  Speaker
	cfg      MonitorConfig
	log      *slog.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	active *Session
}

// NewMonitor returns a Monitor. The gallery is not loaded until Reload is
// called. m may be nil.
func NewMonitor(open SourceOpener, caps Capabilities, resolver *Resolver, gallery GalleryLoader,
	events *EventLog, speaker Speaker, cfg MonitorConfig, log *slog.Logger, m *metrics.Metrics) *Monitor {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	return &Monitor{
		open:     open,
		caps:     caps,
		resolver: resolver,
		gallery:  gallery,
		events:   events,
		speaker:  speaker,
		cfg:      cfg,
		log:      log,
		metrics:  m,
	}
}

// Reload re-reads the gallery and swaps it into the resolver. It returns the
// number of identities now enrolled.
func (m *Monitor) Reload(ctx context.Context) (int, error) {
	known, err := m.gallery.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load gallery: %w", err)
	}
	m.resolver.Reload(known)
	m.metrics.SetEnrolled(len(known))
	m.log.Info("gallery loaded", slog.Int("identities", len(known)))
	return len(known), nil
}

// Stream runs one session, passing every annotated JPEG frame to yield. It
// returns ErrSessionActive if a session is already running, and an error
// wrapping ErrCaptureFailed if the device cannot be opened or stops producing
// frames. A cancelled ctx or a failing yield ends the session cleanly.
func (m *Monitor) Stream(ctx context.Context, yield func(jpeg []byte) error) error {
	sess, err := m.begin()
	if err != nil {
		return err
	}
	defer m.end(sess)

	src, err := m.open(ctx)
	if err != nil {
		return fmt.Errorf("%w: open source: %w", ErrCaptureFailed, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			m.log.Warn("close capture source", slog.String("error", cerr.Error()))
		}
	}()

	coord := NewCoordinator(src, m.caps, m.resolver, sess, m.events, m.cfg.Coordinator, m.log, m.metrics)
	return coord.Run(ctx, yield)
}

// CurrentStudents returns who was visible in the latest frame of the active
// session. With no session running the lists are empty.
func (m *Monitor) CurrentStudents() Snapshot {
	m.mu.Lock()
	sess := m.active
	m.mu.Unlock()

	snap := Snapshot{Students: []StudentID{}, Attended: []StudentID{}, TakenAt: time.Now()}
	if sess == nil {
		return snap
	}
	snap.SessionID = sess.ID
	snap.Students = sess.State.SnapshotVisible()
	snap.Attended = sess.State.Attended()
	return snap
}

// Active reports whether a session is running.
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

// Enrolled returns the number of identities in the resolver.
func (m *Monitor) Enrolled() int {
	return m.resolver.Len()
}

func (m *Monitor) begin() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrSessionActive
	}
	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		StartedAt: now,
		State:     NewStateStore(now, m.cfg.AlertCooldown, m.cfg.LogInterval),
		Alerts:    NewDispatcher(m.speaker, m.cfg.AlertQueueSize, m.log, m.metrics),
	}
	m.active = sess
	m.metrics.SetActiveSessions(1)
	m.log.Info("session started", slog.String("session_id", sess.ID))
	return sess, nil
}

// end releases the session slot, then drains its speech queue. The source is
// already closed, so a new session may start while the old alerts finish.
func (m *Monitor) end(sess *Session) {
	m.mu.Lock()
	if m.active == sess {
		m.active = nil
		m.metrics.SetActiveSessions(0)
		m.metrics.SetVisibleStudents(0)
	}
	m.mu.Unlock()

	m.log.Info("session ended",
		slog.String("session_id", sess.ID),
		slog.Int("attended", len(sess.State.Attended())))

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DrainTimeout)
	defer cancel()
	if err := sess.Alerts.Stop(ctx); err != nil {
		m.log.Warn("speech queue not drained", slog.String("session_id", sess.ID), slog.String("error", err.Error()))
	}
}
