package classroom

import (
	"sort"
	"sync"
	"time"
)

// Default debounce intervals.
const (
	DefaultAlertCooldown = 5 * time.Second
	DefaultLogInterval   = 60 * time.Second
)

// studentState is the per-student record for one session. Its fields are
// guarded by mu; different students never contend.
type studentState struct {
	mu               sync.Mutex
	attendanceMarked bool
	lastAlert        time.Time
	lastLog          time.Time
}

// StateStore tracks who is visible, whose attendance is marked, and the
// per-student alert and log timers for one monitoring session.
//
// The engagement-log timer starts at the session start: a student's first
// row is written LogInterval after the session began, not on first sight.
type StateStore struct {
	alertCooldown time.Duration
	logInterval   time.Duration
	startedAt     time.Time

	visibleMu sync.RWMutex
	visible   map[StudentID]struct{}

	mu       sync.Mutex
	students map[StudentID]*studentState
}

// NewStateStore returns an empty store for a session that started at startedAt.
// Non-positive intervals fall back to the defaults.
func NewStateStore(startedAt time.Time, alertCooldown, logInterval time.Duration) *StateStore {
	if alertCooldown <= 0 {
		alertCooldown = DefaultAlertCooldown
	}
	if logInterval <= 0 {
		logInterval = DefaultLogInterval
	}
	return &StateStore{
		alertCooldown: alertCooldown,
		logInterval:   logInterval,
		startedAt:     startedAt,
		visible:       make(map[StudentID]struct{}),
		students:      make(map[StudentID]*studentState),
	}
}

// student returns the record for id, creating it on first use.
func (s *StateStore) student(id StudentID) *studentState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.students[id]
	if !ok {
		st = &studentState{}
		s.students[id] = st
	}
	return st
}

// IsAttendanceMarked reports whether id was already marked present this session.
func (s *StateStore) IsAttendanceMarked(id StudentID) bool {
	st := s.student(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.attendanceMarked
}

// MarkAttendance marks id present. It returns true only the first time it is
// called for id; later calls are no-ops.
func (s *StateStore) MarkAttendance(id StudentID) bool {
	st := s.student(id)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.attendanceMarked {
		return false
	}
	st.attendanceMarked = true
	return true
}

// ShouldAlert reports whether an alert for id may be spoken at now.
// A caller that acts on true must follow up with RecordAlert.
func (s *StateStore) ShouldAlert(id StudentID, now time.Time) bool {
	st := s.student(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastAlert.IsZero() || now.Sub(st.lastAlert) > s.alertCooldown
}

// RecordAlert stores now as the last alert time for id.
func (s *StateStore) RecordAlert(id StudentID, now time.Time) {
	st := s.student(id)
	st.mu.Lock()
	st.lastAlert = now
	st.mu.Unlock()
}

// ShouldLog reports whether an engagement row for id is due at now.
// A caller that acts on true must follow up with RecordLog.
func (s *StateStore) ShouldLog(id StudentID, now time.Time) bool {
	st := s.student(id)
	st.mu.Lock()
	defer st.mu.Unlock()

	last := st.lastLog
	if last.IsZero() {
		last = s.startedAt
	}
	return now.Sub(last) > s.logInterval
}

// RecordLog stores now as the last engagement row time for id.
func (s *StateStore) RecordLog(id StudentID, now time.Time) {
	st := s.student(id)
	st.mu.Lock()
	st.lastLog = now
	st.mu.Unlock()
}

// ReplaceVisible publishes the set of students seen in the latest frame and
// returns its size. The previous set is discarded; an empty ids clears it.
func (s *StateStore) ReplaceVisible(ids []StudentID) int {
	next := make(map[StudentID]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}

	s.visibleMu.Lock()
	s.visible = next
	s.visibleMu.Unlock()
	return len(next)
}

// SnapshotVisible returns a sorted copy of the currently visible students.
func (s *StateStore) SnapshotVisible() []StudentID {
	s.visibleMu.RLock()
	out := make([]StudentID, 0, len(s.visible))
	for id := range s.visible {
		out = append(out, id)
	}
	s.visibleMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Attended returns a sorted list of students marked present this session.
func (s *StateStore) Attended() []StudentID {
	s.mu.Lock()
	states := make(map[StudentID]*studentState, len(s.students))
	for id, st := range s.students {
		states[id] = st
	}
	s.mu.Unlock()

	out := make([]StudentID, 0, len(states))
	for id, st := range states {
		st.mu.Lock()
		marked := st.attendanceMarked
		st.mu.Unlock()
		if marked {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
