package classroom

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TimestampLayout is the timestamp format of every row the monitor writes.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// Session log event names.
const (
	EventAttendanceMarked = "Attendance Marked"
	EventRegistered       = "REGISTERED"
)

// ErrInvalidStudentID is returned for IDs that cannot name a report file.
var ErrInvalidStudentID = errors.New("invalid student id")

// EventLog appends rows to the per-student engagement reports and to the
// global session log. Every row is one open+append+close; rows for the same
// file are serialized so they never interleave.
type EventLog struct {
	reportsDir     string
	sessionLogPath string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEventLog creates reportsDir and the session log's directory if needed.
func NewEventLog(reportsDir, sessionLogPath string) (*EventLog, error) {
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(sessionLogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create session log dir: %w", err)
	}
	return &EventLog{
		reportsDir:     reportsDir,
		sessionLogPath: sessionLogPath,
		locks:          make(map[string]*sync.Mutex),
	}, nil
}

// ReportPath returns the engagement report file for id.
func (l *EventLog) ReportPath(id StudentID) (string, error) {
	return ReportPath(l.reportsDir, id)
}

// ReportPath returns <dir>/<id>.csv, rejecting IDs that would escape dir.
func ReportPath(dir string, id StudentID) (string, error) {
	s := string(id)
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidStudentID, s)
	}
	return filepath.Join(dir, s+".csv"), nil
}

// SessionLogPath returns the global session log path.
func (l *EventLog) SessionLogPath() string {
	return l.sessionLogPath
}

// AppendAttendance records that id was marked present at ts.
func (l *EventLog) AppendAttendance(ts time.Time, id StudentID) error {
	return l.appendRow(l.sessionLogPath, []string{ts.Format(TimestampLayout), string(id), EventAttendanceMarked})
}

// AppendRegistration records a new enrollment.
func (l *EventLog) AppendRegistration(ts time.Time, id StudentID, name string) error {
	return l.appendRow(l.sessionLogPath, []string{ts.Format(TimestampLayout), string(id), name, EventRegistered})
}

// AppendSample writes one engagement row for id:
// timestamp, emotion, confidence, posture, eyes, attention.
func (l *EventLog) AppendSample(ts time.Time, id StudentID, s EngagementSample) error {
	path, err := l.ReportPath(id)
	if err != nil {
		return err
	}
	return l.appendRow(path, []string{
		ts.Format(TimestampLayout),
		s.Emotion.Label,
		fmt.Sprintf("%.2f", s.Emotion.Confidence),
		s.Posture,
		s.Eyes,
		s.Attention,
	})
}

// TruncateSessionLog empties the session log.
func (l *EventLog) TruncateSessionLog() error {
	lock := l.lockFor(l.sessionLogPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.WriteFile(l.sessionLogPath, nil, 0o644); err != nil {
		return fmt.Errorf("truncate session log: %w", err)
	}
	return nil
}

func (l *EventLog) lockFor(path string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[path]
	if !ok {
		m = &sync.Mutex{}
		l.locks[path] = m
	}
	return m
}

func (l *EventLog) appendRow(path string, row []string) (err error) {
	lock := l.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}
