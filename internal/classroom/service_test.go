package classroom

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"
)

func newTestMonitor(t *testing.T, open SourceOpener, caps Capabilities) *Monitor {
	t.Helper()
	events, _ := newTestEventLog(t)
	gallery := staticGallery{{ID: "S1", Embedding: Embedding{0.1, 0}}}
	cfg := DefaultMonitorConfig()
	cfg.DrainTimeout = time.Second
	m := NewMonitor(open, caps, NewResolver(nil, 0), gallery, events, &recordingSpeaker{}, cfg, testLog, nil)
	if _, err := m.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	return m
}

func TestMonitor_Reload(t *testing.T) {
	m := newTestMonitor(t, nil, Capabilities{})
	if m.Enrolled() != 1 {
		t.Errorf("expected 1 enrolled identity, got %d", m.Enrolled())
	}
}

func TestMonitor_CurrentStudents_without_session(t *testing.T) {
	m := newTestMonitor(t, nil, Capabilities{})
	snap := m.CurrentStudents()
	if snap.SessionID != "" || len(snap.Students) != 0 || snap.Students == nil {
		t.Errorf("expected empty non-nil snapshot, got %+v", snap)
	}
}

func TestMonitor_Stream_single_session(t *testing.T) {
	open := func(ctx context.Context) (FrameSource, error) {
		return endlessSource{frame: grayFrame(400, 400)}, nil
	}
	m := newTestMonitor(t, open, Capabilities{Faces: oneKnownFace()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstFrame := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		once := false
		done <- m.Stream(ctx, func([]byte) error {
			if !once {
				once = true
				close(firstFrame)
			}
			return nil
		})
	}()

	select {
	case <-firstFrame:
	case <-time.After(5 * time.Second):
		t.Fatal("no frame produced")
	}

	if err := m.Stream(context.Background(), func([]byte) error { return nil }); !errors.Is(err, ErrSessionActive) {
		t.Errorf("expected ErrSessionActive, got %v", err)
	}

	snap := m.CurrentStudents()
	if snap.SessionID == "" {
		t.Error("expected an active session id")
	}
	if len(snap.Students) != 1 || snap.Students[0] != "S1" {
		t.Errorf("expected [S1], got %v", snap.Students)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stream: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop")
	}
	if m.Active() {
		t.Error("session should be cleared after Stream returns")
	}
}

func TestMonitor_Stream_open_failure(t *testing.T) {
	open := func(ctx context.Context) (FrameSource, error) {
		return nil, errors.New("no camera")
	}
	m := newTestMonitor(t, open, Capabilities{Faces: fakeDetector{}})

	err := m.Stream(context.Background(), func([]byte) error { return nil })
	if !errors.Is(err, ErrCaptureFailed) {
		t.Errorf("expected ErrCaptureFailed, got %v", err)
	}
	if m.Active() {
		t.Error("failed open must not leave a session behind")
	}
}

func TestMonitor_Stream_closes_source(t *testing.T) {
	src := &fakeSource{frames: []image.Image{grayFrame(32, 32)}, err: errors.New("eof")}
	open := func(ctx context.Context) (FrameSource, error) { return src, nil }
	m := newTestMonitor(t, open, Capabilities{Faces: fakeDetector{}})

	_ = m.Stream(context.Background(), func([]byte) error { return nil })

	src.mu.Lock()
	closed := src.closed
	src.mu.Unlock()
	if !closed {
		t.Error("source should be closed when the session ends")
	}
}

func TestMonitor_Stream_slot_free_while_speech_drains(t *testing.T) {
	// The first session sees S1 once; later ones get no frames at all.
	var opens atomic.Int32
	opened := make(chan struct{}, 2)
	open := func(ctx context.Context) (FrameSource, error) {
		src := &fakeSource{err: errors.New("unplugged")}
		if opens.Add(1) == 1 {
			src.frames = []image.Image{grayFrame(400, 400)}
		}
		opened <- struct{}{}
		return src, nil
	}
	events, _ := newTestEventLog(t)
	sp := &recordingSpeaker{gate: make(chan struct{})}
	cfg := DefaultMonitorConfig()
	cfg.DrainTimeout = 5 * time.Second
	gallery := staticGallery{{ID: "S1", Embedding: Embedding{0.1, 0}}}
	m := NewMonitor(open, Capabilities{Faces: oneKnownFace()}, NewResolver(nil, 0.5), gallery, events, sp, cfg, testLog, nil)
	if _, err := m.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- m.Stream(context.Background(), func([]byte) error { return nil })
	}()
	<-opened

	deadline := time.Now().Add(5 * time.Second)
	for m.Active() {
		if time.Now().After(deadline) {
			t.Fatal("session slot never released")
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-done:
		t.Fatal("first stream should still be draining its speech queue")
	default:
	}

	err := m.Stream(context.Background(), func([]byte) error { return nil })
	if errors.Is(err, ErrSessionActive) {
		t.Fatal("a new session must be allowed while the old one drains")
	}
	if !errors.Is(err, ErrCaptureFailed) {
		t.Errorf("expected the second session to end on the unplugged source, got %v", err)
	}

	close(sp.gate)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first stream never finished draining")
	}
	if got := sp.Spoken(); len(got) == 0 || got[0] != "S1 attendance marked" {
		t.Errorf("queued attendance confirmation should still be spoken, got %v", got)
	}
}
