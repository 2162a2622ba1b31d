// Package presence mirrors who is in the room into Redis so dashboards and
// other services can read it without talking to the monitor.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"classroom-monitor/internal/classroom"

	"github.com/redis/go-redis/v9"
)

// VisibleKey holds the latest snapshot as JSON.
const VisibleKey = "classroom:visible"

const attendanceTTL = 24 * time.Hour

// AttendanceKey is the set of students marked present in a session.
func AttendanceKey(sessionID string) string {
	return "classroom:attendance:" + sessionID
}

// Source provides the snapshot to mirror.
type Source interface {
	CurrentStudents() classroom.Snapshot
}

// Mirror copies the snapshot to Redis on a fixed interval. It reads the
// snapshot like any other status client and never runs on the frame loop.
type Mirror struct {
	client   *redis.Client
	src      Source
	interval time.Duration
	log      *slog.Logger
}

// Connect opens a Redis client and checks it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     4,
		MinIdleConns: 1,
		MaxRetries:   3,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewMirror returns a mirror publishing every interval (default 1s).
func NewMirror(client *redis.Client, src Source, interval time.Duration, log *slog.Logger) *Mirror {
	if interval <= 0 {
		interval = time.Second
	}
	return &Mirror{client: client, src: src, interval: interval, log: log}
}

// Run publishes until ctx is cancelled. Failures are logged and retried on
// the next tick.
func (m *Mirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Publish(ctx, m.src.CurrentStudents()); err != nil && ctx.Err() == nil {
				m.log.Warn("presence publish failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Publish writes one snapshot. The visible key expires after three missed
// intervals so a dead monitor does not leave stale presence behind.
func (m *Mirror) Publish(ctx context.Context, snap classroom.Snapshot) error {
	payload, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	pipe := m.client.Pipeline()
	pipe.Set(ctx, VisibleKey, payload, 3*m.interval)
	if members := attendanceMembers(snap); snap.SessionID != "" && len(members) > 0 {
		key := AttendanceKey(snap.SessionID)
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, attendanceTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence pipeline: %w", err)
	}
	return nil
}

func encodeSnapshot(snap classroom.Snapshot) ([]byte, error) {
	if snap.Students == nil {
		snap.Students = []classroom.StudentID{}
	}
	if snap.Attended == nil {
		snap.Attended = []classroom.StudentID{}
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return b, nil
}

func attendanceMembers(snap classroom.Snapshot) []any {
	out := make([]any, 0, len(snap.Attended))
	for _, id := range snap.Attended {
		out = append(out, string(id))
	}
	return out
}
