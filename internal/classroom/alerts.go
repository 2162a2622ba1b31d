package classroom

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"classroom-monitor/internal/platform/metrics"
)

// DefaultAlertQueueSize bounds the speech queue.
const DefaultAlertQueueSize = 32

// ErrDispatcherStopped is returned by Enqueue after Stop.
var ErrDispatcherStopped = errors.New("alert dispatcher stopped")

// Dispatcher speaks queued utterances one at a time on a single background
// goroutine. Enqueue never blocks: when the queue is full the oldest pending
// utterance is evicted to make room.
type Dispatcher struct {
	speaker Speaker
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	queue   chan string
	stopped bool

	stop   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
}

// NewDispatcher starts a dispatcher with the given queue capacity. If size <= 0,
// DefaultAlertQueueSize is used. m may be nil.
func NewDispatcher(speaker Speaker, size int, log *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if size <= 0 {
		size = DefaultAlertQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		speaker: speaker,
		log:     log,
		metrics: m,
		queue:   make(chan string, size),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go d.run(ctx)
	return d
}

// Enqueue hands text to the speech worker and returns immediately.
func (d *Dispatcher) Enqueue(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	for {
		select {
		case d.queue <- text:
			d.metrics.IncAlertsEnqueued()
			return nil
		default:
		}
		// Full: evict the oldest pending utterance. The worker may have taken
		// it in the meantime, in which case the next send succeeds.
		select {
		case old := <-d.queue:
			d.metrics.IncAlertsDropped()
			d.log.Warn("speech queue full, dropping oldest alert", slog.String("text", old))
		default:
		}
	}
}

// Pending returns the number of queued utterances.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Stop stops accepting utterances, lets the worker speak what is already
// queued, and waits for it to exit. If ctx ends first, the utterance in
// progress is cancelled, the rest are discarded and ctx.Err() is returned.
// Stop is idempotent.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.stop)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return ctx.Err()
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	defer d.cancel()

	for {
		select {
		case text := <-d.queue:
			d.speak(ctx, text)
		case <-d.stop:
			d.drain(ctx)
			return
		}
	}
}

// drain speaks whatever is left after stop. Nothing can be enqueued any more.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case text := <-d.queue:
			if ctx.Err() != nil {
				continue
			}
			d.speak(ctx, text)
		default:
			return
		}
	}
}

func (d *Dispatcher) speak(ctx context.Context, text string) {
	if err := d.speaker.Speak(ctx, text); err != nil && ctx.Err() == nil {
		d.log.Warn("speech failed", slog.String("text", text), slog.String("error", err.Error()))
	}
}
