// Package sink forwards accepted entries to best-effort consumers outside the
// request path. A slow or failing sink never delays ingestion: entries are
// queued, and dropped when the queue is full.
package sink

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"health-telemetry/internal/metrics"
	"health-telemetry/internal/models"
)

// Sink receives accepted entries.
type Sink interface {
	Write(ctx context.Context, e models.Entry) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, e models.Entry) error

func (f Func) Write(ctx context.Context, e models.Entry) error { return f(ctx, e) }

type namedSink struct {
	name string
	sink Sink
}

// Dispatcher owns a bounded queue and one worker goroutine that writes each
// entry to every registered sink in registration order.
type Dispatcher struct {
	queue   chan models.Entry
	sinks   []namedSink
	timeout time.Duration
	metrics *metrics.Telemetry
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher creates a dispatcher with room for queueSize pending entries.
// timeout bounds each individual sink write.
func NewDispatcher(queueSize int, timeout time.Duration, m *metrics.Telemetry, log *zap.Logger) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		queue:   make(chan models.Entry, queueSize),
		timeout: timeout,
		metrics: m,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Add registers a sink. Call before Start.
func (d *Dispatcher) Add(name string, s Sink) {
	d.sinks = append(d.sinks, namedSink{name: name, sink: s})
}

// Len reports the number of registered sinks.
func (d *Dispatcher) Len() int { return len(d.sinks) }

// Enqueue hands e to the worker without blocking. It reports false when the
// entry was dropped because the queue was full or the dispatcher stopped.
func (d *Dispatcher) Enqueue(e models.Entry) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}
	select {
	case d.queue <- e:
		return true
	default:
		d.metrics.SinkDroppedTotal.Inc()
		d.log.Warn("sink queue full, entry dropped",
			zap.Int("queue_size", cap(d.queue)),
			zap.Int64("server_ts", e.ServerTimestamp),
		)
		return false
	}
}

// Start launches the worker. It exits once Stop has been called and the
// queue is drained.
func (d *Dispatcher) Start() {
	go func() {
		defer close(d.done)
		for e := range d.queue {
			d.deliver(e)
		}
	}()
}

func (d *Dispatcher) deliver(e models.Entry) {
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := s.sink.Write(ctx, e)
		cancel()
		if err != nil {
			d.metrics.SinkErrorsTotal.WithLabelValues(s.name).Inc()
			d.log.Error("sink write failed",
				zap.String("sink", s.name),
				zap.Int64("server_ts", e.ServerTimestamp),
				zap.Error(err),
			)
		}
	}
}

// Stop stops accepting entries and waits for the queue to drain or ctx to
// expire, whichever comes first. Start must have been called.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
