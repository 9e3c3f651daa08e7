package goAuthClient

import (
	"context"
	"sync"
)

// auditDispatcher delivers audit events to a sink from a single goroutine.
// A nil dispatcher accepts and discards everything.
type auditDispatcher struct {
	sink   AuditSink
	queue  chan AuditEvent
	block  bool
	onDrop func()

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// newAuditDispatcher returns nil when audit is disabled. onDrop is called for
// every event discarded because the queue was full.
func newAuditDispatcher(cfg AuditConfig, sink AuditSink, onDrop func()) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if onDrop == nil {
		onDrop = func() {}
	}

	d := &auditDispatcher{
		sink:    sink,
		queue:   make(chan AuditEvent, max(cfg.BufferSize, 1)),
		block:   !cfg.DropIfFull,
		onDrop:  onDrop,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *auditDispatcher) loop() {
	defer close(d.stopped)
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(context.Background(), ev)
		case <-d.stop:
			d.flush()
			return
		}
	}
}

func (d *auditDispatcher) flush() {
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(context.Background(), ev)
		default:
			return
		}
	}
}

func (d *auditDispatcher) stopping() bool {
	select {
	case <-d.stop:
		return true
	default:
		return false
	}
}

// Emit queues ev. When the queue is full it either drops ev or waits for room,
// ctx, or Close, depending on AuditConfig.DropIfFull.
func (d *auditDispatcher) Emit(ctx context.Context, ev AuditEvent) {
	if d == nil || d.stopping() {
		return
	}

	if !d.block {
		select {
		case d.queue <- ev:
		default:
			d.onDrop()
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops intake and returns once queued events reach the sink. It is
// safe to call more than once.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.stopped
}
