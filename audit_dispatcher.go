package carebook

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// auditDispatcher hands audit events to the sink on a single goroutine so
// sign-in paths never wait on audit storage. A sink that panics loses that
// one event; the dispatcher keeps running.
type auditDispatcher struct {
	blocking bool
	sink     AuditSink
	logger   *zap.Logger

	queue chan AuditEvent
	stop  chan struct{}
	wg    sync.WaitGroup

	dropped  atomic.Uint64
	failed   atomic.Uint64
	shutdown atomic.Bool
	once     sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger *zap.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &auditDispatcher{
		blocking: !cfg.DropIfFull,
		sink:     sink,
		logger:   logger.Named("audit"),
		queue:    make(chan AuditEvent, size),
		stop:     make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *auditDispatcher) loop() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			// drain what was accepted before Close
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *auditDispatcher) deliver(event AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("audit sink panicked",
				zap.String("event_type", event.EventType),
				zap.String("email", event.Email),
				zap.String("request_id", event.RequestID),
				zap.Any("panic", r),
			)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. When the buffer is full the event is dropped and counted,
// unless the dispatcher was built blocking, in which case Emit waits for room,
// for ctx to end or for Close.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.shutdown.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if !d.blocking {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			n := d.dropped.Add(1)
			d.logger.Warn("audit event dropped",
				zap.String("event_type", event.EventType),
				zap.String("email", event.Email),
				zap.String("request_id", event.RequestID),
				zap.Uint64("dropped_total", n),
			)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close rejects further events and flushes the queue into the sink.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.shutdown.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped counts events that never reached the sink: buffer overflow,
// cancelled blocking emits and sink panics.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load() + d.failed.Load()
}
