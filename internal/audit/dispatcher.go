package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config sizes the dispatcher queue. With DropIfFull set, Emit never waits
// and discards events the queue cannot hold. OnDrop observes each discard.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	Now        func() time.Time
	OnDrop     func(Event)
}

// Dispatcher moves events off the request path onto a single sink goroutine.
// A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	stop       chan struct{}
	stopped    chan struct{}
	dropIfFull bool
	now        func() time.Time
	onDrop     func(Event)

	dropped  atomic.Uint64
	shutdown atomic.Bool
	once     sync.Once
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
		now:        now,
		onDrop:     cfg.OnDrop,
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
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

// flush delivers whatever was queued before Close.
func (d *Dispatcher) flush() {
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(context.Background(), ev)
		default:
			return
		}
	}
}

// Emit stamps the event time when unset and queues it. In blocking mode a
// cancelled ctx counts as a drop.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.shutdown.Load() {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = d.now().UTC()
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.discard(ev)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.discard(ev)
	case <-d.stop:
	}
}

func (d *Dispatcher) discard(ev Event) {
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop(ev)
	}
}

// Close stops accepting events, flushes the queue and waits for the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.shutdown.Store(true)
		close(d.stop)
		<-d.stopped
	})
}

// Dropped reports how many events were discarded.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
