package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering.
type Config struct {
	BufferSize int
	// TaskTimeout bounds each queued side effect.
	TaskTimeout time.Duration
}

type job struct {
	name  string
	event *Event
	task  func(context.Context) error
}

// Dispatcher executes audit events and side-effect tasks asynchronously.
// When the queue is full new work is dropped and counted.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	log       *slog.Logger
	ch        chan job
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	mu        sync.RWMutex // guards closed and sends on ch
	closed    bool
	closeOnce sync.Once
}

// NewDispatcher starts the worker goroutine. Close must be called to stop it.
func NewDispatcher(cfg Config, sink Sink, log *slog.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 10 * time.Second
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		log:  log,
		ch:   make(chan job, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case j := <-d.ch:
			d.exec(j)
		case <-d.done:
			for {
				select {
				case j := <-d.ch:
					d.exec(j)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) exec(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.TaskTimeout)
	defer cancel()

	if j.event != nil {
		d.sink.Emit(ctx, *j.event)
		return
	}
	defer func() {
		if p := recover(); p != nil {
			d.failed.Add(1)
			d.log.Error("side effect panicked", slog.String("task", j.name), slog.Any("panic", p))
		}
	}()
	if err := j.task(ctx); err != nil {
		d.failed.Add(1)
		d.log.Warn("side effect failed", slog.String("task", j.name), slog.Any("error", err))
	}
}

// Emit queues an audit event.
func (d *Dispatcher) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	d.enqueue(job{name: event.Type, event: &event})
}

// Go queues task. Its error is logged and otherwise ignored.
func (d *Dispatcher) Go(name string, task func(ctx context.Context) error) {
	d.enqueue(job{name: name, task: task})
}

// enqueue reports whether j will run. Work accepted before Close returns is
// always drained by the worker.
func (d *Dispatcher) enqueue(j job) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.ch <- j:
		return true
	default:
		d.dropped.Add(1)
		d.log.Warn("side effect dropped", slog.String("task", j.name))
		return false
	}
}

// Close drains queued work and stops the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.done)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

// Dropped returns the number of jobs discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed returns the number of tasks that returned an error or panicked.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
