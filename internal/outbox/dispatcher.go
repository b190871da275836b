// Package outbox runs the side effects of committed state changes (audit
// records, notifications) off the request path.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrFull   = errors.New("outbox: buffer full")
	ErrClosed = errors.New("outbox: closed")
)

// Config controls dispatcher buffering behavior.
type Config struct {
	BufferSize int
	Workers    int
	// DropIfFull makes Submit fail fast instead of waiting for room.
	DropIfFull bool
	// TaskTimeout bounds a single task run. Zero means no limit.
	TaskTimeout time.Duration
}

// Task is one unit of deferred work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Dispatcher runs submitted tasks on a small worker pool. Failures are
// logged and never reach the submitter.
type Dispatcher struct {
	cfg       Config
	logger    *slog.Logger
	ch        chan Task
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closeOnce sync.Once

	// mu orders sends against Close: a send that holds the read lock
	// always lands before the workers start draining.
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts cfg.Workers workers.
func NewDispatcher(cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		cfg:    cfg,
		logger: logger,
		ch:     make(chan Task, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.run()
	}
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case task := <-d.ch:
			d.exec(task)
		case <-d.done:
			for {
				select {
				case task := <-d.ch:
					d.exec(task)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) exec(task Task) {
	ctx := context.Background()
	if d.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.TaskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("outbox task panicked", "task", task.Name, "panic", r)
		}
	}()

	if err := task.Run(ctx); err != nil {
		d.failed.Add(1)
		d.logger.Warn("outbox task failed", "task", task.Name, "error", err)
	}
}

// Submit queues task. It returns ErrFull when the buffer is full and
// DropIfFull is set, ErrClosed after Close, and ctx.Err() if ctx ends
// while waiting for room.
func (d *Dispatcher) Submit(ctx context.Context, task Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- task:
			return nil
		default:
			d.dropped.Add(1)
			return ErrFull
		}
	}

	select {
	case d.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.done)
		d.mu.Unlock()
		d.wg.Wait()
		d.logger.Info("outbox closed", "dropped", d.Dropped(), "failed", d.Failed())
	})
}

// Dropped returns the number of tasks rejected because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Failed returns the number of tasks that returned an error or panicked.
func (d *Dispatcher) Failed() uint64 {
	return d.failed.Load()
}
