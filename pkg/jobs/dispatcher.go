package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of background delivery work, typically a notification event
// on its way to the messaging collaborator.
type Task struct {
	ID        string
	Kind      string
	Payload   interface{}
	CreatedAt time.Time
}

// HandlerFunc performs one delivery attempt for a task.
type HandlerFunc func(context.Context, Task) error

// Options tunes the dispatcher. Zero values fall back to defaults suitable
// for low-volume notification traffic.
type Options struct {
	Workers    int
	Buffer     int
	MaxRetries int
	RetryDelay time.Duration
}

// ErrNotRunning is returned by Submit before Start or after Stop.
var ErrNotRunning = errors.New("jobs: dispatcher not running")

// Dispatcher fans submitted tasks out to a fixed worker pool. Each worker
// retries a failing task in place with a fixed delay and drops it after the
// retry budget, logging the terminal error. Delivery is at-most-N attempts,
// never guaranteed.
type Dispatcher struct {
	handle HandlerFunc
	opts   Options
	logger *zap.Logger

	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewDispatcher builds a dispatcher around the given delivery handler.
func NewDispatcher(handle HandlerFunc, opts Options, logger *zap.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buffer <= 0 {
		opts.Buffer = opts.Workers * 8
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		handle: handle,
		opts:   opts,
		logger: logger,
		tasks:  make(chan Task, opts.Buffer),
	}
}

// Start launches the worker pool. Calling Start twice is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	d.running = true
	d.logger.Info("dispatcher started", zap.Int("workers", d.opts.Workers))
}

// Stop cancels in-flight deliveries and waits for the workers to exit.
// Buffered tasks that no worker picked up are discarded.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// Submit hands a task to the pool, blocking while the buffer is full.
func (d *Dispatcher) Submit(task Task) error {
	d.mu.Lock()
	running := d.running
	ctx := d.ctx
	d.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	select {
	case <-ctx.Done():
		return ErrNotRunning
	case d.tasks <- task:
		return nil
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case task := <-d.tasks:
			d.process(task)
		}
	}
}

// process runs the delivery attempts for one task in place. Retrying inside
// the worker keeps ordering per worker and avoids unbounded requeue loops.
func (d *Dispatcher) process(task Task) {
	for attempt := 1; ; attempt++ {
		err := d.handle(d.ctx, task)
		if err == nil {
			return
		}
		if attempt >= d.opts.MaxRetries {
			d.logger.Error("task dropped",
				zap.String("task_id", task.ID),
				zap.String("kind", task.Kind),
				zap.Int("attempts", attempt),
				zap.Error(err))
			return
		}
		d.logger.Warn("task failed, retrying",
			zap.String("task_id", task.ID),
			zap.String("kind", task.Kind),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-d.ctx.Done():
			return
		case <-time.After(d.opts.RetryDelay):
		}
	}
}
