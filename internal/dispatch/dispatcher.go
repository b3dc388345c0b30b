// Package dispatch runs fire-and-forget work detached from the request that
// scheduled it, while still tracking every task until it finishes.
package dispatch

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/wolfman30/leasing-leads-api/pkg/logging"
)

// Task is a unit of detached work.
type Task func(ctx context.Context)

// Dispatcher starts tasks on their own goroutines and lets shutdown wait for
// them.
type Dispatcher struct {
	logger   *logging.Logger
	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// New creates a dispatcher.
func New(logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{logger: logger}
}

// Go runs task in the background. The task context keeps ctx values (trace
// spans, request ids) but not its cancellation, so a client hanging up does
// not abort the task. After Shutdown has started, tasks run inline instead of
// being dropped.
func (d *Dispatcher) Go(ctx context.Context, name string, task Task) {
	if ctx == nil {
		ctx = context.Background()
	}
	taskCtx := context.WithoutCancel(ctx)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("dispatcher closed; running task inline", "task", name)
		d.run(taskCtx, name, task)
		return
	}
	d.wg.Add(1)
	d.inFlight.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer d.inFlight.Add(-1)
		d.run(taskCtx, name, task)
	}()
}

func (d *Dispatcher) run(ctx context.Context, name string, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("detached task panicked",
				"task", name,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
	}()
	task(ctx)
}

// InFlight reports how many tasks are still running.
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// Shutdown stops background scheduling and waits for running tasks or ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("dispatcher shutdown timed out", "in_flight", d.InFlight())
		return ctx.Err()
	}
}
