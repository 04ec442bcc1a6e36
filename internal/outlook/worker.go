package outlook

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// ErrWorkerClosed is returned for work submitted after Close.
var ErrWorkerClosed = errors.New("automation worker closed")

type task struct {
	fn   func() error
	done chan error
}

// Worker owns the single apartment-affinitised OS thread all automation
// calls must run on. Work is submitted as closures and executed strictly in
// order.
type Worker struct {
	tasks chan task
	quit  chan struct{}
	once  sync.Once

	// init runs once on the locked thread before any task (CoInitialize on
	// Windows); teardown runs when the worker shuts down.
	init     func() error
	teardown func()
}

func NewWorker(init func() error, teardown func()) *Worker {
	w := &Worker{
		tasks:    make(chan task),
		quit:     make(chan struct{}),
		init:     init,
		teardown: teardown,
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var initErr error
	if w.init != nil {
		initErr = w.init()
	}
	if w.teardown != nil && initErr == nil {
		defer w.teardown()
	}

	for {
		select {
		case t := <-w.tasks:
			if initErr != nil {
				t.done <- fmt.Errorf("apartment init failed: %w", initErr)
				continue
			}
			t.done <- safeRun(t.fn)
		case <-w.quit:
			return
		}
	}
}

// Do runs fn on the worker thread and waits for it to finish or for the
// context to fire. When the context fires first the closure keeps running to
// completion on the worker; its result is discarded.
func (w *Worker) Do(ctx context.Context, fn func() error) error {
	t := task{fn: fn, done: make(chan error, 1)}

	select {
	case w.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.quit:
		return ErrWorkerClosed
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker. Pending Do calls return ErrWorkerClosed.
func (w *Worker) Close() {
	w.once.Do(func() { close(w.quit) })
}

// safeRun keeps a misbehaving automation call from taking the process down;
// the COM layer converts failed calls into errors but the boundary stays
// guarded.
func safeRun(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("automation call panicked: %v", r)
		}
	}()
	return fn()
}
