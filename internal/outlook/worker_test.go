package outlook

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWorkerRunsTasksInOrder(t *testing.T) {
	w := NewWorker(nil, nil)
	defer w.Close()

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		if err := w.Do(context.Background(), func() error {
			order = append(order, i)
			return nil
		}); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
	}
	if len(order) != 3 || order[0] != 1 || order[2] != 3 {
		t.Errorf("order = %v", order)
	}
}

func TestWorkerPropagatesTaskError(t *testing.T) {
	w := NewWorker(nil, nil)
	defer w.Close()

	want := errors.New("boom")
	if err := w.Do(context.Background(), func() error { return want }); !errors.Is(err, want) {
		t.Errorf("Do() error = %v, want %v", err, want)
	}
}

func TestWorkerRecoversPanic(t *testing.T) {
	w := NewWorker(nil, nil)
	defer w.Close()

	err := w.Do(context.Background(), func() error { panic("bad com call") })
	if err == nil {
		t.Fatal("Do() on panicking task returned nil")
	}
}

func TestWorkerInitFailure(t *testing.T) {
	w := NewWorker(func() error { return errors.New("no apartment") }, nil)
	defer w.Close()

	err := w.Do(context.Background(), func() error { return nil })
	if err == nil {
		t.Fatal("Do() after failed init returned nil")
	}
}

func TestWorkerDoAfterClose(t *testing.T) {
	w := NewWorker(nil, nil)
	w.Close()
	// Close twice is safe.
	w.Close()

	// The run loop may still drain one racing task right after Close; it
	// settles into rejection once it has observed quit.
	deadline := time.Now().Add(time.Second)
	for {
		err := w.Do(context.Background(), func() error { return nil })
		if errors.Is(err, ErrWorkerClosed) {
			return
		}
		if err != nil {
			t.Fatalf("Do() after Close = %v, want ErrWorkerClosed", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("closed worker kept accepting tasks")
		}
	}
}

func TestWorkerDoCancelledContext(t *testing.T) {
	w := NewWorker(nil, nil)
	defer w.Close()

	block := make(chan struct{})
	release := make(chan struct{})
	go w.Do(context.Background(), func() error {
		close(block)
		<-release
		return nil
	})
	<-block

	// The worker thread is busy; a second Do with a cancelled context must
	// not hang.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Do(ctx, func() error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Do() = %v, want context.Canceled", err)
	}
	close(release)
}

func TestWorkerRunsTeardown(t *testing.T) {
	done := make(chan struct{})
	w := NewWorker(func() error { return nil }, func() { close(done) })

	if err := w.Do(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	w.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("teardown did not run after Close")
	}
}
