package stage

import (
	"context"
	"fmt"
)

// Task is a unit of background work whose completion can be polled without
// blocking. The zero value is not usable; construct tasks with Go.
type Task[T any] struct {
	done   chan struct{}
	cancel context.CancelFunc
	result T
	err    error
}

// Go runs fn on its own goroutine with a cancellable child of ctx. A panic in
// fn is converted into the task's error.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Task[T] {
	taskCtx, cancel := context.WithCancel(ctx)
	t := &Task[T]{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(t.done)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		t.result, t.err = fn(taskCtx)
	}()
	return t
}

// Finished reports whether the task has returned.
func (t *Task[T]) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done exposes the completion channel for select loops.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Result returns the task outcome. It blocks until the task finishes, so
// callers that must not block check Finished first.
func (t *Task[T]) Result() (T, error) {
	<-t.done
	return t.result, t.err
}

// Cancel asks the task to stop. The task still reports Finished only once fn
// has returned.
func (t *Task[T]) Cancel() {
	t.cancel()
}
