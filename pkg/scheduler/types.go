package scheduler

import (
	"context"
	"errors"
)

// ErrNotDispatched is returned in place of a result when the dispatch gate of
// a work item was closed before a worker picked it up. The work never ran.
var ErrNotDispatched = errors.New("work was not dispatched")

type Work[T any] func(ctx context.Context) (T, error)

type Result[T any] struct {
	Data T
	Err  error
}

type Future[T any] struct {
	input  chan T
	cancel context.CancelFunc
}

func NewFuture[T any](input chan T, cancel context.CancelFunc) *Future[T] {
	return &Future[T]{
		input:  input,
		cancel: cancel,
	}
}

// C receives exactly one value.
func (f *Future[T]) C() chan T {
	return f.input
}

// Stop cancels the context of the running work.
func (f *Future[T]) Stop() {
	f.cancel()
}
