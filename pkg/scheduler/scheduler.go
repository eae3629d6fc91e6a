package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

type queue[T any] []T

func (wq *queue[T]) Len() int { return len(*wq) }

func (wq *queue[T]) Pop() T {
	old := *wq
	x := old[0]
	*wq = old[1:]
	return x
}

func (wq *queue[T]) Peek() T {
	return (*wq)[0]
}

func (wq *queue[T]) Push(t T) {
	*wq = append(*wq, t)
}

type workRequest struct {
	fn     Work[any]
	c      chan Result[any]
	ctx    context.Context
	cancel context.CancelFunc
	gate   context.Context
}

type worker struct {
	done chan any
	wg   *sync.WaitGroup
}

func (w worker) Work(r workRequest, running *atomic.Int64) {
	running.Add(1)
	defer func() {
		if rec := recover(); rec != nil {
			r.c <- Result[any]{Err: fmt.Errorf("worker panicked: %v", rec)}
		}
		r.cancel()
		running.Add(-1)
		w.done <- struct{}{}
		w.wg.Done()
	}()

	v, err := r.fn(r.ctx)
	r.c <- Result[any]{Data: v, Err: err}
}

func newWorker(done chan any, wg *sync.WaitGroup) worker {
	return worker{done: done, wg: wg}
}

// Scheduler runs work on a fixed number of workers.
type Scheduler struct {
	workers    *queue[worker]
	workQueue  *queue[workRequest]
	close      chan any
	done       chan any
	stopped    chan struct{}
	work       chan workRequest
	mainCtx    context.Context
	mainCancel context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
	running    atomic.Int64
	queued     atomic.Int64
}

func NewScheduler(nbWorkers int) *Scheduler {
	if nbWorkers < 1 {
		nbWorkers = 1
	}
	done := make(chan any, nbWorkers)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		workers:    &queue[worker]{},
		workQueue:  &queue[workRequest]{},
		close:      make(chan any),
		done:       done,
		stopped:    make(chan struct{}),
		work:       make(chan workRequest),
		mainCtx:    ctx,
		mainCancel: cancel,
	}
	for range nbWorkers {
		s.workers.Push(newWorker(done, &s.wg))
	}
	go s.run()
	return s
}

// AddWork queues w. The gate only controls dispatch: once gate is done, queued
// work completes with ErrNotDispatched, while work already running keeps its
// own context and is allowed to finish.
func (s *Scheduler) AddWork(gate context.Context, w Work[any]) *Future[Result[any]] {
	c := make(chan Result[any], 1)
	ctx, cancel := context.WithCancel(s.mainCtx)
	if gate == nil {
		gate = context.Background()
	}

	select {
	case <-s.mainCtx.Done():
		// we're closing here so send a result with an error
		cancel()
		c <- Result[any]{Err: context.Canceled}
	case s.work <- workRequest{fn: w, c: c, ctx: ctx, cancel: cancel, gate: gate}:
		s.queued.Add(1)
	}

	return NewFuture(c, cancel)
}

// Running returns the number of work items currently executing.
func (s *Scheduler) Running() int {
	return int(s.running.Load())
}

// Queued returns the number of work items waiting for a worker.
func (s *Scheduler) Queued() int {
	return int(s.queued.Load())
}

func (s *Scheduler) Close() {
	s.once.Do(func() {
		s.mainCancel()
		s.close <- struct{}{}
		<-s.stopped
	})
}

func (s *Scheduler) run() {
	defer close(s.stopped)
	for {
		select {
		case w := <-s.work:
			s.workQueue.Push(w)
			s.dispatch()
		case <-s.done:
			s.workers.Push(newWorker(s.done, &s.wg))
			s.dispatch()
		case <-s.close:
			s.drain()
			s.wg.Wait()
			return
		}
	}
}

// dispatch drains the workQueue as much as possible
// based on available workers
func (s *Scheduler) dispatch() {
	for s.workQueue.Len() > 0 {
		r := s.workQueue.Peek()
		if r.gate.Err() != nil {
			s.workQueue.Pop()
			s.queued.Add(-1)
			r.cancel()
			r.c <- Result[any]{Err: fmt.Errorf("%w: %w", ErrNotDispatched, context.Cause(r.gate))}
			continue
		}
		if s.workers.Len() == 0 {
			return
		}
		s.workQueue.Pop()
		s.queued.Add(-1)
		worker := s.workers.Pop()
		s.wg.Add(1)
		go worker.Work(r, &s.running)
	}
}

// drain fails every queued request on shutdown.
func (s *Scheduler) drain() {
	for s.workQueue.Len() > 0 {
		r := s.workQueue.Pop()
		s.queued.Add(-1)
		r.cancel()
		r.c <- Result[any]{Err: context.Canceled}
	}
}
