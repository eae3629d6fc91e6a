// Package scheduler implements a bounded worker pool for executing async work with futures.
//
// The scheduler manages a fixed pool of workers that execute work functions
// concurrently. Work is submitted via AddWork and returns a Future that can
// be used to retrieve the result or cancel the work. The migration orchestrator
// uses it to cap how many VMs are pushed to a destination platform at once.
//
// # Architecture Overview
//
//	┌─────────────────────────────────────────────────────────────────────┐
//	│                           Scheduler                                 │
//	│                                                                     │
//	│  ┌──────────────┐      ┌──────────────┐      ┌──────────────┐       │
//	│  │   Worker 1   │      │   Worker 2   │      │   Worker N   │       │
//	│  └──────────────┘      └──────────────┘      └──────────────┘       │
//	│         ▲                     ▲                     ▲               │
//	│         └─────────────────────┼─────────────────────┘               │
//	│                        ┌──────┴──────┐                              │
//	│                        │  dispatch() │◄── gate closed? drop request │
//	│                        └──────┬──────┘                              │
//	│  ┌────────────────────────────┴────────────────────────────┐        │
//	│  │                      Work Queue                         │        │
//	│  └─────────────────────────────────────────────────────────┘        │
//	│                               ▲                                     │
//	│                        AddWork(gate, fn)                            │
//	└─────────────────────────────────────────────────────────────────────┘
//
// # Dispatch Gate
//
// Every request carries a gate context next to its execution context:
//
//   - gate: checked only by dispatch(). When it is done before a worker picks
//     the request up, the future receives ErrNotDispatched (wrapping the gate's
//     cause) and the work function is never called.
//   - execution context: derived from the scheduler's main context. Closing the
//     gate does not cancel it, so work that is already running finishes and its
//     result is delivered.
//
// This is what gives an operator abort its semantics: stop handing out new
// work, keep everything already handed out.
//
// # Cancellation
//
//   - future.Stop() cancels an individual work's execution context
//   - scheduler.Close() cancels the main context, fails queued work with
//     context.Canceled and waits for in-flight work
//
// # Panic Recovery
//
// Workers recover from panics in work functions and report them as errors.
// The worker returns to the pool either way.
//
// # Usage Example
//
//	sched := scheduler.NewScheduler(4)
//	defer sched.Close()
//
//	future := sched.AddWork(abortCtx, func(ctx context.Context) (any, error) {
//	    return migrate(ctx)
//	})
//
//	result := <-future.C()
//	if errors.Is(result.Err, scheduler.ErrNotDispatched) {
//	    // aborted before it started
//	}
package scheduler
