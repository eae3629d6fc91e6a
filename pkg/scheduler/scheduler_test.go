package scheduler_test

import (
	"context"
	"errors"
	"runtime"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/esxi-migration-agent/pkg/scheduler"
)

var _ = Describe("Scheduler", func() {
	var (
		s   *scheduler.Scheduler
		ctx = context.Background()
	)

	AfterEach(func() {
		if s != nil {
			s.Close()
		}
	})

	Describe("AddWork", func() {
		It("should add work and return a future", func() {
			s = scheduler.NewScheduler(1)

			work := func(ctx context.Context) (any, error) {
				return "done", nil
			}

			future := s.AddWork(ctx, work)
			Expect(future).NotTo(BeNil())

			var result scheduler.Result[any]
			Eventually(future.C(), 2*time.Second).Should(Receive(&result))
			Expect(result.Data).To(Equal("done"))
		})
	})

	Describe("Run work", func() {
		It("should execute multiple work items", func() {
			s = scheduler.NewScheduler(2)

			results := make(chan int, 3)
			for i := range 3 {
				idx := i
				work := func(ctx context.Context) (any, error) {
					results <- idx
					return idx, nil
				}
				s.AddWork(ctx, work)
			}

			Eventually(func() int {
				return len(results)
			}, 2*time.Second, 100*time.Millisecond).Should(Equal(3))
		})
	})

	Describe("Cancel work", func() {
		It("should cancel work via future.Stop()", func() {
			s = scheduler.NewScheduler(1)

			cancelled := make(chan bool, 1)
			work := func(ctx context.Context) (any, error) {
				select {
				case <-ctx.Done():
					cancelled <- true
					return nil, ctx.Err()
				case <-time.After(5 * time.Second):
					return "completed", nil
				}
			}

			future := s.AddWork(ctx, work)
			time.Sleep(100 * time.Millisecond)
			future.Stop()

			Eventually(cancelled, 2*time.Second).Should(Receive(BeTrue()))
		})

		It("should cancel work when scheduler is closed", func() {
			s = scheduler.NewScheduler(1)

			cancelled := make(chan bool, 1)
			work := func(ctx context.Context) (any, error) {
				select {
				case <-ctx.Done():
					cancelled <- true
					return nil, ctx.Err()
				case <-time.After(5 * time.Second):
					return "completed", nil
				}
			}

			s.AddWork(ctx, work)
			time.Sleep(100 * time.Millisecond)
			s.Close()
			s = nil // prevent AfterEach from closing again

			Eventually(cancelled, 2*time.Second).Should(Receive(BeTrue()))
		})
	})

	Describe("Dispatch gate", func() {
		// Given a single busy worker and queued work
		// When the gate of the queued work is closed
		// Then the queued work never runs and reports ErrNotDispatched
		It("should not dispatch queued work once its gate is closed", func() {
			s = scheduler.NewScheduler(1)

			unblock := make(chan struct{})
			started := make(chan struct{})
			first := s.AddWork(ctx, func(ctx context.Context) (any, error) {
				close(started)
				<-unblock
				return "first", nil
			})
			Eventually(started, time.Second).Should(BeClosed())

			gate, abort := context.WithCancel(context.Background())
			ran := make(chan struct{}, 1)
			second := s.AddWork(gate, func(ctx context.Context) (any, error) {
				ran <- struct{}{}
				return "second", nil
			})

			abort()
			close(unblock)

			var result scheduler.Result[any]
			Eventually(first.C(), time.Second).Should(Receive(&result))
			Expect(result.Data).To(Equal("first"))

			Eventually(second.C(), time.Second).Should(Receive(&result))
			Expect(errors.Is(result.Err, scheduler.ErrNotDispatched)).To(BeTrue())
			Expect(errors.Is(result.Err, context.Canceled)).To(BeTrue())
			Consistently(ran, 100*time.Millisecond).ShouldNot(Receive())
		})

		// Given work that is already running
		// When its gate is closed
		// Then it keeps running and its result is delivered
		It("should let in-flight work finish after the gate closes", func() {
			s = scheduler.NewScheduler(1)

			gate, abort := context.WithCancel(context.Background())
			started := make(chan struct{})
			unblock := make(chan struct{})
			future := s.AddWork(gate, func(ctx context.Context) (any, error) {
				close(started)
				<-unblock
				return "done", ctx.Err()
			})
			Eventually(started, time.Second).Should(BeClosed())

			abort()
			close(unblock)

			var result scheduler.Result[any]
			Eventually(future.C(), time.Second).Should(Receive(&result))
			Expect(result.Err).NotTo(HaveOccurred())
			Expect(result.Data).To(Equal("done"))
		})

		It("should bound concurrency to the number of workers", func() {
			s = scheduler.NewScheduler(2)

			unblock := make(chan struct{})
			futures := make([]*scheduler.Future[scheduler.Result[any]], 0, 5)
			for range 5 {
				futures = append(futures, s.AddWork(ctx, func(ctx context.Context) (any, error) {
					<-unblock
					return nil, nil
				}))
			}

			Eventually(s.Running, time.Second).Should(Equal(2))
			Consistently(s.Running, 100*time.Millisecond).Should(Equal(2))
			Expect(s.Queued()).To(Equal(3))

			close(unblock)
			for _, f := range futures {
				Eventually(f.C(), time.Second).Should(Receive())
			}
		})
	})

	Describe("Goroutine cleanup", func() {
		It("should not leak goroutines after Close under load", func() {
			base := runtime.NumGoroutine()
			s = scheduler.NewScheduler(4)

			work := func(ctx context.Context) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}

			for i := 0; i < 200; i++ {
				s.AddWork(ctx, work)
			}

			time.Sleep(100 * time.Millisecond)
			s.Close()
			s = nil // prevent AfterEach from closing again

			Eventually(func() int {
				return runtime.NumGoroutine()
			}, 5*time.Second, 100*time.Millisecond).Should(BeNumerically("<=", base+10))
		})
	})

	Describe("Close behavior", func() {
		It("should return canceled when AddWork is called after Close", func() {
			s = scheduler.NewScheduler(1)
			s.Close()

			future := s.AddWork(ctx, func(ctx context.Context) (any, error) {
				return "done", nil
			})

			var result scheduler.Result[any]
			Eventually(future.C(), 1*time.Second).Should(Receive(&result))
			Expect(result.Err).To(MatchError(context.Canceled))
		})

		It("should wait for in-flight work to finish on Close", func() {
			s = scheduler.NewScheduler(1)

			started := make(chan struct{})
			unblock := make(chan struct{})
			work := func(ctx context.Context) (any, error) {
				close(started)
				<-unblock
				return "done", nil
			}

			s.AddWork(ctx, work)
			Eventually(started, 1*time.Second).Should(BeClosed())

			closeDone := make(chan struct{})
			go func() {
				s.Close()
				close(closeDone)
			}()

			Consistently(closeDone, 200*time.Millisecond).ShouldNot(BeClosed())
			close(unblock)
			Eventually(closeDone, 1*time.Second).Should(BeClosed())
			s = nil // prevent AfterEach from closing again
		})
	})
})
