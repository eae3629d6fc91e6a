package services_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/internal/services"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
	"github.com/kubev2v/esxi-migration-agent/pkg/scheduler"
	"github.com/kubev2v/esxi-migration-agent/test"
)

type recorder struct {
	mu   sync.Mutex
	runs []models.MigrationResult
}

func (r *recorder) Save(ctx context.Context, result models.MigrationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, result)
	return nil
}

func (r *recorder) Runs() []models.MigrationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.MigrationResult(nil), r.runs...)
}

func fastRetries(maxRetries uint) services.OrchestratorConfig {
	return services.OrchestratorConfig{
		MaxRetries:           maxRetries,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     5 * time.Millisecond,
	}
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx       context.Context
		sched     *scheduler.Scheduler
		history   *recorder
		dest      *test.MockDestinationSession
		inventory []models.VM
	)

	plan := func(ordinals ...int) services.Plan {
		return services.Plan{
			Source:      models.PlatformESXi,
			Destination: models.PlatformKVM,
			Session:     dest,
			Ordinals:    ordinals,
			Inventory:   inventory,
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		sched = scheduler.NewScheduler(2)
		history = &recorder{}
		dest = test.NewMockDestinationSession()
		inventory = test.Inventory("app", "db", "web", "cache")
	})

	AfterEach(func() {
		sched.Close()
	})

	// Given three VMs where the second fails
	// When the run completes
	// Then the other two are still migrated and the failure is itemized
	It("continues past a failing VM", func() {
		dest.On("db", func(ctx context.Context, vm models.VM, attempt int) (models.MigrationStep, error) {
			return models.MigrationStep{}, srvErrors.NewMigrationStepFailure(vm.Name, "convert exited with code 1", nil)
		})
		o := services.NewOrchestrator(sched, history, fastRetries(2))

		result, err := o.Run(ctx, plan(1, 2, 3))

		Expect(err).NotTo(HaveOccurred())
		Expect(result.TotalRequested).To(Equal(3))
		Expect(result.SucceededCount).To(Equal(2))
		Expect(result.FailedCount).To(Equal(1))
		Expect(result.Succeeded()).To(Equal([]int{1, 3}))
		Expect(result.Failed()).To(Equal([]int{2}))
		Expect(result.Items[1].Reason).To(Equal("convert exited with code 1"))
		Expect(result.Items[1].Attempts).To(Equal(1))
		Expect(result.Source).To(Equal(models.PlatformESXi))
		Expect(result.Destination).To(Equal(models.PlatformKVM))
		Expect(result.AllFailed()).To(BeFalse())
	})

	It("orders items by ordinal regardless of completion order", func() {
		// Given the first VM finishes last
		dest.On("app", func(ctx context.Context, vm models.VM, attempt int) (models.MigrationStep, error) {
			time.Sleep(50 * time.Millisecond)
			return models.MigrationStep{TargetID: "101"}, nil
		})
		o := services.NewOrchestrator(sched, history, fastRetries(0))

		result, err := o.Run(ctx, plan(4, 1, 3))

		Expect(err).NotTo(HaveOccurred())
		ordinals := []int{}
		for _, item := range result.Items {
			ordinals = append(ordinals, item.Ordinal)
		}
		Expect(ordinals).To(Equal([]int{1, 3, 4}))
		Expect(result.Items[0].TargetID).To(Equal("101"))
	})

	It("dispatches nothing when an ordinal does not resolve", func() {
		o := services.NewOrchestrator(sched, history, fastRetries(0))

		result, err := o.Run(ctx, plan(1, 9))

		Expect(result).To(BeNil())
		Expect(srvErrors.IsUnresolvedOrdinalError(err)).To(BeTrue())
		Expect(dest.Started()).To(BeEmpty())
		Expect(history.Runs()).To(BeEmpty())
	})

	It("never retries rejected credentials", func() {
		dest.On("app", func(ctx context.Context, vm models.VM, attempt int) (models.MigrationStep, error) {
			return models.MigrationStep{}, srvErrors.NewConnectionError(srvErrors.Unauthorized, "kvm", "kvm-01", errors.New("denied"))
		})
		o := services.NewOrchestrator(sched, history, fastRetries(3))

		result, err := o.Run(ctx, plan(1))

		Expect(err).NotTo(HaveOccurred())
		Expect(dest.Attempts("app")).To(Equal(1))
		Expect(result.Failed()).To(Equal([]int{1}))
		Expect(result.AllFailed()).To(BeTrue())
	})

	It("retries an attempt that exceeds the step timeout", func() {
		// Given a first attempt that hangs until its deadline
		dest.On("app", func(ctx context.Context, vm models.VM, attempt int) (models.MigrationStep, error) {
			if attempt == 1 {
				<-ctx.Done()
				return models.MigrationStep{}, ctx.Err()
			}
			return models.MigrationStep{TargetID: "app"}, nil
		})
		cfg := fastRetries(2)
		cfg.StepTimeout = 50 * time.Millisecond
		o := services.NewOrchestrator(sched, history, cfg)

		// When the run completes
		result, err := o.Run(ctx, plan(1))

		// Then the second attempt succeeded
		Expect(err).NotTo(HaveOccurred())
		Expect(dest.Attempts("app")).To(Equal(2))
		Expect(result.Succeeded()).To(Equal([]int{1}))
		Expect(result.Items[0].Attempts).To(Equal(2))
	})

	It("gives up on transient failures after the retry budget", func() {
		dest.On("app", func(ctx context.Context, vm models.VM, attempt int) (models.MigrationStep, error) {
			return models.MigrationStep{}, srvErrors.NewConnectionError(srvErrors.Unreachable, "kvm", "kvm-01", errors.New("no route to host"))
		})
		o := services.NewOrchestrator(sched, history, fastRetries(2))

		result, err := o.Run(ctx, plan(1))

		Expect(err).NotTo(HaveOccurred())
		Expect(dest.Attempts("app")).To(Equal(3))
		Expect(result.Items[0].Outcome).To(Equal(models.MigrationOutcomeFailed))
		Expect(result.Items[0].Reason).To(ContainSubstring("no route to host"))
	})

	It("stops dispatching on abort and records in-flight work", func() {
		// Given a single worker busy with the first VM
		sched.Close()
		sched = scheduler.NewScheduler(1)

		started := make(chan struct{})
		release := make(chan struct{})
		dest.On("app", func(ctx context.Context, vm models.VM, attempt int) (models.MigrationStep, error) {
			close(started)
			<-release
			return models.MigrationStep{TargetID: "app"}, nil
		})
		o := services.NewOrchestrator(sched, history, fastRetries(0))

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		done := make(chan *models.MigrationResult, 1)
		go func() {
			defer GinkgoRecover()
			result, err := o.Run(runCtx, plan(1, 2, 3))
			Expect(err).NotTo(HaveOccurred())
			done <- result
		}()

		// When the run is aborted while the first VM is migrating
		Eventually(started).Should(BeClosed())
		cancel()
		close(release)

		// Then the first VM completes and the rest are never started
		var result *models.MigrationResult
		Eventually(done, 5*time.Second).Should(Receive(&result))
		Expect(result.Aborted).To(BeTrue())
		Expect(result.Succeeded()).To(Equal([]int{1}))
		Expect(result.Failed()).To(Equal([]int{2, 3}))
		Expect(result.Items[1].Reason).To(Equal("aborted before dispatch"))
		Expect(result.Items[2].Attempts).To(BeZero())
		Expect(dest.Started()).To(Equal([]string{"app"}))
	})

	It("records every run in the history", func() {
		o := services.NewOrchestrator(sched, history, fastRetries(0))

		result, err := o.Run(ctx, plan(2))

		Expect(err).NotTo(HaveOccurred())
		Expect(history.Runs()).To(HaveLen(1))
		Expect(history.Runs()[0].ID).To(Equal(result.ID))
	})

	It("produces an empty successful run for an empty selection", func() {
		o := services.NewOrchestrator(sched, history, fastRetries(0))

		result, err := o.Run(ctx, plan())

		Expect(err).NotTo(HaveOccurred())
		Expect(result.TotalRequested).To(BeZero())
		Expect(result.AllFailed()).To(BeFalse())
	})
})
