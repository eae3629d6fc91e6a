package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/pkg/connector"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
	"github.com/kubev2v/esxi-migration-agent/pkg/scheduler"
)

const (
	reasonAbortedBeforeDispatch = "aborted before dispatch"
	reasonShuttingDown          = "agent shutting down"
)

var errStepTimeout = errors.New("migration attempt timed out")

// RunRecorder keeps the history of completed runs.
type RunRecorder interface {
	Save(ctx context.Context, r models.MigrationResult) error
}

type OrchestratorConfig struct {
	// StepTimeout bounds a single MigrateOne attempt. Zero disables it.
	StepTimeout          time.Duration
	MaxRetries           uint
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// Plan is one orchestration request.
type Plan struct {
	Source      models.Platform
	Destination models.Platform
	Session     connector.DestinationSession
	Ordinals    []int
	Inventory   []models.VM
}

// Orchestrator migrates a batch of VMs on the scheduler and folds the
// per-VM outcomes into a MigrationResult.
type Orchestrator struct {
	scheduler *scheduler.Scheduler
	runs      RunRecorder
	cfg       OrchestratorConfig
}

func NewOrchestrator(s *scheduler.Scheduler, runs RunRecorder, cfg OrchestratorConfig) *Orchestrator {
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = backoff.DefaultInitialInterval
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = backoff.DefaultMaxInterval
	}
	return &Orchestrator{scheduler: s, runs: runs, cfg: cfg}
}

// Run resolves every ordinal before anything is dispatched, then runs one
// work item per VM. ctx is the dispatch gate: once it is cancelled VMs not yet
// started are reported as failed while started ones finish and are recorded.
// Only UnresolvedOrdinalError is returned as an error; per-VM failures end up
// in the result.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) (*models.MigrationResult, error) {
	vms, err := resolve(plan.Ordinals, plan.Inventory)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	logger := zap.S().Named("orchestrator").With("run_id", id, "destination", plan.Destination)
	logger.Infow("starting migration run", "vms", len(vms))

	startedAt := time.Now()

	futures := make([]*scheduler.Future[scheduler.Result[any]], 0, len(vms))
	for _, vm := range vms {
		futures = append(futures, o.scheduler.AddWork(ctx, o.migrateWork(plan, vm)))
	}

	items := make([]models.VMResult, 0, len(vms))
	for i, f := range futures {
		r := <-f.C()
		item := o.toItem(vms[i], r)
		if item.Outcome == models.MigrationOutcomeSucceeded {
			logger.Infow("vm migrated", "vm", item.VMName, "ordinal", item.Ordinal, "target_id", item.TargetID, "attempts", item.Attempts)
		} else {
			logger.Errorw("vm migration failed", "vm", item.VMName, "ordinal", item.Ordinal, "reason", item.Reason, "attempts", item.Attempts)
		}
		items = append(items, item)
	}

	result := models.NewMigrationResult(id, items, ctx.Err() != nil, startedAt, time.Now())
	result.Source = plan.Source
	result.Destination = plan.Destination

	logger.Infow("migration run finished",
		"succeeded", result.SucceededCount,
		"failed", result.FailedCount,
		"aborted", result.Aborted,
		"duration", result.FinishedAt.Sub(result.StartedAt))

	if o.runs != nil {
		if err := o.runs.Save(context.WithoutCancel(ctx), result); err != nil {
			logger.Errorw("failed to record migration run", "error", err)
		}
	}

	return &result, nil
}

type attemptOutcome struct {
	step      models.MigrationStep
	attempts  int
	startedAt time.Time
}

type attemptError struct {
	attemptOutcome
	err error
}

func (e *attemptError) Error() string { return e.err.Error() }
func (e *attemptError) Unwrap() error { return e.err }

func (o *Orchestrator) migrateWork(plan Plan, vm models.VM) scheduler.Work[any] {
	return func(ctx context.Context) (any, error) {
		logger := zap.S().Named("orchestrator").With("vm", vm.Name, "ordinal", vm.Ordinal)
		out := attemptOutcome{startedAt: time.Now()}

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = o.cfg.RetryInitialInterval
		b.MaxInterval = o.cfg.RetryMaxInterval

		step, err := backoff.Retry(ctx, func() (models.MigrationStep, error) {
			out.attempts++
			step, err := o.attempt(ctx, plan, vm)
			if err == nil {
				return step, nil
			}
			if !retryable(err) {
				return step, backoff.Permanent(err)
			}
			logger.Warnw("transient failure, retrying", "attempt", out.attempts, "error", err)
			return step, err
		},
			backoff.WithBackOff(b),
			backoff.WithMaxTries(o.cfg.MaxRetries+1),
			backoff.WithMaxElapsedTime(o.retryBudget()),
		)
		if err != nil {
			return nil, &attemptError{attemptOutcome: out, err: err}
		}

		out.step = step
		return out, nil
	}
}

// attempt runs MigrateOne once under the step timeout.
func (o *Orchestrator) attempt(ctx context.Context, plan Plan, vm models.VM) (models.MigrationStep, error) {
	if o.cfg.StepTimeout <= 0 {
		return plan.Session.MigrateOne(ctx, vm)
	}

	attemptCtx, cancel := context.WithTimeoutCause(ctx, o.cfg.StepTimeout, errStepTimeout)
	defer cancel()

	step, err := plan.Session.MigrateOne(attemptCtx, vm)
	if err == nil {
		return step, nil
	}
	if errors.Is(context.Cause(attemptCtx), errStepTimeout) {
		return step, srvErrors.NewConnectionError(srvErrors.Timeout, string(plan.Destination), "",
			fmt.Errorf("%w after %s: %w", errStepTimeout, o.cfg.StepTimeout, err))
	}
	return step, err
}

// retryBudget keeps the backoff elapsed-time limit from cutting retries short
// when single attempts run for a long time.
func (o *Orchestrator) retryBudget() time.Duration {
	if o.cfg.StepTimeout <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(o.cfg.MaxRetries+1) * (o.cfg.StepTimeout + o.cfg.RetryMaxInterval)
}

func (o *Orchestrator) toItem(vm models.VM, r scheduler.Result[any]) models.VMResult {
	item := models.VMResult{
		Ordinal:    vm.Ordinal,
		VMName:     vm.Name,
		Outcome:    models.MigrationOutcomeFailed,
		FinishedAt: time.Now(),
	}

	if r.Err == nil {
		out, _ := r.Data.(attemptOutcome)
		item.Outcome = models.MigrationOutcomeSucceeded
		item.TargetID = out.step.TargetID
		item.Attempts = out.attempts
		item.StartedAt = out.startedAt
		return item
	}

	var ae *attemptError
	switch {
	case errors.Is(r.Err, scheduler.ErrNotDispatched):
		item.Reason = reasonAbortedBeforeDispatch
	case errors.As(r.Err, &ae):
		item.Reason = reason(ae.err)
		item.Attempts = ae.attempts
		item.StartedAt = ae.startedAt
	case errors.Is(r.Err, context.Canceled):
		item.Reason = reasonShuttingDown
	default:
		item.Reason = r.Err.Error()
	}
	return item
}

func retryable(err error) bool {
	if srvErrors.IsMigrationStepFailure(err) {
		return false
	}
	var connErr *srvErrors.ConnectionError
	return errors.As(err, &connErr) && connErr.Retryable()
}

func reason(err error) string {
	var stepErr *srvErrors.MigrationStepFailure
	if errors.As(err, &stepErr) {
		if stepErr.Err != nil {
			return stepErr.Reason + ": " + stepErr.Err.Error()
		}
		return stepErr.Reason
	}
	return err.Error()
}

// resolve maps ordinals to inventory entries. Any ordinal not in the
// inventory fails the whole request.
func resolve(ordinals []int, inventory []models.VM) ([]models.VM, error) {
	byOrdinal := make(map[int]models.VM, len(inventory))
	for _, vm := range inventory {
		byOrdinal[vm.Ordinal] = vm
	}

	vms := make([]models.VM, 0, len(ordinals))
	seen := make(map[int]bool, len(ordinals))
	for _, n := range ordinals {
		vm, ok := byOrdinal[n]
		if !ok {
			return nil, srvErrors.NewUnresolvedOrdinalError(n, len(inventory))
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		vms = append(vms, vm)
	}
	return vms, nil
}
