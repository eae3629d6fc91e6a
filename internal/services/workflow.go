package services

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/pkg/connector"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
	"github.com/kubev2v/esxi-migration-agent/pkg/selection"
)

var errAborted = errors.New("migration aborted by operator")

// DocumentStore persists the sections of the configuration document.
type DocumentStore interface {
	Load(ctx context.Context) (*models.ConfigDocument, error)
	UpdateSource(ctx context.Context, creds models.Credentials) (*models.ConfigDocument, error)
	UpdateDestinationProxmox(ctx context.Context, creds models.Credentials) (*models.ConfigDocument, error)
	UpdateDestinationKvm(ctx context.Context, creds models.Credentials, storagePool string) (*models.ConfigDocument, error)
	UpdateSelectedVms(ctx context.Context, ordinals []int) (*models.ConfigDocument, error)
}

// DestinationRequest carries what ConnectDestination needs. StoragePool is
// only used by kvm; empty keeps the stored pool or the default.
type DestinationRequest struct {
	Credentials models.Credentials
	StoragePool string
}

// Workflow is one migration session. Transitions run strictly in order:
//
//	Initial -> PlatformsSelected -> SourceConnected -> VmsSelected
//	        -> DestinationConnected -> MigrationRunning -> MigrationComplete | MigrationFailed
//
// Close moves any phase before MigrationRunning to Closed.
// A transition called from any other phase fails with OutOfOrderTransitionError.
// A failed transition leaves the phase unchanged.
type Workflow struct {
	id           uuid.UUID
	registry     *connector.Registry
	store        DocumentStore
	orchestrator *Orchestrator

	// transition serializes transitions; mu guards the state read by Status.
	transition sync.Mutex
	mu         sync.Mutex

	phase       models.WorkflowPhase
	source      models.Platform
	destination models.Platform
	sourceConn  connector.SourceConnector
	destConn    connector.DestinationConnector
	sourceSess  connector.SourceSession
	destSess    connector.DestinationSession
	sourceCreds models.Credentials
	inventory   []models.VM
	selected    []int
	result      *models.MigrationResult
	lastErr     error
	updatedAt   time.Time
	startedAt   time.Time
	abort       context.CancelCauseFunc
}

func NewWorkflow(registry *connector.Registry, store DocumentStore, orchestrator *Orchestrator) *Workflow {
	return &Workflow{
		id:           uuid.New(),
		registry:     registry,
		store:        store,
		orchestrator: orchestrator,
		phase:        models.WorkflowPhaseInitial,
		selected:     []int{},
		updatedAt:    time.Now(),
	}
}

func (w *Workflow) ID() uuid.UUID {
	return w.id
}

// SelectPlatforms picks the connectors for the session.
func (w *Workflow) SelectPlatforms(ctx context.Context, source, destination models.Platform) error {
	w.transition.Lock()
	defer w.transition.Unlock()

	if err := w.expect(models.WorkflowPhaseInitial); err != nil {
		return err
	}

	sourceConn, err := w.registry.Source(source)
	if err != nil {
		return w.fail(err)
	}
	destConn, err := w.registry.Destination(destination)
	if err != nil {
		return w.fail(err)
	}

	w.mu.Lock()
	w.source, w.destination = source, destination
	w.sourceConn, w.destConn = sourceConn, destConn
	w.mu.Unlock()

	w.advance(models.WorkflowPhasePlatformsSelected)
	return nil
}

// ConnectSource authenticates, caches the inventory and persists the source section.
func (w *Workflow) ConnectSource(ctx context.Context, creds models.Credentials) error {
	w.transition.Lock()
	defer w.transition.Unlock()

	if err := w.expect(models.WorkflowPhasePlatformsSelected); err != nil {
		return err
	}

	session, err := w.sourceConn.Authenticate(ctx, creds)
	if err != nil {
		return w.fail(err)
	}

	inventory, err := session.ListVMs(ctx)
	if err != nil {
		w.closeQuietly(ctx, session)
		return w.fail(err)
	}

	if _, err := w.store.UpdateSource(ctx, creds); err != nil {
		w.closeQuietly(ctx, session)
		return w.fail(err)
	}

	w.mu.Lock()
	w.sourceSess = session
	w.sourceCreds = creds
	w.inventory = inventory
	w.mu.Unlock()

	w.logger().Infow("source connected", "host", creds.Host, "user", creds.User, "vms", len(inventory))
	w.advance(models.WorkflowPhaseSourceConnected)
	return nil
}

// SelectVMs parses expr against the cached inventory and persists the selection.
func (w *Workflow) SelectVMs(ctx context.Context, expr string) ([]int, error) {
	w.transition.Lock()
	defer w.transition.Unlock()

	if err := w.expect(models.WorkflowPhaseSourceConnected); err != nil {
		return nil, err
	}

	ordinals, err := selection.Parse(expr, len(w.inventory))
	if err != nil {
		return nil, w.fail(err)
	}

	if _, err := w.store.UpdateSelectedVms(ctx, ordinals); err != nil {
		return nil, w.fail(err)
	}

	w.mu.Lock()
	w.selected = ordinals
	w.mu.Unlock()

	w.logger().Infow("vms selected", "ordinals", ordinals)
	w.advance(models.WorkflowPhaseVmsSelected)
	return slices.Clone(ordinals), nil
}

// ConnectDestination authenticates against the destination and persists the matching variant.
func (w *Workflow) ConnectDestination(ctx context.Context, req DestinationRequest) error {
	w.transition.Lock()
	defer w.transition.Unlock()

	if err := w.expect(models.WorkflowPhaseVmsSelected); err != nil {
		return err
	}

	doc, err := w.store.Load(ctx)
	if err != nil {
		return w.fail(err)
	}

	target := connector.DestinationTarget{
		Credentials:    req.Credentials,
		StorageTarget:  doc.StorageTarget,
		ExportRoot:     doc.ExportRoot,
		ExportToolPath: doc.ExportToolPath,
		Source:         w.sourceCreds,
	}
	if w.destination == models.PlatformKVM {
		target.StoragePool = req.StoragePool
		if target.StoragePool == "" && doc.Destination.Kvm != nil {
			target.StoragePool = doc.Destination.Kvm.StoragePool
		}
		if target.StoragePool == "" {
			target.StoragePool = models.DefaultKvmStoragePool
		}
	}

	session, err := w.destConn.Authenticate(ctx, target)
	if err != nil {
		return w.fail(err)
	}

	switch w.destination {
	case models.PlatformProxmox:
		_, err = w.store.UpdateDestinationProxmox(ctx, req.Credentials)
	case models.PlatformKVM:
		_, err = w.store.UpdateDestinationKvm(ctx, req.Credentials, target.StoragePool)
	default:
		err = srvErrors.NewUnsupportedPlatformError(string(w.destination), "destination")
	}
	if err != nil {
		w.closeQuietly(ctx, session)
		return w.fail(err)
	}

	w.mu.Lock()
	w.destSess = session
	w.mu.Unlock()

	w.logger().Infow("destination connected", "platform", w.destination, "host", req.Credentials.Host, "user", req.Credentials.User)
	w.advance(models.WorkflowPhaseDestinationConnected)
	return nil
}

// MigrationOutcome is delivered once a migration started with Start ends.
type MigrationOutcome struct {
	Result *models.MigrationResult
	Err    error
}

// Migrate runs the orchestrator over the selected VMs and blocks until the
// run ends. The session reaches MigrationComplete when at least one VM was
// migrated (or none were requested), MigrationFailed otherwise.
func (w *Workflow) Migrate(ctx context.Context) (*models.MigrationResult, error) {
	done, err := w.Start(ctx)
	if err != nil {
		return nil, err
	}
	outcome := <-done
	return outcome.Result, outcome.Err
}

// Start moves the session to MigrationRunning and runs the orchestrator in
// the background. No other transition is accepted until the run ends.
func (w *Workflow) Start(ctx context.Context) (<-chan MigrationOutcome, error) {
	w.transition.Lock()

	if err := w.expect(models.WorkflowPhaseDestinationConnected); err != nil {
		w.transition.Unlock()
		return nil, err
	}

	runCtx, cancel := context.WithCancelCause(ctx)

	w.mu.Lock()
	w.abort = cancel
	w.startedAt = time.Now()
	plan := Plan{
		Source:      w.source,
		Destination: w.destination,
		Session:     w.destSess,
		Ordinals:    slices.Clone(w.selected),
		Inventory:   slices.Clone(w.inventory),
	}
	w.mu.Unlock()

	w.advance(models.WorkflowPhaseMigrationRunning)

	done := make(chan MigrationOutcome, 1)
	go func() {
		result, err := w.run(ctx, runCtx, plan)
		cancel(nil)
		w.transition.Unlock()

		done <- MigrationOutcome{Result: result, Err: err}
		close(done)
	}()

	return done, nil
}

func (w *Workflow) run(ctx, runCtx context.Context, plan Plan) (*models.MigrationResult, error) {
	result, err := w.orchestrator.Run(runCtx, plan)

	w.mu.Lock()
	w.abort = nil
	w.mu.Unlock()

	if err != nil {
		// nothing was dispatched, so the session can still be retried from here
		w.advance(models.WorkflowPhaseDestinationConnected)
		return nil, w.fail(err)
	}

	w.mu.Lock()
	w.result = result
	w.mu.Unlock()

	if result.AllFailed() {
		w.advance(models.WorkflowPhaseMigrationFailed)
	} else {
		w.advance(models.WorkflowPhaseMigrationComplete)
	}
	w.closeSessions(context.WithoutCancel(ctx))

	copied := *result
	copied.Items = slices.Clone(result.Items)
	return &copied, nil
}

// Abort stops dispatching VMs of the running migration. VMs already being
// migrated finish and are recorded.
func (w *Workflow) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.phase != models.WorkflowPhaseMigrationRunning || w.abort == nil {
		return srvErrors.NewOutOfOrderTransitionError(models.WorkflowPhaseMigrationRunning.String(), w.phase.String())
	}
	w.abort(errAborted)
	w.logger().Infow("migration abort requested")
	return nil
}

// Close releases platform sessions. A session closed before its migration
// ran moves to Closed and rejects every later transition. Close fails with
// MigrationInProgressError while a migration or another transition is running.
func (w *Workflow) Close(ctx context.Context) error {
	if !w.transition.TryLock() {
		w.mu.Lock()
		startedAt := w.startedAt
		w.mu.Unlock()
		return srvErrors.NewMigrationInProgressError(startedAt)
	}
	defer w.transition.Unlock()

	w.closeSessions(ctx)

	w.mu.Lock()
	terminal := w.phase.IsTerminal()
	w.mu.Unlock()
	if !terminal {
		w.advance(models.WorkflowPhaseClosed)
	}
	return nil
}

func (w *Workflow) Status() models.SessionStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := models.SessionStatus{
		ID:          w.id,
		Phase:       w.phase,
		Source:      w.source,
		Destination: w.destination,
		Inventory:   slices.Clone(w.inventory),
		SelectedVms: slices.Clone(w.selected),
		Error:       w.lastErr,
		UpdatedAt:   w.updatedAt,
	}
	if w.result != nil {
		r := *w.result
		r.Items = slices.Clone(w.result.Items)
		status.Result = &r
	}
	return status
}

func (w *Workflow) expect(phase models.WorkflowPhase) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.phase != phase {
		return srvErrors.NewOutOfOrderTransitionError(phase.String(), w.phase.String())
	}
	return nil
}

func (w *Workflow) advance(phase models.WorkflowPhase) {
	w.mu.Lock()
	from := w.phase
	w.phase = phase
	w.lastErr = nil
	w.updatedAt = time.Now()
	w.mu.Unlock()

	w.logger().Debugw("phase changed", "from", from, "to", phase)
}

func (w *Workflow) fail(err error) error {
	w.mu.Lock()
	w.lastErr = err
	w.updatedAt = time.Now()
	phase := w.phase
	w.mu.Unlock()

	w.logger().Errorw("transition failed", "phase", phase, "error", err)
	return err
}

func (w *Workflow) closeSessions(ctx context.Context) {
	w.mu.Lock()
	source, destination := w.sourceSess, w.destSess
	w.sourceSess, w.destSess = nil, nil
	w.mu.Unlock()

	if source != nil {
		w.closeQuietly(ctx, source)
	}
	if destination != nil {
		w.closeQuietly(ctx, destination)
	}
}

type closer interface {
	Close(ctx context.Context) error
}

func (w *Workflow) closeQuietly(ctx context.Context, c closer) {
	if err := c.Close(context.WithoutCancel(ctx)); err != nil {
		w.logger().Debugw("failed to close platform session", "error", err)
	}
}

func (w *Workflow) logger() *zap.SugaredLogger {
	return zap.S().Named("workflow").With("session_id", w.id)
}
