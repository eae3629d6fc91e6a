// Package services implements the business logic layer for the esxi-migration-agent.
//
// Services sit between the HTTP handlers (or the migrate command) and the
// platform connectors, the document store and the run history.
//
// # Service Dependency Graph
//
//	Handlers (HTTP endpoints) / migrate command
//	    │
//	    ▼
//	Services Layer
//	    ├── Sessions ─────► Workflow (one per session)
//	    ├── Workflow ─────► connector.Registry, DocumentStore, Orchestrator
//	    ├── Orchestrator ─► Scheduler, RunRecorder
//	    └── RunService ───► Store (run history)
//
// # Workflow
//
// Workflow is one migration session. Each step is only accepted from its
// predecessor phase; anything else fails with OutOfOrderTransitionError.
//
// State Machine:
//
//	┌─────────┐  SelectPlatforms  ┌───────────────────┐  ConnectSource  ┌─────────────────┐
//	│ initial │──────────────────►│ platforms_selected│────────────────►│ source_connected│
//	└─────────┘                   └───────────────────┘                 └────────┬────────┘
//	                                                                             │ SelectVMs
//	┌───────────────────────┐  ConnectDestination  ┌──────────────┐              │
//	│ destination_connected │◄─────────────────────│ vms_selected │◄─────────────┘
//	└──────────┬────────────┘                      └──────────────┘
//	           │ Migrate / Start
//	           ▼
//	┌───────────────────┐      ┌────────────────────┐
//	│ migration_running │─────►│ migration_complete │ (at least one VM migrated)
//	└───────────────────┘  │   └────────────────────┘
//	                       │   ┌────────────────────┐
//	                       └──►│ migration_failed   │ (every VM failed)
//	                           └────────────────────┘
//
// Key behaviors:
//   - A failed step leaves the phase unchanged and is reported by Status().Error
//   - Terminal phases reject every step
//   - The source inventory is cached at ConnectSource; ordinals index into it
//   - Each successful step persists exactly one document section
//   - Abort cancels dispatch of the running migration; VMs in flight finish
//   - Platform sessions are closed once the migration reaches a terminal phase
//   - Close before a migration releases the sessions and moves the phase to closed
//   - Close fails with MigrationInProgressError while any transition is running
//
// Usage:
//
//	w := sessions.Create()
//	err := w.SelectPlatforms(ctx, models.PlatformESXi, models.PlatformKVM)
//	err = w.ConnectSource(ctx, creds)
//	ordinals, err := w.SelectVMs(ctx, "1,3,5-7")
//	err = w.ConnectDestination(ctx, services.DestinationRequest{Credentials: kvmCreds})
//	result, err := w.Migrate(ctx)
//
// # Orchestrator
//
// Orchestrator migrates a batch of VMs on the shared scheduler, so at most
// Agent.NumWorkers VMs are in flight across all sessions.
//
//	Run(ctx, plan)
//	    │
//	    ├── resolve every ordinal ──► UnresolvedOrdinalError, nothing dispatched
//	    │
//	    ├── AddWork(ctx, migrateWork) per VM
//	    │       │
//	    │       └── attempt (StepTimeout) ──► retry Unreachable / Timeout
//	    │                                     with exponential backoff
//	    │                                     up to MaxRetries
//	    │
//	    ├── wait for every future
//	    ├── fold into MigrationResult (items sorted by ordinal)
//	    └── RunRecorder.Save (failure only logged)
//
// Retry policy:
//
//	┌───────────────────────────┬─────────┐
//	│ Failure                   │ Retried │
//	├───────────────────────────┼─────────┤
//	│ ConnectionError/Unreach.  │ yes     │
//	│ ConnectionError/Timeout   │ yes     │
//	│ ConnectionError/Unauth.   │ no      │
//	│ ConnectionError/Protocol  │ no      │
//	│ MigrationStepFailure      │ no      │
//	└───────────────────────────┴─────────┘
//
// Cancelling ctx closes the dispatch gate: queued VMs are recorded as failed
// with reason "aborted before dispatch" and the result is marked Aborted.
//
// # Sessions
//
// Sessions keeps the workflows served over HTTP, keyed by uuid. Remove
// refuses sessions with a running migration.
//
// # RunService
//
// RunService is a read-only view over the run history with filtering by
// destination platform and failed runs, and pagination.
package services
