package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowPhase represents the current phase of a migration workflow session.
type WorkflowPhase string

const (
	// WorkflowPhaseInitial - session created, nothing chosen yet
	WorkflowPhaseInitial WorkflowPhase = "initial"
	// WorkflowPhasePlatformsSelected - source and destination platforms chosen
	WorkflowPhasePlatformsSelected WorkflowPhase = "platforms_selected"
	// WorkflowPhaseSourceConnected - source authenticated and inventory cached
	WorkflowPhaseSourceConnected WorkflowPhase = "source_connected"
	// WorkflowPhaseVmsSelected - selection parsed and persisted
	WorkflowPhaseVmsSelected WorkflowPhase = "vms_selected"
	// WorkflowPhaseDestinationConnected - destination authenticated and persisted
	WorkflowPhaseDestinationConnected WorkflowPhase = "destination_connected"
	// WorkflowPhaseMigrationRunning - orchestrator is dispatching
	WorkflowPhaseMigrationRunning WorkflowPhase = "migration_running"
	// WorkflowPhaseMigrationComplete - at least one vm migrated
	WorkflowPhaseMigrationComplete WorkflowPhase = "migration_complete"
	// WorkflowPhaseMigrationFailed - every vm failed
	WorkflowPhaseMigrationFailed WorkflowPhase = "migration_failed"
	// WorkflowPhaseClosed - platform sessions released before a migration ran
	WorkflowPhaseClosed WorkflowPhase = "closed"
)

func (p WorkflowPhase) IsTerminal() bool {
	return p == WorkflowPhaseMigrationComplete || p == WorkflowPhaseMigrationFailed || p == WorkflowPhaseClosed
}

func (p WorkflowPhase) String() string {
	return string(p)
}

// SessionStatus is a read-only snapshot of a workflow session.
type SessionStatus struct {
	ID          uuid.UUID
	Phase       WorkflowPhase
	Source      Platform
	Destination Platform
	Inventory   []VM
	SelectedVms []int
	Result      *MigrationResult
	Error       error
	UpdatedAt   time.Time
}
