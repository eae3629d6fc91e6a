package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type MigrationOutcome string

const (
	MigrationOutcomeSucceeded MigrationOutcome = "succeeded"
	MigrationOutcomeFailed    MigrationOutcome = "failed"
)

// MigrationStep is what a destination reports once a VM is present on it.
type MigrationStep struct {
	// TargetID is the platform-native identifier on the destination (vmid or domain name).
	TargetID string
	Message  string
}

// VMResult is the outcome of one VM in a run.
type VMResult struct {
	Ordinal    int
	VMName     string
	Outcome    MigrationOutcome
	Reason     string
	TargetID   string
	Attempts   int
	StartedAt  time.Time
	FinishedAt time.Time
}

// MigrationResult is produced once per orchestration run.
type MigrationResult struct {
	ID             uuid.UUID
	Source         Platform
	Destination    Platform
	Items          []VMResult
	TotalRequested int
	SucceededCount int
	FailedCount    int
	Aborted        bool
	StartedAt      time.Time
	FinishedAt     time.Time
}

// NewMigrationResult builds the aggregate from per-VM items. Items are sorted
// by ordinal so the result does not depend on completion order.
func NewMigrationResult(id uuid.UUID, items []VMResult, aborted bool, startedAt, finishedAt time.Time) MigrationResult {
	sorted := slices.Clone(items)
	slices.SortFunc(sorted, func(a, b VMResult) int { return a.Ordinal - b.Ordinal })

	r := MigrationResult{
		ID:             id,
		Items:          sorted,
		TotalRequested: len(sorted),
		Aborted:        aborted,
		StartedAt:      startedAt,
		FinishedAt:     finishedAt,
	}
	for _, item := range sorted {
		if item.Outcome == MigrationOutcomeSucceeded {
			r.SucceededCount++
		} else {
			r.FailedCount++
		}
	}
	return r
}

func (r MigrationResult) Succeeded() []int {
	return r.ordinals(MigrationOutcomeSucceeded)
}

func (r MigrationResult) Failed() []int {
	return r.ordinals(MigrationOutcomeFailed)
}

// AllFailed is true when nothing was migrated. An empty run has not failed.
func (r MigrationResult) AllFailed() bool {
	return r.TotalRequested > 0 && r.SucceededCount == 0
}

func (r MigrationResult) ordinals(outcome MigrationOutcome) []int {
	out := []int{}
	for _, item := range r.Items {
		if item.Outcome == outcome {
			out = append(out, item.Ordinal)
		}
	}
	return out
}
