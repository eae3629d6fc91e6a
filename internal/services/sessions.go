package services

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/pkg/connector"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
)

// Sessions keeps the workflows served by the agent.
type Sessions struct {
	registry     *connector.Registry
	store        DocumentStore
	orchestrator *Orchestrator

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Workflow
}

func NewSessions(registry *connector.Registry, store DocumentStore, orchestrator *Orchestrator) *Sessions {
	return &Sessions{
		registry:     registry,
		store:        store,
		orchestrator: orchestrator,
		sessions:     make(map[uuid.UUID]*Workflow),
	}
}

func (s *Sessions) Create() *Workflow {
	w := NewWorkflow(s.registry, s.store, s.orchestrator)

	s.mu.Lock()
	s.sessions[w.ID()] = w
	s.mu.Unlock()

	zap.S().Named("sessions").Infow("session created", "session_id", w.ID())
	return w
}

func (s *Sessions) Get(id uuid.UUID) (*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.sessions[id]
	if !ok {
		return nil, srvErrors.NewSessionNotFoundError(id.String())
	}
	return w, nil
}

// List returns session snapshots, most recently updated first.
func (s *Sessions) List() []models.SessionStatus {
	s.mu.RLock()
	statuses := make([]models.SessionStatus, 0, len(s.sessions))
	for _, w := range s.sessions {
		statuses = append(statuses, w.Status())
	}
	s.mu.RUnlock()

	slices.SortFunc(statuses, func(a, b models.SessionStatus) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return statuses
}

// Remove closes the session and forgets it. Sessions with a running migration are kept.
func (s *Sessions) Remove(ctx context.Context, id uuid.UUID) error {
	w, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := w.Close(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	zap.S().Named("sessions").Infow("session removed", "session_id", id)
	return nil
}

// Close releases every session that is not migrating.
func (s *Sessions) Close(ctx context.Context) {
	s.mu.RLock()
	workflows := make([]*Workflow, 0, len(s.sessions))
	for _, w := range s.sessions {
		workflows = append(workflows, w)
	}
	s.mu.RUnlock()

	for _, w := range workflows {
		if err := w.Close(ctx); err != nil {
			zap.S().Named("sessions").Warnw("session still busy on shutdown", "session_id", w.ID(), "error", err)
		}
	}
}
