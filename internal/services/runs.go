package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/internal/store"
)

// RunService is a read-only facade over the run history.
type RunService struct {
	store *store.Store
}

func NewRunService(st *store.Store) *RunService {
	return &RunService{store: st}
}

type RunListParams struct {
	Destinations []models.Platform
	FailedOnly   bool
	Limit        uint64
	Offset       uint64
}

type RunListResult struct {
	Runs  []models.MigrationResult
	Total int
}

func (s *RunService) List(ctx context.Context, params RunListParams) (*RunListResult, error) {
	opts := s.buildListOptions(params)
	opts = append(opts, store.WithDefaultSort())
	if params.Limit > 0 {
		opts = append(opts, store.WithLimit(params.Limit))
	}
	if params.Offset > 0 {
		opts = append(opts, store.WithOffset(params.Offset))
	}

	runs, err := s.store.Runs().List(ctx, opts...)
	if err != nil {
		return nil, err
	}

	// total ignores pagination
	total, err := s.store.Runs().Count(ctx, s.buildListOptions(params)...)
	if err != nil {
		return nil, err
	}

	return &RunListResult{
		Runs:  runs,
		Total: total,
	}, nil
}

func (s *RunService) Get(ctx context.Context, id uuid.UUID) (*models.MigrationResult, error) {
	return s.store.Runs().Get(ctx, id)
}

func (s *RunService) buildListOptions(params RunListParams) []store.ListOption {
	var opts []store.ListOption

	if len(params.Destinations) > 0 {
		opts = append(opts, store.ByDestination(params.Destinations...))
	}
	if params.FailedOnly {
		opts = append(opts, store.WithFailures())
	}

	return opts
}
