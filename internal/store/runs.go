package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
)

// RunStore keeps the history of migration runs. Runs are immutable once saved.
type RunStore struct {
	db QueryInterceptor
}

func NewRunStore(db QueryInterceptor) *RunStore {
	return &RunStore{db: db}
}

// Save records a run and its per-VM outcomes in one transaction.
func (s *RunStore) Save(ctx context.Context, r models.MigrationResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, queryInsertRun,
		r.ID.String(),
		string(r.Source),
		string(r.Destination),
		r.TotalRequested,
		r.SucceededCount,
		r.FailedCount,
		r.Aborted,
		r.StartedAt,
		r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.ID, err)
	}

	for _, item := range r.Items {
		_, err := tx.ExecContext(ctx, queryInsertRunVM,
			r.ID.String(),
			item.Ordinal,
			item.VMName,
			string(item.Outcome),
			item.Reason,
			item.TargetID,
			item.Attempts,
			item.StartedAt,
			item.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert outcome of vm %d for run %s: %w", item.Ordinal, r.ID, err)
		}
	}

	return tx.Commit()
}

// Get returns a run with its per-VM outcomes.
func (s *RunStore) Get(ctx context.Context, id uuid.UUID) (*models.MigrationResult, error) {
	runs, err := s.List(ctx, ByID(id))
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, srvErrors.NewRunNotFoundError(id.String())
	}
	run := runs[0]

	rows, err := s.db.QueryContext(ctx, queryGetRunVMs, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item models.VMResult
		var outcome string
		if err := rows.Scan(
			&item.Ordinal,
			&item.VMName,
			&outcome,
			&item.Reason,
			&item.TargetID,
			&item.Attempts,
			&item.StartedAt,
			&item.FinishedAt,
		); err != nil {
			return nil, err
		}
		item.Outcome = models.MigrationOutcome(outcome)
		run.Items = append(run.Items, item)
	}

	return &run, rows.Err()
}

// List returns run summaries without per-VM items.
func (s *RunStore) List(ctx context.Context, opts ...ListOption) ([]models.MigrationResult, error) {
	builder := sq.Select(
		"id",
		"source_platform",
		"destination_platform",
		"total_requested",
		"succeeded_count",
		"failed_count",
		"aborted",
		"started_at",
		"finished_at",
	).From("migration_runs")

	for _, opt := range opts {
		builder = opt(builder)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []models.MigrationResult{}
	for rows.Next() {
		var r models.MigrationResult
		var id, source, destination string
		if err := rows.Scan(
			&id,
			&source,
			&destination,
			&r.TotalRequested,
			&r.SucceededCount,
			&r.FailedCount,
			&r.Aborted,
			&r.StartedAt,
			&r.FinishedAt,
		); err != nil {
			return nil, err
		}
		r.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid run id %q: %w", id, err)
		}
		r.Source = models.Platform(source)
		r.Destination = models.Platform(destination)
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

func (s *RunStore) Count(ctx context.Context, opts ...ListOption) (int, error) {
	builder := sq.Select("COUNT(*)").From("migration_runs")

	for _, opt := range opts {
		builder = opt(builder)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}

	var count int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

type ListOption func(sq.SelectBuilder) sq.SelectBuilder

func ByID(id uuid.UUID) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.Eq{"id": id.String()})
	}
}

func ByDestination(platforms ...models.Platform) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		if len(platforms) == 0 {
			return b
		}
		values := make([]string, 0, len(platforms))
		for _, p := range platforms {
			values = append(values, string(p))
		}
		return b.Where(sq.Eq{"destination_platform": values})
	}
}

// WithFailures keeps runs where at least one VM failed.
func WithFailures() ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.Gt{"failed_count": 0})
	}
}

func WithLimit(limit uint64) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Limit(limit)
	}
}

func WithOffset(offset uint64) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Offset(offset)
	}
}

// WithDefaultSort orders the newest runs first.
func WithDefaultSort() ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.OrderBy("started_at DESC", "id")
	}
}
