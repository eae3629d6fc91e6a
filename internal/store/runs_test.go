package store_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/internal/store"
	"github.com/kubev2v/esxi-migration-agent/internal/store/migrations"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
)

func newRun(destination models.Platform, startedAt time.Time, outcomes ...models.MigrationOutcome) models.MigrationResult {
	items := make([]models.VMResult, 0, len(outcomes))
	for i, o := range outcomes {
		items = append(items, models.VMResult{
			Ordinal:    i + 1,
			VMName:     "vm",
			Outcome:    o,
			Attempts:   1,
			StartedAt:  startedAt,
			FinishedAt: startedAt.Add(time.Minute),
		})
	}
	r := models.NewMigrationResult(uuid.New(), items, false, startedAt, startedAt.Add(time.Hour))
	r.Source = models.PlatformESXi
	r.Destination = destination
	return r
}

var _ = Describe("RunStore", func() {
	var (
		ctx context.Context
		s   *store.Store
		db  *sql.DB
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		db, err = store.NewDB(":memory:")
		Expect(err).NotTo(HaveOccurred())

		err = migrations.Run(ctx, db)
		Expect(err).NotTo(HaveOccurred())

		s = store.NewStore(db, filepath.Join(GinkgoT().TempDir(), "config.json"))
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Context("Get", func() {
		It("should return RunNotFound for an unknown run", func() {
			_, err := s.Runs().Get(ctx, uuid.New())

			Expect(srvErrors.IsResourceNotFoundError(err)).To(BeTrue())
		})

		// Given a saved run with a partial failure
		// When we retrieve it
		// Then the per-vm outcomes are returned in ordinal order
		It("should return the saved run with its outcomes", func() {
			started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			run := newRun(models.PlatformKVM, started,
				models.MigrationOutcomeSucceeded, models.MigrationOutcomeFailed, models.MigrationOutcomeSucceeded)
			run.Items[1].Reason = "import failed"
			Expect(s.Runs().Save(ctx, run)).To(Succeed())

			got, err := s.Runs().Get(ctx, run.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(run.ID))
			Expect(got.Destination).To(Equal(models.PlatformKVM))
			Expect(got.TotalRequested).To(Equal(3))
			Expect(got.SucceededCount).To(Equal(2))
			Expect(got.FailedCount).To(Equal(1))
			Expect(got.Items).To(HaveLen(3))
			Expect(got.Items[1].Outcome).To(Equal(models.MigrationOutcomeFailed))
			Expect(got.Items[1].Reason).To(Equal("import failed"))
			Expect(got.Succeeded()).To(Equal([]int{1, 3}))
		})
	})

	Context("List", func() {
		BeforeEach(func() {
			base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			Expect(s.Runs().Save(ctx, newRun(models.PlatformKVM, base, models.MigrationOutcomeSucceeded))).To(Succeed())
			Expect(s.Runs().Save(ctx, newRun(models.PlatformProxmox, base.Add(time.Hour), models.MigrationOutcomeFailed))).To(Succeed())
			Expect(s.Runs().Save(ctx, newRun(models.PlatformKVM, base.Add(2*time.Hour), models.MigrationOutcomeFailed))).To(Succeed())
		})

		It("should list newest first", func() {
			runs, err := s.Runs().List(ctx, store.WithDefaultSort())

			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(3))
			Expect(runs[0].StartedAt.After(runs[1].StartedAt)).To(BeTrue())
			Expect(runs[1].StartedAt.After(runs[2].StartedAt)).To(BeTrue())
		})

		It("should filter by destination and failures", func() {
			runs, err := s.Runs().List(ctx, store.ByDestination(models.PlatformKVM), store.WithFailures())

			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(1))
			Expect(runs[0].Destination).To(Equal(models.PlatformKVM))
			Expect(runs[0].FailedCount).To(Equal(1))
		})

		It("should paginate", func() {
			runs, err := s.Runs().List(ctx, store.WithDefaultSort(), store.WithLimit(2), store.WithOffset(2))
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(HaveLen(1))

			count, err := s.Runs().Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(3))
		})
	})
})
