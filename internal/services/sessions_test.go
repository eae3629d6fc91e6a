package services_test

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/internal/services"
	"github.com/kubev2v/esxi-migration-agent/internal/store"
	"github.com/kubev2v/esxi-migration-agent/pkg/connector"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
	"github.com/kubev2v/esxi-migration-agent/pkg/scheduler"
	"github.com/kubev2v/esxi-migration-agent/test"
)

var _ = Describe("Sessions", func() {
	var (
		ctx      context.Context
		sched    *scheduler.Scheduler
		sessions *services.Sessions
	)

	BeforeEach(func() {
		ctx = context.Background()
		sched = scheduler.NewScheduler(1)

		registry := connector.NewRegistry()
		registry.RegisterSource(&test.MockSourceConnector{Inventory: test.Inventory("app")})
		registry.RegisterDestination(&test.MockDestinationConnector{PlatformName: models.PlatformKVM})

		docs := store.NewConfigurationStore(filepath.Join(GinkgoT().TempDir(), "config.json"))
		sessions = services.NewSessions(registry, docs, services.NewOrchestrator(sched, nil, fastRetries(0)))
	})

	AfterEach(func() {
		sched.Close()
	})

	It("hands out created sessions by id", func() {
		w := sessions.Create()

		got, err := sessions.Get(w.ID())

		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeIdenticalTo(w))
		Expect(sessions.List()).To(HaveLen(1))
	})

	It("reports unknown ids as not found", func() {
		_, err := sessions.Get(uuid.New())

		Expect(srvErrors.IsResourceNotFoundError(err)).To(BeTrue())
	})

	It("forgets removed sessions", func() {
		w := sessions.Create()
		Expect(w.SelectPlatforms(ctx, models.PlatformESXi, models.PlatformKVM)).To(Succeed())

		Expect(sessions.Remove(ctx, w.ID())).To(Succeed())

		_, err := sessions.Get(w.ID())
		Expect(srvErrors.IsResourceNotFoundError(err)).To(BeTrue())
		Expect(sessions.List()).To(BeEmpty())
	})
})
