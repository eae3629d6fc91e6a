package handlers_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	v1 "github.com/kubev2v/esxi-migration-agent/api/v1"
	"github.com/kubev2v/esxi-migration-agent/internal/handlers"
	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/internal/services"
	"github.com/kubev2v/esxi-migration-agent/internal/store"
	"github.com/kubev2v/esxi-migration-agent/internal/store/migrations"
	"github.com/kubev2v/esxi-migration-agent/pkg/connector"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
	"github.com/kubev2v/esxi-migration-agent/pkg/report"
	"github.com/kubev2v/esxi-migration-agent/pkg/scheduler"
	"github.com/kubev2v/esxi-migration-agent/test"
)

var _ = Describe("Handler", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		db       *sql.DB
		st       *store.Store
		sched    *scheduler.Scheduler
		source   *test.MockSourceConnector
		proxmox  *test.MockDestinationConnector
		sessions *services.Sessions
		router   *gin.Engine
	)

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var reader *bytes.Reader
		if body != nil {
			data, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(data)
		} else {
			reader = bytes.NewReader(nil)
		}
		req := httptest.NewRequest(method, "/api/v1"+path, reader)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	decode := func(rec *httptest.ResponseRecorder, v any) {
		Expect(json.Unmarshal(rec.Body.Bytes(), v)).To(Succeed())
	}

	esxiCreds := v1.CredentialsRequest{Host: "esxi-01", User: "root", Password: "esxi-secret"}
	proxmoxCreds := v1.ConnectDestinationRequest{
		CredentialsRequest: v1.CredentialsRequest{Host: "pve-01", User: "root@pam", Password: "pve-secret"},
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())

		var err error
		db, err = store.NewDB(":memory:")
		Expect(err).NotTo(HaveOccurred())
		Expect(migrations.Run(ctx, db)).To(Succeed())
		st = store.NewStore(db, filepath.Join(GinkgoT().TempDir(), "config.json"))

		source = &test.MockSourceConnector{Inventory: test.Inventory("app", "db", "web")}
		proxmox = &test.MockDestinationConnector{PlatformName: models.PlatformProxmox, Session: test.NewMockDestinationSession()}
		registry := connector.NewRegistry()
		registry.RegisterSource(source)
		registry.RegisterDestination(proxmox)

		sched = scheduler.NewScheduler(2)
		orchestrator := services.NewOrchestrator(sched, st.Runs(), services.OrchestratorConfig{
			RetryInitialInterval: time.Millisecond,
			RetryMaxInterval:     time.Millisecond,
		})
		sessions = services.NewSessions(registry, st.Configuration(), orchestrator)

		h := handlers.New(ctx, registry, sessions, services.NewRunService(st), st.Configuration())
		router = gin.New()
		v1.RegisterHandlers(router.Group("/api/v1"), h)
	})

	AfterEach(func() {
		cancel()
		sched.Close()
		_ = db.Close()
	})

	createSession := func() string {
		rec := do(http.MethodPost, "/sessions", nil)
		Expect(rec.Code).To(Equal(http.StatusCreated))
		var status v1.SessionStatus
		decode(rec, &status)
		Expect(status.Phase).To(Equal(string(models.WorkflowPhaseInitial)))
		return status.Id
	}

	It("lists registered platforms", func() {
		rec := do(http.MethodGet, "/platforms", nil)

		Expect(rec.Code).To(Equal(http.StatusOK))
		var platforms v1.Platforms
		decode(rec, &platforms)
		Expect(platforms.Sources).To(Equal([]string{"esxi"}))
		Expect(platforms.Destinations).To(Equal([]string{"proxmox"}))
	})

	It("drives a session to completion and records the run", func() {
		// Given a session connected to both platforms
		id := createSession()

		rec := do(http.MethodPut, "/sessions/"+id+"/platforms", v1.SelectPlatformsRequest{Source: "esxi", Destination: "proxmox"})
		Expect(rec.Code).To(Equal(http.StatusOK))

		rec = do(http.MethodPut, "/sessions/"+id+"/source", esxiCreds)
		Expect(rec.Code).To(Equal(http.StatusOK))
		var status v1.SessionStatus
		decode(rec, &status)
		Expect(status.Inventory).To(HaveLen(3))

		rec = do(http.MethodPut, "/sessions/"+id+"/selection", v1.SelectVMsRequest{Selection: "3, 1"})
		Expect(rec.Code).To(Equal(http.StatusOK))
		var selected v1.SelectVMsResponse
		decode(rec, &selected)
		Expect(selected.Selected).To(Equal([]int{1, 3}))

		rec = do(http.MethodPut, "/sessions/"+id+"/destination", proxmoxCreds)
		Expect(rec.Code).To(Equal(http.StatusOK))

		// When
		rec = do(http.MethodPost, "/sessions/"+id+"/migration", nil)

		// Then
		Expect(rec.Code).To(Equal(http.StatusAccepted))
		Eventually(func() string {
			var s v1.SessionStatus
			decode(do(http.MethodGet, "/sessions/"+id, nil), &s)
			return s.Phase
		}, 5*time.Second).Should(Equal(string(models.WorkflowPhaseMigrationComplete)))

		var runs v1.RunListResponse
		Eventually(func() int {
			decode(do(http.MethodGet, "/runs", nil), &runs)
			return runs.Total
		}, 5*time.Second).Should(Equal(1))
		Expect(runs.Runs[0].SucceededCount).To(Equal(2))

		rec = do(http.MethodGet, "/runs/"+runs.Runs[0].Id, nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		var run v1.MigrationResult
		decode(rec, &run)
		Expect(run.Succeeded).To(Equal([]int{1, 3}))

		rec = do(http.MethodGet, "/runs/"+runs.Runs[0].Id+"/report", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Content-Type")).To(Equal(report.ContentType))
		Expect(rec.Body.Len()).To(BeNumerically(">", 0))
	})

	It("never returns credentials from the configuration endpoint", func() {
		id := createSession()
		do(http.MethodPut, "/sessions/"+id+"/platforms", v1.SelectPlatformsRequest{Source: "esxi", Destination: "proxmox"})
		Expect(do(http.MethodPut, "/sessions/"+id+"/source", esxiCreds).Code).To(Equal(http.StatusOK))

		rec := do(http.MethodGet, "/configuration", nil)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).NotTo(ContainSubstring("esxi-secret"))
		var cfg v1.Configuration
		decode(rec, &cfg)
		Expect(cfg.Source).NotTo(BeNil())
		Expect(cfg.Source.Host).To(Equal("esxi-01"))
		Expect(cfg.Operational.StorageTarget).To(Equal(models.DefaultStorageTarget))
	})

	It("updates the operational parameters", func() {
		rec := do(http.MethodPut, "/configuration/operational", v1.Operational{
			StorageTarget:  "ceph",
			ExportRoot:     "/srv/exports",
			ExportToolPath: "/opt/ovftool/ovftool",
		})

		Expect(rec.Code).To(Equal(http.StatusOK))
		doc, err := st.Configuration().Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.StorageTarget).To(Equal("ceph"))
		Expect(doc.ExportRoot).To(Equal("/srv/exports"))
	})

	DescribeTable("maps errors to status codes",
		func(setup func(id string) (string, string, any), expected int) {
			// Arrange
			id := createSession()
			method, path, body := setup(id)

			// Act
			rec := do(method, path, body)

			// Assert
			Expect(rec.Code).To(Equal(expected))
			var apiErr v1.Error
			decode(rec, &apiErr)
			Expect(apiErr.Error).NotTo(BeEmpty())
		},
		Entry("unknown session", func(string) (string, string, any) {
			return http.MethodGet, "/sessions/" + uuid.NewString(), nil
		}, http.StatusNotFound),
		Entry("malformed session id", func(string) (string, string, any) {
			return http.MethodGet, "/sessions/not-a-uuid", nil
		}, http.StatusBadRequest),
		Entry("transition out of order", func(id string) (string, string, any) {
			return http.MethodPut, "/sessions/" + id + "/source", esxiCreds
		}, http.StatusConflict),
		Entry("unsupported destination", func(id string) (string, string, any) {
			return http.MethodPut, "/sessions/" + id + "/platforms", v1.SelectPlatformsRequest{Source: "esxi", Destination: "hyperv"}
		}, http.StatusBadRequest),
		Entry("missing fields", func(id string) (string, string, any) {
			return http.MethodPut, "/sessions/" + id + "/platforms", map[string]string{"source": "esxi"}
		}, http.StatusBadRequest),
		Entry("abort without a migration", func(id string) (string, string, any) {
			return http.MethodDelete, "/sessions/" + id + "/migration", nil
		}, http.StatusConflict),
		Entry("unknown run", func(string) (string, string, any) {
			return http.MethodGet, "/runs/" + uuid.NewString(), nil
		}, http.StatusNotFound),
		Entry("unknown destination filter", func(string) (string, string, any) {
			return http.MethodGet, "/runs?destination=hyperv", nil
		}, http.StatusBadRequest),
	)

	Context("when a platform rejects the request", func() {
		var id string

		BeforeEach(func() {
			id = createSession()
			Expect(do(http.MethodPut, "/sessions/"+id+"/platforms", v1.SelectPlatformsRequest{Source: "esxi", Destination: "proxmox"}).Code).To(Equal(http.StatusOK))
		})

		DescribeTable("maps connection errors",
			func(kind srvErrors.ConnectionErrorKind, expected int) {
				source.AuthErr = srvErrors.NewConnectionError(kind, "esxi", "esxi-01", errors.New("boom"))

				rec := do(http.MethodPut, "/sessions/"+id+"/source", esxiCreds)

				Expect(rec.Code).To(Equal(expected))
				var s v1.SessionStatus
				decode(do(http.MethodGet, "/sessions/"+id, nil), &s)
				Expect(s.Phase).To(Equal(string(models.WorkflowPhasePlatformsSelected)))
				Expect(s.Error).NotTo(BeNil())
			},
			Entry("unauthorized", srvErrors.Unauthorized, http.StatusUnauthorized),
			Entry("unreachable", srvErrors.Unreachable, http.StatusBadGateway),
			Entry("timeout", srvErrors.Timeout, http.StatusGatewayTimeout),
			Entry("protocol", srvErrors.ProtocolError, http.StatusBadGateway),
		)

		It("rejects a selection outside the inventory", func() {
			Expect(do(http.MethodPut, "/sessions/"+id+"/source", esxiCreds).Code).To(Equal(http.StatusOK))

			rec := do(http.MethodPut, "/sessions/"+id+"/selection", v1.SelectVMsRequest{Selection: "1-9"})

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	It("removes idle sessions", func() {
		id := createSession()

		Expect(do(http.MethodDelete, "/sessions/"+id, nil).Code).To(Equal(http.StatusNoContent))
		Expect(do(http.MethodGet, "/sessions/"+id, nil).Code).To(Equal(http.StatusNotFound))
	})
})
