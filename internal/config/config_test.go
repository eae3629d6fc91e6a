package config_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/esxi-migration-agent/internal/config"
)

var _ = Describe("Configuration", func() {
	It("applies defaults from tags", func() {
		cfg := config.NewConfigurationWithDefaults()

		Expect(cfg.Server.ServerMode).To(Equal("dev"))
		Expect(cfg.Server.HTTPPort).To(Equal(8000))
		Expect(cfg.Agent.NumWorkers).To(Equal(3))
		Expect(cfg.Migration.StepTimeout).To(Equal(4 * time.Hour))
		Expect(cfg.Migration.MaxRetries).To(Equal(uint(2)))
		Expect(cfg.Migration.RetryInitialInterval).To(Equal(5 * time.Second))
		Expect(cfg.Migration.ProxmoxAPIPort).To(Equal(8006))
		Expect(cfg.Migration.ValidateSourcePrivileges).To(BeTrue())
		Expect(cfg.Validate()).To(Succeed())
	})

	It("derives file paths from the data folder", func() {
		cfg := config.NewConfigurationWithDefaults()
		cfg.Agent.DataFolder = "/tmp/agent"

		Expect(cfg.DocumentPath()).To(Equal("/tmp/agent/config.json"))
		Expect(cfg.DatabasePath()).To(Equal("/tmp/agent/agent.duckdb"))
	})

	DescribeTable("rejects invalid values",
		func(mutate func(*config.Configuration), substring string) {
			// Arrange
			cfg := config.NewConfigurationWithDefaults()
			mutate(cfg)

			// Act
			err := cfg.Validate()

			// Assert
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring(substring))
		},
		Entry("no workers", func(c *config.Configuration) { c.Agent.NumWorkers = 0 }, "workers"),
		Entry("no data folder", func(c *config.Configuration) { c.Agent.DataFolder = "" }, "data folder"),
		Entry("unknown mode", func(c *config.Configuration) { c.Server.ServerMode = "test" }, "server mode"),
		Entry("zero step timeout", func(c *config.Configuration) { c.Migration.StepTimeout = 0 }, "step timeout"),
		Entry("bad ssh port", func(c *config.Configuration) { c.Migration.SSHPort = 70000 }, "ssh port"),
	)

	It("exposes every section in the debug map", func() {
		m := config.NewConfigurationWithDefaults().DebugMap()

		Expect(m).To(HaveKeyWithValue("num_workers", 3))
		Expect(m).To(HaveKeyWithValue("step_timeout", "4h0m0s"))
		Expect(m).To(HaveKey("proxmox_api_port"))
	})
})
