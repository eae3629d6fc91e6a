package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/creasty/defaults"
)

const (
	documentName = "config.json"
	databaseName = "agent.duckdb"
)

type Configuration struct {
	Server    Server
	Agent     Agent
	Migration Migration
	LogFormat string `default:"console"`
	LogLevel  string `default:"debug"`
}

type Server struct {
	ServerMode string `default:"dev"`
	HTTPPort   int    `default:"8000"`
}

type Agent struct {
	DataFolder string `default:"/var/lib/migration-agent"`
	NumWorkers int    `default:"3"`
}

type Migration struct {
	StepTimeout              time.Duration `default:"4h"`
	MaxRetries               uint          `default:"2"`
	RetryInitialInterval     time.Duration `default:"5s"`
	RetryMaxInterval         time.Duration `default:"1m"`
	VisibilityTimeout        time.Duration `default:"2m"`
	ESXiPort                 int           `default:"443"`
	ProxmoxAPIPort           int           `default:"8006"`
	SSHPort                  int           `default:"22"`
	ValidateSourcePrivileges bool          `default:"true"`
}

// NewConfigurationWithDefaults returns a configuration with every `default` tag applied.
func NewConfigurationWithDefaults() *Configuration {
	c := &Configuration{}
	if err := defaults.Set(c); err != nil {
		// tags are static, a failure here is a programming error
		panic(fmt.Sprintf("invalid configuration defaults: %v", err))
	}
	return c
}

func (c *Configuration) Validate() error {
	var errs []error
	if c.Agent.NumWorkers < 1 {
		errs = append(errs, fmt.Errorf("agent workers must be at least 1, got %d", c.Agent.NumWorkers))
	}
	if c.Agent.DataFolder == "" {
		errs = append(errs, errors.New("agent data folder is required"))
	}
	if c.Server.ServerMode != "dev" && c.Server.ServerMode != "prod" {
		errs = append(errs, fmt.Errorf("server mode must be dev or prod, got %q", c.Server.ServerMode))
	}
	if c.Migration.StepTimeout <= 0 {
		errs = append(errs, errors.New("migration step timeout must be positive"))
	}
	for name, port := range map[string]int{
		"http":        c.Server.HTTPPort,
		"esxi":        c.Migration.ESXiPort,
		"proxmox api": c.Migration.ProxmoxAPIPort,
		"ssh":         c.Migration.SSHPort,
	} {
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s port out of range: %d", name, port))
		}
	}
	return errors.Join(errs...)
}

func (c *Configuration) DocumentPath() string {
	return filepath.Join(c.Agent.DataFolder, documentName)
}

func (c *Configuration) DatabasePath() string {
	return filepath.Join(c.Agent.DataFolder, databaseName)
}

// DebugMap is safe to log: the configuration carries no credentials.
func (c *Configuration) DebugMap() map[string]any {
	return map[string]any{
		"server_mode":                c.Server.ServerMode,
		"http_port":                  c.Server.HTTPPort,
		"data_folder":                c.Agent.DataFolder,
		"num_workers":                c.Agent.NumWorkers,
		"step_timeout":               c.Migration.StepTimeout.String(),
		"max_retries":                c.Migration.MaxRetries,
		"retry_initial_interval":     c.Migration.RetryInitialInterval.String(),
		"retry_max_interval":         c.Migration.RetryMaxInterval.String(),
		"visibility_timeout":         c.Migration.VisibilityTimeout.String(),
		"esxi_port":                  c.Migration.ESXiPort,
		"proxmox_api_port":           c.Migration.ProxmoxAPIPort,
		"ssh_port":                   c.Migration.SSHPort,
		"validate_source_privileges": c.Migration.ValidateSourcePrivileges,
		"log_format":                 c.LogFormat,
		"log_level":                  c.LogLevel,
	}
}
