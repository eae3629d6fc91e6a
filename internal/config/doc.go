// Package config defines the configuration structure for the esxi-migration-agent.
//
// Configuration is organized into logical sections (Server, Agent, Migration).
// Defaults come from `default` struct tags applied with creasty/defaults; the
// command line binds every field to a flag and a MIGRATION_AGENT_* environment
// variable through viper.
//
// # Configuration Structure
//
//	Configuration
//	├── Server         - HTTP server settings
//	├── Agent          - Storage and worker pool
//	├── Migration      - Timeouts, retries and platform ports
//	├── LogFormat      - Logging format
//	└── LogLevel       - Logging verbosity
//
// # Server Configuration
//
//	┌──────────────────┬─────────┬────────────────────────────────────────┐
//	│ Field            │ Default │ Description                            │
//	├──────────────────┼─────────┼────────────────────────────────────────┤
//	│ ServerMode       │ "dev"   │ Server mode: "prod" or "dev"           │
//	│ HTTPPort         │ 8000    │ HTTP server listen port                │
//	└──────────────────┴─────────┴────────────────────────────────────────┘
//
// # Agent Configuration
//
//	┌─────────────┬───────────────────────────┬──────────────────────────────────────┐
//	│ Field       │ Default                   │ Description                          │
//	├─────────────┼───────────────────────────┼──────────────────────────────────────┤
//	│ DataFolder  │ "/var/lib/migration-agent"│ config.json and run history (DuckDB) │
//	│ NumWorkers  │ 3                         │ VMs migrated concurrently            │
//	└─────────────┴───────────────────────────┴──────────────────────────────────────┘
//
// # Migration Configuration
//
//	┌──────────────────────────┬─────────┬──────────────────────────────────────────┐
//	│ Field                    │ Default │ Description                              │
//	├──────────────────────────┼─────────┼──────────────────────────────────────────┤
//	│ StepTimeout              │ 4h      │ Deadline of one MigrateOne attempt       │
//	│ MaxRetries               │ 2       │ Retries after a transient failure        │
//	│ RetryInitialInterval     │ 5s      │ First backoff interval                   │
//	│ RetryMaxInterval         │ 1m      │ Backoff interval cap                     │
//	│ VisibilityTimeout        │ 2m      │ Wait for an imported VM to show up       │
//	│ ESXiPort                 │ 443     │ vSphere SDK port                         │
//	│ ProxmoxAPIPort           │ 8006    │ Proxmox management API port              │
//	│ SSHPort                  │ 22      │ SSH port of the destination hosts        │
//	│ ValidateSourcePrivileges │ true    │ Check export privileges on login         │
//	└──────────────────────────┴─────────┴──────────────────────────────────────────┘
//
// Only Unreachable and Timeout failures are retried. Unauthorized and protocol
// errors fail the VM on the first attempt.
//
// # Files
//
//	DataFolder/config.json      - configuration document (see internal/store)
//	DataFolder/agent.duckdb     - migration run history
//
// # Debug Logging
//
// DebugMap() returns a map suitable for structured logging:
//
//	zap.S().Infow("configuration loaded", "config", cfg.DebugMap())
package config
