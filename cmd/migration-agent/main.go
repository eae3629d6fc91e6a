package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kubev2v/esxi-migration-agent/internal/config"
)

const envPrefix = "MIGRATION_AGENT"

var version = "v0.0.0"

func main() {
	cfg := config.NewConfigurationWithDefaults()

	rootCmd := &cobra.Command{
		Use:           "migration-agent",
		Short:         "Migrate VMs from ESXi to Proxmox or KVM",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: cobrautil.CommandStack(
			cobrautil.SyncViperPreRunE(envPrefix),
			loadConfigFile,
			func(cmd *cobra.Command, args []string) error {
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("invalid configuration: %w", err)
				}
				return setupLogging(cfg)
			},
		),
	}

	rootCmd.PersistentFlags().String("config", "", "configuration file (yaml, json or env)")
	registerFlags(rootCmd.PersistentFlags(), cfg)

	rootCmd.AddCommand(
		newRunCommand(cfg),
		newMigrateCommand(cfg),
		newReportCommand(cfg),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func registerFlags(flags *pflag.FlagSet, cfg *config.Configuration) {
	flags.StringVar(&cfg.Server.ServerMode, "server-mode", cfg.Server.ServerMode, "server mode: dev or prod")
	flags.IntVar(&cfg.Server.HTTPPort, "http-port", cfg.Server.HTTPPort, "HTTP API listen port")

	flags.StringVar(&cfg.Agent.DataFolder, "data-folder", cfg.Agent.DataFolder, "folder holding config.json and the run history")
	flags.IntVar(&cfg.Agent.NumWorkers, "workers", cfg.Agent.NumWorkers, "VMs migrated concurrently")

	flags.DurationVar(&cfg.Migration.StepTimeout, "step-timeout", cfg.Migration.StepTimeout, "deadline of a single VM migration attempt")
	flags.UintVar(&cfg.Migration.MaxRetries, "max-retries", cfg.Migration.MaxRetries, "retries after an unreachable or timed out attempt")
	flags.DurationVar(&cfg.Migration.RetryInitialInterval, "retry-initial-interval", cfg.Migration.RetryInitialInterval, "first retry backoff interval")
	flags.DurationVar(&cfg.Migration.RetryMaxInterval, "retry-max-interval", cfg.Migration.RetryMaxInterval, "retry backoff interval cap")
	flags.DurationVar(&cfg.Migration.VisibilityTimeout, "visibility-timeout", cfg.Migration.VisibilityTimeout, "wait for an imported VM to show up on Proxmox")
	flags.IntVar(&cfg.Migration.ESXiPort, "esxi-port", cfg.Migration.ESXiPort, "vSphere SDK port")
	flags.IntVar(&cfg.Migration.ProxmoxAPIPort, "proxmox-api-port", cfg.Migration.ProxmoxAPIPort, "Proxmox API port")
	flags.IntVar(&cfg.Migration.SSHPort, "ssh-port", cfg.Migration.SSHPort, "SSH port of destination hosts")
	flags.BoolVar(&cfg.Migration.ValidateSourcePrivileges, "validate-source-privileges", cfg.Migration.ValidateSourcePrivileges, "check export privileges when connecting to ESXi")

	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: console or json")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
}

// loadConfigFile applies values from --config to every flag not already set
// on the command line or through MIGRATION_AGENT_* variables.
func loadConfigFile(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil || path == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	var setErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if setErr != nil || f.Changed || f.Name == "config" {
			return
		}
		key := f.Name
		if !v.IsSet(key) {
			key = strings.ReplaceAll(f.Name, "-", "_")
		}
		if v.IsSet(key) {
			if err := cmd.Flags().Set(f.Name, v.GetString(key)); err != nil {
				setErr = fmt.Errorf("invalid value for %s in %q: %w", f.Name, path, err)
			}
		}
	})
	return setErr
}

func setupLogging(cfg *config.Configuration) error {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	var zcfg zap.Config
	switch cfg.LogFormat {
	case "json":
		zcfg = zap.NewProductionConfig()
	case "console":
		zcfg = zap.NewDevelopmentConfig()
	default:
		return fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return nil
}
