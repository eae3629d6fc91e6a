package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kubev2v/esxi-migration-agent/internal/config"
	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/internal/services"
	"github.com/kubev2v/esxi-migration-agent/internal/util"
)

type migrateOptions struct {
	source      models.Credentials
	destination string
	target      models.Credentials
	storagePool string
	selection   string
	list        bool
}

func newMigrateCommand(cfg *config.Configuration) *cobra.Command {
	opts := &migrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run one migration from the command line",
		Long: `Connects to ESXi, selects VMs by ordinal ("1,3,5-7") and migrates them
to the destination. Use --list to print the inventory with its ordinals.
Passwords are best passed as MIGRATION_AGENT_SOURCE_PASSWORD and
MIGRATION_AGENT_DESTINATION_PASSWORD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runMigrate(ctx, cmd.OutOrStdout(), cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.source.Host, "source-host", "", "ESXi host")
	flags.StringVar(&opts.source.User, "source-user", "root", "ESXi user")
	flags.StringVar(&opts.source.Credential, "source-password", "", "ESXi password")
	flags.StringVar(&opts.destination, "destination", string(models.PlatformProxmox), "destination platform: proxmox or kvm")
	flags.StringVar(&opts.target.Host, "destination-host", "", "destination host")
	flags.StringVar(&opts.target.User, "destination-user", "root", "destination user")
	flags.StringVar(&opts.target.Credential, "destination-password", "", "destination password")
	flags.StringVar(&opts.storagePool, "storage-pool", "", "libvirt storage pool directory (kvm only)")
	flags.StringVar(&opts.selection, "vms", "", `VM ordinals to migrate, e.g. "1,3,5-7"`)
	flags.BoolVar(&opts.list, "list", false, "list the source inventory and exit")

	return cmd
}

func runMigrate(ctx context.Context, out io.Writer, cfg *config.Configuration, opts *migrateOptions) error {
	destination, err := models.ParsePlatform(opts.destination)
	if err != nil {
		return err
	}
	if opts.source.Host == "" {
		return errors.New("--source-host is required")
	}
	if !opts.list && opts.target.Host == "" {
		return errors.New("--destination-host is required")
	}

	a, err := newAgent(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	w := a.sessions.Create()
	defer func() { _ = a.sessions.Remove(context.Background(), w.ID()) }()

	if err := w.SelectPlatforms(ctx, models.PlatformESXi, destination); err != nil {
		return err
	}
	if err := w.ConnectSource(ctx, opts.source); err != nil {
		return err
	}

	if opts.list {
		printInventory(out, w.Status().Inventory)
		return nil
	}

	selected, err := w.SelectVMs(ctx, opts.selection)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Selected %s: %v\n", util.Plural(len(selected), "vm"), selected)

	if err := w.ConnectDestination(ctx, services.DestinationRequest{
		Credentials: opts.target,
		StoragePool: opts.storagePool,
	}); err != nil {
		return err
	}

	result, err := w.Migrate(ctx)
	if err != nil {
		return err
	}

	printResult(out, result)
	if result.AllFailed() {
		return fmt.Errorf("every selected vm failed to migrate")
	}
	return nil
}

func printInventory(out io.Writer, inventory []models.VM) {
	bold := color.New(color.Bold)
	bold.Fprintf(out, "%-6s %-40s %s\n", "#", "NAME", "POWER")
	for _, vm := range inventory {
		fmt.Fprintf(out, "%-6d %-40s %s\n", vm.Ordinal, vm.Name, vm.PowerState)
	}
}

func printResult(out io.Writer, r *models.MigrationResult) {
	ok := color.New(color.FgGreen)
	failed := color.New(color.FgRed)
	warn := color.New(color.FgYellow)

	for _, item := range r.Items {
		if item.Outcome == models.MigrationOutcomeSucceeded {
			ok.Fprintf(out, "  ✔ %d %s", item.Ordinal, item.VMName)
			fmt.Fprintf(out, " -> %s\n", item.TargetID)
			continue
		}
		failed.Fprintf(out, "  ✘ %d %s", item.Ordinal, item.VMName)
		fmt.Fprintf(out, ": %s\n", item.Reason)
	}

	summary := fmt.Sprintf("%d of %d migrated, %d failed", r.SucceededCount, r.TotalRequested, r.FailedCount)
	switch {
	case r.Aborted:
		warn.Fprintf(out, "Aborted: %s\n", summary)
	case r.FailedCount > 0:
		failed.Fprintf(out, "Finished with failures: %s\n", summary)
	default:
		ok.Fprintf(out, "Finished: %s\n", summary)
	}
	fmt.Fprintf(out, "Run %s\n", r.ID)
}
