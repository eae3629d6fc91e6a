// Package connector defines the capability contract every platform
// implementation satisfies. Workflow code only talks to these interfaces.
package connector

import (
	"context"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
)

// SourceConnector authenticates against the hypervisor VMs are migrated from.
type SourceConnector interface {
	Platform() models.Platform
	Authenticate(ctx context.Context, creds models.Credentials) (SourceSession, error)
}

// SourceSession is an authenticated source handle.
type SourceSession interface {
	// ListVMs returns the inventory with ordinals 1..n assigned in a stable order.
	ListVMs(ctx context.Context) ([]models.VM, error)
	Close(ctx context.Context) error
}

// DestinationConnector authenticates against the hypervisor VMs are migrated to.
type DestinationConnector interface {
	Platform() models.Platform
	Authenticate(ctx context.Context, target DestinationTarget) (DestinationSession, error)
}

// DestinationSession is an authenticated destination handle.
type DestinationSession interface {
	// MigrateOne blocks until the VM is present and bootable on the destination
	// or returns an error. It must not report success for a half-imported VM.
	MigrateOne(ctx context.Context, vm models.VM) (models.MigrationStep, error)
	Close(ctx context.Context) error
}

// DestinationTarget is everything a destination needs to pull VMs from the source.
type DestinationTarget struct {
	Credentials models.Credentials
	// StoragePool is the libvirt pool directory for kvm.
	StoragePool string
	// StorageTarget is the Proxmox storage id for imported disks.
	StorageTarget  string
	ExportRoot     string
	ExportToolPath string
	Source         models.Credentials
}
