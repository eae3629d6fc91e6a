package models

import (
	"fmt"
	"slices"
)

type Platform string

const (
	PlatformESXi    Platform = "esxi"
	PlatformProxmox Platform = "proxmox"
	PlatformKVM     Platform = "kvm"
)

func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformESXi, PlatformProxmox, PlatformKVM:
		return Platform(s), nil
	default:
		return "", fmt.Errorf("invalid platform: %s", s)
	}
}

const (
	DefaultKvmStoragePool = "/var/lib/libvirt/images"
	DefaultStorageTarget  = "local-lvm"
	DefaultExportRoot     = "./exports"
	DefaultExportToolPath = "ovftool"
)

// Credentials identifies an account on a remote platform.
type Credentials struct {
	Host       string `json:"host"`
	User       string `json:"user"`
	Credential string `json:"credential"`
}

// String never prints the credential.
func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s", c.User, c.Host)
}

type ProxmoxDestination struct {
	Credentials
}

type KvmDestination struct {
	Credentials
	StoragePool string `json:"storagePool"`
}

// Destination is a tagged union: only the variant matching Platform is set.
type Destination struct {
	Platform Platform            `json:"platform,omitempty"`
	Proxmox  *ProxmoxDestination `json:"proxmox,omitempty"`
	Kvm      *KvmDestination     `json:"kvm,omitempty"`
}

// Operational holds the scalar parameters used by the export/import tooling.
type Operational struct {
	StorageTarget  string `json:"storageTarget"`
	ExportRoot     string `json:"exportRoot"`
	ExportToolPath string `json:"exportToolPath"`
}

// ConfigDocument is the persisted configuration.
type ConfigDocument struct {
	Source      Credentials `json:"source"`
	Destination Destination `json:"destination"`
	SelectedVms []int       `json:"selectedVms"`
	Operational
}

func NewDefaultConfigDocument() *ConfigDocument {
	return &ConfigDocument{
		SelectedVms: []int{},
		Operational: Operational{
			StorageTarget:  DefaultStorageTarget,
			ExportRoot:     DefaultExportRoot,
			ExportToolPath: DefaultExportToolPath,
		},
	}
}

// Clone returns a deep copy so callers never alias the store's document.
func (d *ConfigDocument) Clone() *ConfigDocument {
	c := *d
	c.SelectedVms = slices.Clone(d.SelectedVms)
	if c.SelectedVms == nil {
		c.SelectedVms = []int{}
	}
	if d.Destination.Proxmox != nil {
		p := *d.Destination.Proxmox
		c.Destination.Proxmox = &p
	}
	if d.Destination.Kvm != nil {
		k := *d.Destination.Kvm
		c.Destination.Kvm = &k
	}
	return &c
}
