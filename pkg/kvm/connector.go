// Package kvm is the libvirt destination. Everything runs on the KVM host
// over SSH: the export tool pulls the VM from the source, virt-v2v converts it
// into the storage pool and virsh registers the domain.
package kvm

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/pkg/connector"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
	"github.com/kubev2v/esxi-migration-agent/pkg/ovftool"
	"github.com/kubev2v/esxi-migration-agent/pkg/sshexec"
)

const libvirtURI = "qemu:///system"

type Connector struct {
	sshPort int
	dial    sshexec.DialFunc
}

type Option func(*Connector)

func WithSSHPort(port int) Option {
	return func(c *Connector) {
		c.sshPort = port
	}
}

func WithDialer(dial sshexec.DialFunc) Option {
	return func(c *Connector) {
		c.dial = dial
	}
}

func NewConnector(opts ...Option) *Connector {
	c := &Connector{
		sshPort: sshexec.DefaultPort,
		dial:    sshexec.DialRemote,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connector) Platform() models.Platform {
	return models.PlatformKVM
}

// Authenticate opens the SSH session, checks libvirt answers and the storage pool exists.
func (c *Connector) Authenticate(ctx context.Context, target connector.DestinationTarget) (connector.DestinationSession, error) {
	creds := target.Credentials
	logger := zap.S().Named("kvm").With("host", creds.Host, "user", creds.User)

	if target.StoragePool == "" {
		target.StoragePool = models.DefaultKvmStoragePool
	}
	if target.ExportRoot == "" {
		target.ExportRoot = models.DefaultExportRoot
	}

	remote, err := c.dial(ctx, sshexec.Target{
		Platform: models.PlatformKVM,
		Host:     creds.Host,
		Port:     c.sshPort,
		User:     creds.User,
		Password: creds.Credential,
		Secrets:  []string{target.Source.Credential},
	})
	if err != nil {
		logger.Errorw("failed to open ssh session", "error", err)
		return nil, err
	}

	s := &Session{remote: remote, host: creds.Host, target: target}

	result, err := remote.Sudo(ctx, virsh("version"))
	if err != nil {
		_ = remote.Close()
		return nil, err
	}
	if !result.Success() {
		_ = remote.Close()
		return nil, s.protocolError(fmt.Errorf("virsh version exited with code %d: %s", result.ExitCode, result.LastError()))
	}

	if err := remote.StatDir(target.StoragePool); err != nil {
		_ = remote.Close()
		return nil, s.protocolError(fmt.Errorf("storage pool %s is not available: %w", target.StoragePool, err))
	}

	logger.Infow("authenticated to destination", "libvirt", libvirtVersion(result), "storage_pool", target.StoragePool)

	return s, nil
}

type Session struct {
	remote sshexec.Remote
	host   string
	target connector.DestinationTarget
}

// MigrateOne converts the VM into a qcow2 domain in the storage pool and
// succeeds only once libvirt reports the domain.
func (s *Session) MigrateOne(ctx context.Context, vm models.VM) (models.MigrationStep, error) {
	logger := zap.S().Named("kvm").With("vm", vm.Name, "host", s.host)
	domain := ovftool.DirName(vm.Name)
	exportDir := ovftool.ExportDir(s.target.ExportRoot, vm.Name)

	logger.Infow("migrating vm", "domain", domain)
	defer s.cleanup(exportDir)

	// leaves marks steps whose failure can leave disks or a domain behind
	steps := []struct {
		name   string
		cmd    string
		leaves bool
	}{
		{"prepare export directory", sshexec.Command("mkdir", "-p", s.target.ExportRoot), false},
		{"export", sshexec.Command(ovftool.ExportArgs(s.target.ExportToolPath, s.target.Source, vm.Name, s.target.ExportRoot)...), false},
		{"convert", sshexec.Command("virt-v2v", "-i", "ova", exportDir, "-o", "local", "-os", s.target.StoragePool, "-of", "qcow2", "-on", domain), true},
		{"define", virsh("define", path.Join(s.target.StoragePool, domain+".xml")), true},
		{"verify", virsh("dominfo", domain), true},
	}

	defined := false
	for _, step := range steps {
		result, err := s.remote.Sudo(ctx, step.cmd)
		if err == nil && !result.Success() {
			logger.Errorw("migration step failed", "step", step.name, "exit_code", result.ExitCode)
			err = srvErrors.NewMigrationStepFailure(vm.Name,
				fmt.Sprintf("%s exited with code %d: %s", step.name, result.ExitCode, result.LastError()), nil)
		}
		if err != nil {
			if step.leaves {
				s.rollback(ctx, domain, defined)
			}
			return models.MigrationStep{}, err
		}
		if step.name == "define" {
			defined = true
		}
		logger.Debugw("migration step done", "step", step.name)
	}

	return models.MigrationStep{
		TargetID: domain,
		Message:  fmt.Sprintf("defined domain %s in %s", domain, s.target.StoragePool),
	}, nil
}

func (s *Session) Close(ctx context.Context) error {
	return s.remote.Close()
}

// rollback removes the disks and descriptor a failed conversion left in the
// storage pool, and the domain when this attempt defined it.
func (s *Session) rollback(ctx context.Context, domain string, defined bool) {
	ctx = context.WithoutCancel(ctx)
	logger := zap.S().Named("kvm").With("domain", domain, "host", s.host)

	var cmds []string
	if defined {
		cmds = append(cmds, virsh("undefine", domain))
	}
	base := path.Join(s.target.StoragePool, domain)
	cmds = append(cmds, sshexec.Command("sh", "-c", "rm -f -- "+sshexec.Quote(base)+"-sd* "+sshexec.Quote(base+".xml")))

	for _, cmd := range cmds {
		result, err := s.remote.Sudo(ctx, cmd)
		if err != nil || !result.Success() {
			logger.Warnw("rollback step failed", "command", cmd, "exit_code", result.ExitCode, "error", err)
		}
	}
	logger.Infow("rolled back partial migration", "undefined", defined)
}

func (s *Session) cleanup(dir string) {
	if err := s.remote.RemoveAll(dir); err != nil {
		zap.S().Named("kvm").Warnw("failed to remove export directory", "dir", dir, "error", err)
	}
}

func (s *Session) protocolError(err error) error {
	return srvErrors.NewConnectionError(srvErrors.ProtocolError, string(models.PlatformKVM), s.host, err)
}

func virsh(args ...string) string {
	return sshexec.Command(append([]string{"virsh", "-c", libvirtURI}, args...)...)
}

func libvirtVersion(r sshexec.Result) string {
	for _, line := range r.Stdout {
		if v, ok := strings.CutPrefix(line, "Using library: "); ok {
			return strings.TrimSpace(v)
		}
	}
	return "unknown"
}
