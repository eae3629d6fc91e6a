// Package proxmox is the Proxmox VE destination. The management API is used
// for authentication, vmid allocation and visibility checks; the import itself
// runs on the node over SSH.
package proxmox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/pkg/connector"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
	"github.com/kubev2v/esxi-migration-agent/pkg/ovftool"
	"github.com/kubev2v/esxi-migration-agent/pkg/sshexec"
)

const (
	defaultVisibilityTimeout = 2 * time.Minute
	// maxAllocationAttempts bounds how often an import is retried with a new
	// vmid after another client took the previous one.
	maxAllocationAttempts = 3
)

type Connector struct {
	apiPort           int
	sshPort           int
	visibilityTimeout time.Duration
	dial              sshexec.DialFunc

	mu      sync.Mutex
	imports map[string]*sync.Mutex
}

type Option func(*Connector)

func WithAPIPort(port int) Option {
	return func(c *Connector) {
		c.apiPort = port
	}
}

func WithSSHPort(port int) Option {
	return func(c *Connector) {
		c.sshPort = port
	}
}

// WithVisibilityTimeout bounds how long an imported VM may take to show up in the API.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(c *Connector) {
		c.visibilityTimeout = d
	}
}

func WithDialer(dial sshexec.DialFunc) Option {
	return func(c *Connector) {
		c.dial = dial
	}
}

func NewConnector(opts ...Option) *Connector {
	c := &Connector{
		apiPort:           DefaultAPIPort,
		sshPort:           sshexec.DefaultPort,
		visibilityTimeout: defaultVisibilityTimeout,
		dial:              sshexec.DialRemote,
		imports:           map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// importLock is shared by every session against the same host.
func (c *Connector) importLock(host string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.imports[host]
	if !ok {
		l = &sync.Mutex{}
		c.imports[host] = l
	}
	return l
}

func (c *Connector) Platform() models.Platform {
	return models.PlatformProxmox
}

func (c *Connector) Authenticate(ctx context.Context, target connector.DestinationTarget) (connector.DestinationSession, error) {
	creds := target.Credentials
	logger := zap.S().Named("proxmox").With("host", creds.Host, "user", creds.User)

	api := NewClient(creds.Host, c.apiPort)
	if err := api.Login(ctx, creds.User, creds.Credential); err != nil {
		logger.Errorw("failed to log in to destination", "error", err)
		return nil, err
	}

	version, err := api.Version(ctx)
	if err != nil {
		return nil, err
	}
	nodes, err := api.Nodes(ctx)
	if err != nil {
		return nil, err
	}

	remote, err := c.dial(ctx, sshexec.Target{
		Platform: models.PlatformProxmox,
		Host:     hostOnly(creds.Host),
		Port:     c.sshPort,
		User:     sshUser(creds.User),
		Password: creds.Credential,
		Secrets:  []string{target.Source.Credential},
	})
	if err != nil {
		logger.Errorw("failed to open ssh session", "error", err)
		return nil, err
	}

	s := &Session{
		api:               api,
		remote:            remote,
		host:              creds.Host,
		importMu:          c.importLock(hostOnly(creds.Host)),
		target:            target,
		visibilityTimeout: c.visibilityTimeout,
	}
	if s.target.StorageTarget == "" {
		s.target.StorageTarget = models.DefaultStorageTarget
	}
	if s.target.ExportRoot == "" {
		s.target.ExportRoot = models.DefaultExportRoot
	}

	if err := s.resolveNode(ctx, nodes); err != nil {
		_ = remote.Close()
		return nil, err
	}
	if err := s.checkStorage(ctx); err != nil {
		_ = remote.Close()
		return nil, err
	}

	logger.Infow("authenticated to destination", "version", version.Version, "node", s.node, "storage", s.target.StorageTarget)

	return s, nil
}

// Session imports VMs on a single node.
type Session struct {
	api               *Client
	remote            sshexec.Remote
	host              string
	node              string
	importMu          *sync.Mutex
	target            connector.DestinationTarget
	visibilityTimeout time.Duration
}

// MigrateOne exports the VM from the source onto the node, imports the OVF
// under a freshly allocated vmid and waits for the API to report it.
func (s *Session) MigrateOne(ctx context.Context, vm models.VM) (models.MigrationStep, error) {
	logger := zap.S().Named("proxmox").With("vm", vm.Name, "node", s.node)
	logger.Infow("migrating vm")

	exportDir := ovftool.ExportDir(s.target.ExportRoot, vm.Name)
	defer s.cleanup(exportDir)

	if err := s.run(ctx, vm, "prepare export directory", sshexec.Command("mkdir", "-p", s.target.ExportRoot)); err != nil {
		return models.MigrationStep{}, err
	}
	export := ovftool.ExportArgs(s.target.ExportToolPath, s.target.Source, vm.Name, s.target.ExportRoot)
	if err := s.run(ctx, vm, "export", sshexec.Command(export...)); err != nil {
		return models.MigrationStep{}, err
	}

	vmid, err := s.importOVF(ctx, vm, ovftool.OVFPath(s.target.ExportRoot, vm.Name))
	if err != nil {
		return models.MigrationStep{}, err
	}

	status, err := s.waitForVM(ctx, vmid)
	if err != nil {
		s.destroy(ctx, vmid)
		return models.MigrationStep{}, srvErrors.NewMigrationStepFailure(vm.Name, fmt.Sprintf("vm %d did not appear on node %s", vmid, s.node), err)
	}

	logger.Infow("vm imported", "vmid", vmid, "status", status.Status)

	return models.MigrationStep{
		TargetID: strconv.Itoa(vmid),
		Message:  fmt.Sprintf("imported as vmid %d on node %s", vmid, s.node),
	}, nil
}

// importOVF allocates a vmid and imports the OVF under it. nextid does not
// reserve the id it returns, so allocation and the import that creates the
// VM config run under the host's import lock. A vmid taken by another client
// in between is never destroyed; the import moves on to the next free id.
func (s *Session) importOVF(ctx context.Context, vm models.VM, ovf string) (int, error) {
	logger := zap.S().Named("proxmox").With("vm", vm.Name, "node", s.node)

	s.importMu.Lock()
	defer s.importMu.Unlock()

	for attempt := 1; ; attempt++ {
		vmid, err := s.api.NextID(ctx)
		if err != nil {
			return 0, err
		}
		logger.Infow("importing vm", "vmid", vmid)

		result, err := s.remote.Sudo(ctx, sshexec.Command("qm", "importovf", strconv.Itoa(vmid), ovf, s.target.StorageTarget))
		if err != nil {
			s.destroy(ctx, vmid)
			return 0, err
		}
		if result.Success() {
			return vmid, nil
		}

		if vmidTaken(result) {
			if attempt < maxAllocationAttempts {
				logger.Warnw("vmid taken by another client, allocating again", "vmid", vmid)
				continue
			}
		} else {
			s.destroy(ctx, vmid)
		}
		return 0, stepFailure(vm, "import", result)
	}
}

func vmidTaken(result sshexec.Result) bool {
	for _, lines := range [][]string{result.Stderr, result.Stdout} {
		for _, line := range lines {
			if strings.Contains(line, "already exists") {
				return true
			}
		}
	}
	return false
}

func (s *Session) Close(ctx context.Context) error {
	return s.remote.Close()
}

func (s *Session) run(ctx context.Context, vm models.VM, step, cmd string) error {
	result, err := s.remote.Sudo(ctx, cmd)
	if err != nil {
		return err
	}
	if !result.Success() {
		return stepFailure(vm, step, result)
	}
	return nil
}

func stepFailure(vm models.VM, step string, result sshexec.Result) error {
	return srvErrors.NewMigrationStepFailure(vm.Name,
		fmt.Sprintf("%s exited with code %d: %s", step, result.ExitCode, result.LastError()), nil)
}

func (s *Session) waitForVM(ctx context.Context, vmid int) (VMStatus, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 10 * time.Second

	return backoff.Retry(ctx, func() (VMStatus, error) {
		status, err := s.api.VMStatus(ctx, s.node, vmid)
		if err == nil {
			return status, nil
		}
		if errors.Is(err, errNotFound) {
			return status, err
		}
		var connErr *srvErrors.ConnectionError
		if errors.As(err, &connErr) && connErr.Retryable() {
			return status, err
		}
		return status, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(s.visibilityTimeout))
}

// destroy removes a VM this session created so a failure never leaves one behind.
func (s *Session) destroy(ctx context.Context, vmid int) {
	result, err := s.remote.Sudo(context.WithoutCancel(ctx), sshexec.Command("qm", "destroy", strconv.Itoa(vmid), "--purge"))
	if err != nil || !result.Success() {
		zap.S().Named("proxmox").Debugw("no partial vm removed", "vmid", vmid, "exit_code", result.ExitCode, "error", err)
	}
}

func (s *Session) cleanup(dir string) {
	if err := s.remote.RemoveAll(dir); err != nil {
		zap.S().Named("proxmox").Warnw("failed to remove export directory", "dir", dir, "error", err)
	}
}

func (s *Session) resolveNode(ctx context.Context, nodes []Node) error {
	result, err := s.remote.Run(ctx, "hostname", "")
	if err != nil {
		return err
	}
	hostname := ""
	if len(result.Stdout) > 0 {
		hostname = strings.TrimSpace(result.Stdout[len(result.Stdout)-1])
	}

	for _, n := range nodes {
		if n.Node == hostname {
			s.node = n.Node
			return nil
		}
	}
	if len(nodes) == 1 {
		s.node = nodes[0].Node
		return nil
	}
	return srvErrors.NewConnectionError(srvErrors.ProtocolError, string(models.PlatformProxmox), s.host,
		fmt.Errorf("host %q is not one of the cluster nodes", hostname))
}

func (s *Session) checkStorage(ctx context.Context) error {
	storages, err := s.api.Storages(ctx, s.node)
	if err != nil {
		return err
	}
	for _, st := range storages {
		if st.Storage == s.target.StorageTarget {
			return nil
		}
	}
	return srvErrors.NewConnectionError(srvErrors.ProtocolError, string(models.PlatformProxmox), s.host,
		fmt.Errorf("storage %q not found on node %s", s.target.StorageTarget, s.node))
}

func hostOnly(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// sshUser strips the realm from an API user ("root@pam" logs in over SSH as "root").
func sshUser(user string) string {
	name, _, _ := strings.Cut(user, "@")
	return name
}
