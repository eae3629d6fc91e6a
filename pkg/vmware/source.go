package vmware

import (
	"context"
	"fmt"

	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/view"
	"github.com/vmware/govmomi/vim25/mo"
	"go.uber.org/zap"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/pkg/connector"
)

const DefaultPort = 443

var vmProperties = []string{"name", "runtime.powerState", "config.instanceUuid", "summary.config.uuid"}

// SourceConnector authenticates against an ESXi host (or vCenter) through the SDK endpoint.
type SourceConnector struct {
	port               int
	validatePrivileges bool
}

type SourceOption func(*SourceConnector)

func WithPort(port int) SourceOption {
	return func(c *SourceConnector) {
		c.port = port
	}
}

// WithPrivilegeValidation toggles the privilege check performed after login.
func WithPrivilegeValidation(enabled bool) SourceOption {
	return func(c *SourceConnector) {
		c.validatePrivileges = enabled
	}
}

func NewSourceConnector(opts ...SourceOption) *SourceConnector {
	c := &SourceConnector{port: DefaultPort, validatePrivileges: true}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SourceConnector) Platform() models.Platform {
	return models.PlatformESXi
}

func (c *SourceConnector) Authenticate(ctx context.Context, creds models.Credentials) (connector.SourceSession, error) {
	logger := zap.S().Named("vmware").With("host", creds.Host, "user", creds.User)

	gc, err := govmomi.NewClient(ctx, sdkURL(creds.Host, c.port, creds), true)
	if err != nil {
		logger.Errorw("failed to log in to source", "error", err)
		return nil, classify(err, creds.Host)
	}

	s := &Session{gc: gc, host: creds.Host, username: creds.User}

	if c.validatePrivileges {
		if err := s.ValidatePrivileges(ctx, RequiredPrivileges); err != nil {
			_ = s.Close(ctx)
			logger.Errorw("privilege validation failed", "error", err)
			return nil, classify(err, creds.Host)
		}
	}

	logger.Infow("authenticated to source", "api_version", gc.ServiceContent.About.ApiVersion, "product", gc.ServiceContent.About.FullName)

	return s, nil
}

// Session is a logged-in SDK session.
type Session struct {
	gc       *govmomi.Client
	host     string
	username string
}

// ListVMs returns every VM visible to the session with ordinals 1..n.
func (s *Session) ListVMs(ctx context.Context) ([]models.VM, error) {
	m := view.NewManager(s.gc.Client)

	v, err := m.CreateContainerView(ctx, s.gc.ServiceContent.RootFolder, []string{"VirtualMachine"}, true)
	if err != nil {
		return nil, classify(err, s.host)
	}
	defer func() {
		if err := v.Destroy(context.WithoutCancel(ctx)); err != nil {
			zap.S().Named("vmware").Debugw("failed to destroy container view", "error", err)
		}
	}()

	var vms []mo.VirtualMachine
	if err := v.Retrieve(ctx, []string{"VirtualMachine"}, vmProperties, &vms); err != nil {
		return nil, classify(fmt.Errorf("failed to retrieve virtual machines: %w", err), s.host)
	}

	inventory := toInventory(vms)
	zap.S().Named("vmware").Debugw("listed source inventory", "host", s.host, "count", len(inventory))

	return inventory, nil
}

func (s *Session) Close(ctx context.Context) error {
	return s.gc.Logout(ctx)
}
