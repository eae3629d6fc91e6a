package test

import (
	"context"
	"sync"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/pkg/connector"
)

// MockSourceConnector implements connector.SourceConnector for testing.
type MockSourceConnector struct {
	Inventory []models.VM
	AuthErr   error
	ListErr   error

	mu       sync.Mutex
	Sessions []*MockSourceSession
}

func (m *MockSourceConnector) Platform() models.Platform {
	return models.PlatformESXi
}

func (m *MockSourceConnector) Authenticate(ctx context.Context, creds models.Credentials) (connector.SourceSession, error) {
	if m.AuthErr != nil {
		return nil, m.AuthErr
	}
	s := &MockSourceSession{inventory: m.Inventory, listErr: m.ListErr}

	m.mu.Lock()
	m.Sessions = append(m.Sessions, s)
	m.mu.Unlock()
	return s, nil
}

type MockSourceSession struct {
	inventory []models.VM
	listErr   error

	mu     sync.Mutex
	closed bool
}

func (s *MockSourceSession) ListVMs(ctx context.Context) ([]models.VM, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]models.VM(nil), s.inventory...), nil
}

func (s *MockSourceSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MockSourceSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MockDestinationConnector implements connector.DestinationConnector for testing.
// Every Authenticate returns the same Session.
type MockDestinationConnector struct {
	PlatformName models.Platform
	AuthErr      error
	Session      *MockDestinationSession

	mu      sync.Mutex
	Targets []connector.DestinationTarget
}

func (m *MockDestinationConnector) Platform() models.Platform {
	return m.PlatformName
}

func (m *MockDestinationConnector) Authenticate(ctx context.Context, target connector.DestinationTarget) (connector.DestinationSession, error) {
	m.mu.Lock()
	m.Targets = append(m.Targets, target)
	m.mu.Unlock()

	if m.AuthErr != nil {
		return nil, m.AuthErr
	}
	if m.Session == nil {
		m.Session = NewMockDestinationSession()
	}
	return m.Session, nil
}

// MigrateFunc scripts one MigrateOne attempt. attempt starts at 1.
type MigrateFunc func(ctx context.Context, vm models.VM, attempt int) (models.MigrationStep, error)

// MockDestinationSession implements connector.DestinationSession for testing.
// VMs without a script succeed with their name as target id.
type MockDestinationSession struct {
	mu       sync.Mutex
	scripts  map[string]MigrateFunc
	attempts map[string]int
	order    []string
	closed   bool
}

func NewMockDestinationSession() *MockDestinationSession {
	return &MockDestinationSession{
		scripts:  map[string]MigrateFunc{},
		attempts: map[string]int{},
	}
}

// On scripts the behavior for the VM named name.
func (s *MockDestinationSession) On(name string, fn MigrateFunc) *MockDestinationSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[name] = fn
	return s
}

func (s *MockDestinationSession) MigrateOne(ctx context.Context, vm models.VM) (models.MigrationStep, error) {
	s.mu.Lock()
	s.attempts[vm.Name]++
	attempt := s.attempts[vm.Name]
	if attempt == 1 {
		s.order = append(s.order, vm.Name)
	}
	fn := s.scripts[vm.Name]
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, vm, attempt)
	}
	return models.MigrationStep{TargetID: vm.Name}, nil
}

func (s *MockDestinationSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Attempts returns how many times MigrateOne was called for name.
func (s *MockDestinationSession) Attempts(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[name]
}

// Started returns VM names in the order their first attempt began.
func (s *MockDestinationSession) Started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *MockDestinationSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Ensure the mocks implement the connector interfaces.
var (
	_ connector.SourceConnector      = (*MockSourceConnector)(nil)
	_ connector.DestinationConnector = (*MockDestinationConnector)(nil)
	_ connector.DestinationSession   = (*MockDestinationSession)(nil)
)

// Inventory builds an inventory of VMs named by names with ordinals 1..n.
func Inventory(names ...string) []models.VM {
	vms := make([]models.VM, 0, len(names))
	for i, name := range names {
		vms = append(vms, models.VM{Ordinal: i + 1, ID: "id-" + name, Name: name, PowerState: models.PowerStateOff})
	}
	return vms
}
