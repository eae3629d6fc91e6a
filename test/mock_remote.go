package test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kubev2v/esxi-migration-agent/pkg/sshexec"
)

// RemoteRule answers every command containing Match. The first matching rule wins.
// Handle, when set, computes the answer instead of Result and Err.
type RemoteRule struct {
	Match  string
	Result sshexec.Result
	Err    error
	Handle func(cmd string) (sshexec.Result, error)
}

// MockRemote implements sshexec.Remote for testing. Unmatched commands succeed with no output.
type MockRemote struct {
	mu       sync.Mutex
	Rules    []RemoteRule
	Dirs     map[string]bool
	Commands []string
	Sudoed   []string
	Removed  []string
	Closed   bool
}

func NewMockRemote(rules ...RemoteRule) *MockRemote {
	return &MockRemote{Rules: rules, Dirs: map[string]bool{}}
}

func (m *MockRemote) Run(ctx context.Context, cmd string, stdin string) (sshexec.Result, error) {
	if err := ctx.Err(); err != nil {
		return sshexec.Result{ExitCode: -1}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Commands = append(m.Commands, cmd)
	for _, r := range m.Rules {
		if strings.Contains(cmd, r.Match) {
			if r.Handle != nil {
				return r.Handle(cmd)
			}
			return r.Result, r.Err
		}
	}
	return sshexec.Result{}, nil
}

func (m *MockRemote) Sudo(ctx context.Context, cmd string) (sshexec.Result, error) {
	m.mu.Lock()
	m.Sudoed = append(m.Sudoed, cmd)
	m.mu.Unlock()
	return m.Run(ctx, cmd, "")
}

func (m *MockRemote) StatDir(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Dirs[path] {
		return fmt.Errorf("stat %s: file does not exist", path)
	}
	return nil
}

func (m *MockRemote) RemoveAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removed = append(m.Removed, path)
	return nil
}

func (m *MockRemote) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Ran reports whether a command containing s was executed.
func (m *MockRemote) Ran(s string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Commands {
		if strings.Contains(c, s) {
			return true
		}
	}
	return false
}

// Dialer returns a DialFunc handing out m and recording the target.
func (m *MockRemote) Dialer(targets *[]sshexec.Target) sshexec.DialFunc {
	return func(ctx context.Context, target sshexec.Target) (sshexec.Remote, error) {
		if targets != nil {
			*targets = append(*targets, target)
		}
		return m, nil
	}
}

// Ensure MockRemote implements sshexec.Remote.
var _ sshexec.Remote = (*MockRemote)(nil)
