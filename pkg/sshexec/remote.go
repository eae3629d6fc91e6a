package sshexec

import "context"

// Remote is the subset of Client used by destination connectors.
type Remote interface {
	Run(ctx context.Context, cmd string, stdin string) (Result, error)
	Sudo(ctx context.Context, cmd string) (Result, error)
	StatDir(path string) error
	RemoveAll(path string) error
	Close() error
}

// DialFunc opens a Remote. Connectors take one so tests can substitute a fake host.
type DialFunc func(ctx context.Context, target Target) (Remote, error)

// DialRemote is the DialFunc backed by a real SSH connection.
func DialRemote(ctx context.Context, target Target) (Remote, error) {
	c, err := Dial(ctx, target)
	if err != nil {
		return nil, err
	}
	return c, nil
}

var _ Remote = &Client{}
