// Package sshexec runs commands on destination hosts over SSH and exposes an
// SFTP client on the same connection.
package sshexec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	"github.com/kubev2v/esxi-migration-agent/pkg/connector"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
)

const (
	DefaultPort = 22

	defaultDialTimeout = 30 * time.Second
	// number of output lines kept per stream for error reporting
	tailSize = 20
)

// Target identifies the host to dial. Password and Secrets are masked in
// logged commands and output, and in the output kept in Result.
type Target struct {
	Platform models.Platform
	Host     string
	Port     int
	User     string
	Password string
	Secrets  []string
	Timeout  time.Duration
}

func (t Target) address() string {
	if _, _, err := net.SplitHostPort(t.Host); err == nil {
		return t.Host
	}
	port := t.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// Result holds the exit code of a remote command and the tail of its output.
type Result struct {
	ExitCode int
	Stdout   []string
	Stderr   []string
}

func (r Result) Success() bool {
	return r.ExitCode == 0
}

// LastError returns the last non-empty stderr line, falling back to stdout.
func (r Result) LastError() string {
	for _, lines := range [][]string{r.Stderr, r.Stdout} {
		for i := len(lines) - 1; i >= 0; i-- {
			if s := strings.TrimSpace(lines[i]); s != "" {
				return s
			}
		}
	}
	return ""
}

type Client struct {
	target Target
	conn   *ssh.Client

	sftpOnce sync.Once
	sftp     *sftp.Client
	sftpErr  error
}

// Dial opens an authenticated SSH connection. Password and keyboard-interactive
// authentication are offered; host keys are not verified.
func Dial(ctx context.Context, target Target) (*Client, error) {
	timeout := target.Timeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}
	addr := target.address()

	config := &ssh.ClientConfig{
		User: target.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(target.Password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = target.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
		Timeout:         timeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d := net.Dialer{}
	netConn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, connector.Classify(err, target.Platform, target.Host)
	}

	// the handshake has no context, so the deadline bounds it instead
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	if err != nil {
		_ = netConn.Close()
		return nil, classifyHandshake(err, target)
	}
	_ = netConn.SetDeadline(time.Time{})

	zap.S().Named("sshexec").Debugw("ssh connection established", "host", target.Host, "user", target.User)

	return &Client{
		target: target,
		conn:   ssh.NewClient(sshConn, chans, reqs),
	}, nil
}

func classifyHandshake(err error, target Target) error {
	if strings.Contains(err.Error(), "unable to authenticate") {
		return srvErrors.NewConnectionError(srvErrors.Unauthorized, string(target.Platform), target.Host, err)
	}
	return connector.Classify(err, target.Platform, target.Host)
}

// Run executes cmd and waits for it to exit. A non-zero exit code is reported
// in Result, not as an error. Errors are reserved for transport failures and
// for ctx ending before the command does.
func (c *Client) Run(ctx context.Context, cmd string, stdin string) (Result, error) {
	logger := zap.S().Named("sshexec").With("host", c.target.Host)

	session, err := c.conn.NewSession()
	if err != nil {
		return Result{}, connector.Classify(err, c.target.Platform, c.target.Host)
	}
	defer func() { _ = session.Close() }()

	if stdin != "" {
		session.Stdin = strings.NewReader(stdin)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return Result{}, connector.Classify(err, c.target.Platform, c.target.Host)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return Result{}, connector.Classify(err, c.target.Platform, c.target.Host)
	}

	logger.Debugw("running remote command", "command", c.redact(cmd))

	if err := session.Start(cmd); err != nil {
		return Result{}, connector.Classify(err, c.target.Platform, c.target.Host)
	}

	var wg sync.WaitGroup
	var outTail, errTail []string
	wg.Add(2)
	go func() {
		defer wg.Done()
		outTail = stream(stdout, logger, "stdout", c.redact)
	}()
	go func() {
		defer wg.Done()
		errTail = stream(stderr, logger, "stderr", c.redact)
	}()

	done := make(chan error, 1)
	go func() {
		wg.Wait()
		done <- session.Wait()
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		return Result{ExitCode: -1, Stdout: outTail, Stderr: errTail},
			connector.Classify(fmt.Errorf("remote command interrupted: %w", ctx.Err()), c.target.Platform, c.target.Host)
	case err := <-done:
		result := Result{Stdout: outTail, Stderr: errTail}
		if err == nil {
			return result, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			logger.Debugw("remote command exited", "exit_code", result.ExitCode)
			return result, nil
		}
		result.ExitCode = -1
		return result, connector.Classify(err, c.target.Platform, c.target.Host)
	}
}

// Sudo runs cmd through sudo, feeding the password on stdin.
func (c *Client) Sudo(ctx context.Context, cmd string) (Result, error) {
	if c.target.User == "root" {
		return c.Run(ctx, cmd, "")
	}
	return c.Run(ctx, "sudo -S -p '' "+cmd, c.target.Password+"\n")
}

// SFTP returns an SFTP client multiplexed on the SSH connection.
func (c *Client) SFTP() (*sftp.Client, error) {
	c.sftpOnce.Do(func() {
		c.sftp, c.sftpErr = sftp.NewClient(c.conn)
		if c.sftpErr != nil {
			c.sftpErr = srvErrors.NewConnectionError(srvErrors.ProtocolError, string(c.target.Platform), c.target.Host, c.sftpErr)
		}
	})
	return c.sftp, c.sftpErr
}

// StatDir fails unless path exists on the remote host and is a directory.
func (c *Client) StatDir(path string) error {
	client, err := c.SFTP()
	if err != nil {
		return err
	}
	info, err := client.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

// RemoveAll deletes path and its contents on the remote host.
func (c *Client) RemoveAll(path string) error {
	client, err := c.SFTP()
	if err != nil {
		return err
	}
	return client.RemoveAll(path)
}

func (c *Client) Close() error {
	if c.sftp != nil {
		_ = c.sftp.Close()
	}
	return c.conn.Close()
}

func stream(r io.Reader, logger *zap.SugaredLogger, name string, redact func(string) string) []string {
	tail := make([]string, 0, tailSize)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := redact(scanner.Text())
		logger.Debugw("remote output", "stream", name, "line", line)
		if len(tail) == tailSize {
			tail = tail[1:]
		}
		tail = append(tail, line)
	}
	return tail
}

func (c *Client) redact(s string) string {
	for _, secret := range append([]string{c.target.Password}, c.target.Secrets...) {
		s = redact(s, secret)
	}
	return s
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	// export tool URLs carry the password percent-encoded, and shell quoting
	// rewrites single quotes
	for _, form := range []string{secret, urlEscaped(secret)} {
		s = strings.ReplaceAll(s, form, "***")
		s = strings.ReplaceAll(s, strings.ReplaceAll(form, "'", `'"'"'`), "***")
	}
	return s
}
