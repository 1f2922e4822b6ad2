package driver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/vpbank/netpaca/pkg/netpaca/config"
)

// SSHOptions configures an SSHCommander.
type SSHOptions struct {
	Host        string
	Port        int
	Credentials config.Credentials

	// DialTimeout bounds TCP connect plus SSH handshake. Default 10s.
	DialTimeout time.Duration

	// CommandTimeout bounds one command, on top of the caller's context.
	// Default 60s.
	CommandTimeout time.Duration

	// HostKeyCallback defaults to accepting any host key.
	HostKeyCallback ssh.HostKeyCallback
}

// SSHCommander runs CLI commands over one SSH connection, opening a fresh
// exec session per command. The connection is re-dialled once when a
// session cannot be opened. Safe for concurrent use.
type SSHCommander struct {
	opts   SSHOptions
	logger *slog.Logger

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHCommander returns an unconnected commander; call Connect first.
func NewSSHCommander(opts SSHOptions, logger *slog.Logger) *SSHCommander {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 60 * time.Second
	}
	if opts.HostKeyCallback == nil {
		opts.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // network gear rarely has managed host keys
	}
	return &SSHCommander{opts: opts, logger: logger}
}

// Connect dials the device.
func (c *SSHCommander) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialLocked(ctx)
}

func (c *SSHCommander) dialLocked(ctx context.Context) error {
	if c.client != nil {
		_ = c.client.Close()
		c.client = nil
	}

	addr := net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
	password := c.opts.Credentials.Password
	cfg := &ssh.ClientConfig{
		User: c.opts.Credentials.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: c.opts.HostKeyCallback,
		Timeout:         c.opts.DialTimeout,
	}

	dctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	if deadline, ok := dctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	sc, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	c.client = ssh.NewClient(sc, chans, reqs)
	c.logger.Debug("driver: ssh connected", "target", addr, "user", cfg.User)
	return nil
}

func (c *SSHCommander) session(ctx context.Context) (*ssh.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		if s, err := c.client.NewSession(); err == nil {
			return s, nil
		}
	}
	if err := c.dialLocked(ctx); err != nil {
		return nil, err
	}
	return c.client.NewSession()
}

// SendCommand implements device.Commander. A command that outlives
// CommandTimeout fails with context.DeadlineExceeded.
func (c *SSHCommander) SendCommand(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.CommandTimeout)
	defer cancel()

	s, err := c.session(ctx)
	if err != nil {
		return "", err
	}
	defer s.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := s.CombinedOutput(command)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return string(r.out), fmt.Errorf("ssh %q: %w", command, r.err)
		}
		return string(r.out), nil
	case <-ctx.Done():
		_ = s.Close()
		c.logger.Warn("driver: ssh command abandoned", "command", command, "error", ctx.Err().Error())
		return "", fmt.Errorf("ssh %q: %w", command, ctx.Err())
	}
}

// Close closes the connection.
func (c *SSHCommander) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
