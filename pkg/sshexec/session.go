// Package sshexec runs CLI commands on switches over SSH. vtpsync uses it to
// persist the running config on devices whose config copy MIB is disabled.
package sshexec

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/newtron-network/vtpsync/pkg/util"
)

// Defaults for Config.
const (
	DefaultPort    = 22
	DefaultTimeout = 10 * time.Second
)

// Config holds SSH credentials and host key policy.
type Config struct {
	User     string
	Password string
	Port     int
	Timeout  time.Duration

	// KnownHosts is an OpenSSH known_hosts file used to verify the device.
	KnownHosts string
	// HostKey overrides KnownHosts when set.
	HostKey ssh.HostKeyCallback
}

func (c Config) hostKeyCallback() (ssh.HostKeyCallback, error) {
	switch {
	case c.HostKey != nil:
		return c.HostKey, nil
	case c.KnownHosts != "":
		cb, err := knownhosts.New(c.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
		return cb, nil
	}
	// Management networks rarely carry host key inventories for switches.
	return ssh.InsecureIgnoreHostKey(), nil
}

func (c Config) address(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Session is an open SSH connection to one device.
type Session struct {
	host   string
	client *ssh.Client
}

// Dial connects and authenticates with a password.
func Dial(ctx context.Context, host string, cfg Config) (*Session, error) {
	hostKey, err := cfg.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	addr := cfg.address(host)

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w: %w", addr, util.ErrTransport, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake with %s: %w", addr, err)
	}
	return &Session{host: host, client: ssh.NewClient(c, chans, reqs)}, nil
}

// Run executes cmd in a new channel and returns its combined output. If ctx
// ends first the channel is closed and ctx's error returned.
func (s *Session) Run(ctx context.Context, cmd string) (string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("SSH session on %s: %w: %w", s.host, util.ErrTransport, err)
	}
	defer sess.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := sess.CombinedOutput(cmd)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return string(r.out), fmt.Errorf("SSH exec %q on %s: %w", cmd, s.host, r.err)
		}
		util.WithDevice(s.host).Debugf("ran %q", cmd)
		return string(r.out), nil
	case <-ctx.Done():
		sess.Close()
		return "", fmt.Errorf("SSH exec %q on %s: %w", cmd, s.host, ctx.Err())
	}
}

// Close closes the connection.
func (s *Session) Close() error {
	return s.client.Close()
}

// Runner dials a fresh session for every command.
type Runner struct {
	Host   string
	Config Config
}

// Run implements cisco.CommandRunner.
func (r Runner) Run(ctx context.Context, cmd string) (string, error) {
	s, err := Dial(ctx, r.Host, r.Config)
	if err != nil {
		return "", err
	}
	defer s.Close()
	return s.Run(ctx, cmd)
}
