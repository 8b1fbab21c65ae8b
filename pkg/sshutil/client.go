// Package sshutil is a small SSH client used by provider adapters that
// manage files on a remote host, with SFTP file access and remote
// command execution.
package sshutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Sentinel errors for connection handling.
var (
	ErrNotConnected = errors.New("ssh client is not connected")
	ErrAuthFailed   = errors.New("ssh authentication failed")
)

const defaultTimeout = 15 * time.Second

// Config describes the remote host and credentials. Exactly one of
// KeyFile, KeyData, or Password must be set; key auth is tried first
// when several are present.
type Config struct {
	Host string
	// Port defaults to 22.
	Port int
	User string

	Password      string
	KeyFile       string
	KeyData       string
	KeyPassphrase string

	// KnownHostsFile enables host key verification. Empty disables it,
	// which is logged as a warning.
	KnownHostsFile string

	// Timeout bounds the dial and handshake. Zero means 15s.
	Timeout time.Duration
}

// Addr returns the host:port dial address.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c Config) validate() error {
	if c.Host == "" {
		return errors.New("sshutil: host is required")
	}
	if c.User == "" {
		return errors.New("sshutil: user is required")
	}
	if c.Password == "" && c.KeyFile == "" && c.KeyData == "" {
		return errors.New("sshutil: no authentication method configured")
	}
	return nil
}

// Client is a lazily connected SSH client. Operations reconnect after a
// dropped connection on the next call.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	conn *ssh.Client
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client. No connection is made until the first
// operation or an explicit Connect.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect dials the host and completes the handshake. Connecting an
// already connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.connLocked(ctx)
	return err
}

// connLocked returns the live connection, dialing if needed.
func (c *Client) connLocked(ctx context.Context) (*ssh.Client, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	sshCfg, err := c.clientConfig()
	if err != nil {
		return nil, err
	}

	timeout := c.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := &net.Dialer{Timeout: timeout}
	netConn, err := dialer.DialContext(dialCtx, "tcp", c.cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", c.cfg.Addr(), err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, c.cfg.Addr(), sshCfg)
	if err != nil {
		_ = netConn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
		return nil, fmt.Errorf("ssh handshake with %s: %w", c.cfg.Addr(), err)
	}

	c.conn = ssh.NewClient(sshConn, chans, reqs)
	c.logger.Info("ssh connection established",
		slog.String("host", c.cfg.Host),
		slog.String("user", c.cfg.User),
	)
	return c.conn, nil
}

// dropLocked discards a connection after a failed operation so the next
// call redials.
func (c *Client) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close shuts the connection down. Safe to call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) clientConfig() (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod

	if keyData := c.keyData(); keyData != nil {
		signer, err := c.parseKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if c.cfg.Password != "" {
		methods = append(methods, ssh.Password(c.cfg.Password))
	}

	hostKeys, err := c.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	timeout := c.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            methods,
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}, nil
}

func (c *Client) keyData() []byte {
	if c.cfg.KeyData != "" {
		return []byte(c.cfg.KeyData)
	}
	if c.cfg.KeyFile != "" {
		data, err := os.ReadFile(c.cfg.KeyFile)
		if err != nil {
			c.logger.Warn("cannot read ssh key file",
				slog.String("path", c.cfg.KeyFile),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return data
	}
	return nil
}

func (c *Client) parseKey(data []byte) (ssh.Signer, error) {
	if c.cfg.KeyPassphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(data, []byte(c.cfg.KeyPassphrase))
	}
	return ssh.ParsePrivateKey(data)
}

func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(c.cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known_hosts %s: %w", c.cfg.KnownHostsFile, err)
		}
		return cb, nil
	}
	c.logger.Warn("host key verification disabled",
		slog.String("host", c.cfg.Host),
	)
	return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // no known_hosts configured
}
