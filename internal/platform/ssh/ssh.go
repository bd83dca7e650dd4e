package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/imamik/alpine-cloud-images/internal/util/retry"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
	defaultMaxRetries  = 60
	defaultRetryDelay  = 5 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// Config holds SSH client configuration.
type Config struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte

	// UseAgent adds keys from the agent at SSH_AUTH_SOCK.
	UseAgent bool

	// KnownHostsFile enables host key verification against an OpenSSH
	// known_hosts file. Ignored when HostKeyCallback is set.
	KnownHostsFile string

	// DialTimeout is the timeout for establishing the TCP connection.
	// If zero, defaultDialTimeout is used.
	DialTimeout time.Duration

	// MaxRetries is the maximum number of connection retry attempts.
	// If zero, defaultMaxRetries is used.
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts.
	// If zero, defaultRetryDelay is used.
	RetryDelay time.Duration

	// HostKeyCallback handles host key verification.
	// If nil and KnownHostsFile is empty, host keys are not verified, which
	// only suits throwaway rescue systems.
	HostKeyCallback ssh.HostKeyCallback
}

// Client executes commands on a remote server via SSH.
// Connections are created on demand per call.
type Client struct {
	config *Config
	auth   []ssh.AuthMethod
	dial   func(network, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error)
}

// NewClient creates a new SSH client and validates its credentials.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Host == "" {
		return nil, fmt.Errorf("config host cannot be empty")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("config user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 && !cfg.UseAgent {
		return nil, fmt.Errorf("config private key cannot be empty")
	}

	configCopy := *cfg

	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.MaxRetries == 0 {
		configCopy.MaxRetries = defaultMaxRetries
	}
	if configCopy.RetryDelay == 0 {
		configCopy.RetryDelay = defaultRetryDelay
	}
	if configCopy.HostKeyCallback == nil {
		if configCopy.KnownHostsFile != "" {
			callback, err := knownhosts.New(configCopy.KnownHostsFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load known hosts: %w", err)
			}
			configCopy.HostKeyCallback = callback
		} else {
			configCopy.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // rescue systems have fresh host keys on every boot
		}
	}

	var auth []ssh.AuthMethod
	if len(configCopy.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(configCopy.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if configCopy.UseAgent {
		method, err := agentAuth()
		if err != nil {
			if len(auth) == 0 {
				return nil, err
			}
		} else {
			auth = append(auth, method)
		}
	}

	return &Client{
		config: &configCopy,
		auth:   auth,
		dial:   ssh.Dial,
	}, nil
}

func agentAuth() (ssh.AuthMethod, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, errors.New("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ssh-agent: %w", err)
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

// Host returns the remote host.
func (c *Client) Host() string {
	return c.config.Host
}

// Execute runs a command on the remote host.
// Returns command output (stdout+stderr) and any execution error.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	return c.runCommand(ctx, client, command, nil, nil)
}

// Output runs a command and returns only its standard output.
func (c *Client) Output(ctx context.Context, command string) (string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	var stdout strings.Builder
	_, err = c.runCommand(ctx, client, command, nil, &stdout)
	return stdout.String(), err
}

// Upload streams r into remotePath, creating its parent directory.
func (c *Client) Upload(ctx context.Context, r io.Reader, remotePath string) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	command := fmt.Sprintf("mkdir -p %s && cat > %s", Quote(parentDir(remotePath)), Quote(remotePath))
	_, err = c.runCommand(ctx, client, command, r, nil)
	return err
}

// Stream runs command with r as its standard input.
func (c *Client) Stream(ctx context.Context, r io.Reader, command string) (string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	return c.runCommand(ctx, client, command, r, nil)
}

// Download streams remotePath into w.
func (c *Client) Download(ctx context.Context, remotePath string, w io.Writer) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	_, err = c.runCommand(ctx, client, "cat "+Quote(remotePath), nil, w)
	return err
}

// connect establishes SSH connection with retry logic.
func (c *Client) connect(ctx context.Context) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            c.auth,
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}

	addr := net.JoinHostPort(c.config.Host, fmt.Sprint(c.config.Port))
	var client *ssh.Client

	// rescue systems can be slow to come up
	err := retry.WithExponentialBackoff(ctx, func() error {
		var dialErr error
		client, dialErr = c.dial("tcp", addr, config)
		var keyErr *knownhosts.KeyError
		if errors.As(dialErr, &keyErr) {
			return retry.Fatal(dialErr)
		}
		return dialErr
	},
		retry.WithMaxRetries(c.config.MaxRetries),
		retry.WithInitialDelay(c.config.RetryDelay),
		retry.WithMaxDelay(defaultMaxDelay),
	)

	if err != nil {
		return nil, fmt.Errorf("failed to establish SSH connection to %s after %d retry attempts: %w",
			addr, c.config.MaxRetries, err)
	}

	return client, nil
}

// runCommand executes a command on an established SSH session. When stdout
// is nil the combined output is captured and returned.
func (c *Client) runCommand(ctx context.Context, client *ssh.Client, command string, stdin io.Reader, stdout io.Writer) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session on %s: %w", c.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	var output lockedBuffer
	session.Stdin = stdin
	if stdout != nil {
		session.Stdout = stdout
	} else {
		session.Stdout = &output
	}
	session.Stderr = &output

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-done:
		}
	}()

	if err := session.Run(command); err != nil {
		if ctx.Err() != nil {
			return output.String(), fmt.Errorf("command cancelled on %s: %w", c.config.Host, ctx.Err())
		}
		return output.String(), fmt.Errorf("command failed on %s: %w\nCommand: %s\nOutput: %s",
			c.config.Host, err, command, output.String())
	}

	return output.String(), nil
}

// lockedBuffer serializes writes from the session's stdout and stderr copiers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Quote returns s quoted for a POSIX shell.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r == '/' || r == '.' || r == '-' || r == '_' || r == '+' || r == '=' || r == ':' || r == ',' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func parentDir(p string) string {
	i := strings.LastIndex(p, "/")
	switch {
	case i < 0:
		return "."
	case i == 0:
		return "/"
	default:
		return p[:i]
	}
}
