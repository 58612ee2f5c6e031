package ssh

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/switchctl/switchctl/pkg/cli"
	"github.com/switchctl/switchctl/pkg/logger"
	"golang.org/x/crypto/ssh"
)

// Options SSH 交互通道参数
type Options struct {
	Host         string
	Port         int
	Username     string
	Password     string
	LoginSuccess string
	DialTimeout  time.Duration
	Timeout      time.Duration
	Settle       time.Duration
	Terminators  cli.Terminators
	Charset      string
	// KeepAlive 保活间隔，0 表示关闭
	KeepAlive time.Duration
}

// Client 在单一 PTY Shell 中串行执行命令的 SSH 通道
type Client struct {
	opts    Options
	decode  cli.Decoder
	mu      sync.Mutex
	conn    *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stream  *cli.Stream
	timeout time.Duration
	stopKA  chan struct{}
}

// NewClient 创建 SSH 通道
func NewClient(opts Options) *Client {
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.LoginSuccess == "" {
		opts.LoginSuccess = cli.DefaultLoginSuccess
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Terminators.Empty() {
		opts.Terminators = cli.DefaultTerminators()
	}
	return &Client{
		opts:    opts,
		decode:  cli.NewDecoder(opts.Charset),
		timeout: opts.Timeout,
	}
}

func (c *Client) clientConfig() *ssh.ClientConfig {
	cfg := &ssh.ClientConfig{
		User:            c.opts.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.opts.DialTimeout,
		Config: ssh.Config{
			// 兼容旧设备的密钥交换与加密算法
			KeyExchanges: []string{
				"curve25519-sha256",
				"diffie-hellman-group14-sha256",
				"diffie-hellman-group14-sha1",
				"diffie-hellman-group1-sha1",
				"ecdh-sha2-nistp256",
				"ecdh-sha2-nistp384",
			},
			Ciphers: []string{
				"aes128-ctr",
				"aes192-ctr",
				"aes256-ctr",
				"aes128-gcm@openssh.com",
				"aes256-gcm@openssh.com",
				"aes128-cbc",
				"3des-cbc",
			},
		},
	}
	password := c.opts.Password
	cfg.Auth = []ssh.AuthMethod{
		ssh.Password(password),
		ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = password
			}
			return answers, nil
		}),
	}
	return cfg
}

// Connect 建立连接、申请 PTY 并启动 Shell，等待登录提示符
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	address := net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
	dialer := &net.Dialer{Timeout: c.opts.DialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(raw, address, c.clientConfig())
	if err != nil {
		raw.Close()
		return fmt.Errorf("failed to create SSH connection: %w", err)
	}
	conn := ssh.NewClient(sshConn, chans, reqs)

	session, err := conn.NewSession()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("vt100", 80, 24, modes); err != nil {
		session.Close()
		conn.Close()
		return fmt.Errorf("failed to request pty: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		conn.Close()
		return fmt.Errorf("failed to get stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		conn.Close()
		return fmt.Errorf("failed to get stdout: %w", err)
	}
	if err := session.Shell(); err != nil {
		session.Close()
		conn.Close()
		return fmt.Errorf("failed to start shell: %w", err)
	}

	stream := cli.NewStream(stdout, c.decode)
	if _, err := stream.Expect(ctx, c.timeout, c.opts.LoginSuccess, cli.TermPrompt); err != nil {
		stream.Close()
		session.Close()
		conn.Close()
		return fmt.Errorf("failed to read shell prompt: %w", err)
	}

	c.conn = conn
	c.session = session
	c.stdin = stdin
	c.stream = stream
	if c.opts.KeepAlive > 0 {
		c.stopKA = make(chan struct{})
		go c.keepAlive(conn, c.stopKA)
	}
	logger.WithField("addr", address).Debug("SSH shell established")
	return nil
}

func (c *Client) keepAlive(conn *ssh.Client, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, _, err := conn.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				logger.Warnf("SSH keepalive failed: %v", err)
				c.mu.Lock()
				if c.conn == conn {
					_ = c.teardown()
				}
				c.mu.Unlock()
				return
			}
		}
	}
}

// Connected 通道是否可用
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// SetTimeout 调整单次交互超时
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.timeout = d
	}
}

// Send 写入一行命令并收集回显
func (c *Client) Send(ctx context.Context, command string) (cli.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return cli.Response{}, cli.ErrNotConnected
	}
	c.stream.Drain()

	if _, err := c.stdin.Write([]byte(command + "\r\n")); err != nil {
		c.teardown()
		return cli.Response{}, fmt.Errorf("failed to write command: %w", err)
	}
	resp, err := c.stream.Collect(ctx, c.timeout, c.opts.Settle, c.opts.Terminators)
	display := command
	if c.opts.Password != "" && command == c.opts.Password {
		display = "******"
	}
	logger.DebugCommandOutput(display, resp.Text, 3)
	if err != nil {
		c.teardown()
		return resp, fmt.Errorf("command %q: %w", display, err)
	}
	return resp, nil
}

// Disconnect 关闭 Shell 与连接
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teardown()
}

func (c *Client) teardown() error {
	if c.conn == nil {
		return nil
	}
	if c.stopKA != nil {
		close(c.stopKA)
		c.stopKA = nil
	}
	if c.stream != nil {
		c.stream.Close()
	}
	if c.session != nil {
		_ = c.session.Close()
	}
	err := c.conn.Close()
	c.conn = nil
	c.session = nil
	c.stdin = nil
	c.stream = nil
	return err
}
