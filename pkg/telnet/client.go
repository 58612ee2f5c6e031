package telnet

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/switchctl/switchctl/pkg/cli"
	"github.com/switchctl/switchctl/pkg/logger"
	"github.com/ziutek/telnet"
)

// Options telnet 通道参数
type Options struct {
	Host           string
	Port           int
	Username       string
	Password       string
	UserPrompt     string
	PasswordPrompt string
	LoginSuccess   string
	DialTimeout    time.Duration
	Timeout        time.Duration
	// Settle 匹配到终止符后的静默等待窗口
	Settle      time.Duration
	Terminators cli.Terminators
	Charset     string
}

func (o *Options) normalize() {
	if o.Port == 0 {
		o.Port = 23
	}
	if o.UserPrompt == "" {
		o.UserPrompt = cli.DefaultUserPrompt
	}
	if o.PasswordPrompt == "" {
		o.PasswordPrompt = cli.TermPassword
	}
	if o.LoginSuccess == "" {
		o.LoginSuccess = cli.DefaultLoginSuccess
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Terminators.Empty() {
		o.Terminators = cli.DefaultTerminators()
	}
}

// Client 基于 telnet 的交换机 CLI 通道
type Client struct {
	opts    Options
	decode  cli.Decoder
	mu      sync.Mutex
	conn    *telnet.Conn
	stream  *cli.Stream
	timeout time.Duration
}

// New 创建 telnet 通道，不会立即连接
func New(opts Options) *Client {
	opts.normalize()
	return &Client{
		opts:    opts,
		decode:  cli.NewDecoder(opts.Charset),
		timeout: opts.Timeout,
	}
}

// Address 设备地址
func (c *Client) Address() string {
	return net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
}

// Connect 建立连接并完成登录
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := telnet.DialTimeout("tcp", c.Address(), c.opts.DialTimeout)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.Address(), err)
	}
	conn.SetUnixWriteMode(true)

	stream := cli.NewStream(conn, c.decode)
	if err := c.login(ctx, conn, stream); err != nil {
		stream.Close()
		_ = conn.Close()
		return err
	}

	c.conn = conn
	c.stream = stream
	logger.WithField("addr", c.Address()).Debug("Telnet session established")
	return nil
}

func (c *Client) login(ctx context.Context, conn *telnet.Conn, stream *cli.Stream) error {
	wait := c.opts.DialTimeout + c.timeout

	resp, err := stream.Expect(ctx, wait, c.opts.UserPrompt, c.opts.LoginSuccess, cli.TermPrompt)
	if err != nil {
		return fmt.Errorf("failed to read login banner: %w", err)
	}
	if resp.Terminator != c.opts.UserPrompt {
		return nil
	}
	if _, err := conn.Write([]byte(c.opts.Username + "\n")); err != nil {
		return fmt.Errorf("failed to send username: %w", err)
	}

	if _, err := stream.Expect(ctx, wait, c.opts.PasswordPrompt); err != nil {
		return fmt.Errorf("failed to read password prompt: %w", err)
	}
	if _, err := conn.Write([]byte(c.opts.Password + "\n")); err != nil {
		return fmt.Errorf("failed to send password: %w", err)
	}

	resp, err = stream.Collect(ctx, wait, 0, cli.Terminators{
		Success: []string{c.opts.LoginSuccess, cli.TermPrompt},
		Error:   []string{c.opts.UserPrompt},
	})
	if err != nil {
		return fmt.Errorf("failed to complete login: %w", err)
	}
	if resp.Match == cli.MatchError {
		return fmt.Errorf("login rejected for user %s", c.opts.Username)
	}
	return nil
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

// Send 写入一行命令并收集回显，直至终止符或超时
// 超时或对端关闭时通道被拆除，下次调用前需重新连接
func (c *Client) Send(ctx context.Context, command string) (cli.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return cli.Response{}, cli.ErrNotConnected
	}
	if stale := c.stream.Drain(); stale != "" {
		logger.DebugCommandOutput("<stale>", stale, 2)
	}

	if _, err := c.conn.Write([]byte(command + "\n")); err != nil {
		c.teardown()
		return cli.Response{}, fmt.Errorf("failed to write command: %w", err)
	}

	resp, err := c.stream.Collect(ctx, c.timeout, c.opts.Settle, c.opts.Terminators)
	logger.DebugCommandOutput(c.mask(command), resp.Text, 3)
	if err != nil {
		c.teardown()
		return resp, fmt.Errorf("command %q: %w", c.mask(command), err)
	}
	return resp, nil
}

func (c *Client) mask(command string) string {
	if c.opts.Password != "" && command == c.opts.Password {
		return "******"
	}
	return command
}

// Disconnect 关闭通道
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teardown()
}

func (c *Client) teardown() error {
	if c.conn == nil {
		return nil
	}
	if c.stream != nil {
		c.stream.Close()
	}
	err := c.conn.Close()
	c.conn = nil
	c.stream = nil
	return err
}
