package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/switchctl/switchctl/pkg/cli"
	"github.com/switchctl/switchctl/pkg/logger"
)

var (
	// ErrConnect 设备连接失败
	ErrConnect = errors.New("device connection failed")
	// ErrInvalidInput 设备拒绝命令
	ErrInvalidInput = errors.New("device rejected command")
)

// Transport 设备 CLI 通道能力
type Transport interface {
	Connect(ctx context.Context) error
	Connected() bool
	Send(ctx context.Context, command string) (cli.Response, error)
	SetTimeout(d time.Duration)
	Disconnect() error
}

// Options 会话参数
type Options struct {
	// Password 登录与 enable 共用的密码
	Password          string
	EscalateCommand   string
	EscalatedSuffix   string
	PasswordPrompt    string
	PageAdvance       string
	PageTerminator    string
	ControlTimeout    time.Duration
	StatisticsTimeout time.Duration
}

// DefaultOptions 默认会话参数
func DefaultOptions() Options {
	return Options{
		EscalateCommand:   "en",
		EscalatedSuffix:   cli.TermPrompt,
		PasswordPrompt:    cli.TermPassword,
		PageAdvance:       "-",
		PageTerminator:    cli.TermPrompt,
		ControlTimeout:    3 * time.Second,
		StatisticsTimeout: 30 * time.Second,
	}
}

func (o *Options) fill() {
	d := DefaultOptions()
	if o.EscalateCommand == "" {
		o.EscalateCommand = d.EscalateCommand
	}
	if o.EscalatedSuffix == "" {
		o.EscalatedSuffix = d.EscalatedSuffix
	}
	if o.PasswordPrompt == "" {
		o.PasswordPrompt = d.PasswordPrompt
	}
	if o.PageAdvance == "" {
		o.PageAdvance = d.PageAdvance
	}
	if o.PageTerminator == "" {
		o.PageTerminator = d.PageTerminator
	}
	if o.ControlTimeout <= 0 {
		o.ControlTimeout = d.ControlTimeout
	}
	if o.StatisticsTimeout <= 0 {
		o.StatisticsTimeout = d.StatisticsTimeout
	}
}

// Manager 管理单一设备会话：连接、提权、分页读取
// 非并发安全，调用方需持有会话锁
type Manager struct {
	t    Transport
	opts Options
}

// NewManager 创建会话管理器
func NewManager(t Transport, opts Options) *Manager {
	opts.fill()
	return &Manager{t: t, opts: opts}
}

// Options 当前会话参数
func (m *Manager) Options() Options {
	return m.opts
}

// Connected 通道是否可用
func (m *Manager) Connected() bool {
	return m.t.Connected()
}

// EnsureConnected 未连接时建立连接
func (m *Manager) EnsureConnected(ctx context.Context) error {
	if m.t.Connected() {
		return nil
	}
	if err := m.t.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return nil
}

// EnsureEscalated 确保处于特权模式
// 返回 false 表示设备未进入特权模式（已记录日志），调用方应中止本次操作
func (m *Manager) EnsureEscalated(ctx context.Context) (bool, error) {
	if err := m.EnsureConnected(ctx); err != nil {
		return false, err
	}

	resp, err := m.t.Send(ctx, m.opts.EscalateCommand)
	if err != nil {
		return false, fmt.Errorf("failed to send %q: %w", m.opts.EscalateCommand, err)
	}
	if resp.EndsWith(m.opts.PasswordPrompt) {
		resp, err = m.t.Send(ctx, m.opts.Password)
		if err != nil {
			return false, fmt.Errorf("failed to send enable password: %w", err)
		}
	}
	if resp.EndsWith(m.opts.EscalatedSuffix) {
		return true, nil
	}
	logger.Warnf("Privilege escalation failed, device replied with %q", tail(resp.Text, 64))
	return false, nil
}

// Send 发送单条命令
func (m *Manager) Send(ctx context.Context, command string) (cli.Response, error) {
	return m.t.Send(ctx, command)
}

// RunPaginated 发送命令并持续翻页，直至累积文本以终止符结尾
// 终止符出现后不再发送翻页键
func (m *Manager) RunPaginated(ctx context.Context, command string) (string, error) {
	resp, err := m.t.Send(ctx, command)
	if err != nil {
		return resp.Text, err
	}
	var sb strings.Builder
	sb.WriteString(resp.Text)

	pages := 1
	for !strings.HasSuffix(sb.String(), m.opts.PageTerminator) {
		if resp.Match == cli.MatchError {
			return sb.String(), fmt.Errorf("%w: %s", ErrInvalidInput, command)
		}
		if err := ctx.Err(); err != nil {
			return sb.String(), err
		}
		resp, err = m.t.Send(ctx, m.opts.PageAdvance)
		if err != nil {
			return sb.String(), fmt.Errorf("page %d of %q: %w", pages+1, command, err)
		}
		sb.WriteString(resp.Text)
		pages++
	}
	logger.Debugf("Command %q drained in %d page(s)", command, pages)
	return sb.String(), nil
}

// UseControlTimeout 切换为控制命令超时
func (m *Manager) UseControlTimeout() {
	m.t.SetTimeout(m.opts.ControlTimeout)
}

// UseStatisticsTimeout 切换为统计命令超时
func (m *Manager) UseStatisticsTimeout() {
	m.t.SetTimeout(m.opts.StatisticsTimeout)
}

// Disconnect 断开通道，错误仅记录
func (m *Manager) Disconnect() {
	if err := m.t.Disconnect(); err != nil {
		logger.Debugf("Disconnect returned: %v", err)
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
