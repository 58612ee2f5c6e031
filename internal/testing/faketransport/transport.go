// Package faketransport 提供脚本化的设备通道，供单元测试使用
package faketransport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/switchctl/switchctl/pkg/cli"
)

// DefaultReply 未登记命令的默认回显
const DefaultReply = "\r\n(M4250) #"

// Transport 按命令名回放预置回显，并记录所有调用
type Transport struct {
	mu         sync.Mutex
	connected  bool
	replies    map[string][]string
	failures   map[string]error
	calls      []string
	timeouts   []time.Duration
	connects   int
	ConnectErr error
	terms      cli.Terminators
	// OnSend 每次 Send 前回调，可用于测试中观察或阻塞
	OnSend func(command string)

	flightMu    sync.Mutex
	inFlight    int
	maxInFlight int
}

// New 创建假通道
func New() *Transport {
	return &Transport{
		replies:  make(map[string][]string),
		failures: make(map[string]error),
		terms:    cli.DefaultTerminators(),
	}
}

// On 为命令登记依次返回的回显；最后一条在耗尽后重复使用
func (t *Transport) On(command string, replies ...string) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[command] = append(t.replies[command], replies...)
	return t
}

// Fail 令命令返回错误，通道随之断开
func (t *Transport) Fail(command string, err error) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[command] = err
	return t
}

// Connect 模拟连接
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.connected = true
	return nil
}

// Connected 是否已连接
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// SetTimeout 记录超时设置
func (t *Transport) SetTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeouts = append(t.timeouts, d)
}

// Send 回放登记的回显
func (t *Transport) Send(ctx context.Context, command string) (cli.Response, error) {
	t.enter()
	defer t.leave()
	if t.OnSend != nil {
		t.OnSend(command)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls = append(t.calls, command)
	if !t.connected {
		return cli.Response{}, cli.ErrNotConnected
	}
	if err, ok := t.failures[command]; ok {
		t.connected = false
		return cli.Response{}, err
	}

	text := DefaultReply
	if q := t.replies[command]; len(q) > 0 {
		text = q[0]
		if len(q) > 1 {
			t.replies[command] = q[1:]
		}
	}
	m, term := t.terms.Classify(text)
	if m == cli.MatchNone {
		t.connected = false
		return cli.Response{Text: text}, cli.ErrTimeout
	}
	return cli.Response{Text: text, Match: m, Terminator: term}, nil
}

func (t *Transport) enter() {
	t.flightMu.Lock()
	defer t.flightMu.Unlock()
	t.inFlight++
	if t.inFlight > t.maxInFlight {
		t.maxInFlight = t.inFlight
	}
}

func (t *Transport) leave() {
	t.flightMu.Lock()
	defer t.flightMu.Unlock()
	t.inFlight--
}

// MaxInFlight 同时进行中的 Send 的最大数量
func (t *Transport) MaxInFlight() int {
	t.flightMu.Lock()
	defer t.flightMu.Unlock()
	return t.maxInFlight
}

// Disconnect 断开
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

// Calls 已发送的命令
func (t *Transport) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

// Timeouts 依次设置过的超时
func (t *Transport) Timeouts() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.timeouts...)
}

// Connects 连接次数
func (t *Transport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

// Reset 清空调用记录
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
	t.timeouts = nil
}

// ErrBroken 测试中常用的通道错误
var ErrBroken = errors.New("broken pipe")
