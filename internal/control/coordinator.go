package control

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/switchctl/switchctl/pkg/logger"
)

// State 控制状态
type State int

const (
	Idle State = iota
	Controlling
	Rebooting
	RecoveryWait
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Controlling:
		return "controlling"
	case Rebooting:
		return "rebooting"
	case RecoveryWait:
		return "recovery_wait"
	default:
		return "unknown"
	}
}

// Status 状态快照，供接口展示
type Status struct {
	State            string    `json:"state"`
	CooldownPending  bool      `json:"cooldown_pending"`
	RecoveryPending  bool      `json:"recovery_pending"`
	RecoveryDeadline time.Time `json:"recovery_deadline,omitempty"`
}

// Coordinator 端口开关防抖与整栈重启抑制的状态机
// 所有状态读写都在 mu 内完成，定时回调通过代号判断是否已被替换
type Coordinator struct {
	mu       sync.Mutex
	state    State
	cooldown *DelayedAction
	recovery *DelayedAction

	cooldownAfter time.Duration
	recoveryAfter time.Duration
}

// NewCoordinator 创建状态机
func NewCoordinator(clock Clock, cooldown, recovery time.Duration) *Coordinator {
	if cooldown <= 0 {
		cooldown = 3 * time.Second
	}
	if recovery <= 0 {
		recovery = 3 * time.Minute
	}
	return &Coordinator{
		cooldown:      NewDelayedAction(clock),
		recovery:      NewDelayedAction(clock),
		cooldownAfter: cooldown,
		recoveryAfter: recovery,
	}
}

// State 当前状态
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Suppressed 是否应跳过设备轮询
func (c *Coordinator) Suppressed() bool {
	return c.State() != Idle
}

// InReboot 是否处于重启或恢复等待
func (c *Coordinator) InReboot() bool {
	s := c.State()
	return s == Rebooting || s == RecoveryWait
}

// Status 返回状态与定时器信息
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:           c.state.String(),
		CooldownPending: c.cooldown.Pending(),
	}
	if deadline, ok := c.recovery.Deadline(); ok {
		st.RecoveryPending = true
		st.RecoveryDeadline = deadline
	}
	return st
}

// BeginToggle 准备下发端口开关；重启期间拒绝
// 成功时进入 Controlling 并重新计时冷却，后续开关会替换而不是叠加冷却定时器
func (c *Coordinator) BeginToggle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Rebooting || c.state == RecoveryWait {
		logger.WithField("state", c.state.String()).Info("Port toggle dropped while stack is rebooting")
		return false
	}
	c.transition(Controlling)
	c.cooldown.Arm(c.cooldownAfter, c.cooldownElapsed)
	return true
}

func (c *Coordinator) cooldownElapsed(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cooldown.IsCurrent(gen) || c.state != Controlling {
		return
	}
	c.transition(Idle)
}

// BeginReload 准备下发整栈重启；已在重启流程中时丢弃，且不重置恢复定时器
func (c *Coordinator) BeginReload() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Rebooting || c.state == RecoveryWait {
		logger.WithField("state", c.state.String()).Info("Reload dropped, stack reload already in progress")
		return false
	}
	c.cooldown.Cancel()
	c.transition(Rebooting)
	c.recovery.Arm(c.recoveryAfter, c.recoveryElapsed)
	return true
}

func (c *Coordinator) recoveryElapsed(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recovery.IsCurrent(gen) {
		return
	}
	c.transition(Idle)
}

// ReloadAccepted 设备已接受重启命令
func (c *Coordinator) ReloadAccepted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Rebooting {
		c.transition(RecoveryWait)
	}
}

// ReloadFailed 重启命令未能送达，撤销恢复定时器并回到空闲
func (c *Coordinator) ReloadFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recovery.Cancel()
	if c.state == Rebooting || c.state == RecoveryWait {
		c.transition(Idle)
	}
}

// Stop 取消全部定时器
func (c *Coordinator) Stop() {
	c.cooldown.Cancel()
	c.recovery.Cancel()
}

func (c *Coordinator) transition(to State) {
	if c.state == to {
		return
	}
	logger.WithFields(logrus.Fields{
		"from": c.state.String(),
		"to":   to.String(),
	}).Debug("Control state changed")
	c.state = to
}
