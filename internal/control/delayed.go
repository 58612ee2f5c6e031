package control

import (
	"sync"
	"time"
)

// DelayedAction 可取消的延迟动作；再次 Arm 会替换尚未触发的动作
type DelayedAction struct {
	clock    Clock
	mu       sync.Mutex
	timer    Timer
	gen      uint64
	deadline time.Time
}

// NewDelayedAction 创建延迟动作
func NewDelayedAction(clock Clock) *DelayedAction {
	if clock == nil {
		clock = RealClock{}
	}
	return &DelayedAction{clock: clock}
}

// Arm 取消已有动作并在 d 后执行 f，返回本次的代号
// f 收到代号，可用 IsCurrent 判断自己是否已被替换
func (a *DelayedAction) Arm(d time.Duration, f func(gen uint64)) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	gen := a.gen
	a.deadline = a.clock.Now().Add(d)
	a.timer = a.clock.AfterFunc(d, func() {
		a.mu.Lock()
		if a.gen != gen {
			a.mu.Unlock()
			return
		}
		a.timer = nil
		a.mu.Unlock()
		f(gen)
	})
	return gen
}

// Cancel 取消尚未触发的动作
func (a *DelayedAction) Cancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen++
	if a.timer == nil {
		return false
	}
	stopped := a.timer.Stop()
	a.timer = nil
	return stopped
}

// IsCurrent 代号是否仍是最近一次 Arm
func (a *DelayedAction) IsCurrent(gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen == gen
}

// Pending 是否有待触发的动作
func (a *DelayedAction) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timer != nil
}

// Deadline 待触发动作的到期时间
func (a *DelayedAction) Deadline() (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deadline, a.timer != nil
}
