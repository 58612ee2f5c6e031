// Package fakeclock 提供可手动推进的时钟，用于测试定时器逻辑
package fakeclock

import (
	"sort"
	"sync"
	"time"

	"github.com/switchctl/switchctl/internal/control"
)

// Clock 仅在 Advance 时触发到期回调
type Clock struct {
	mu      sync.Mutex
	current time.Time
	seq     int
	timers  []*timer
}

type timer struct {
	clock    *Clock
	id       int
	deadline time.Time
	fn       func()
	stopped  bool
}

// New 以给定时间创建时钟
func New(initial time.Time) *Clock {
	return &Clock{current: initial}
}

// Now 当前假时间
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc 登记回调，推进到期后在调用 Advance 的协程中执行
func (c *Clock) AfterFunc(d time.Duration, f func()) control.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &timer{clock: c, id: c.seq, deadline: c.current.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Stop 取消定时器，返回是否在触发前取消
func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	for i, other := range t.clock.timers {
		if other == t {
			t.clock.timers = append(t.clock.timers[:i], t.clock.timers[i+1:]...)
			break
		}
	}
	return true
}

// Advance 推进时间并按到期顺序执行回调
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current

	var due, remaining []*timer
	for _, t := range c.timers {
		if !now.Before(t.deadline) {
			t.stopped = true
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].id < due[j].id
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, t := range due {
		t.fn()
	}
}

// Pending 尚未触发的定时器数量
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

var _ control.Clock = (*Clock)(nil)
