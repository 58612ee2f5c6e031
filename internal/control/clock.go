package control

import "time"

// Clock 定时能力，测试中可替换为可控时钟
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer 可取消的定时器
type Timer interface {
	Stop() bool
}

// RealClock 基于标准库的时钟
type RealClock struct{}

// Now 当前时间
func (RealClock) Now() time.Time { return time.Now() }

// AfterFunc d 后在独立协程执行 f
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
