package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/switchctl/switchctl/internal/model"
	"github.com/switchctl/switchctl/pkg/logger"
)

// Poller 可被定时触发的统计采集
type Poller interface {
	Poll(ctx context.Context) (*model.Snapshot, error)
}

// Scheduler 定时轮询
type Scheduler struct {
	poller   Poller
	interval time.Duration
	timeout  time.Duration
	running  bool
	mutex    sync.RWMutex
	stopChan chan struct{}
	resetCh  chan time.Duration
	done     chan struct{}

	lastRun time.Time
	lastErr error
}

// NewScheduler 创建定时轮询器；timeout 为单次轮询上限，0 表示不限制
func NewScheduler(p Poller, interval, timeout time.Duration) *Scheduler {
	return &Scheduler{
		poller:   p,
		interval: interval,
		timeout:  timeout,
		resetCh:  make(chan time.Duration, 1),
	}
}

// Start 启动轮询循环，立即执行第一次
func (s *Scheduler) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return fmt.Errorf("poll scheduler is already running")
	}
	if s.interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", s.interval)
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx, s.interval, s.stopChan, s.done)

	logger.Infof("Poll scheduler started, interval %s", s.interval)
	return nil
}

// Stop 停止轮询并等待进行中的一次结束
func (s *Scheduler) Stop() error {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil
	}
	s.running = false
	close(s.stopChan)
	done := s.done
	s.mutex.Unlock()

	<-done
	logger.Info("Poll scheduler stopped")
	return nil
}

// SetInterval 热更新轮询间隔，下一个周期生效
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		logger.Warnf("Ignoring non-positive poll interval %s", d)
		return
	}
	s.mutex.Lock()
	if s.interval == d {
		s.mutex.Unlock()
		return
	}
	s.interval = d
	running := s.running
	s.mutex.Unlock()

	if !running {
		return
	}
	// 只保留最新的间隔
	select {
	case <-s.resetCh:
	default:
	}
	s.resetCh <- d
}

// Interval 当前轮询间隔
func (s *Scheduler) Interval() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.interval
}

// LastRun 最近一次轮询时间与结果
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastRun, s.lastErr
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	s.runOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case d := <-s.resetCh:
			ticker.Reset(d)
			logger.Infof("Poll interval changed to %s", d)
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	snap, err := s.poller.Poll(ctx)

	s.mutex.Lock()
	s.lastRun = time.Now()
	s.lastErr = err
	s.mutex.Unlock()

	if err != nil {
		logger.Warnf("Scheduled poll failed: %v", err)
		return
	}
	logger.Debugf("Scheduled poll returned %d statistics", snap.Statistics.Len())
}
