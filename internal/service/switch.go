package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/switchctl/switchctl/internal/control"
	"github.com/switchctl/switchctl/internal/model"
	"github.com/switchctl/switchctl/internal/parser"
	"github.com/switchctl/switchctl/internal/session"
	"github.com/switchctl/switchctl/pkg/cli"
	"github.com/switchctl/switchctl/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// ErrNoRequests 批量控制请求为空
var ErrNoRequests = errors.New("no controllable properties provided")

// ControlRequest 控制请求：属性名与取值
type ControlRequest struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

// Options 门面可选依赖
type Options struct {
	Name     string
	Clock    control.Clock
	Cooldown time.Duration
	Recovery time.Duration
	// GracePeriod 重启按钮的宽限期，0 使用默认值
	GracePeriod time.Duration
	Archive     Archiver
	Audit       Auditor
	Events      Publisher
}

// Switch 交换机门面：轮询统计与下发控制
// sessionMu 即会话锁，串行化所有设备交互与缓存写入
type Switch struct {
	name    string
	clock   control.Clock
	session *session.Manager
	coord   *control.Coordinator
	cache   SnapshotCache
	flight  singleflight.Group
	grace   time.Duration

	sessionMu sync.Mutex

	archive Archiver
	audit   Auditor
	events  Publisher
}

// NewSwitch 组装门面
func NewSwitch(t session.Transport, sopts session.Options, opts Options) *Switch {
	if opts.Clock == nil {
		opts.Clock = control.RealClock{}
	}
	if opts.Name == "" {
		opts.Name = "switch"
	}
	return &Switch{
		name:    opts.Name,
		clock:   opts.Clock,
		session: session.NewManager(t, sopts),
		coord:   control.NewCoordinator(opts.Clock, opts.Cooldown, opts.Recovery),
		grace:   opts.GracePeriod,
		archive: opts.Archive,
		audit:   opts.Audit,
		events:  opts.Events,
	}
}

// Name 设备名
func (s *Switch) Name() string { return s.name }

// Cached 最近一次快照，可能为 nil
func (s *Switch) Cached() *model.Snapshot { return s.cache.Load() }

// Status 控制状态
func (s *Switch) Status() control.Status { return s.coord.Status() }

// Close 取消定时器并关闭事件发布
func (s *Switch) Close() {
	s.coord.Stop()
	s.sessionMu.Lock()
	s.session.Disconnect()
	s.sessionMu.Unlock()
	if s.events != nil {
		s.events.Close()
	}
}

// Poll 采集一次统计；并发调用合并为同一次设备交互
// 受抑制时返回缓存快照（无缓存则为空快照）
func (s *Switch) Poll(ctx context.Context) (*model.Snapshot, error) {
	v, err, shared := s.flight.Do("poll", func() (interface{}, error) {
		return s.pollOnce(ctx)
	})
	if shared {
		logger.Debug("Poll coalesced with an in-flight request")
	}
	if err != nil {
		return nil, err
	}
	return v.(*model.Snapshot), nil
}

func (s *Switch) pollOnce(ctx context.Context) (*model.Snapshot, error) {
	start := s.clock.Now()
	rec := &model.PollRecord{Device: s.name}

	snap, raw, err := s.poll(ctx, rec)
	rec.Duration = s.clock.Now().Sub(start).Milliseconds()
	if err != nil {
		rec.Outcome = model.PollOutcomeFailed
		rec.ErrorMsg = err.Error()
		logger.WithField("device", s.name).Errorf("Statistics poll failed: %v", err)
	}
	// 归档与事件发布在会话锁之外进行
	if raw != nil {
		s.afterPoll(ctx, *raw, snap, rec)
	}
	if s.audit != nil {
		s.audit.RecordPoll(ctx, rec)
	}
	return snap, err
}

// poll 持有会话锁完成设备交互与缓存发布；仅在采集到新快照时返回原始回显
func (s *Switch) poll(ctx context.Context, rec *model.PollRecord) (*model.Snapshot, *RawOutputs, error) {
	if s.coord.Suppressed() {
		return s.suppressed(rec), nil, nil
	}

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if s.coord.Suppressed() {
		return s.suppressed(rec), nil, nil
	}
	defer s.session.Disconnect()
	s.session.UseStatisticsTimeout()

	ok, err := s.session.EnsureEscalated(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		rec.Outcome = model.PollOutcomeNoEnable
		logger.WithField("device", s.name).Warn("Poll aborted, privileged mode unavailable; serving cached statistics")
		return s.cache.LoadOrEmpty(), nil, nil
	}

	raw, err := s.collect(ctx)
	if err != nil {
		return nil, nil, err
	}

	snap := BuildSnapshot(raw, s.clock.Now())
	if s.grace > 0 {
		for i := range snap.Controls {
			if snap.Controls[i].Name == model.PropertyReload {
				snap.Controls[i].GracePeriodMS = s.grace.Milliseconds()
			}
		}
	}
	s.cache.Store(snap)

	rec.Outcome = model.PollOutcomeSuccess
	rec.Labels = snap.Statistics.Len()
	return snap, &raw, nil
}

func (s *Switch) suppressed(rec *model.PollRecord) *model.Snapshot {
	rec.Outcome = model.PollOutcomeSuppressed
	snap := s.cache.Load()
	logger.WithFields(logrus.Fields{
		"device": s.name,
		"state":  s.coord.State().String(),
		"cached": snap != nil,
	}).Info("Poll suppressed by control activity")
	if snap == nil {
		return model.NewSnapshot()
	}
	return snap
}

// collect 依次发送六条统计命令；后三条需要翻页
func (s *Switch) collect(ctx context.Context) (RawOutputs, error) {
	var (
		raw RawOutputs
		err error
	)
	single := []struct {
		cmd string
		dst *string
	}{
		{CmdIPManagement, &raw.IPManagement},
		{CmdPoE, &raw.PoE},
		{CmdSwitchport, &raw.Switchport},
	}
	for _, c := range single {
		var resp cli.Response
		if resp, err = s.session.Send(ctx, c.cmd); err != nil {
			return raw, fmt.Errorf("%s: %w", c.cmd, err)
		}
		*c.dst = resp.Text
	}

	paged := []struct {
		cmd string
		dst *string
	}{
		{CmdEnvironment, &raw.Environment},
		{CmdEthernet, &raw.Ethernet},
		{CmdPortStatus, &raw.PortStatus},
	}
	for _, c := range paged {
		if *c.dst, err = s.session.RunPaginated(ctx, c.cmd); err != nil {
			return raw, fmt.Errorf("%s: %w", c.cmd, err)
		}
	}
	return raw, nil
}

func (s *Switch) afterPoll(ctx context.Context, raw RawOutputs, snap *model.Snapshot, rec *model.PollRecord) {
	if s.archive != nil {
		obj, err := s.archive.Store(ctx, Capture{
			ID:      uuid.NewString(),
			Device:  s.name,
			At:      snap.CollectedAt,
			Outputs: raw.Commands(),
		})
		if err != nil {
			logger.Warnf("Failed to archive poll output: %v", err)
		} else {
			rec.ArchiveURI = obj.URI
		}
	}
	if s.events != nil {
		if err := s.events.PublishSnapshot(s.name, snap); err != nil {
			logger.Warnf("Failed to publish snapshot: %v", err)
		}
	}
}

// ControlMany 依次执行多个控制请求
func (s *Switch) ControlMany(ctx context.Context, reqs []ControlRequest) error {
	if len(reqs) == 0 {
		return ErrNoRequests
	}
	for _, r := range reqs {
		if err := s.Control(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Control 分发控制请求：Reload 或 Port 开关，其余仅记录日志
func (s *Switch) Control(ctx context.Context, req ControlRequest) error {
	name := strings.TrimSpace(req.Property)
	if name == model.PropertyReload {
		return s.reload(ctx, req)
	}
	id, ok := parser.MatchPortProperty(name)
	if !ok {
		logger.Warnf("Control of property %q is not implemented", name)
		s.recordControl(ctx, req, model.ControlOutcomeUnsupported, nil)
		return nil
	}
	var up bool
	switch strings.TrimSpace(req.Value) {
	case "1":
		up = true
	case "0":
		up = false
	default:
		logger.Warnf("Unsupported value %q for %s, expected 1 or 0", req.Value, name)
		s.recordControl(ctx, req, model.ControlOutcomeIgnored, nil)
		return nil
	}
	return s.toggle(ctx, req, id, up)
}

func (s *Switch) toggle(ctx context.Context, req ControlRequest, id string, up bool) error {
	if !s.coord.BeginToggle() {
		s.recordControl(ctx, req, model.ControlOutcomeDropped, nil)
		return nil
	}

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	// 等待会话锁期间可能已开始重启
	if s.coord.InReboot() {
		logger.Infof("Port %s toggle dropped, stack reload started while waiting", id)
		s.recordControl(ctx, req, model.ControlOutcomeDropped, nil)
		return nil
	}

	err := s.withControlSession(ctx, func() error {
		cmd := "shutdown"
		if up {
			cmd = "no shutdown"
		}
		for _, c := range []string{"config", "interface " + id, cmd} {
			resp, err := s.session.Send(ctx, c)
			if err != nil {
				return err
			}
			if resp.Match == cli.MatchError {
				return fmt.Errorf("%w: %s", session.ErrInvalidInput, c)
			}
		}
		return nil
	})
	if errors.Is(err, errNotEscalated) {
		s.recordControl(ctx, req, model.ControlOutcomeFailed, err)
		return nil
	}
	if err != nil {
		s.recordControl(ctx, req, model.ControlOutcomeFailed, err)
		return fmt.Errorf("port %s: %w", id, err)
	}

	if _, ok := s.cache.Update(func(cur *model.Snapshot) *model.Snapshot {
		return cur.WithPortState(id, up)
	}); !ok {
		logger.Infof("Port %s toggled with no cached statistics to update", id)
	}
	logger.WithFields(logrus.Fields{"device": s.name, "port": id, "up": up}).Info("Port state changed")
	s.recordControl(ctx, req, model.ControlOutcomeApplied, nil)
	return nil
}

var errNotEscalated = errors.New("privileged mode unavailable")

// withControlSession 使用控制超时执行 fn，结束后恢复统计超时并断开
func (s *Switch) withControlSession(ctx context.Context, fn func() error) error {
	defer s.session.Disconnect()
	s.session.UseControlTimeout()
	defer s.session.UseStatisticsTimeout()

	ok, err := s.session.EnsureEscalated(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errNotEscalated
	}
	return fn()
}

func (s *Switch) reload(ctx context.Context, req ControlRequest) error {
	if !s.coord.BeginReload() {
		s.recordControl(ctx, req, model.ControlOutcomeDropped, nil)
		return nil
	}

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	err := s.withControlSession(ctx, func() error {
		return s.sendReload(ctx)
	})
	if err != nil {
		s.coord.ReloadFailed()
		logger.WithField("device", s.name).Errorf("Stack reload failed: %v", err)
		s.recordControl(ctx, req, model.ControlOutcomeFailed, err)
		if errors.Is(err, session.ErrConnect) {
			return fmt.Errorf("reload: %w", err)
		}
		return nil
	}
	s.coord.ReloadAccepted()
	logger.WithField("device", s.name).Info("Stack reload accepted, suppressing polls until recovery")
	s.recordControl(ctx, req, model.ControlOutcomeApplied, nil)
	return nil
}

// sendReload 处理 "未保存配置" 与 "确认重启" 两种提示
// 一旦出现确认提示，后续交互的超时或断开视为设备已开始重启
func (s *Switch) sendReload(ctx context.Context) error {
	resp, err := s.session.Send(ctx, "reload")
	if err != nil {
		return err
	}
	var steps []string
	switch {
	case resp.EndsWith(cli.TermUnsavedChanges):
		steps = []string{"y", "reload", "y"}
	case resp.EndsWith(cli.TermReloadStack):
		steps = []string{"y"}
	default:
		return fmt.Errorf("unexpected reply to reload: %q", strings.TrimSpace(resp.Text))
	}
	for _, c := range steps {
		if _, err := s.session.Send(ctx, c); err != nil {
			logger.Debugf("Channel dropped after %q during reload: %v", c, err)
			return nil
		}
	}
	return nil
}

func (s *Switch) recordControl(ctx context.Context, req ControlRequest, outcome string, err error) {
	state := s.coord.State().String()
	if s.audit != nil {
		rec := &model.ControlAudit{
			Device:   s.name,
			Property: req.Property,
			Value:    req.Value,
			Outcome:  outcome,
			State:    state,
		}
		if err != nil {
			rec.ErrorMsg = err.Error()
		}
		s.audit.RecordControl(ctx, rec)
	}
	if s.events != nil {
		evt := ControlEvent{
			Property: req.Property,
			Value:    req.Value,
			Outcome:  outcome,
			State:    state,
			At:       s.clock.Now(),
		}
		if perr := s.events.PublishControl(s.name, evt); perr != nil {
			logger.Warnf("Failed to publish control event: %v", perr)
		}
	}
}
