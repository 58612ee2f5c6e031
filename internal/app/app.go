// Package app 按配置组装交换机门面及其依赖
package app

import (
	"fmt"

	"github.com/switchctl/switchctl/api/handler"
	"github.com/switchctl/switchctl/internal/config"
	"github.com/switchctl/switchctl/internal/database"
	"github.com/switchctl/switchctl/internal/service"
	"github.com/switchctl/switchctl/internal/session"
	"github.com/switchctl/switchctl/pkg/cli"
	"github.com/switchctl/switchctl/pkg/logger"
	sshc "github.com/switchctl/switchctl/pkg/ssh"
	"github.com/switchctl/switchctl/pkg/telnet"
)

// App 运行期组件
type App struct {
	Switch    *service.Switch
	Auditor   *service.GormAuditor
	Scheduler *service.Scheduler
	Checks    map[string]handler.HealthCheck
	closers   []func()
}

// Terminators 配置覆盖内置终止符
func Terminators(d config.DeviceConfig) cli.Terminators {
	t := cli.Terminators{Success: d.Terminators.Success, Error: d.Terminators.Error}
	if t.Empty() {
		return cli.DefaultTerminators()
	}
	return t
}

// NewTransport 按 device.protocol 创建通道
func NewTransport(d config.DeviceConfig, password string) (session.Transport, error) {
	switch d.Protocol {
	case "", "telnet":
		return telnet.New(telnet.Options{
			Host:           d.Host,
			Port:           d.Port,
			Username:       d.Username,
			Password:       password,
			UserPrompt:     d.UserPrompt,
			PasswordPrompt: d.PasswordPrompt,
			LoginSuccess:   d.LoginSuccess,
			DialTimeout:    d.DialTimeout,
			Timeout:        d.StatisticsTimeout,
			Settle:         d.Settle,
			Terminators:    Terminators(d),
			Charset:        d.Charset,
		}), nil
	case "ssh":
		return sshc.NewClient(sshc.Options{
			Host:         d.Host,
			Port:         d.Port,
			Username:     d.Username,
			Password:     password,
			LoginSuccess: d.LoginSuccess,
			DialTimeout:  d.DialTimeout,
			Timeout:      d.StatisticsTimeout,
			Settle:       d.Settle,
			Terminators:  Terminators(d),
			Charset:      d.Charset,
			KeepAlive:    d.KeepAlive,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported device protocol %q", d.Protocol)
	}
}

// SessionOptions 会话参数
func SessionOptions(d config.DeviceConfig, password string) session.Options {
	return session.Options{
		Password:          password,
		EscalateCommand:   d.EscalateCommand,
		EscalatedSuffix:   d.EscalatedSuffix,
		PasswordPrompt:    d.PasswordPrompt,
		PageAdvance:       d.PageAdvance,
		ControlTimeout:    d.ControlTimeout,
		StatisticsTimeout: d.StatisticsTimeout,
	}
}

// Build 组装门面；可选依赖初始化失败时降级并记录日志
func Build(cfg *config.Config) (*App, error) {
	password, err := cfg.Device.ResolvePassword()
	if err != nil {
		return nil, err
	}
	transport, err := NewTransport(cfg.Device, password)
	if err != nil {
		return nil, err
	}

	a := &App{Checks: map[string]handler.HealthCheck{}}
	opts := service.Options{
		Name:        cfg.Device.Name,
		Cooldown:    cfg.Control.Cooldown,
		Recovery:    cfg.Control.ReloadRecovery,
		GracePeriod: cfg.Control.ReloadGracePeriod,
		Archive:     service.NewArchiver(cfg.Storage),
	}

	if cfg.Database.SQLite.Enabled {
		if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
			logger.Warnf("Audit database unavailable, continuing without audit: %v", err)
		} else {
			a.Auditor = service.NewGormAuditor(database.GetDB())
			opts.Audit = a.Auditor
			a.Checks["database"] = database.Health
			a.closers = append(a.closers, func() { _ = database.Close() })
		}
	}

	pub, err := service.NewNATSPublisher(cfg.Events.NATS)
	if err != nil {
		logger.Warnf("Event publishing disabled: %v", err)
	} else if pub != nil {
		opts.Events = pub
	}

	a.Switch = service.NewSwitch(transport, SessionOptions(cfg.Device, password), opts)
	if cfg.Poll.Enabled {
		a.Scheduler = service.NewScheduler(a.Switch, cfg.Poll.Interval, cfg.Device.StatisticsTimeout*4)
	}
	logger.WithField("device", cfg.Device.Name).Infof("Switch %s:%d over %s ready", cfg.Device.Host, cfg.Device.Port, cfg.Device.Protocol)
	return a, nil
}

// Close 依次关闭门面与依赖
func (a *App) Close() {
	if a.Scheduler != nil {
		_ = a.Scheduler.Stop()
	}
	a.Switch.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
