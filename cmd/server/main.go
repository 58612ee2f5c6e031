package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/switchctl/switchctl/api/handler"
	"github.com/switchctl/switchctl/api/router"
	"github.com/switchctl/switchctl/internal/app"
	"github.com/switchctl/switchctl/internal/config"
	"github.com/switchctl/switchctl/pkg/logger"
	"github.com/switchctl/switchctl/simulate"
)

func loggerConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(loggerConfig(cfg)); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.WithField("version", "1.0.0").Info("Starting switchctl server")

	// 模拟器需先于门面启动，便于本地联调
	var sim *simulate.Server
	if cfg.Server.SimulateEnable {
		sim, err = simulate.StartFromFile(cfg.Server.SimulateConfig)
		if err != nil {
			logger.Warnf("Simulate: failed to start: %v", err)
		} else {
			logger.Infof("Simulate: telnet %s ssh %s", sim.TelnetAddr(), sim.SSHAddr())
		}
	}
	defer func() {
		if sim != nil {
			sim.Stop()
		}
	}()

	a, err := app.Build(cfg)
	if err != nil {
		logger.Fatalf("Failed to build switch facade: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if a.Scheduler != nil {
		if err := a.Scheduler.Start(ctx); err != nil {
			logger.Fatalf("Failed to start poll scheduler: %v", err)
		}
	}

	var audits handler.AuditReader
	if a.Auditor != nil {
		audits = a.Auditor
	}
	h := handler.NewSwitchHandler(a.Switch, audits, a.Checks)
	r := router.SetupRouter(h, cfg.Auth, cfg.Server.Mode)

	server := &http.Server{
		Addr:           cfg.GetServerAddr(),
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		logger.Infof("Server listening on %s (mode %s)", server.Addr, cfg.Server.Mode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	go watchConfig(*configPath, a)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Info("Server shutdown complete")
	}
}

// watchConfig 配置文件热更新：日志配置与轮询间隔
// 设备连接参数变更需要重启进程
func watchConfig(path string, a *app.App) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("Config watch init failed: %v", err)
		return
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		logger.Warnf("Config watch add failed: %v", err)
		return
	}

	var debounce *time.Timer
	debounceInterval := 300 * time.Millisecond
	trigger := func() {
		newCfg, err := config.Load(path)
		if err != nil {
			logger.Warnf("Config reload failed: %v", err)
			return
		}
		if err := logger.Init(loggerConfig(newCfg)); err != nil {
			logger.Warnf("Logger reload failed: %v", err)
		}
		if a.Scheduler != nil && newCfg.Poll.Enabled {
			a.Scheduler.SetInterval(newCfg.Poll.Interval)
		}
		logger.Info("Config reloaded")
	}
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceInterval, trigger)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("Config watch error: %v", err)
		}
	}
}
