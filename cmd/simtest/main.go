package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/switchctl/switchctl/internal/app"
	"github.com/switchctl/switchctl/internal/config"
	"github.com/switchctl/switchctl/internal/service"
	"github.com/switchctl/switchctl/pkg/logger"
	"github.com/switchctl/switchctl/simulate"
)

// 一次性轮询：可选地启动内置模拟器，打印快照 JSON
func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	withSim := flag.Bool("sim", false, "启动内置模拟器并连接它")
	port := flag.String("control", "", "轮询后切换的端口，如 1/0/3")
	value := flag.String("value", "1", "端口开关取值 1 或 0")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}
	_ = logger.Init(logger.Config{Level: cfg.Log.Level, Format: "text", Output: "console"})
	cfg.Poll.Enabled = false
	cfg.Database.SQLite.Enabled = false

	if *withSim {
		fx, err := simulate.DefaultFixtures()
		if err != nil {
			fmt.Println("Failed to load fixtures:", err)
			os.Exit(1)
		}
		scfg := simulate.DefaultConfig()
		scfg.TelnetPort = 0
		sim := simulate.New(scfg, fx)
		if err := sim.Start(); err != nil {
			fmt.Println("Failed to start simulator:", err)
			os.Exit(1)
		}
		defer sim.Stop()

		host, p, _ := net.SplitHostPort(sim.TelnetAddr())
		cfg.Device.Host = host
		cfg.Device.Port, _ = strconv.Atoi(p)
		cfg.Device.Protocol = "telnet"
		cfg.Device.Username = scfg.Username
		cfg.Device.Password = scfg.Password
	}

	a, err := app.Build(cfg)
	if err != nil {
		fmt.Println("Failed to build switch facade:", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	snap, err := a.Switch.Poll(ctx)
	if err != nil {
		fmt.Println("Poll failed:", err)
		os.Exit(1)
	}
	if *port != "" {
		req := service.ControlRequest{Property: "Port " + *port, Value: *value}
		if err := a.Switch.Control(ctx, req); err != nil {
			fmt.Println("Control failed:", err)
			os.Exit(1)
		}
		snap, _ = a.Switch.Poll(ctx)
	}

	out, _ := json.MarshalIndent(map[string]interface{}{"snapshot": snap, "control": a.Switch.Status()}, "", "  ")
	fmt.Println(string(out))
}
