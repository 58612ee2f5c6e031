package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/switchctl/switchctl/pkg/logger"
	"github.com/switchctl/switchctl/simulate"
)

func main() {
	path := flag.String("config", "simulate/simulate.yaml", "模拟器配置文件")
	level := flag.String("log-level", "info", "日志级别")
	flag.Parse()

	if err := logger.Init(logger.Config{Level: *level, Format: "text", Output: "console"}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	srv, err := simulate.StartFromFile(*path)
	if err != nil {
		logger.Fatalf("Simulate: failed to start: %v", err)
	}
	logger.Infof("Simulate: telnet %s ssh %s", srv.TelnetAddr(), srv.SSHAddr())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	srv.Stop()
	logger.Info("Simulate: stopped")
}
