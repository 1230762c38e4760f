package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/webosce/audiod-pro/internal/config"
	"github.com/webosce/audiod-pro/internal/daemon"
	"github.com/webosce/audiod-pro/internal/logging"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file path")
	flag.Parse()

	appConfig, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{
		Level:  appConfig.Logging.Level,
		Format: appConfig.Logging.Format,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	logging.SetDaemonID(logging.NewDaemonID())

	logging.Infof("========================================")
	logging.Infof("          audiod starting...            ")
	logging.Infof("========================================")
	logging.Infof("Config loaded from %s (policy=%s, listen=%s%s)",
		*configPath, appConfig.Policy.Path, appConfig.Service.Listen, appConfig.Service.Path)

	d, err := daemon.New(appConfig)
	if err != nil {
		logging.Fatalf("Failed to create daemon: %v", err)
	}

	// 取消 context 让 Run 自然返回，defer 才会执行
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		logging.Errorf("audiod stopped with error: %v", err)
		logging.Sync()
		os.Exit(1)
	}
	logging.Infof("audiod stopped.")
}
