// Command keyperd runs keyper's REST front end: every collection a
// client creates against the shared SQLite Data Source becomes reachable
// over HTTP, so another process (or a non-Go process) can treat keyperd
// itself as a remote Data Source.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keyperdb/keyper/internal/api"
	"github.com/keyperdb/keyper/internal/daemon"
	"github.com/keyperdb/keyper/internal/db"
	"github.com/keyperdb/keyper/internal/logging"
	"github.com/keyperdb/keyper/pkg/config"
)

// Version is set during build.
var Version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureConfigDir(); err != nil {
		fmt.Fprintf(os.Stderr, "error preparing config directory: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	log := logging.GetLogger("keyperd")

	if !cfg.Server.Enabled {
		log.Info("server.enabled is false, nothing to do")
		return
	}

	registry := db.New()
	server := api.NewServer(registry, cfg)

	d := daemon.New(config.ConfigPath(), Version)
	if err := d.Start(cfg.Server.Host, cfg.Server.Port); err != nil {
		fmt.Fprintf(os.Stderr, "error recording daemon state: %v\n", err)
		os.Exit(1)
	}
	defer d.Cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	log.Info("keyperd starting", "version", Version)
	if err := server.Start(ctx, 10*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
