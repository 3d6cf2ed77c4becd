package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/keyperdb/keyper/internal/daemon"
	"github.com/keyperdb/keyper/pkg/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a keyperd server is running",
	Run: func(cmd *cobra.Command, args []string) {
		d := daemon.New(config.ConfigPath(), Version)
		status := d.Status()

		if status.Running {
			fmt.Printf("keyperd: running (PID %d, up %s)\n", status.PID, formatUptime(status.Uptime))
			fmt.Printf("version: %s\n", status.Version)
			if status.ServerHost != "" {
				fmt.Printf("server:  http://%s:%d\n", status.ServerHost, status.ServerPort)
			}
		} else {
			fmt.Println("keyperd: not running")
		}
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running keyperd server",
	Run: func(cmd *cobra.Command, args []string) {
		d := daemon.New(config.ConfigPath(), Version)
		if !d.IsRunning() {
			fmt.Println("keyperd is not running")
			return
		}
		status := d.Status()
		fmt.Printf("stopping keyperd (PID %d)...\n", status.PID)
		if err := d.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "error stopping keyperd: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("stopped")
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
}

func formatUptime(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd%dh", days, hours)
}
