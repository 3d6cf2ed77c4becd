package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keyperdb/keyper/internal/collection"
	"github.com/keyperdb/keyper/internal/db"
	"github.com/keyperdb/keyper/internal/logging"
	"github.com/keyperdb/keyper/internal/sqlitesource"
	"github.com/keyperdb/keyper/pkg/config"
)

// Version is set during build.
var Version = "0.1.0"

var (
	configPath string
	logLevel   string
	quiet      bool

	cfg      *config.Config
	registry *db.DB
)

var rootCmd = &cobra.Command{
	Use:   "keyper",
	Short: "Inspect and drive a keyper entity store from the command line",
	Long: `keyper is an in-memory entity store that sits between application
code and a remote Data Source, coalescing fetches and serving a live,
indexed cache.

This CLI opens the configured SQLite Data Source directly and lets you
poke at collections without writing Go:

  keyper get widgets 550e8400-e29b-41d4-a716-446655440000
  keyper query widgets --where '{"color":"red"}' --order-by name --limit 10
  keyper insert widgets '{"id":"w1","name":"bolt","color":"red"}'
  keyper update widgets w1 '{"color":"blue"}'
  keyper delete widgets w1`,
	Version:           Version,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log_level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")
}

func initConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		loaded.Logging.Level = logLevel
	}
	if quiet {
		loaded.Logging.Output = os.DevNull
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logging.Init(logging.Config{
		Level:  loaded.Logging.Level,
		Format: loaded.Logging.Format,
		Output: loaded.Logging.Output,
	})
	cfg = loaded
	registry = db.New()
	return nil
}

// openCollection lazily creates a SQLite-backed Collection named name,
// defaulting its primary key field to "id" since the CLI has no access
// to an application's own collection schema.
func openCollection(name string) (*collection.Collection, error) {
	if c, ok := registry.GetCollection(name); ok {
		return c, nil
	}
	rawDB, err := sqlitesource.Open(cfg.SQLiteSource.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite source: %w", err)
	}
	src := sqlitesource.New(rawDB, name, "id")
	return registry.CreateCollection(name, collection.Config{PrimaryKey: "id"}, src)
}
