package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/assignment-engine/assignment"
	"github.com/warp/assignment-engine/config"
	"github.com/warp/assignment-engine/logging"
	"github.com/warp/assignment-engine/store/sqlite"
)

// app holds what every command needs. The store is opened in the root's
// PersistentPreRunE and closed in PersistentPostRunE.
type app struct {
	configPath string
	dbPath     string
	logLevel   string

	out io.Writer
	err io.Writer
	now func() time.Time

	store   *sqlite.Store
	service *assignment.Service
	logger  *slog.Logger
}

func newApp() *app {
	return &app{out: os.Stdout, err: os.Stderr, now: time.Now}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "schedctl",
		Short: "Operator CLI for the assignment scheduling engine",
		Long: `schedctl works directly on the scheduler's SQLite database: it loads
working-hours policies, seeds demo data, simulates cascades and reports
utilization without going through the HTTP API.`,
		SilenceUsage:       true,
		PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return a.open() },
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return a.close() },
	}
	root.SetOut(a.out)
	root.SetErr(a.err)

	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv(config.EnvConfigPath), "YAML config file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	root.AddCommand(newSimulateCmd(a))
	root.AddCommand(newUtilizationCmd(a))
	root.AddCommand(newBlocksCmd(a))
	root.AddCommand(newPolicyCmd(a))
	root.AddCommand(newSeedCmd(a))
	return root
}

func (a *app) open() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	a.logger, err = logging.New(a.err, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	a.store, err = sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.Database.Path, err)
	}
	a.service = assignment.NewService(a.store,
		assignment.WithLogger(a.logger),
		assignment.WithClock(a.now),
	)
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}
