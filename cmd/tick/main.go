// Command tick runs a single unit of work and exits, for schedulers that
// start a process per invocation instead of keeping the API server up.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xavierca1/leadsync/internal/app"
	"github.com/xavierca1/leadsync/internal/config"
	"github.com/xavierca1/leadsync/internal/entity"
	"github.com/xavierca1/leadsync/internal/usecase"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:           "tick",
	Short:         "Run one lead sync or watchdog pass",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a full sync once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			run, err := a.Sync.Execute(ctx, "cli")
			if run != nil {
				printResult(run)
			}
			if err != nil {
				return err
			}
			if run.Status == entity.RunFailed {
				return fmt.Errorf("sync run %s failed", run.ID)
			}
			return nil
		})
	},
}

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Run one watchdog tick",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			report := a.Watchdog.Tick(ctx)
			printResult(report)
			if report.Overall == usecase.WatchdogCritical {
				return fmt.Errorf("watchdog reported %s", report.Overall)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(syncCmd, watchdogCmd)
}

func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printResult(v interface{}) {
	if !jsonOutput {
		switch r := v.(type) {
		case *entity.SyncRun:
			fmt.Printf("run %s: %s in %s\n", r.ID, r.Status, r.Duration)
			for _, s := range r.Stages {
				fmt.Printf("  %-13s ok=%t attempts=%d %s\n", s.Name, s.OK, s.Attempts, s.Error)
			}
			return
		case *usecase.WatchdogReport:
			fmt.Printf("watchdog: %s\n", r.Overall)
			for _, action := range r.Actions {
				fmt.Printf("  %s\n", action)
			}
			return
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}
