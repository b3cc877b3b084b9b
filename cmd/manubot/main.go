// Package main provides the manubot CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agitter/manubot/internal/domain"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	configFile  string
	logLevel    string
	logFormat   string
	metricsFile string
)

var rootCmd = &cobra.Command{
	Use:   "manubot",
	Short: "Resolve manuscript citations to CSL-JSON references",
	Long: `manubot resolves citations such as doi:10.1000/xyz, pmid:123, pmcid:PMC123,
arxiv:1407.3561, isbn:9780262517638 or a bare URL into validated CSL-JSON
references with stable citation keys.

Provider responses are cached between runs in a SQLite file, in memory, or in
PostgreSQL. Manual references override or amend fetched metadata.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: manubot.yaml in ., ./config or ~/.config/manubot)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")
	rootCmd.Version = Version
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return asConfigError(err)
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		var runErr *domain.RunError
		switch {
		case errors.As(err, &runErr):
			fmt.Fprintf(os.Stderr, "Error: %d of %d citations could not be resolved\n", len(runErr.Failures), runErr.Total)
		default:
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
	}
	os.Exit(exitCode(err))
}
