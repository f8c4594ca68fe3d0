// Package cli provides the command-line interface for vaultup.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coldvault/vaultup/internal/config"
	"github.com/coldvault/vaultup/internal/glacier"
	"github.com/coldvault/vaultup/internal/logging"
)

var (
	// Global flags
	region  string
	verbose bool
	threads int

	// Resolved at startup
	cfg    *config.Config
	logger *logging.Logger
)

// Version is set by the main package at startup.
var Version = "dev"

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vaultup",
		Short: "Upload and manage archives in AWS Glacier vaults",
		Long: `vaultup ` + Version + `
Resumable, integrity-checked archive uploads to AWS Glacier, plus vault
session management and retrieval jobs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = logging.Default()
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}

			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			if region != "" {
				cfg.Region = region
			}
			if threads > 0 {
				cfg.Concurrency = threads
			}
			return cfg.Validate()
		},
	}

	rootCmd.PersistentFlags().StringVar(&region, "region", "", "AWS region (default: environment or shared config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().IntVarP(&threads, "num-threads", "t", 0, "Concurrent transfer workers (default: CPUs x 5)")

	rootCmd.Version = Version

	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newUploadsCmd())
	rootCmd.AddCommand(newArchiveCmd())
	rootCmd.AddCommand(newJobsCmd())

	return rootCmd
}

// Execute runs the CLI with signal-driven cancellation: the first
// interrupt cancels the context so in-flight transfers drain; a second
// one kills the process.
func Execute() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logging.Default().Warnf("interrupted, finishing in-flight work (press again to force quit)")
		cancel()
		<-sigChan
		os.Exit(130)
	}()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// newStore builds the AWS-backed vault store for the configured region.
func newStore(ctx context.Context) (*glacier.AWSStore, error) {
	return glacier.NewAWSStore(ctx, cfg.Region)
}
