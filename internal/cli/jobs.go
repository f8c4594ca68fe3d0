package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coldvault/vaultup/internal/jobs"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Initiate and collect inventory and archive retrieval jobs",
		Long: `Retrievals from cold storage are asynchronous: initiate a job, wait
(minutes to hours depending on tier), then fetch its output with "jobs get".`,
	}
	cmd.AddCommand(newJobsInventoryInitCmd())
	cmd.AddCommand(newJobsArchiveInitCmd())
	cmd.AddCommand(newJobsGetCmd())
	return cmd
}

func newJobsInventoryInitCmd() *cobra.Command {
	var (
		format      string
		description string
	)

	cmd := &cobra.Command{
		Use:   "inventory-init VAULT",
		Short: "Initiate an inventory retrieval for all archives in a vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if format != "JSON" && format != "CSV" {
				return fmt.Errorf("format must be JSON or CSV, got %q", format)
			}

			store, err := newStore(ctx)
			if err != nil {
				return err
			}
			jobID, err := store.InitiateInventoryJob(ctx, args[0], format, description)
			if err != nil {
				return err
			}
			logger.Info().Str("job_id", jobID).Msg("inventory retrieval initiated")
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "JSON", "Inventory format: JSON or CSV")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description of this job")
	return cmd
}

func newJobsArchiveInitCmd() *cobra.Command {
	var (
		description string
		tier        string
	)

	cmd := &cobra.Command{
		Use:   "archive-init VAULT ARCHIVE_ID",
		Short: "Initiate retrieval of one archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := newStore(ctx)
			if err != nil {
				return err
			}
			jobID, err := store.InitiateArchiveJob(ctx, args[0], args[1], description, tier)
			if err != nil {
				return err
			}
			logger.Info().Str("job_id", jobID).Msg("archive retrieval initiated")
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Description of this job")
	cmd.Flags().StringVar(&tier, "tier", "Standard", "Retrieval tier: Expedited, Standard, or Bulk")
	return cmd
}

func newJobsGetCmd() *cobra.Command {
	var (
		output    string
		assumeYes bool
	)

	cmd := &cobra.Command{
		Use:   "get VAULT JOB_ID",
		Short: "Fetch the output of a completed retrieval job",
		Long: `Fetches a completed job's output. Inventory output goes to stdout or
--output. Archive output requires --output; large archives download in
concurrent chunks and resume if interrupted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			vault, jobID := args[0], args[1]

			store, err := newStore(ctx)
			if err != nil {
				return err
			}

			desc, err := store.DescribeJob(ctx, vault, jobID)
			if err != nil {
				return err
			}
			logger.Info().
				Str("job_id", jobID).
				Str("action", desc.Action).
				Str("status", desc.StatusCode).
				Bool("completed", desc.Completed).
				Msg("job status")

			dl := jobs.NewDownloader(store, logger, cfg.Concurrency)

			switch desc.Action {
			case "InventoryRetrieval":
				w := os.Stdout
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				err = dl.FetchInventory(ctx, vault, jobID, w)

			case "ArchiveRetrieval":
				if output == "" {
					return fmt.Errorf("--output is required for archive retrieval jobs")
				}
				if _, statErr := os.Lstat(output); statErr == nil {
					if !assumeYes && !confirm(fmt.Sprintf("Overwrite %s?", output)) {
						return nil
					}
				}
				err = dl.FetchArchive(ctx, vault, jobID, output)

			default:
				return fmt.Errorf("unsupported job action %q", desc.Action)
			}

			var notReady *jobs.ErrJobNotReady
			if errors.As(err, &notReady) {
				logger.Warnf("job not completed yet (status %s), try again later", notReady.StatusCode)
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write job output to this file")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to prompts")
	return cmd
}
