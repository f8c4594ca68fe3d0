package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/docker/go-units"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/coldvault/vaultup/internal/chunk"
	"github.com/coldvault/vaultup/internal/progress"
	"github.com/coldvault/vaultup/internal/uploader"
)

func newUploadCmd() *cobra.Command {
	var (
		description string
		partSizeMB  int
		uploadID    string
		assumeYes   bool
	)

	cmd := &cobra.Command{
		Use:   "upload VAULT PATH...",
		Short: "Upload files or directories to a vault as one archive",
		Long: `Uploads PATH... to the vault VAULT. Multiple paths, or a single
directory, are consolidated into one tar.zst archive before upload.
Interrupted uploads can be resumed with --upload-id; parts already
received by the service are verified locally and not re-uploaded.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, paths := args[0], args[1:]
			ctx := cmd.Context()

			if partSizeMB == 0 {
				partSizeMB = cfg.PartSizeMB
			}

			store, err := newStore(ctx)
			if err != nil {
				return err
			}

			var ui *progress.UploadUI
			opts := uploader.Options{
				Vault:       vault,
				Paths:       paths,
				Description: description,
				PartSizeMB:  partSizeMB,
				Concurrency: cfg.Concurrency,
				ResumeID:    uploadID,
				Log:         logger,
			}
			if !assumeYes {
				opts.ConfirmAdjust = func(requested, adjusted int64) bool {
					return confirm(fmt.Sprintf("Part size must grow from %s to %s to fit the part limit. Continue?",
						units.BytesSize(float64(requested)), units.BytesSize(float64(adjusted))))
				}
			}

			var verifyBar *progressbar.ProgressBar
			opts.VerifyProgress = func(checked, total int) {
				if verifyBar == nil {
					verifyBar = progressbar.Default(int64(total), "verifying uploaded parts")
				}
				verifyBar.Set(checked)
			}

			// The UI needs the part/byte totals, which the engine only
			// knows after planning. Hook it up lazily on first progress.
			opts.Progress = func(part chunk.Part) {
				if ui != nil {
					ui.PartDone(part.Len())
				}
			}
			opts.Start = func(totalBytes int64, totalParts int, doneBytes int64) {
				ui = progress.NewUploadUI(totalBytes, totalParts)
				if doneBytes > 0 {
					ui.SkipVerified(doneBytes)
				}
				logger.SetOutput(os.Stderr)
			}

			result, err := uploader.Upload(ctx, store, opts)
			if ui != nil {
				ui.Wait()
			}
			if err != nil {
				var failed *uploader.UploadFailedError
				if errors.As(err, &failed) {
					logger.Errorf("upload can still be resumed with --upload-id %s", failed.SessionID)
				}
				return err
			}

			logger.Info().
				Str("archive_id", result.ArchiveID).
				Str("location", result.Location).
				Str("checksum", result.Checksum).
				Msg("upload successful")
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "arc-desc", "d", "", "Archive description to help identify it later")
	cmd.Flags().IntVarP(&partSizeMB, "part-size", "p", 0, "Part size in MB, a power of 2 between 1 and 4096 (default 8)")
	cmd.Flags().StringVarP(&uploadID, "upload-id", "u", "", "Resume the upload session with this id")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to prompts")

	return cmd
}

// confirm asks a yes/no question on the terminal.
func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
