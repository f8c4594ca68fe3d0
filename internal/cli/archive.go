package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Manage stored archives",
	}
	cmd.AddCommand(newArchiveDeleteCmd())
	return cmd
}

func newArchiveDeleteCmd() *cobra.Command {
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   "delete VAULT ARCHIVE_ID",
		Short: "Permanently delete an archive from a vault",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !assumeYes && !confirm(fmt.Sprintf("Permanently delete archive %s?", args[1])) {
				return nil
			}

			store, err := newStore(ctx)
			if err != nil {
				return err
			}
			if err := store.DeleteArchive(ctx, args[0], args[1]); err != nil {
				return err
			}
			logger.Infof("archive %s deleted", args[1])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to prompts")
	return cmd
}
