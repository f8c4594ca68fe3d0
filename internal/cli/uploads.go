package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

func newUploadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "Inspect and manage in-progress multipart upload sessions",
	}
	cmd.AddCommand(newUploadsListCmd())
	cmd.AddCommand(newUploadsPartsCmd())
	cmd.AddCommand(newUploadsAbortCmd())
	return cmd
}

func newUploadsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list VAULT",
		Short: "List a vault's open upload sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := newStore(ctx)
			if err != nil {
				return err
			}

			sessions, err := store.ListSessions(ctx, args[0])
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				logger.Infof("no open upload sessions in vault %s", args[0])
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "UPLOAD ID\tPART SIZE\tCREATED\tDESCRIPTION")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					s.SessionID, units.BytesSize(float64(s.PartSize)), s.CreatedAt, s.Description)
			}
			return w.Flush()
		},
	}
}

func newUploadsPartsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parts VAULT UPLOAD_ID",
		Short: "List the parts the service has received for an upload session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := newStore(ctx)
			if err != nil {
				return err
			}

			info, err := store.ListSessionParts(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			logger.Info().
				Str("session", info.SessionID).
				Str("part_size", units.BytesSize(float64(info.PartSize))).
				Int("parts", len(info.Parts)).
				Msg("session state")

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RANGE\tSHA256 TREE HASH")
			for _, p := range info.Parts {
				fmt.Fprintf(w, "%d-%d\t%s\n", p.Range.Start, p.Range.End, p.Checksum)
			}
			return w.Flush()
		},
	}
}

func newUploadsAbortCmd() *cobra.Command {
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   "abort VAULT UPLOAD_ID",
		Short: "Abort an upload session, discarding its uploaded parts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !assumeYes && !confirm(fmt.Sprintf("Abort upload %s? Uploaded parts will be discarded.", args[1])) {
				return nil
			}

			store, err := newStore(ctx)
			if err != nil {
				return err
			}
			if err := store.AbortSession(ctx, args[0], args[1]); err != nil {
				return err
			}
			logger.Infof("upload session %s aborted", args[1])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to prompts")
	return cmd
}
