package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"stresscam/internal/database"
	"stresscam/internal/sessionlog"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a stored session to CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *database.Store) error {
				session, err := store.GetSession(args[0])
				if err != nil {
					return fmt.Errorf("session %s: %w", args[0], err)
				}
				records, err := store.ListRecords(session.ID)
				if err != nil {
					return err
				}

				path := output
				if path == "" {
					path = filepath.Join(cfg.Session.ExportDir, sessionlog.FileName(session.StartedAt.Local()))
				}
				if err := sessionlog.ExportFile(path, records); err != nil {
					return fmt.Errorf("export session %s: %w", session.ID, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s\n", len(records), path)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination CSV path (default: export_dir/emotion_data_<start>.csv)")
	return cmd
}
