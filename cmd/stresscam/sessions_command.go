package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stresscam/internal/database"
	"stresscam/internal/sessionlog"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *database.Store) error {
				sessions, err := store.ListSessions(limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, sessions)
				}
				if len(sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderSessions(sessions))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print sessions as JSON")
	return cmd
}

func renderSessions(sessions []*database.SessionRecord) string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		duration := "running"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		rows = append(rows, []string{
			s.ID,
			s.StartedAt.Local().Format(sessionlog.TimestampLayout),
			duration,
			fmt.Sprintf("%d", s.Samples),
			fmt.Sprintf("%.1f", s.AvgStress),
			fmt.Sprintf("%.1f", s.MaxStress),
			s.ExportPath,
		})
	}
	return renderTable(
		[]string{"ID", "Started", "Duration", "Samples", "Avg", "Max", "Export"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}
