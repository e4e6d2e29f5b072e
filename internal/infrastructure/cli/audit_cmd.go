package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/doeshing/toolgate/internal/app"
	"github.com/doeshing/toolgate/internal/infrastructure/audit"
)

func newAuditCommand(container *app.Container) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the decision audit log",
	}

	var limit int
	var search string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := container.Audit.Recent(limit, search)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No decisions recorded.")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%-15s %-40s %-20s %-5s score %3d  %s\n",
					humanize.Time(e.Timestamp), e.SessionID, e.ToolName,
					renderDecision(e.Decision), e.Score, e.Reasoning)
			}
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")
	listCmd.Flags().StringVar(&search, "search", "", "Filter by session id, tool name or decision")

	var exportLimit int
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export recent decisions as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, ok := container.Audit.(*audit.SQLiteStore)
			if !ok {
				return fmt.Errorf("audit log is disabled in configuration")
			}
			raw, err := store.ExportJSON(exportLimit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		},
	}
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "Maximum entries to export")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := container.Audit.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Audit log cleared.")
			return nil
		},
	}

	auditCmd.AddCommand(listCmd, exportCmd, clearCmd)
	return auditCmd
}
