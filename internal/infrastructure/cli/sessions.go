package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/doeshing/toolgate/internal/app"
	"github.com/doeshing/toolgate/internal/domain"
)

func newSessionsCommand(container *app.Container) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect recorded session history",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List known sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := container.ConfigLoader.Load(cmd.Context())
			if err != nil {
				return err
			}
			records, err := loadSessionRecords(cfg.Sessions.Dir)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded.")
				return nil
			}
			for _, record := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %4d events   last activity %s\n",
					record.ID, len(record.History), humanize.Time(record.LastActivity))
			}
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session's decision history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := domain.ValidateSessionID(id); err != nil {
				return err
			}
			cfg, err := container.ConfigLoader.Load(cmd.Context())
			if err != nil {
				return err
			}
			record, err := readSessionRecord(filepath.Join(cfg.Sessions.Dir, id+".json"))
			if err != nil {
				return fmt.Errorf("session %s: %w", id, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Session %s (created %s)\n\n", record.ID, humanize.Time(record.CreatedAt))
			for _, ev := range record.History {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20s %-5s score %3d  %s\n",
					ev.Timestamp.Format(domain.TimestampFormat), ev.ToolName,
					renderDecision(ev.Decision), ev.Score, ev.Reasoning)
			}
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all session history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := container.GateService.ClearSessions(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All sessions cleared.")
			return nil
		},
	}

	sessionsCmd.AddCommand(listCmd, showCmd, clearCmd)
	return sessionsCmd
}

func loadSessionRecords(dir string) ([]domain.SessionRecord, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records []domain.SessionRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		record, err := readSessionRecord(filepath.Join(dir, entry.Name()))
		if err != nil {
			// A corrupt file should not hide the healthy sessions.
			continue
		}
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastActivity.After(records[j].LastActivity)
	})
	return records, nil
}

func readSessionRecord(path string) (*domain.SessionRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var record domain.SessionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
