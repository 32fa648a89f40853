package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/caption/internal/reconcile"
	"github.com/MikeSquared-Agency/caption/internal/session"
)

var (
	sessionsOwner  string
	sessionsOutput string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List an owner's sessions and labels",
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsOwner, "owner", "", "Owner id (required)")
	sessionsCmd.Flags().StringVarP(&sessionsOutput, "output", "o", "table", "Output format (table|json|yaml)")
	cobra.CheckErr(sessionsCmd.MarkFlagRequired("owner"))
}

func runSessions(cmd *cobra.Command, _ []string) error {
	if _, err := uuid.Parse(sessionsOwner); err != nil {
		return fmt.Errorf("--owner must be a uuid: %w", err)
	}
	setupConsoleLogging(cfg.LogLevel)

	sessions, err := reconcile.NewHTTPLister(cfg.APIURL, cfg.APIToken).ListSessions(cmd.Context(), sessionsOwner)
	if err != nil {
		return err
	}
	return writeSessions(cmd.OutOrStdout(), sessionsOutput, cfg.PlaceholderLabel, sessions)
}

var (
	headerStyle      = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle        = lipgloss.NewStyle().Padding(0, 1)
	placeholderStyle = cellStyle.Foreground(lipgloss.Color("241")).Italic(true)
)

// writeSessions renders sessions; labels equal to placeholder are dimmed in the table.
func writeSessions(w io.Writer, format, placeholder string, sessions []session.Summary) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"sessions": sessions, "count": len(sessions)})
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(map[string]any{"sessions": sessions, "count": len(sessions)})
	case "table":
		rows := make([][]string, 0, len(sessions))
		for _, s := range sessions {
			rows = append(rows, []string{s.ID, s.Label, strconv.Itoa(s.MessageCount), s.UpdatedAt.Local().Format(time.DateTime)})
		}
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("SESSION", "LABEL", "MESSAGES", "UPDATED").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				switch {
				case row == table.HeaderRow:
					return headerStyle
				case col == 1 && rows[row][1] == placeholder:
					return placeholderStyle
				default:
					return cellStyle
				}
			})
		_, err := fmt.Fprintln(w, t.Render())
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
