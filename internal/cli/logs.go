package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/devya-app/devya"
	"github.com/devya-app/devya/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type logEntry struct {
	ID        uuid.UUID      `json:"id" yaml:"id"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
	Level     string         `json:"level" yaml:"level"`
	Message   string         `json:"message" yaml:"message"`
	Context   map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
	SessionID *uuid.UUID     `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	RecordID  *string        `json:"record_id,omitempty" yaml:"record_id,omitempty"`
}

func newLogEntry(log *domain.Log) logEntry {
	return logEntry{
		ID:        log.ID,
		Timestamp: log.Timestamp,
		Level:     log.Level,
		Message:   log.Message,
		Context:   log.Context,
		SessionID: log.SessionID,
		RecordID:  log.RecordID,
	}
}

func newLogsCmd(g *globals) *cobra.Command {
	var (
		level   string
		session string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the stored diagnostics, newest last",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sessionID *uuid.UUID
			if session != "" {
				id, err := uuid.Parse(session)
				if err != nil {
					return fmt.Errorf("invalid session id %q : %w", session, err)
				}
				sessionID = &id
			}
			level = strings.ToUpper(level)
			return g.withApp(cmd, appOptions{database: true}, func(app *devya.App) error {
				logs, err := app.Logs()
				if err != nil {
					return err
				}
				entries := filterLogs(logs, level, sessionID, limit)
				return render(cmd.OutOrStdout(), g.output, entries, func(w io.Writer) error {
					for _, entry := range entries {
						fmt.Fprintf(w, "%s\t%s\t%s%s\n", entry.Timestamp.Local().Format("2006-01-02 15:04:05"), entry.Level, entry.Message, formatContext(entry.Context))
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&level, "level", "", "only show entries of this level")
	cmd.Flags().StringVar(&session, "session", "", "only show entries of this session")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "only show the last n entries")
	return cmd
}

func filterLogs(logs []*domain.Log, level string, sessionID *uuid.UUID, limit int) []logEntry {
	entries := make([]logEntry, 0, len(logs))
	for _, log := range logs {
		if level != "" && log.Level != level {
			continue
		}
		if sessionID != nil && (log.SessionID == nil || *log.SessionID != *sessionID) {
			continue
		}
		entries = append(entries, newLogEntry(log))
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}

func formatContext(context map[string]any) string {
	if len(context) == 0 {
		return ""
	}
	keys := make([]string, 0, len(context))
	for key := range context {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	var b strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, context[key])
	}
	return b.String()
}
