package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/devya-app/devya"
	"github.com/devya-app/devya/domain"
	"github.com/devya-app/devya/rawhttp"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type sessionSummary struct {
	ID        uuid.UUID `json:"id" yaml:"id"`
	Port      uint16    `json:"port" yaml:"port"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	EndedAt   time.Time `json:"ended_at" yaml:"ended_at"`
	Records   int       `json:"records" yaml:"records"`
}

type recordEntry struct {
	ID      string `json:"id" yaml:"id"`
	Content string `json:"content" yaml:"content"`
}

func newHistoryCmd(g *globals) *cobra.Command {
	var pretty bool
	cmd := &cobra.Command{
		Use:   "history [SESSION_ID]",
		Short: "List archived sessions, or print the records of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, appOptions{database: true}, func(app *devya.App) error {
				if len(args) == 0 {
					return listSessions(cmd, g, app)
				}
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid session id %q : %w", args[0], err)
				}
				records, err := app.SessionRecords(id)
				if err != nil {
					return err
				}
				return renderRecords(cmd.OutOrStdout(), g.output, records, pretty)
			})
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "decode and indent the bodies of the records")

	cmd.AddCommand(&cobra.Command{
		Use:   "rm SESSION_ID",
		Short: "Delete an archived session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id %q : %w", args[0], err)
			}
			return g.withApp(cmd, appOptions{database: true}, func(app *devya.App) error {
				return app.DeleteSession(id)
			})
		},
	})
	return cmd
}

func listSessions(cmd *cobra.Command, g *globals, app *devya.App) error {
	sessions, err := app.Sessions()
	if err != nil {
		return err
	}
	summaries := make([]sessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, sessionSummary{
			ID:        session.ID,
			Port:      session.Port,
			StartedAt: session.StartedAt,
			EndedAt:   session.EndedAt,
			Records:   session.RecordCount,
		})
	}
	return render(cmd.OutOrStdout(), g.output, summaries, func(w io.Writer) error {
		fmt.Fprintln(w, "ID\tPORT\tSTARTED\tDURATION\tRECORDS")
		for _, s := range summaries {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\n", s.ID, s.Port, s.StartedAt.Local().Format("2006-01-02 15:04:05"), s.EndedAt.Sub(s.StartedAt).Round(time.Second), s.Records)
		}
		return nil
	})
}

// renderRecords prints record content without the tabwriter, bodies may hold tabs.
func renderRecords(w io.Writer, format string, records []domain.CapturedRecord, pretty bool) error {
	if format != "" && format != "text" {
		entries := make([]recordEntry, 0, len(records))
		for _, record := range records {
			entries = append(entries, recordEntry{ID: record.ID, Content: record.Content})
		}
		return render(w, format, entries, nil)
	}
	for i, record := range records {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "### %s\n", record.ID)
		if !pretty {
			fmt.Fprintln(w, record.Content)
			continue
		}
		for j, part := range rawhttp.PrettifyRecord(record.Content) {
			if j > 0 {
				fmt.Fprintf(w, "--- response %d\n", j)
			}
			fmt.Fprintln(w, part)
		}
	}
	return nil
}
