package cli

import (
	"fmt"
	"io"

	"github.com/devya-app/devya"
	"github.com/spf13/cobra"
)

func newStatsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count the stored sessions, records and logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, appOptions{database: true}, func(app *devya.App) error {
				stats, err := app.Stats()
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), g.output, stats, func(w io.Writer) error {
					fmt.Fprintf(w, "sessions\t%d\n", stats.Sessions)
					fmt.Fprintf(w, "records\t%d\n", stats.Records)
					fmt.Fprintf(w, "fragments\t%d\n", stats.Fragments)
					fmt.Fprintf(w, "logs\t%d\n", stats.Logs)
					return nil
				})
			})
		},
	}
}
