package cli

import (
	"fmt"
	"io"

	"github.com/devya-app/devya"
	"github.com/spf13/cobra"
)

func newScopeCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scope",
		Short: "Manage the rules that filter the record view",
		Long: `Scope rules are regular expressions matched against the host or the URL of a
record. A leading "-" or --exclude turns a rule into an exclusion, exclusions win.`,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List scope rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, appOptions{database: true}, func(app *devya.App) error {
				rules := app.Scope.Rules()
				return render(cmd.OutOrStdout(), g.output, rules, func(w io.Writer) error {
					if len(rules) == 0 {
						fmt.Fprintln(w, "no scope rules, every record is shown")
						return nil
					}
					for _, rule := range rules {
						fmt.Fprintln(w, rule)
					}
					return nil
				})
			})
		},
	}

	var (
		matchType string
		exclude   bool
	)
	add := &cobra.Command{
		Use:   "add PATTERN",
		Short: "Add a scope rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, appOptions{database: true}, func(app *devya.App) error {
				return app.AddScopeRule(args[0], matchType, exclude)
			})
		},
	}
	remove := &cobra.Command{
		Use:   "remove PATTERN",
		Short: "Remove a scope rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, appOptions{database: true}, func(app *devya.App) error {
				return app.RemoveScopeRule(args[0], matchType, exclude)
			})
		},
	}
	for _, c := range []*cobra.Command{add, remove} {
		c.Flags().StringVar(&matchType, "match", devya.MatchHost, "what the pattern is matched against: host or url")
		c.Flags().BoolVar(&exclude, "exclude", false, "exclude matching records")
	}

	cmd.AddCommand(list, add, remove)
	return cmd
}
