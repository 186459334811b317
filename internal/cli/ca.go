package cli

import (
	"fmt"
	"io"

	"github.com/devya-app/devya"
	"github.com/spf13/cobra"
)

func newCACmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ca",
		Short: "Inspect and install the backend certificate authority",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Report whether the certificate authority is trusted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, appOptions{backend: true}, func(app *devya.App) error {
				installed, err := app.CheckCAInstalled(cmd.Context())
				if err != nil {
					return err
				}
				result := struct {
					Installed bool `json:"installed" yaml:"installed"`
				}{installed}
				return render(cmd.OutOrStdout(), g.output, result, func(w io.Writer) error {
					if installed {
						_, err := fmt.Fprintln(w, "certificate authority is installed")
						return err
					}
					_, err := fmt.Fprintln(w, "certificate authority is not installed, run: devya ca install")
					return err
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Trust the certificate authority on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, appOptions{backend: true}, func(app *devya.App) error {
				if err := app.InstallCA(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "certificate authority installed")
				return nil
			})
		},
	})
	return cmd
}
