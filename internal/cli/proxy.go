package cli

import (
	"fmt"
	"io"

	"github.com/devya-app/devya"
	"github.com/devya-app/devya/domain"
	"github.com/spf13/cobra"
)

type proxyStatus struct {
	Running      bool    `json:"running" yaml:"running"`
	Port         *uint16 `json:"port,omitempty" yaml:"port,omitempty"`
	RunningCount uint    `json:"running_count" yaml:"running_count"`
}

func newProxyStatus(status domain.ProxyStatus) proxyStatus {
	return proxyStatus{
		Running:      status.RunningCount > 0,
		Port:         status.Port,
		RunningCount: status.RunningCount,
	}
}

func newProxyCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Start, stop and inspect the proxy",
	}

	var port uint16
	start := &cobra.Command{
		Use:   "start",
		Short: "Start the proxy, use watch to see the captured traffic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, appOptions{backend: true, database: true}, func(app *devya.App) error {
				if !cmd.Flags().Changed("port") {
					port = app.Config.LastPort()
				}
				if _, err := app.CheckProxyRunning(cmd.Context()); err != nil {
					return err
				}
				free, err := app.CheckPort(cmd.Context(), port)
				if err != nil {
					return err
				}
				if !free && !runningOn(app, port) {
					return fmt.Errorf("port %d is already in use", port)
				}
				if err := app.StartProxy(cmd.Context(), port); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "proxy listening on port %d\n", port)
				return nil
			})
		},
	}
	start.Flags().Uint16VarP(&port, "port", "p", devya.DefaultPort, "port to listen on, defaults to the last used port")

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop the proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, appOptions{backend: true, database: true}, func(app *devya.App) error {
				if err := app.StopProxy(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "proxy stopped")
				return nil
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether the proxy is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, appOptions{backend: true}, func(app *devya.App) error {
				status, err := app.CheckProxyRunning(cmd.Context())
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), g.output, newProxyStatus(status), func(w io.Writer) error {
					if status.RunningCount == 0 {
						_, err := fmt.Fprintln(w, "proxy is not running")
						return err
					}
					port := "unknown port"
					if status.Port != nil {
						port = fmt.Sprintf("port %d", *status.Port)
					}
					_, err := fmt.Fprintf(w, "proxy is running on %s (%d running)\n", port, status.RunningCount)
					return err
				})
			})
		},
	}

	cmd.AddCommand(start, stop, status)
	return cmd
}

// runningOn reports whether the backend proxy already listens on port, in which case
// starting on it is a no-op rather than a conflict.
func runningOn(app *devya.App, port uint16) bool {
	current, ok := app.Proxy.Port()
	return ok && app.Proxy.IsProxyOn() && current == port
}
