package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/devya-app/devya"
	"github.com/devya-app/devya/capture"
	"github.com/devya-app/devya/domain"
	"github.com/devya-app/devya/view"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const stopTimeout = 5 * time.Second

// LogFile receives the logs of watch, inside the config directory.
const LogFile = "watch.log"

func newWatchCmd(g *globals) *cobra.Command {
	var (
		port        uint16
		metricsAddr string
		keep        bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Start the proxy and show the captured records as they arrive",
		Long: `watch starts the proxy, attaches to the capture channel of the backend and
renders the records in a table. The scope rules filter the rows. The proxy is
stopped on exit unless --keep is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var metrics *capture.Metrics
			if metricsAddr != "" {
				metrics = capture.NewMetrics()
			}

			// Set before any event can reach the handlers below.
			var program *tea.Program
			notify := func(message string) {
				go program.Send(view.NoticeMsg(message))
			}

			// The terminal belongs to the record view.
			if err := os.MkdirAll(g.configDir, 0700); err != nil {
				return fmt.Errorf("creating config dir %s: %w", g.configDir, err)
			}
			logFile, err := os.OpenFile(filepath.Join(g.configDir, LogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
			if err != nil {
				return fmt.Errorf("opening log file : %w", err)
			}
			defer logFile.Close()

			app, err := g.openApp(cmd, appOptions{
				backend:  true,
				database: true,
				metrics:  metrics,
				logs:     logFile,
				extra:    []func(*devya.App) error{devya.WithNotifyHandler(notify)},
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					app.Logger.Warn("closing app", "error", err)
				}
			}()

			if !cmd.Flags().Changed("port") {
				port = app.Config.LastPort()
			}
			status, err := app.CheckProxyRunning(ctx)
			if err != nil {
				return err
			}

			program = tea.NewProgram(
				view.New(
					view.WithFilter(app.Scope.Filter),
					view.WithReset(app.ResetRecords),
					view.WithStatus(status),
				),
				tea.WithAltScreen(),
				tea.WithContext(ctx),
			)

			if metrics != nil {
				server := serveMetrics(app, metricsAddr, metrics)
				defer server.Close()
			}

			cancelStatus := app.Proxy.Subscribe(func(status domain.ProxyStatus) {
				go program.Send(view.StatusMsg(status))
			})
			defer cancelStatus()

			feed := view.NewFeed()
			cancelRecords := app.SubscribeRecords(feed.Push)
			defer cancelRecords()
			go feed.Run(ctx, program.Send)

			if err := app.ListenEvents(ctx); err != nil {
				return err
			}
			// A proxy started by another process on this port pushes to that process's
			// channel, the backend ignores a start on the port it already serves.
			if runningOn(app, port) {
				if err := app.StopProxy(ctx); err != nil {
					return err
				}
			}
			if err := app.StartProxy(ctx, port); err != nil {
				return err
			}

			_, err = program.Run()
			cancel()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("running record view : %w", err)
			}

			if keep {
				return nil
			}
			stopCtx, stop := context.WithTimeout(context.WithoutCancel(cmd.Context()), stopTimeout)
			defer stop()
			return app.StopProxy(stopCtx)
		},
	}
	cmd.Flags().Uint16VarP(&port, "port", "p", devya.DefaultPort, "port to listen on, defaults to the last used port")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics of the correlator on this address")
	cmd.Flags().BoolVar(&keep, "keep", false, "leave the proxy running on exit")
	return cmd
}

func serveMetrics(app *devya.App, addr string, metrics *capture.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error("serving metrics", "addr", addr, "error", err)
		}
	}()
	return server
}
