// Package cli implements the devya command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/devya-app/devya"
	"github.com/devya-app/devya/capture"
	"github.com/devya-app/devya/ipc"
	"github.com/spf13/cobra"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	configDir  string
	backendURL string
	output     string
}

// NewRootCmd builds the devya command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "devya",
		Short: "Capture HTTP traffic through the devya backend",
		Long: `devya drives an intercepting proxy that runs in the devya backend.
It starts and stops the proxy, shows the captured traffic as it arrives,
manages the rule files of the backend and keeps a history of past sessions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.configDir, "config-dir", defaultConfigDir(), "directory holding config.yaml and the database")
	root.PersistentFlags().StringVar(&g.backendURL, "backend", "", "backend url, overrides backend_url from the settings")
	root.PersistentFlags().StringVarP(&g.output, "output", "o", "text", "output format: text, json or yaml")

	root.AddCommand(
		newCACmd(g),
		newProxyCmd(g),
		newRulesCmd(g),
		newScopeCmd(g),
		newHistoryCmd(g),
		newLogsCmd(g),
		newStatsCmd(g),
		newWatchCmd(g),
	)
	return root
}

// Execute runs the command tree with os.Args.
func Execute(ctx context.Context) error {
	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", devya.UserMessage(err))
	}
	return err
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".devya"
	}
	return filepath.Join(dir, "devya")
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// appOptions selects what openApp wires.
type appOptions struct {
	backend  bool
	database bool
	metrics  *capture.Metrics
	// logs replaces stderr as the log destination.
	logs  io.Writer
	extra []func(*devya.App) error
}

// openApp loads the settings from the config directory and builds an App with the
// requested collaborators. The caller closes the App.
func (g *globals) openApp(cmd *cobra.Command, opts appOptions) (*devya.App, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	logs := opts.logs
	if logs == nil {
		logs = cmd.ErrOrStderr()
	}
	logger := newLogger(logs, cfg.Level())

	options := []func(*devya.App) error{
		devya.WithLogger(logger),
		devya.WithConfigDir(g.configDir),
	}
	if opts.database {
		options = append(options, devya.WithDatabase())
	}
	if opts.backend {
		backendURL := cfg.BackendURL
		if g.backendURL != "" {
			backendURL = g.backendURL
		}
		client, err := ipc.NewClient(backendURL, ipc.WithLogger(logger), ipc.WithQueueSize(cfg.QueueSize))
		if err != nil {
			return nil, err
		}
		options = append(options, devya.WithBackend(client))
	}
	if opts.metrics != nil {
		options = append(options, devya.WithMetrics(opts.metrics))
	}
	options = append(options, opts.extra...)

	app, err := devya.New(options...)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (g *globals) loadConfig() (*devya.Config, error) {
	if err := os.MkdirAll(g.configDir, 0700); err != nil {
		return nil, fmt.Errorf("creating config dir %s: %w", g.configDir, err)
	}
	return devya.LoadConfig(g.configDir)
}

// withApp runs fn with an App and closes it afterwards.
func (g *globals) withApp(cmd *cobra.Command, opts appOptions, fn func(app *devya.App) error) error {
	app, err := g.openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			app.Logger.Warn("closing app", "error", err)
		}
	}()
	return fn(app)
}
