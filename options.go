package devya

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/devya-app/devya/capture"
	"github.com/devya-app/devya/db"
	"github.com/devya-app/devya/domain"
)

// DatabaseFile is the name of the SQLite database in the config directory.
const DatabaseFile = "devya.db"

// WithConfigDir creates the config directory if needed and loads config.yaml from it.
func WithConfigDir(appConfigDir string) func(*App) error {
	return func(app *App) error {
		if err := ensureDir(appConfigDir); err != nil {
			return err
		}
		app.ConfigDir = appConfigDir

		cfg, err := LoadConfig(appConfigDir)
		if err != nil {
			return err
		}
		app.Config = cfg
		return nil
	}
}

// WithConfig replaces the settings, for callers that do not keep a config directory.
func WithConfig(cfg *Config) func(*App) error {
	return func(app *App) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		if err := cfg.validate(); err != nil {
			return fmt.Errorf("validating config : %w", err)
		}
		app.Config = cfg
		return nil
	}
}

// WithLogger sets the structured logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) func(*App) error {
	return func(app *App) error {
		if logger != nil {
			app.Logger = logger
		}
		return nil
	}
}

// WithBackend sets the command boundary of the backend process.
func WithBackend(backend domain.Backend) func(*App) error {
	return func(app *App) error {
		if backend == nil {
			return ErrBackendUndefined
		}
		app.Backend = backend
		return nil
	}
}

// WithRepo sets the repository, closing the previous one. The saved scope rules are loaded.
func WithRepo(repo Repository) func(*App) error {
	return func(app *App) error {
		if repo == nil {
			return ErrRepoUndefined
		}
		if app.Repo != nil {
			if err := app.Repo.Close(); err != nil {
				return err
			}
			app.Repo = nil
		}
		app.Repo = repo
		if err := app.LoadScope(); err != nil {
			app.Logger.Warn("loading scope rules", "error", err)
		}
		return nil
	}
}

// WithDatabase opens the database in the config directory and uses it as the repository.
// It must come after WithConfigDir.
func WithDatabase() func(*App) error {
	return func(app *App) error {
		if app.ConfigDir == "" {
			return errors.New("config dir is not set")
		}
		conn, err := db.New(filepath.Join(app.ConfigDir, DatabaseFile))
		if err != nil {
			return fmt.Errorf("opening database : %w", err)
		}
		return WithRepo(db.NewRepo(conn))(app)
	}
}

// WithMetrics records correlator metrics of every session in metrics.
func WithMetrics(metrics *capture.Metrics) func(*App) error {
	return func(app *App) error {
		app.Metrics = metrics
		return nil
	}
}

func WithLogHandler(handler func(log domain.Log) error) func(*App) error {
	return func(app *App) error {
		if app.OnLog != nil {
			return errors.New("app already has a log handler defined")
		}
		app.OnLog = handler
		return nil
	}
}

func WithNotifyHandler(handler func(message string)) func(*App) error {
	return func(app *App) error {
		if app.OnNotify != nil {
			return errors.New("app already has a notify handler defined")
		}
		app.OnNotify = handler
		return nil
	}
}
