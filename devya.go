// Package devya is the frontend of an intercepting proxy whose engine runs in a separate
// backend process. It forwards the certificate, proxy and rule commands to the backend,
// owns the push channel the backend streams captured traffic on and keeps the correlated,
// ordered record collection that a user interface renders.
//
// The core functionality includes:
//   - Proxy session lifecycle with one correlator per session
//   - Typed settings stored with viper
//   - Diagnostics log and session archive in SQLite
//   - Scope based filtering of the record view
package devya

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devya-app/devya/capture"
	"github.com/devya-app/devya/core"
	"github.com/devya-app/devya/domain"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Repository defines the methods consumed by the app to interact with the SQLite backend.
type Repository interface {
	domain.LogRepository
	domain.SessionRepository
	domain.ConfigRepository
	domain.StatsRepository
	Close() error
}

// App is the root object of the frontend. It coordinates the backend commands, the active
// proxy session and the persistence of diagnostics.
type App struct {
	ConfigDir      string                  // The configuration directory
	Config         *Config                 // Typed settings
	Repo           Repository              // DB Repository Interface
	Backend        domain.Backend          // Command boundary of the backend process
	DBWriteChannel chan domain.Persistable // DB Write Channel
	Logger         *slog.Logger
	Metrics        *capture.Metrics
	OnLog          func(log domain.Log) error // Function to be ran on each diagnostic after it was stored
	OnNotify       func(message string)       // Function to be ran with the user message of a failed command
	Scope          *Scope                     // Record view scope
	Proxy          *ProxyState                // Last known backend proxy status

	// AnomalyLimiter throttles persisted correlation anomalies. Anomalies over the limit
	// are still logged.
	AnomalyLimiter *rate.Limiter

	mu      sync.Mutex // serializes session lifecycle changes
	current atomic.Pointer[Session]
	records *core.Observers[domain.Snapshot]

	writeMu    sync.RWMutex
	closed     bool
	writerDone chan struct{}
	closeOnce  sync.Once
	stopEvents func()
	eventsMu   sync.Mutex
}

// New creates an App with default settings and applies any provided options. The DB writer
// is started once all options were applied.
func New(options ...func(*App) error) (*App, error) {
	app := &App{
		Config:         DefaultConfig(),
		DBWriteChannel: make(chan domain.Persistable, 100),
		Logger:         slog.Default(),
		Scope:          NewScope(true),
		Proxy:          NewProxyState(),
		AnomalyLimiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 20),
		records:        core.NewObservers[domain.Snapshot](),
		writerDone:     make(chan struct{}),
	}
	err := app.WithOptions(options...)
	if err != nil {
		if app.Repo != nil {
			app.Repo.Close()
		}
		return nil, err
	}
	app.records.Logger = app.Logger
	app.Proxy.observers.Logger = app.Logger

	go app.WriteToDB()
	return app, nil
}

// WithOptions applies options to an existing App.
func (app *App) WithOptions(options ...func(*App) error) error {
	for _, option := range options {
		err := option(app)
		if err != nil {
			return fmt.Errorf("applying option on devya : %w", err)
		}
	}
	return nil
}

// WriteToDB drains DBWriteChannel until Close. Logs are stored then handed to OnLog,
// archived sessions are stored.
func (app *App) WriteToDB() {
	defer close(app.writerDone)
	for item := range app.DBWriteChannel {
		switch castItem := item.(type) {
		case *domain.Log:
			if app.Repo != nil {
				if err := app.Repo.InsertLog(castItem); err != nil {
					app.Logger.Error("inserting log", "error", err)
				}
			}
			if app.OnLog != nil {
				if err := app.OnLog(*castItem); err != nil {
					app.Logger.Error("log handler", "error", err)
				}
			}
		case *domain.ArchivedSession:
			if app.Repo == nil {
				continue
			}
			if err := app.Repo.InsertSession(castItem); err != nil {
				app.Logger.Error("archiving session", "session", castItem.ID, "error", err)
			}
		default:
			app.Logger.Warn("unknown item on DB write channel", "type", item.GetType())
		}
	}
}

// WriteLog queues a diagnostic entry. Level is one of DEBUG, INFO, WARN, ERROR or FATAL.
func (app *App) WriteLog(level string, message string, options ...func(log *domain.Log) error) error {
	log, err := newLog(level, message, options...)
	if err != nil {
		return err
	}

	return app.enqueue(log)
}

// recordEvent writes an informational diagnostic for a completed operation. The operation
// already succeeded, so a failed write is only logged.
func (app *App) recordEvent(message string, options ...func(log *domain.Log) error) {
	if err := app.WriteLog("INFO", message, options...); err != nil {
		app.Logger.Debug("writing event log", "message", message, "error", err)
	}
}

// enqueue hands an item to the DB writer, waiting while the channel is full.
func (app *App) enqueue(item domain.Persistable) error {
	app.writeMu.RLock()
	defer app.writeMu.RUnlock()
	if app.closed {
		return ErrAppClosed
	}
	app.DBWriteChannel <- item
	return nil
}

// tryWriteLog queues a diagnostic without waiting, it reports whether the entry was queued.
// It is used on the delivery path of the correlator, which must not block.
func (app *App) tryWriteLog(level string, message string, options ...func(log *domain.Log) error) bool {
	log, err := newLog(level, message, options...)
	if err != nil {
		return false
	}

	app.writeMu.RLock()
	defer app.writeMu.RUnlock()
	if app.closed {
		return false
	}
	select {
	case app.DBWriteChannel <- log:
		return true
	default:
		return false
	}
}

func newLog(level string, message string, options ...func(log *domain.Log) error) (*domain.Log, error) {
	switch level {
	case "DEBUG":
	case "INFO":
	case "WARN":
	case "ERROR":
	case "FATAL":
	default:
		return nil, fmt.Errorf("level should be either: debug, info, warn, error, fatal")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating new uuid : %w", err)
	}
	log := &domain.Log{
		ID:        id,
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
	for _, option := range options {
		if err := option(log); err != nil {
			return nil, fmt.Errorf("applying log option : %w", err)
		}
	}
	return log, nil
}

// sessionLogOption ties a log entry to the current session, if any.
func (app *App) sessionLogOption() func(log *domain.Log) error {
	session := app.current.Load()
	if session == nil {
		return func(*domain.Log) error { return nil }
	}
	return core.LogWithSessionID(session.ID)
}

func (app *App) onAnomaly(session *Session, anomaly capture.Anomaly) {
	level := "WARN"
	if anomaly.Kind == capture.AnomalyOrphanBuffered {
		level = "DEBUG"
	}

	app.Logger.Log(context.Background(), mustLevel(level), anomaly.String(),
		"kind", anomaly.Kind,
		"session", session.ID,
		"record", anomaly.Fragment.ID,
	)

	// buffered orphans are routine, they are only persisted once they expire or get dropped
	if level == "DEBUG" || !app.AnomalyLimiter.Allow() {
		return
	}
	fields := map[string]any{"kind": string(anomaly.Kind)}
	if anomaly.Previous != "" {
		fields["previous"] = anomaly.Previous
	}
	if !app.tryWriteLog(level, anomaly.String(),
		core.LogWithSessionID(session.ID),
		core.LogWithRecordID(anomaly.Fragment.ID),
		core.LogWithContext(fields),
	) {
		app.Logger.Debug("dropping anomaly log, write queue is full", "kind", anomaly.Kind)
	}
}

func mustLevel(level string) slog.Level {
	l, _ := ParseLevel(level)
	return l
}

// forward hands snapshots of the current session to the record subscribers. Snapshots of a
// replaced session are dropped.
func (app *App) forward(session *Session, snapshot domain.Snapshot) {
	if app.current.Load() != session {
		return
	}
	app.records.Notify(snapshot)
}

// Close ends the current session, stops listening to backend events, flushes the DB write
// channel and closes the repository. The backend proxy is left running.
func (app *App) Close() error {
	var err error
	app.closeOnce.Do(func() {
		app.eventsMu.Lock()
		stop := app.stopEvents
		app.stopEvents = nil
		app.eventsMu.Unlock()
		if stop != nil {
			stop()
		}

		app.mu.Lock()
		if session := app.current.Load(); session != nil {
			app.endSession(session)
		}
		app.mu.Unlock()

		app.writeMu.Lock()
		app.closed = true
		close(app.DBWriteChannel)
		app.writeMu.Unlock()
		<-app.writerDone

		if app.Repo != nil {
			err = app.Repo.Close()
		}
	})
	return err
}
