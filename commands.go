package devya

import (
	"context"
	"fmt"

	"github.com/devya-app/devya/core"
	"github.com/devya-app/devya/domain"
)

// StartProxy starts the backend proxy on port with a fresh session. Starting on the port of
// the running session does nothing. On failure the new channel is detached and closed and the
// previous session keeps running, on success the previous session is ended.
func (app *App) StartProxy(ctx context.Context, port uint16) error {
	if app.Backend == nil {
		return ErrBackendUndefined
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	if current := app.current.Load(); current != nil && current.Port == port && !current.Ended() {
		return nil
	}

	session, err := app.newSession(ctx, port)
	if err != nil {
		return fmt.Errorf("%w : %w", ErrStartProxy, err)
	}
	if err := app.Backend.StartProxy(ctx, port, session.ChannelID()); err != nil {
		session.cancelFeed()
		if _, endErr := session.end(); endErr != nil {
			app.Logger.Warn("ending failed session", "error", endErr)
		}
		return fmt.Errorf("%w : %w", ErrStartProxy, err)
	}

	previous := app.current.Swap(session)
	if previous != nil {
		previous.cancelFeed()
		app.endSession(previous)
	}
	// fragments that arrived before the swap were dropped by forward
	session.Correlator.Announce()

	if err := app.Config.SetPort(port); err != nil {
		app.Logger.Warn("saving port", "error", err)
	}
	app.refreshProxyState(ctx)
	app.recordEvent(fmt.Sprintf("proxy started on port %d", port), app.sessionLogOption())
	return nil
}

// StopProxy stops the backend proxy, then detaches and closes the channel of the session.
// Records stay readable until the next StartProxy.
func (app *App) StopProxy(ctx context.Context) error {
	if app.Backend == nil {
		return ErrBackendUndefined
	}

	app.mu.Lock()
	defer app.mu.Unlock()

	if err := app.Backend.StopProxy(ctx); err != nil {
		return fmt.Errorf("%w : %w", ErrStopProxy, err)
	}
	if session := app.current.Load(); session != nil {
		app.endSession(session)
	}
	app.refreshProxyState(ctx)
	app.recordEvent("proxy stopped", app.sessionLogOption())
	return nil
}

// endSession ends session and queues its archive. The caller holds app.mu.
func (app *App) endSession(session *Session) {
	ended, err := session.end()
	if err != nil {
		app.Logger.Warn("ending session", "session", session.ID, "error", err)
	}
	if !ended {
		return
	}
	app.Logger.Debug("session ended", "session", session.ID, "port", session.Port)

	if app.Repo == nil || !app.Config.ArchiveSessions {
		return
	}
	archived := session.archive()
	if len(archived.Records) == 0 {
		return
	}
	if err := app.enqueue(archived); err != nil {
		app.Logger.Warn("archiving session", "session", session.ID, "error", err)
	}
}

// Session returns the current session, nil before the first StartProxy.
func (app *App) Session() *Session {
	return app.current.Load()
}

// Records returns the records of the current session in first-seen order.
func (app *App) Records() []domain.CapturedRecord {
	session := app.current.Load()
	if session == nil {
		return []domain.CapturedRecord{}
	}
	return session.Correlator.Records()
}

// Snapshot returns a versioned copy of the records of the current session.
func (app *App) Snapshot() domain.Snapshot {
	session := app.current.Load()
	if session == nil {
		return domain.Snapshot{Records: []domain.CapturedRecord{}}
	}
	return session.Correlator.Snapshot()
}

// ResetRecords clears the records of the current session. The session stays attached.
func (app *App) ResetRecords() error {
	session := app.current.Load()
	if session == nil {
		return ErrNoSession
	}
	session.Correlator.Reset()
	return nil
}

// SubscribeRecords registers fn for every change of the record collection. The subscription
// follows the current session, a new session is announced with its first snapshot.
func (app *App) SubscribeRecords(fn func(domain.Snapshot)) (cancel func()) {
	return app.records.Subscribe(fn)
}

// refreshProxyState asks the backend for the proxy status and updates app.Proxy.
func (app *App) refreshProxyState(ctx context.Context) {
	if _, err := app.CheckProxyRunning(ctx); err != nil {
		app.Logger.Warn("refreshing proxy status", "error", err)
	}
}

// ListenEvents keeps app.Proxy in sync with the backend lifecycle events. A stop event that
// leaves no proxy running ends the current session. The subscription ends with Close.
func (app *App) ListenEvents(ctx context.Context) error {
	if app.Backend == nil {
		return ErrBackendUndefined
	}

	app.eventsMu.Lock()
	defer app.eventsMu.Unlock()
	if app.stopEvents != nil {
		return nil
	}
	stop, err := app.Backend.ListenEvents(ctx, func(event domain.BackendEvent) {
		app.handleEvent(ctx, event)
	})
	if err != nil {
		return fmt.Errorf("listening to backend events : %w", err)
	}
	app.stopEvents = stop
	return nil
}

func (app *App) handleEvent(ctx context.Context, event domain.BackendEvent) {
	app.Logger.Debug("backend event", "event", event)

	app.mu.Lock()
	defer app.mu.Unlock()

	status, err := app.CheckProxyRunning(ctx)
	if err != nil {
		app.Logger.Warn("refreshing proxy status", "event", event, "error", err)
		return
	}
	if event != domain.EventProxyStopped || status.RunningCount > 0 {
		return
	}
	if session := app.current.Load(); session != nil && !session.Ended() {
		app.endSession(session)
		app.recordEvent("proxy stopped by the backend", core.LogWithSessionID(session.ID))
	}
}

// CheckCAInstalled reports whether the backend's root CA is trusted.
func (app *App) CheckCAInstalled(ctx context.Context) (bool, error) {
	if app.Backend == nil {
		return false, ErrBackendUndefined
	}
	return app.Backend.CheckCAInstalled(ctx)
}

// InstallCA asks the backend to install its root CA.
func (app *App) InstallCA(ctx context.Context) error {
	if app.Backend == nil {
		return ErrBackendUndefined
	}
	if err := app.Backend.InstallCA(ctx); err != nil {
		return err
	}
	app.recordEvent("certificate authority installed")
	return nil
}

// CheckProxyRunning returns the backend proxy status and stores it in app.Proxy.
func (app *App) CheckProxyRunning(ctx context.Context) (domain.ProxyStatus, error) {
	if app.Backend == nil {
		return domain.ProxyStatus{}, ErrBackendUndefined
	}
	status, err := app.Backend.CheckProxyRunning(ctx)
	if err != nil {
		return domain.ProxyStatus{}, err
	}
	app.Proxy.Update(status)
	return status, nil
}

// CheckPort reports whether the backend can listen on port.
func (app *App) CheckPort(ctx context.Context, port uint16) (bool, error) {
	if app.Backend == nil {
		return false, ErrBackendUndefined
	}
	return app.Backend.CheckPort(ctx, port)
}

func (app *App) GetRuleDirs(ctx context.Context) ([]*domain.RuleDir, error) {
	if app.Backend == nil {
		return nil, ErrBackendUndefined
	}
	return app.Backend.GetRuleDirs(ctx)
}

func (app *App) UpsertRuleDir(ctx context.Context, dir domain.RuleDirInput) (int, error) {
	if app.Backend == nil {
		return 0, ErrBackendUndefined
	}
	return app.Backend.UpsertRuleDir(ctx, dir)
}

func (app *App) GetRuleFiles(ctx context.Context) ([]*domain.RuleFile, error) {
	if app.Backend == nil {
		return nil, ErrBackendUndefined
	}
	return app.Backend.GetRuleFiles(ctx)
}

func (app *App) UpsertRuleFile(ctx context.Context, file domain.RuleFileInput) (int, error) {
	if app.Backend == nil {
		return 0, ErrBackendUndefined
	}
	return app.Backend.UpsertRuleFile(ctx, file)
}

func (app *App) DeleteRuleFile(ctx context.Context, id int) error {
	if app.Backend == nil {
		return ErrBackendUndefined
	}
	return app.Backend.DeleteRuleFile(ctx, id)
}

func (app *App) GetRuleFileContent(ctx context.Context, id int) (string, error) {
	if app.Backend == nil {
		return "", ErrBackendUndefined
	}
	return app.Backend.GetRuleFileContent(ctx, id)
}

func (app *App) UpdateRuleFileContent(ctx context.Context, id int, content string) error {
	if app.Backend == nil {
		return ErrBackendUndefined
	}
	return app.Backend.UpdateRuleFileContent(ctx, id, content)
}
