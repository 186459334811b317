package devya

import (
	"errors"
	"fmt"

	"github.com/devya-app/devya/capture"
	"github.com/devya-app/devya/db"
	"github.com/devya-app/devya/ipc"
)

var (
	// ErrBackendUndefined is returned by commands that need a backend when none was configured.
	ErrBackendUndefined = errors.New("backend is not configured")

	// ErrRepoUndefined is returned by operations that need the repository when none was configured.
	ErrRepoUndefined = errors.New("repository is not configured")

	// ErrNoSession is returned when an operation needs a proxy session and none was started.
	ErrNoSession = errors.New("no proxy session")

	// ErrStartProxy wraps every failure of StartProxy.
	ErrStartProxy = errors.New("failed to start proxy")

	// ErrStopProxy wraps every failure of StopProxy.
	ErrStopProxy = errors.New("failed to stop proxy")

	// ErrAppClosed is returned by WriteLog after Close.
	ErrAppClosed = errors.New("app is closed")
)

// UserMessage converts a command failure into the single line shown to the user.
// Backend rejections are shown as the backend worded them.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var commandErr *ipc.CommandError
	switch {
	case errors.As(err, &commandErr):
		return commandErr.Message
	case errors.Is(err, ErrBackendUndefined):
		return "No backend is configured, set backend_url in the settings"
	case errors.Is(err, ipc.ErrCertificateInstall):
		return "The certificate authority could not be installed"
	case errors.Is(err, capture.ErrAlreadyAttached):
		return "The capture channel is already in use"
	case errors.Is(err, ipc.ErrChannelClosed), errors.Is(err, capture.ErrQueueClosed):
		return "The capture channel was closed"
	case errors.Is(err, db.ErrSessionNotFound):
		return "Session not found"
	case errors.Is(err, ErrNoSession):
		return "No proxy session was started"
	}
	return err.Error()
}

// Notify reports err to the notify handler, the toast of a graphical frontend.
// Without a handler the message is logged.
func (app *App) Notify(err error) {
	if err == nil {
		return
	}
	message := UserMessage(err)
	app.Logger.Error(message, "error", err)
	if app.OnNotify != nil {
		app.OnNotify(message)
	}
	if writeErr := app.WriteLog("ERROR", message, app.sessionLogOption()); writeErr != nil {
		app.Logger.Warn(fmt.Sprintf("writing notify log : %v", writeErr))
	}
}
