package devya

import (
	"fmt"

	"github.com/devya-app/devya/domain"
	"github.com/google/uuid"
)

// Stats summarizes the stored data.
type Stats struct {
	Sessions  int `json:"sessions" yaml:"sessions"`
	Records   int `json:"records" yaml:"records"`
	Fragments int `json:"fragments" yaml:"fragments"`
	Logs      int `json:"logs" yaml:"logs"`
}

// Sessions returns the archived sessions, newest first.
func (app *App) Sessions() ([]*domain.ArchivedSession, error) {
	if app.Repo == nil {
		return nil, ErrRepoUndefined
	}
	return app.Repo.GetSessions()
}

// SessionRecords returns the records of an archived session.
func (app *App) SessionRecords(id uuid.UUID) ([]domain.CapturedRecord, error) {
	if app.Repo == nil {
		return nil, ErrRepoUndefined
	}
	return app.Repo.GetSessionRecords(id)
}

func (app *App) DeleteSession(id uuid.UUID) error {
	if app.Repo == nil {
		return ErrRepoUndefined
	}
	return app.Repo.DeleteSession(id)
}

// Logs returns the stored diagnostics.
func (app *App) Logs() ([]*domain.Log, error) {
	if app.Repo == nil {
		return nil, ErrRepoUndefined
	}
	return app.Repo.GetLogs()
}

func (app *App) Stats() (Stats, error) {
	if app.Repo == nil {
		return Stats{}, ErrRepoUndefined
	}
	var (
		stats Stats
		err   error
	)
	if stats.Sessions, err = app.Repo.CountSessions(); err != nil {
		return Stats{}, fmt.Errorf("counting sessions : %w", err)
	}
	if stats.Records, err = app.Repo.CountRecords(); err != nil {
		return Stats{}, fmt.Errorf("counting records : %w", err)
	}
	if stats.Fragments, err = app.Repo.CountFragments(); err != nil {
		return Stats{}, fmt.Errorf("counting fragments : %w", err)
	}
	if stats.Logs, err = app.Repo.CountLogs(); err != nil {
		return Stats{}, fmt.Errorf("counting logs : %w", err)
	}
	return stats, nil
}
