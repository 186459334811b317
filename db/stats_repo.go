package db

import (
	"fmt"

	"github.com/devya-app/devya/domain"
)

var _ domain.StatsRepository = (*Repository)(nil)

// CountSessions returns the number of archived sessions.
func (repo *Repository) CountSessions() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM session`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting session count: %w", err)
	}

	return count, nil
}

// CountRecords returns the number of archived records across all sessions.
func (repo *Repository) CountRecords() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM record`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting record count: %w", err)
	}

	return count, nil
}

// CountFragments returns the number of fragments that made up the archived records.
func (repo *Repository) CountFragments() (int, error) {
	var count int
	query := `SELECT COALESCE(SUM(fragments), 0) FROM record`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting fragment count: %w", err)
	}

	return count, nil
}

// CountLogs returns the number of stored log entries.
func (repo *Repository) CountLogs() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM logs`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting log count: %w", err)
	}

	return count, nil
}
