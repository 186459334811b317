package db

import (
	"encoding/json"
	"fmt"

	"github.com/devya-app/devya/domain"
)

var _ domain.ConfigRepository = (*Repository)(nil)

// GetFilters implements the domain.ConfigRepository interface.
// It retrieves the scope rules from the 'app' table, which are stored as a JSON string.
func (repo *Repository) GetFilters() ([]string, error) {
	var filtersString string
	query := `SELECT filters FROM app LIMIT 1`
	err := repo.dbConn.Get(&filtersString, query)

	if err != nil {
		return nil, fmt.Errorf("getting filters: %w", err)
	}

	var filters []string
	err = json.Unmarshal([]byte(filtersString), &filters)

	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal filters JSON: %w", err)
	}

	return filters, nil
}

// SetFilters implements the domain.ConfigRepository interface.
// A nil slice is stored as an empty list.
func (repo *Repository) SetFilters(filters []string) error {
	if filters == nil {
		filters = []string{}
	}
	marshalledFilters, err := json.Marshal(filters)
	if err != nil {
		return fmt.Errorf("failed to marshal filters: %w", err)
	}

	query := `UPDATE app SET filters = ?`
	_, err = repo.dbConn.Exec(query, string(marshalledFilters))

	if err != nil {
		return fmt.Errorf("failed to update filters: %w", err)
	}

	return nil
}
