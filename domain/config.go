package domain

// ConfigRepository holds application settings that live next to the captured data
// rather than in the settings file.
type ConfigRepository interface {
	// GetFilters retrieves the scope rules used to filter the record view.
	// A leading "-" marks an exclusion rule.
	GetFilters() ([]string, error)

	// SetFilters replaces the scope rules.
	SetFilters(filters []string) error
}
