package domain

// StatsRepository defines the interface for retrieving counts about the stored data.
type StatsRepository interface {
	// CountSessions returns the number of archived sessions.
	CountSessions() (int, error)
	// CountRecords returns the number of archived records across all sessions.
	CountRecords() (int, error)
	// CountFragments returns the number of archived fragments across all sessions.
	CountFragments() (int, error)
	// CountLogs returns the number of stored log entries.
	CountLogs() (int, error)
}
