// Package db provides the database layer for devya.
// It encapsulates all interactions with the local SQLite database, which holds
// the data the frontend owns itself: the diagnostics log, the archive of ended
// proxy sessions with their correlated records, the record scope filters and
// the counts derived from them.
//
// This package is responsible for:
// - Establishing and managing the database connection (`db.go`).
// - Defining database-specific data structures that map to SQL table schemas.
// - Implementing the repository interfaces of the `domain` package
//   (`LogRepository`, `SessionRepository`, `ConfigRepository`, `StatsRepository`).
// - Handling data conversion between domain structs and database structs,
//   including the use of `sql.Null*` types for nullable fields.
// - Managing database migrations (`migrations/`).
// - Providing common database utility types (`types.go`).
//
// Rule directories and rule files are not stored here, the backend owns them.
package db
