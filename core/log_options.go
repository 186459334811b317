// Package core provides fundamental utilities shared by the devya packages.
// This file contains option functions for customizing log entries.
package core

import (
	"github.com/devya-app/devya/domain"
	"github.com/google/uuid"
)

// LogWithContext is an option to add a context map to a log entry.
func LogWithContext(context map[string]any) func(log *domain.Log) error {
	return func(log *domain.Log) error {
		log.Context = context
		return nil
	}
}

// LogWithSessionID is an option to associate a log entry with a proxy session.
func LogWithSessionID(id uuid.UUID) func(log *domain.Log) error {
	return func(log *domain.Log) error {
		log.SessionID = &id
		return nil
	}
}

// LogWithRecordID is an option to associate a log entry with a captured record.
func LogWithRecordID(id string) func(log *domain.Log) error {
	return func(log *domain.Log) error {
		log.RecordID = &id
		return nil
	}
}
