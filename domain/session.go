package domain

import (
	"time"

	"github.com/google/uuid"
)

// Persistable is implemented by every item that can be queued on the application's DB write channel.
type Persistable interface {
	GetType() string
}

// SessionRepository stores the record collections of ended proxy sessions.
type SessionRepository interface {
	// InsertSession saves the session and its records in first-seen order.
	InsertSession(session *ArchivedSession) error

	// GetSessions returns every archived session, newest first, without records.
	// RecordCount is populated.
	GetSessions() ([]*ArchivedSession, error)

	// GetSessionRecords returns the records of a session in their original order.
	// It returns an error if the session does not exist.
	GetSessionRecords(id uuid.UUID) ([]CapturedRecord, error)

	// DeleteSession removes a session and its records.
	DeleteSession(id uuid.UUID) error
}

// ArchivedSession is the persisted form of one proxy run.
type ArchivedSession struct {
	ID          uuid.UUID
	Port        uint16
	StartedAt   time.Time
	EndedAt     time.Time
	Records     []CapturedRecord
	RecordCount int
}

// GetType implements Persistable.
func (s *ArchivedSession) GetType() string {
	return "session"
}
