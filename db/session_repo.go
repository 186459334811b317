package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/devya-app/devya/domain"
	"github.com/google/uuid"
)

var _ domain.SessionRepository = (*Repository)(nil)

// dbSession represents an archived session as stored in the database.
type dbSession struct {
	ID          uuid.UUID `db:"id"`
	Port        int       `db:"port"`
	StartedAt   time.Time `db:"started_at"`
	EndedAt     time.Time `db:"ended_at"`
	RecordCount int       `db:"record_count"` // Only populated by GetSessions
}

// dbRecord represents one correlated record of an archived session.
type dbRecord struct {
	SessionID uuid.UUID `db:"session_id"`
	Seq       int       `db:"seq"`       // Position in first-seen order
	RecordID  string    `db:"record_id"` // Backend correlation id
	Content   string    `db:"content"`
	Fragments int       `db:"fragments"` // Number of fragments joined into the content
}

func toDomainSession(dbSession *dbSession) *domain.ArchivedSession {
	return &domain.ArchivedSession{
		ID:          dbSession.ID,
		Port:        uint16(dbSession.Port),
		StartedAt:   dbSession.StartedAt,
		EndedAt:     dbSession.EndedAt,
		RecordCount: dbSession.RecordCount,
	}
}

func fromDomainSession(session *domain.ArchivedSession) (*dbSession, []*dbRecord) {
	s := &dbSession{
		ID:        session.ID,
		Port:      int(session.Port),
		StartedAt: session.StartedAt,
		EndedAt:   session.EndedAt,
	}
	records := make([]*dbRecord, len(session.Records))
	for i, record := range session.Records {
		records[i] = &dbRecord{
			SessionID: session.ID,
			Seq:       i,
			RecordID:  record.ID,
			Content:   record.Content,
			Fragments: strings.Count(record.Content, domain.RecordSeparator) + 1,
		}
	}
	return s, records
}

// InsertSession saves the session and all of its records in a single transaction.
func (repo *Repository) InsertSession(session *domain.ArchivedSession) error {
	s, records := fromDomainSession(session)

	tx, err := repo.dbConn.Beginx()
	if err != nil {
		return fmt.Errorf("beginning transaction : %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExec(`INSERT INTO session (id, port, started_at, ended_at)
	                       VALUES (:id, :port, :started_at, :ended_at)`, s)
	if err != nil {
		return fmt.Errorf("inserting session %s : %w", session.ID, err)
	}

	for _, record := range records {
		_, err = tx.NamedExec(`INSERT INTO record (session_id, seq, record_id, content, fragments)
		                       VALUES (:session_id, :seq, :record_id, :content, :fragments)`, record)
		if err != nil {
			return fmt.Errorf("inserting record %s of session %s : %w", record.RecordID, session.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session %s : %w", session.ID, err)
	}
	return nil
}

// GetSessions returns every archived session newest first, with RecordCount populated and without records.
func (repo *Repository) GetSessions() ([]*domain.ArchivedSession, error) {
	var dbSessions []*dbSession
	query := `SELECT s.id, s.port, s.started_at, s.ended_at, COUNT(r.seq) AS record_count
	          FROM session s
	          LEFT JOIN record r ON r.session_id = s.id
	          GROUP BY s.id
	          ORDER BY s.started_at DESC`

	if err := repo.dbConn.Select(&dbSessions, query); err != nil {
		return nil, fmt.Errorf("fetching sessions : %w", err)
	}

	sessions := make([]*domain.ArchivedSession, len(dbSessions))
	for i, s := range dbSessions {
		sessions[i] = toDomainSession(s)
	}
	return sessions, nil
}

// GetSessionRecords returns the records of a session in first-seen order.
func (repo *Repository) GetSessionRecords(id uuid.UUID) ([]domain.CapturedRecord, error) {
	var exists bool
	if err := repo.dbConn.Get(&exists, `SELECT EXISTS(SELECT 1 FROM session WHERE id = ?)`, id); err != nil {
		return nil, fmt.Errorf("checking session %s : %w", id, err)
	}
	if !exists {
		return nil, fmt.Errorf("getting records of %s : %w", id, ErrSessionNotFound)
	}

	var dbRecords []*dbRecord
	query := `SELECT session_id, seq, record_id, content, fragments FROM record WHERE session_id = ? ORDER BY seq`
	if err := repo.dbConn.Select(&dbRecords, query, id); err != nil {
		return nil, fmt.Errorf("fetching records of %s : %w", id, err)
	}

	records := make([]domain.CapturedRecord, len(dbRecords))
	for i, r := range dbRecords {
		records[i] = domain.CapturedRecord{ID: r.RecordID, Content: r.Content}
	}
	return records, nil
}

// DeleteSession removes a session, its records are removed by the foreign key cascade.
func (repo *Repository) DeleteSession(id uuid.UUID) error {
	res, err := repo.dbConn.Exec(`DELETE FROM session WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s : %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deleted session %s : %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("deleting session %s : %w", id, ErrSessionNotFound)
	}
	return nil
}
