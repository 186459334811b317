package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// recordSeparator must match domain.RecordSeparator at the time this migration was written.
const recordSeparator = " -> "

func init() {
	goose.AddMigrationContext(upRecordFragments, downRecordFragments)
}

// upRecordFragments adds the fragment count of every archived record and backfills it
// from the content. The backfill counts separators, so it overcounts content that
// contains the separator itself.
func upRecordFragments(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `ALTER TABLE record ADD COLUMN fragments INTEGER NOT NULL DEFAULT 1`)
	if err != nil {
		return fmt.Errorf("adding fragments column : %w", err)
	}

	rows, err := tx.QueryContext(ctx, "SELECT session_id, seq, content FROM record")
	if err != nil {
		return fmt.Errorf("getting all records: %w", err)
	}

	type update struct {
		sessionID string
		seq       int
		fragments int
	}
	var updates []update
	for rows.Next() {
		var u update
		var content string
		if err := rows.Scan(&u.sessionID, &u.seq, &content); err != nil {
			rows.Close()
			return fmt.Errorf("scanning record: %w", err)
		}
		u.fragments = strings.Count(content, recordSeparator) + 1
		if u.fragments > 1 {
			updates = append(updates, u)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterating records: %w", err)
	}
	rows.Close()

	for _, u := range updates {
		_, err := tx.ExecContext(ctx, "UPDATE record SET fragments = ? WHERE session_id = ? AND seq = ?", u.fragments, u.sessionID, u.seq)
		if err != nil {
			return fmt.Errorf("updating record %s/%d : %w", u.sessionID, u.seq, err)
		}
	}
	return nil
}

func downRecordFragments(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `ALTER TABLE record DROP COLUMN fragments`); err != nil {
		return fmt.Errorf("dropping fragments column : %w", err)
	}
	return nil
}
