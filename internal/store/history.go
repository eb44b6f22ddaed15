package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SessionRecord is one row of session history.
type SessionRecord struct {
	ID          int64      `json:"id"`
	SessionID   string     `json:"session_id"`
	Source      string     `json:"source"`
	ServiceName string     `json:"service_name"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	EndReason   string     `json:"end_reason,omitempty"`
}

const historyColumns = `id, session_id, source, service_name, started_at, ended_at, end_reason`

func scanSessionRecord(scanner interface{ Scan(...any) error }) (SessionRecord, error) {
	var r SessionRecord
	var ended sql.NullTime
	err := scanner.Scan(&r.ID, &r.SessionID, &r.Source, &r.ServiceName, &r.StartedAt, &ended, &r.EndReason)
	if ended.Valid {
		t := ended.Time
		r.EndedAt = &t
	}
	return r, err
}

// SessionStarted records a new session. Implements player.HistoryRecorder.
func (s *Store) SessionStarted(id, source, service string, startedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO session_history (session_id, source, service_name, started_at) VALUES (?, ?, ?, ?)`,
		id, source, service, startedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("store: failed to record session start: %w", err)
	}
	return nil
}

// SessionEnded closes out a session row. Unknown ids are ignored so a
// history wipe between start and stop cannot fail a shutdown.
func (s *Store) SessionEnded(id string, endedAt time.Time, reason string) error {
	_, err := s.db.Exec(
		`UPDATE session_history SET ended_at = ?, end_reason = ? WHERE session_id = ?`,
		endedAt.UTC(), reason, id,
	)
	if err != nil {
		return fmt.Errorf("store: failed to record session end: %w", err)
	}
	return nil
}

// RecentSessions returns the newest sessions, most recent first.
func (s *Store) RecentSessions(limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT `+historyColumns+` FROM session_history ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: history query failed: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		r, err := scanSessionRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: history scan failed: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// PruneBefore deletes history rows whose sessions started before cutoff.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM session_history WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("store: prune failed: %w", err)
	}
	return res.RowsAffected()
}
