package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Schedule is a future-dated send batch that has not fired yet. Rows are
// deleted when the batch fires; outcomes are never recorded here.
type Schedule struct {
	ID         string
	Recipients []string
	Message    string
	FireAt     int64 // unix ms
}

// InsertSchedule journals an accepted future-dated batch.
func (db *DB) InsertSchedule(s *Schedule) error {
	recipients, err := json.Marshal(s.Recipients)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO schedules (id, recipients, message, fire_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, string(recipients), s.Message, s.FireAt, time.Now().UnixMilli())
	return err
}

// PendingSchedules returns all journalled batches ordered by fire time.
// Past-due batches are included; the scheduler fires them immediately on
// restart.
func (db *DB) PendingSchedules() ([]Schedule, error) {
	rows, err := db.Query(`
		SELECT id, recipients, message, fire_at
		FROM schedules ORDER BY fire_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var schedules []Schedule
	for rows.Next() {
		var s Schedule
		var recipients string
		if err := rows.Scan(&s.ID, &recipients, &s.Message, &s.FireAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(recipients), &s.Recipients); err != nil {
			return nil, fmt.Errorf("unmarshal recipients for %s: %w", s.ID, err)
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// DeleteSchedule removes a batch once it has fired.
func (db *DB) DeleteSchedule(id string) error {
	_, err := db.Exec(`DELETE FROM schedules WHERE id = ?`, id)
	return err
}
