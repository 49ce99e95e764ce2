package store

import (
	"context"
	"fmt"

	"github.com/nerrad567/homesim/internal/device"
)

const defaultHistoryLimit = 50

// RecordTransition appends a power transition to the device history.
func (s *SQLiteStore) RecordTransition(ctx context.Context, e device.HistoryEntry) error {
	query := `
		INSERT INTO device_state_history (device_id, is_on, source, detail, created_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, e.DeviceID, boolToInt(e.On), e.Source, e.Detail, formatTimestamp(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("recording transition for %s: %w", e.DeviceID, err)
	}
	return nil
}

// DeviceHistory returns up to limit transitions of a device, newest first.
// A limit of zero or less returns the default page.
func (s *SQLiteStore) DeviceHistory(ctx context.Context, deviceID string, limit int) ([]device.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := `
		SELECT id, device_id, is_on, source, detail, created_at
		FROM device_state_history
		WHERE device_id = ?
		ORDER BY id DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying device history: %w", err)
	}
	defer rows.Close()

	entries := make([]device.HistoryEntry, 0)
	for rows.Next() {
		var e device.HistoryEntry
		var isOn int
		var createdAt string
		if err := rows.Scan(&e.ID, &e.DeviceID, &isOn, &e.Source, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		e.On = isOn != 0
		if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device history: %w", err)
	}
	return entries, nil
}
