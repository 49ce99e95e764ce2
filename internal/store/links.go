package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/homesim/internal/automation"
)

// LoadAutomationLinks returns every stored link, oldest first.
func (s *SQLiteStore) LoadAutomationLinks(ctx context.Context) ([]automation.Link, error) {
	query := `
		SELECT device_id, sensor_id, turn_on_below, turn_off_above, created_at
		FROM automation_links
		ORDER BY created_at, device_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying automation links: %w", err)
	}
	defer rows.Close()

	var links []automation.Link
	for rows.Next() {
		var l automation.Link
		var createdAt string
		if err := rows.Scan(&l.DeviceID, &l.SensorID, &l.TurnOnBelow, &l.TurnOffAbove, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning automation link: %w", err)
		}
		if err := l.Hysteresis().Validate(); err != nil {
			s.skipped(ctx, fmt.Sprintf("link of device %q skipped: thresholds (%g, %g) are invalid",
				l.DeviceID, l.TurnOnBelow, l.TurnOffAbove), l.DeviceID, l.SensorID)
			continue
		}
		// A bad audit timestamp does not invalidate the link.
		if t, err := parseTimestamp(createdAt); err == nil {
			l.CreatedAt = t
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating automation links: %w", err)
	}
	return links, nil
}

// SaveLink writes a link, replacing any existing link for the device.
func (s *SQLiteStore) SaveLink(ctx context.Context, l automation.Link) error {
	query := `
		INSERT INTO automation_links (device_id, sensor_id, turn_on_below, turn_off_above, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			sensor_id = excluded.sensor_id,
			turn_on_below = excluded.turn_on_below,
			turn_off_above = excluded.turn_off_above,
			created_at = excluded.created_at`

	created := l.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query, l.DeviceID, l.SensorID, l.TurnOnBelow, l.TurnOffAbove, formatTimestamp(created))
	if err != nil {
		return fmt.Errorf("saving automation link for %s: %w", l.DeviceID, err)
	}
	return nil
}

// DeleteLink removes the link of a device. Deleting a missing link is not
// an error.
func (s *SQLiteStore) DeleteLink(ctx context.Context, deviceID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM automation_links WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("deleting automation link for %s: %w", deviceID, err)
	}
	return nil
}
