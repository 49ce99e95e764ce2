package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nerrad567/homesim/internal/device"
)

// LoadSensors returns every stored sensor keyed by id, with its last
// reading and its linked devices resolved against devices. Links to a
// device or sensor that does not exist are reported and skipped.
func (s *SQLiteStore) LoadSensors(ctx context.Context, devices map[string]*device.Device) (map[string]*device.Sensor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, unit, reading, updated_at FROM sensors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying sensors: %w", err)
	}

	sensors := make(map[string]*device.Sensor)
	for rows.Next() {
		sensor, err := s.scanSensor(ctx, rows)
		if err != nil {
			rows.Close() //nolint:errcheck // returning the scan error
			return nil, fmt.Errorf("scanning sensor: %w", err)
		}
		sensors[sensor.ID] = sensor
	}
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck // returning the iteration error
		return nil, fmt.Errorf("iterating sensors: %w", err)
	}
	rows.Close() //nolint:errcheck // fully read

	// The single connection must be free before the next query.
	links, err := s.LoadAutomationLinks(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		sensor, ok := sensors[l.SensorID]
		if !ok {
			s.skipped(ctx, fmt.Sprintf("link of device %q skipped: sensor %q not found", l.DeviceID, l.SensorID),
				l.DeviceID, l.SensorID)
			continue
		}
		d, ok := devices[l.DeviceID]
		if !ok {
			s.skipped(ctx, fmt.Sprintf("slave %q of sensor %q skipped: device not found", l.DeviceID, l.SensorID),
				l.DeviceID, l.SensorID)
			continue
		}
		sensor.AddSlave(d)
	}

	s.logger.Debug("sensors loaded", "count", len(sensors), "links", len(links))
	return sensors, nil
}

func (s *SQLiteStore) scanSensor(ctx context.Context, row rowScanner) (*device.Sensor, error) {
	var id, name, unit string
	var reading float64
	var updatedAt sql.NullString

	if err := row.Scan(&id, &name, &unit, &reading, &updatedAt); err != nil {
		return nil, err
	}

	sensor := device.NewSensor(id, name, unit)
	if updatedAt.Valid && updatedAt.String != "" {
		at, err := parseTimestamp(updatedAt.String)
		if err != nil {
			s.skipped(ctx, fmt.Sprintf("last reading of sensor %q ignored: %v", id, err), "", sensor.ID)
			return sensor, nil
		}
		sensor.Update(reading, at)
	}
	return sensor, nil
}

// SaveSensor writes a sensor and its last reading.
func (s *SQLiteStore) SaveSensor(ctx context.Context, sensor *device.Sensor) error {
	query := `
		INSERT INTO sensors (id, name, unit, reading, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			unit = excluded.unit,
			reading = excluded.reading,
			updated_at = excluded.updated_at`

	value, at := sensor.Reading()
	var updatedAt sql.NullString
	if !at.IsZero() {
		updatedAt = sql.NullString{String: formatTimestamp(at), Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, query, sensor.ID, sensor.Name, sensor.Unit, value, updatedAt); err != nil {
		return fmt.Errorf("saving sensor %s: %w", sensor.ID, err)
	}
	return nil
}
